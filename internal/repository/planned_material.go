package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/models"
)

// PlannedMaterialRepository defines data access for material budgets
type PlannedMaterialRepository interface {
	FindByPlan(ctx context.Context, planID uuid.UUID) ([]*models.PlannedMaterial, error)
	Allocate(ctx context.Context, planID, materialID uuid.UUID, quantity float64) error
}

// plannedMaterialRepository implements PlannedMaterialRepository
type plannedMaterialRepository struct {
	db *gorm.DB
}

// NewPlannedMaterialRepository creates a new planned material repository
func NewPlannedMaterialRepository(db *gorm.DB) PlannedMaterialRepository {
	return &plannedMaterialRepository{db: db}
}

// FindByPlan lists the material budgets of one plan
func (r *plannedMaterialRepository) FindByPlan(ctx context.Context, planID uuid.UUID) ([]*models.PlannedMaterial, error) {
	var materials []*models.PlannedMaterial
	err := r.db.WithContext(ctx).
		Preload("Material").
		Where("plan_id = ?", planID).
		Order("created_at").
		Find(&materials).Error
	if err != nil {
		return nil, err
	}
	return materials, nil
}

// Allocate increases the consumed quantity of one budget row. The row may
// go past its total; over-consumption is surfaced in summaries, not blocked.
// A material without a seeded budget, such as one whose dosage rule was
// added after the plan was created, gets a zero-budget row so the
// consumption stays visible in the ledger.
func (r *plannedMaterialRepository) Allocate(ctx context.Context, planID, materialID uuid.UUID, quantity float64) error {
	res := r.db.WithContext(ctx).Model(&models.PlannedMaterial{}).
		Where("plan_id = ? AND material_id = ?", planID, materialID).
		Update("allocated_quantity", gorm.Expr("allocated_quantity + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		pm := &models.PlannedMaterial{
			PlanID:            planID,
			MaterialID:        materialID,
			TotalQuantity:     0,
			AllocatedQuantity: quantity,
		}
		return r.db.WithContext(ctx).Create(pm).Error
	}
	return nil
}
