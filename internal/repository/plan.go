package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/database"
	"example.com/fieldtrack/services/ledger/internal/models"
)

// PlanRepository defines data access for activity plans
type PlanRepository interface {
	Create(ctx context.Context, plan *models.ActivityPlan) (*models.ActivityPlan, error)
	Update(ctx context.Context, plan *models.ActivityPlan) (*models.ActivityPlan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ActivityPlan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListBySection(ctx context.Context, sectionID uuid.UUID) ([]*models.ActivityPlan, error)
	ListByStatus(ctx context.Context, statuses []models.PlanStatus) ([]*models.ActivityPlan, error)
}

// planRepository implements PlanRepository
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// Create creates a plan together with its owned block activities and
// planned materials in a single transaction
func (r *planRepository) Create(ctx context.Context, plan *models.ActivityPlan) (*models.ActivityPlan, error) {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// Update persists status and approval mutations
func (r *planRepository) Update(ctx context.Context, plan *models.ActivityPlan) (*models.ActivityPlan, error) {
	if err := r.db.WithContext(ctx).Omit("BlockActivities", "PlannedMaterials").Save(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// GetByID loads a plan with its allocations and material budgets
func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ActivityPlan, error) {
	var plan models.ActivityPlan
	err := r.db.WithContext(ctx).
		Preload("ActivityType").
		Preload("Section").
		Preload("Stage").
		Preload("Option").
		Preload("Vendor").
		Preload("BlockActivities").
		Preload("BlockActivities.Block").
		Preload("PlannedMaterials").
		Preload("PlannedMaterials.Material").
		First(&plan, "id = ?", id).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// Delete removes a plan and its owned rows. The service layer guarantees
// the plan is still pending, so no execution history can reference it.
func (r *planRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("plan_id = ?", id).Delete(&models.BlockActivity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("plan_id = ?", id).Delete(&models.PlannedMaterial{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ActivityPlan{}, "id = ?", id).Error
	})
}

// ListBySection lists plans belonging to a section
func (r *planRepository) ListBySection(ctx context.Context, sectionID uuid.UUID) ([]*models.ActivityPlan, error) {
	var plans []*models.ActivityPlan
	err := r.db.WithContext(ctx).
		Preload("ActivityType").
		Where("section_id = ?", sectionID).
		Order("created_at DESC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

// ListByStatus lists plans in any of the given statuses
func (r *planRepository) ListByStatus(ctx context.Context, statuses []models.PlanStatus) ([]*models.ActivityPlan, error) {
	var plans []*models.ActivityPlan
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at DESC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
