package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/database"
	"example.com/fieldtrack/services/ledger/internal/models"
)

// BlockActivityRepository defines data access for block allocations
type BlockActivityRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BlockActivity, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.BlockActivity, error)
	FindByPlan(ctx context.Context, planID uuid.UUID) ([]*models.BlockActivity, error)
	ApplyCompletion(ctx context.Context, id uuid.UUID, delta float64) error
	SetCompletedArea(ctx context.Context, id uuid.UUID, area float64, status models.BlockActivityStatus) error
}

// blockActivityRepository implements BlockActivityRepository
type blockActivityRepository struct {
	db *gorm.DB
}

// NewBlockActivityRepository creates a new block activity repository
func NewBlockActivityRepository(db *gorm.DB) BlockActivityRepository {
	return &blockActivityRepository{db: db}
}

// GetByID loads one block allocation with its block
func (r *blockActivityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BlockActivity, error) {
	var ba models.BlockActivity
	err := r.db.WithContext(ctx).Preload("Block").First(&ba, "id = ?", id).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ba, nil
}

// FindByIDs loads the allocations for the given ids with their blocks
func (r *blockActivityRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.BlockActivity, error) {
	var bas []*models.BlockActivity
	err := r.db.WithContext(ctx).Preload("Block").Where("id IN ?", ids).Find(&bas).Error
	if err != nil {
		return nil, err
	}
	return bas, nil
}

// FindByPlan lists the allocations of one plan
func (r *blockActivityRepository) FindByPlan(ctx context.Context, planID uuid.UUID) ([]*models.BlockActivity, error) {
	var bas []*models.BlockActivity
	err := r.db.WithContext(ctx).Preload("Block").Where("plan_id = ?", planID).Find(&bas).Error
	if err != nil {
		return nil, err
	}
	return bas, nil
}

// ApplyCompletion increases completed_area by delta with a guard on the
// remaining capacity. The guard runs in the UPDATE itself so a concurrent
// submission that consumed the capacity first makes this one a no-op;
// callers treat zero affected rows as ErrCapacityConflict. The status also
// derives from the post-update total in the same statement, so an increment
// racing with another one cannot leave a fully worked row in progress.
func (r *blockActivityRepository) ApplyCompletion(ctx context.Context, id uuid.UUID, delta float64) error {
	res := r.db.WithContext(ctx).Model(&models.BlockActivity{}).
		Where("id = ?", id).
		Where("completed_area + ? <= allocated_area + 0.005", delta).
		Updates(map[string]interface{}{
			"completed_area": gorm.Expr("completed_area + ?", delta),
			"status": gorm.Expr(
				"CASE WHEN allocated_area - (completed_area + ?) <= 0.005 THEN ? ELSE ? END",
				delta, models.BlockActivityStatusCompleted, models.BlockActivityStatusInProgress,
			),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCapacityConflict
	}
	return nil
}

// SetCompletedArea overwrites completed_area, used by the reconciler to
// repair drift between recorded deltas and the tracked total
func (r *blockActivityRepository) SetCompletedArea(ctx context.Context, id uuid.UUID, area float64, status models.BlockActivityStatus) error {
	return r.db.WithContext(ctx).Model(&models.BlockActivity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"completed_area": area,
			"status":         status,
		}).Error
}
