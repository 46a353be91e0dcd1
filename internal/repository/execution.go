package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/database"
	"example.com/fieldtrack/services/ledger/internal/models"
)

// ExecutionFilter narrows listing of execution events
type ExecutionFilter struct {
	From       *time.Time
	To         *time.Time
	SectionID  *uuid.UUID
	ActivityID *uuid.UUID
	PlanID     *uuid.UUID
}

// ExecutionRepository defines data access for execution events
type ExecutionRepository interface {
	Create(ctx context.Context, event *models.ExecutionEvent) (*models.ExecutionEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionEvent, error)
	GetByIdempotencyKey(ctx context.Context, key uuid.UUID) (*models.ExecutionEvent, error)
	List(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionEvent, error)
	FindUnpublished(ctx context.Context, limit int) ([]*models.ExecutionEvent, error)
	MarkAsPublished(ctx context.Context, ids []uuid.UUID) error
	SumDeltasByBlockActivity(ctx context.Context, planID uuid.UUID) (map[uuid.UUID]float64, error)
}

// executionRepository implements ExecutionRepository
type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

// Create inserts an event together with its deltas and material usages
func (r *executionRepository) Create(ctx context.Context, event *models.ExecutionEvent) (*models.ExecutionEvent, error) {
	if err := r.db.WithContext(ctx).Omit("Plan").Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

// GetByID loads one event with its children
func (r *executionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionEvent, error) {
	var event models.ExecutionEvent
	err := r.db.WithContext(ctx).
		Preload("BlockDeltas").
		Preload("BlockDeltas.BlockActivity").
		Preload("MaterialUsages").
		Preload("MaterialUsages.Material").
		First(&event, "id = ?", id).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// GetByIdempotencyKey finds an event previously recorded under the key
func (r *executionRepository) GetByIdempotencyKey(ctx context.Context, key uuid.UUID) (*models.ExecutionEvent, error) {
	var event models.ExecutionEvent
	err := r.db.WithContext(ctx).
		Preload("BlockDeltas").
		Preload("MaterialUsages").
		First(&event, "idempotency_key = ?", key).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// List returns events matching the filter, most recent work first
func (r *executionRepository) List(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionEvent, error) {
	query := r.db.WithContext(ctx).
		Preload("BlockDeltas").
		Preload("MaterialUsages").
		Order("work_date DESC, created_at DESC")

	if filter.PlanID != nil {
		query = query.Where("plan_id = ?", *filter.PlanID)
	}
	if filter.From != nil {
		query = query.Where("work_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("work_date <= ?", *filter.To)
	}
	if filter.SectionID != nil || filter.ActivityID != nil {
		query = query.Joins("JOIN activity_plans ON activity_plans.id = execution_events.plan_id")
		if filter.SectionID != nil {
			query = query.Where("activity_plans.section_id = ?", *filter.SectionID)
		}
		if filter.ActivityID != nil {
			query = query.Where("activity_plans.activity_type_id = ?", *filter.ActivityID)
		}
	}

	var events []*models.ExecutionEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// FindUnpublished returns events not yet delivered to the reporting feed
func (r *executionRepository) FindUnpublished(ctx context.Context, limit int) ([]*models.ExecutionEvent, error) {
	var events []*models.ExecutionEvent
	query := r.db.WithContext(ctx).
		Preload("BlockDeltas").
		Preload("MaterialUsages").
		Where("published = ?", false).
		Order("created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// MarkAsPublished marks events as delivered
func (r *executionRepository) MarkAsPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.ExecutionEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"published":    true,
			"published_at": now,
		}).Error
}

// SumDeltasByBlockActivity aggregates recorded area per block allocation
// for one plan, used to verify the tracked completed_area totals
func (r *executionRepository) SumDeltasByBlockActivity(ctx context.Context, planID uuid.UUID) (map[uuid.UUID]float64, error) {
	type row struct {
		BlockActivityID uuid.UUID
		Total           float64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.ExecutionBlockDelta{}).
		Select("execution_block_deltas.block_activity_id, SUM(execution_block_deltas.area_worked) AS total").
		Joins("JOIN execution_events ON execution_events.id = execution_block_deltas.event_id").
		Where("execution_events.plan_id = ?", planID).
		Group("execution_block_deltas.block_activity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := make(map[uuid.UUID]float64, len(rows))
	for _, r := range rows {
		sums[r.BlockActivityID] = r.Total
	}
	return sums, nil
}
