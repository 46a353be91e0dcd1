package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/cache"
	"example.com/fieldtrack/services/ledger/internal/database"
	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/tracing"
)

// BlockDeltaRequest is the proposed area worked on one block allocation
type BlockDeltaRequest struct {
	BlockActivityID uuid.UUID `json:"block_activity_id"`
	AreaWorked      float64   `json:"area_worked"`
}

// RecordExecutionRequest defines the request to record a work execution event
type RecordExecutionRequest struct {
	PlanID         uuid.UUID           `json:"plan_id"`
	WorkDate       time.Time           `json:"work_date"`
	WorkerCount    *int                `json:"worker_count"`
	Notes          string              `json:"notes"`
	RecordedBy     uuid.UUID           `json:"recorded_by"`
	IdempotencyKey uuid.UUID           `json:"idempotency_key"`
	BlockDeltas    []BlockDeltaRequest `json:"block_deltas"`
}

// errDuplicateSubmission marks an insert under an idempotency key that a
// concurrent submission committed first
var errDuplicateSubmission = errors.New("duplicate execution submission")

// ExecutionService records work execution events and exposes the execution
// history for reporting
type ExecutionService interface {
	Record(ctx context.Context, req *RecordExecutionRequest) (*models.ExecutionEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionEvent, error)
	List(ctx context.Context, filter repository.ExecutionFilter) ([]*models.ExecutionEvent, error)
}

// executionService implements ExecutionService
type executionService struct {
	db       *gorm.DB
	execRepo repository.ExecutionRepository
	planRepo repository.PlanRepository
	dosage   DosageService
	cache    cache.CacheClient
	tracer   tracing.Tracer
}

// NewExecutionService creates a new execution service
func NewExecutionService(
	db *gorm.DB,
	execRepo repository.ExecutionRepository,
	planRepo repository.PlanRepository,
	dosage DosageService,
	cacheClient cache.CacheClient,
	tracer tracing.Tracer,
) ExecutionService {
	return &executionService{
		db:       db,
		execRepo: execRepo,
		planRepo: planRepo,
		dosage:   dosage,
		cache:    cacheClient,
		tracer:   tracer,
	}
}

// Record validates and persists a work execution event. All validation runs
// before any write; the event header, block deltas, material usages, area
// updates and budget allocations then commit or roll back as one database
// transaction. The area update carries its own capacity guard, so a
// concurrent submission that consumed the remaining area first aborts this
// one instead of overshooting the allocation.
func (s *executionService) Record(ctx context.Context, req *RecordExecutionRequest) (*models.ExecutionEvent, error) {
	txn := s.tracer.StartTransaction("record-execution")
	defer s.tracer.EndTransaction(txn)

	if err := validateRecordRequest(req); err != nil {
		return nil, err
	}

	// Duplicate submissions under a known key return the original event
	// instead of double-recording the work.
	if req.IdempotencyKey != uuid.Nil {
		if existing, err := s.execRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
			log.Info().
				Str("event_id", existing.ID.String()).
				Str("idempotency_key", req.IdempotencyKey.String()).
				Msg("Duplicate execution submission, returning original event")
			return existing, nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	} else {
		req.IdempotencyKey = uuid.New()
	}

	plan, err := s.planRepo.GetByID(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "plan", ID: req.PlanID}
		}
		return nil, err
	}
	if !plan.Status.Executable() {
		return nil, &InvalidStateTransitionError{PlanID: plan.ID, Status: plan.Status, Operation: "record execution against"}
	}

	// Material consumption is derived from the blocks actually being
	// executed, scoped to the areas worked in this event. Rules and block
	// categories are master data, so resolution happens up front; only the
	// capacity state needs transactional reads.
	var requirements []MaterialRequirement
	if plan.ActivityType != nil && plan.ActivityType.RequiresMaterials {
		requirements, err = s.resolveUsage(ctx, plan, req.BlockDeltas)
		if err != nil {
			return nil, err
		}
	}

	var eventID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		baRepo := repository.NewBlockActivityRepository(tx)

		// Re-read the allocations inside the transaction so validation runs
		// against current state, not whatever the caller last saw.
		ids := make([]uuid.UUID, 0, len(req.BlockDeltas))
		for _, d := range req.BlockDeltas {
			ids = append(ids, d.BlockActivityID)
		}
		activities, err := baRepo.FindByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "failed to load block activities")
		}
		byID := make(map[uuid.UUID]*models.BlockActivity, len(activities))
		for _, ba := range activities {
			byID[ba.ID] = ba
		}

		for _, d := range req.BlockDeltas {
			ba, ok := byID[d.BlockActivityID]
			if !ok {
				return &NotFoundError{Entity: "block activity", ID: d.BlockActivityID}
			}
			if ba.PlanID != plan.ID {
				return NewValidationError("block_deltas", "block activity does not belong to the plan")
			}
			remaining := roundArea(ba.RemainingArea())
			if d.AreaWorked > remaining+areaEpsilon {
				return &CapacityExceededError{
					BlockActivityID: ba.ID,
					BlockName:       blockName(ba),
					Requested:       d.AreaWorked,
					Available:       remaining,
				}
			}
		}

		event := &models.ExecutionEvent{
			PlanID:         plan.ID,
			WorkDate:       req.WorkDate,
			WorkerCount:    req.WorkerCount,
			Notes:          req.Notes,
			RecordedBy:     req.RecordedBy,
			IdempotencyKey: req.IdempotencyKey,
		}
		if err := tx.Create(event).Error; err != nil {
			// The pre-transaction dedupe lookup races with other submissions
			// under the same key; the unique index is the authority.
			if database.IsDuplicateKeyError(err) {
				return errDuplicateSubmission
			}
			return &DependencyWriteFailureError{Step: "execution event", Err: err}
		}
		eventID = event.ID

		deltas := make([]models.ExecutionBlockDelta, 0, len(req.BlockDeltas))
		for _, d := range req.BlockDeltas {
			deltas = append(deltas, models.ExecutionBlockDelta{
				EventID:         event.ID,
				BlockActivityID: d.BlockActivityID,
				AreaWorked:      d.AreaWorked,
			})
		}
		if err := tx.Create(&deltas).Error; err != nil {
			return &DependencyWriteFailureError{Step: "block deltas", Err: err}
		}

		if len(requirements) > 0 {
			pmRepo := repository.NewPlannedMaterialRepository(tx)
			usages := make([]models.ExecutionMaterialUsage, 0, len(requirements))
			for _, r := range requirements {
				usages = append(usages, models.ExecutionMaterialUsage{
					EventID:      event.ID,
					MaterialID:   r.MaterialID,
					QuantityUsed: r.TotalQuantity,
				})
			}
			if err := tx.Create(&usages).Error; err != nil {
				return &DependencyWriteFailureError{Step: "material usages", Err: err}
			}
			for _, r := range requirements {
				if err := pmRepo.Allocate(ctx, plan.ID, r.MaterialID, r.TotalQuantity); err != nil {
					return &DependencyWriteFailureError{Step: "material allocation", Err: err}
				}
			}
		}

		// Apply the area deltas last. The guarded update re-checks capacity
		// and derives the block status at write time; a conflict means
		// another submission got there first and the whole event rolls back.
		for _, d := range req.BlockDeltas {
			ba := byID[d.BlockActivityID]
			if err := baRepo.ApplyCompletion(ctx, ba.ID, d.AreaWorked); err != nil {
				if errors.Is(err, repository.ErrCapacityConflict) {
					fresh, ferr := baRepo.GetByID(ctx, ba.ID)
					available := 0.0
					if ferr == nil {
						available = roundArea(fresh.RemainingArea())
					}
					return &CapacityExceededError{
						BlockActivityID: ba.ID,
						BlockName:       blockName(ba),
						Requested:       d.AreaWorked,
						Available:       available,
					}
				}
				return &DependencyWriteFailureError{Step: "area update", Err: err}
			}
		}

		return s.rollUpPlanStatus(ctx, tx, plan.ID)
	})
	if err != nil {
		if errors.Is(err, errDuplicateSubmission) {
			existing, derr := s.execRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if derr != nil {
				return nil, derr
			}
			log.Info().
				Str("event_id", existing.ID.String()).
				Str("idempotency_key", req.IdempotencyKey.String()).
				Msg("Duplicate execution submission, returning original event")
			return existing, nil
		}
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if s.cache != nil {
		if cerr := s.cache.DeletePlan(ctx, plan.ID); cerr != nil {
			log.Warn().Err(cerr).Str("plan_id", plan.ID.String()).Msg("Failed to invalidate plan cache")
		}
	}

	event, err := s.execRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reload execution event")
	}

	log.Info().
		Str("event_id", event.ID.String()).
		Str("plan_id", plan.ID.String()).
		Int("blocks", len(event.BlockDeltas)).
		Int("materials", len(event.MaterialUsages)).
		Msg("Execution event recorded")

	return event, nil
}

// resolveUsage computes the material quantities consumed by the proposed
// deltas, using each delta's block scoped to the area worked
func (s *executionService) resolveUsage(ctx context.Context, plan *models.ActivityPlan, deltas []BlockDeltaRequest) ([]MaterialRequirement, error) {
	ids := make([]uuid.UUID, 0, len(deltas))
	for _, d := range deltas {
		ids = append(ids, d.BlockActivityID)
	}
	baRepo := repository.NewBlockActivityRepository(s.db)
	activities, err := baRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load block activities")
	}
	byID := make(map[uuid.UUID]*models.BlockActivity, len(activities))
	for _, ba := range activities {
		byID[ba.ID] = ba
	}

	executed := make([]models.Block, 0, len(deltas))
	for _, d := range deltas {
		ba, ok := byID[d.BlockActivityID]
		if !ok {
			return nil, &NotFoundError{Entity: "block activity", ID: d.BlockActivityID}
		}
		if ba.Block == nil {
			return nil, &NotFoundError{Entity: "block", ID: ba.BlockID}
		}
		scoped := *ba.Block
		scoped.TotalArea = d.AreaWorked
		executed = append(executed, scoped)
	}

	return s.dosage.Resolve(ctx, plan.ActivityTypeID, plan.StageID, plan.OptionID, executed)
}

// GetByID loads one execution event
func (s *executionService) GetByID(ctx context.Context, id uuid.UUID) (*models.ExecutionEvent, error) {
	event, err := s.execRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "execution event", ID: id}
		}
		return nil, err
	}
	return event, nil
}

// List returns execution events matching the filter
func (s *executionService) List(ctx context.Context, filter repository.ExecutionFilter) ([]*models.ExecutionEvent, error) {
	return s.execRepo.List(ctx, filter)
}

// rollUpPlanStatus re-derives the plan status from the block allocations as
// seen inside the transaction
func (s *executionService) rollUpPlanStatus(ctx context.Context, tx *gorm.DB, planID uuid.UUID) error {
	var activities []models.BlockActivity
	if err := tx.WithContext(ctx).Where("plan_id = ?", planID).Find(&activities).Error; err != nil {
		return errors.Wrap(err, "failed to reload block activities")
	}

	allCompleted := len(activities) > 0
	anyWorked := false
	for _, ba := range activities {
		if ba.Status != models.BlockActivityStatusCompleted {
			allCompleted = false
		}
		if ba.CompletedArea > 0 {
			anyWorked = true
		}
	}

	status := models.PlanStatusInProgress
	if allCompleted {
		status = models.PlanStatusCompleted
	} else if !anyWorked {
		return nil
	}

	return tx.WithContext(ctx).Model(&models.ActivityPlan{}).
		Where("id = ?", planID).
		Update("status", status).Error
}

func validateRecordRequest(req *RecordExecutionRequest) error {
	if req.PlanID == uuid.Nil {
		return NewValidationError("plan_id", "plan is required")
	}
	if req.WorkDate.IsZero() {
		return NewValidationError("work_date", "work date is required")
	}
	if len(req.BlockDeltas) == 0 {
		return NewValidationError("block_deltas", "at least one block delta is required")
	}
	seen := make(map[uuid.UUID]bool, len(req.BlockDeltas))
	for i := range req.BlockDeltas {
		d := &req.BlockDeltas[i]
		if d.BlockActivityID == uuid.Nil {
			return NewValidationError("block_deltas", "block activity is required")
		}
		// Normalize to the tracked precision up front so validation,
		// capacity checks and the stored delta all see the same figure. A
		// submission that rounds away to nothing is rejected rather than
		// persisted as a zero-area delta.
		d.AreaWorked = roundArea(d.AreaWorked)
		if d.AreaWorked <= 0 {
			return NewValidationError("block_deltas", "area worked must be greater than zero")
		}
		if seen[d.BlockActivityID] {
			return NewValidationError("block_deltas", "duplicate block activity in submission")
		}
		seen[d.BlockActivityID] = true
	}
	if req.WorkerCount != nil && *req.WorkerCount < 0 {
		return NewValidationError("worker_count", "worker count cannot be negative")
	}
	return nil
}

func blockName(ba *models.BlockActivity) string {
	if ba.Block != nil {
		return ba.Block.Name
	}
	return ba.ID.String()
}
