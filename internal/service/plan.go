package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/cache"
	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
)

// BlockAllocationRequest selects a block for a plan. A nil Area allocates
// the block's full area.
type BlockAllocationRequest struct {
	BlockID uuid.UUID `json:"block_id"`
	Area    *float64  `json:"area"`
}

// CreatePlanRequest defines the request to create an activity plan
type CreatePlanRequest struct {
	SectionID      uuid.UUID                `json:"section_id"`
	ActivityTypeID uuid.UUID                `json:"activity_type_id"`
	StageID        *uuid.UUID               `json:"stage_id"`
	OptionID       *uuid.UUID               `json:"option_id"`
	VendorID       *uuid.UUID               `json:"vendor_id"`
	PeriodStart    time.Time                `json:"period_start"`
	PeriodEnd      time.Time                `json:"period_end"`
	CreatedBy      uuid.UUID                `json:"created_by"`
	Blocks         []BlockAllocationRequest `json:"blocks"`
}

// PlanService governs the plan lifecycle and owns plan-level reads
type PlanService interface {
	Create(ctx context.Context, req *CreatePlanRequest) (*models.ActivityPlan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ActivityPlan, error)
	Approve(ctx context.Context, planID, approverID uuid.UUID) (*models.ActivityPlan, error)
	Reject(ctx context.Context, planID, approverID uuid.UUID, reason string) (*models.ActivityPlan, error)
	Delete(ctx context.Context, planID uuid.UUID) error
	RefreshProgress(ctx context.Context, planID uuid.UUID) (*models.ActivityPlan, error)
	ListBySection(ctx context.Context, sectionID uuid.UUID) ([]*models.ActivityPlan, error)
}

// planService implements PlanService
type planService struct {
	db        *gorm.DB
	planRepo  repository.PlanRepository
	blockRepo repository.BlockRepository
	dosage    DosageService
	cache     cache.CacheClient
}

// NewPlanService creates a new plan service
func NewPlanService(
	db *gorm.DB,
	planRepo repository.PlanRepository,
	blockRepo repository.BlockRepository,
	dosage DosageService,
	cacheClient cache.CacheClient,
) PlanService {
	return &planService{
		db:        db,
		planRepo:  planRepo,
		blockRepo: blockRepo,
		dosage:    dosage,
		cache:     cacheClient,
	}
}

// Create validates the request, builds the plan with its block allocations
// and seeds the material budgets from the dosage rules, all in one
// transaction. The plan starts out pending.
func (s *planService) Create(ctx context.Context, req *CreatePlanRequest) (*models.ActivityPlan, error) {
	if len(req.Blocks) == 0 {
		return nil, NewValidationError("blocks", "at least one block is required")
	}
	if req.PeriodEnd.Before(req.PeriodStart) {
		return nil, NewValidationError("period_end", "target period ends before it starts")
	}

	blockIDs := make([]uuid.UUID, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		blockIDs = append(blockIDs, b.BlockID)
	}
	blocks, err := s.blockRepo.FindByIDs(ctx, blockIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load blocks")
	}
	blocksByID := make(map[uuid.UUID]*models.Block, len(blocks))
	for _, b := range blocks {
		blocksByID[b.ID] = b
	}

	var activityType models.ActivityType
	if err := s.db.WithContext(ctx).First(&activityType, "id = ?", req.ActivityTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "activity type", ID: req.ActivityTypeID}
		}
		return nil, errors.Wrap(err, "failed to load activity type")
	}

	plan := &models.ActivityPlan{
		SectionID:      req.SectionID,
		ActivityTypeID: req.ActivityTypeID,
		StageID:        req.StageID,
		OptionID:       req.OptionID,
		VendorID:       req.VendorID,
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		Status:         models.PlanStatusPending,
		CreatedBy:      req.CreatedBy,
	}

	// Allocation areas are fixed here for the lifetime of the plan, and the
	// same blocks feed the material budget so budget and consumption share
	// one resolution path.
	resolverBlocks := make([]models.Block, 0, len(req.Blocks))
	for _, alloc := range req.Blocks {
		block, ok := blocksByID[alloc.BlockID]
		if !ok {
			return nil, &NotFoundError{Entity: "block", ID: alloc.BlockID}
		}
		area := block.TotalArea
		if alloc.Area != nil {
			area = *alloc.Area
		}
		area = roundArea(area)
		if area <= 0 {
			return nil, NewValidationError("blocks", "allocated area must be greater than zero")
		}

		plan.BlockActivities = append(plan.BlockActivities, models.BlockActivity{
			BlockID:       block.ID,
			AllocatedArea: area,
			CompletedArea: 0,
			Status:        models.BlockActivityStatusPlanned,
		})

		scoped := *block
		scoped.TotalArea = area
		resolverBlocks = append(resolverBlocks, scoped)
	}

	if activityType.RequiresMaterials {
		requirements, err := s.dosage.Resolve(ctx, req.ActivityTypeID, req.StageID, req.OptionID, resolverBlocks)
		if err != nil {
			return nil, err
		}
		for _, r := range requirements {
			plan.PlannedMaterials = append(plan.PlannedMaterials, models.PlannedMaterial{
				MaterialID:    r.MaterialID,
				TotalQuantity: r.TotalQuantity,
			})
		}
	}

	if _, err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, errors.Wrap(err, "failed to create plan")
	}

	log.Info().
		Str("plan_id", plan.ID.String()).
		Int("blocks", len(plan.BlockActivities)).
		Int("materials", len(plan.PlannedMaterials)).
		Msg("Activity plan created")

	return s.planRepo.GetByID(ctx, plan.ID)
}

// GetByID loads a plan, preferring the cache
func (s *planService) GetByID(ctx context.Context, id uuid.UUID) (*models.ActivityPlan, error) {
	if s.cache != nil {
		if plan, err := s.cache.GetPlan(ctx, id); err == nil {
			return plan, nil
		}
	}

	plan, err := s.planRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "plan", ID: id}
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPlan(ctx, plan); err != nil {
			log.Warn().Err(err).Msg("Failed to cache plan")
		}
	}
	return plan, nil
}

// Approve moves a pending plan to approved, recording who approved it and
// when. Any other starting status is rejected.
func (s *planService) Approve(ctx context.Context, planID, approverID uuid.UUID) (*models.ActivityPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "plan", ID: planID}
		}
		return nil, err
	}

	if plan.Status != models.PlanStatusPending {
		return nil, &InvalidStateTransitionError{PlanID: planID, Status: plan.Status, Operation: "approve"}
	}

	now := time.Now()
	plan.Status = models.PlanStatusApproved
	plan.ApprovedBy = &approverID
	plan.ApprovedAt = &now

	if _, err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, errors.Wrap(err, "failed to approve plan")
	}
	s.invalidate(ctx, planID)

	log.Info().
		Str("plan_id", planID.String()).
		Str("approved_by", approverID.String()).
		Msg("Plan approved")

	return plan, nil
}

// Reject moves a pending plan to rejected. The reason is mandatory.
func (s *planService) Reject(ctx context.Context, planID, approverID uuid.UUID, reason string) (*models.ActivityPlan, error) {
	if reason == "" {
		return nil, NewValidationError("reason", "rejection reason is required")
	}

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "plan", ID: planID}
		}
		return nil, err
	}

	if plan.Status != models.PlanStatusPending {
		return nil, &InvalidStateTransitionError{PlanID: planID, Status: plan.Status, Operation: "reject"}
	}

	now := time.Now()
	plan.Status = models.PlanStatusRejected
	plan.ApprovedBy = &approverID
	plan.ApprovedAt = &now
	plan.RejectionReason = reason

	if _, err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, errors.Wrap(err, "failed to reject plan")
	}
	s.invalidate(ctx, planID)

	log.Info().
		Str("plan_id", planID.String()).
		Str("reason", reason).
		Msg("Plan rejected")

	return plan, nil
}

// Delete removes a plan. Only pending plans may be deleted; anything later
// in the lifecycle may carry execution history.
func (s *planService) Delete(ctx context.Context, planID uuid.UUID) error {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Entity: "plan", ID: planID}
		}
		return err
	}

	if plan.Status != models.PlanStatusPending {
		return &InvalidStateTransitionError{PlanID: planID, Status: plan.Status, Operation: "delete"}
	}

	if err := s.planRepo.Delete(ctx, planID); err != nil {
		return errors.Wrap(err, "failed to delete plan")
	}
	s.invalidate(ctx, planID)
	return nil
}

// RefreshProgress re-derives the plan status from its block allocations:
// any completed work moves an approved plan to in_progress, and the plan
// completes when every allocation is completed.
func (s *planService) RefreshProgress(ctx context.Context, planID uuid.UUID) (*models.ActivityPlan, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "plan", ID: planID}
		}
		return nil, err
	}

	status := derivePlanStatus(plan)
	if status != plan.Status {
		plan.Status = status
		if _, err := s.planRepo.Update(ctx, plan); err != nil {
			return nil, errors.Wrap(err, "failed to update plan status")
		}
		s.invalidate(ctx, planID)
	}
	return plan, nil
}

// ListBySection lists a section's plans, newest first
func (s *planService) ListBySection(ctx context.Context, sectionID uuid.UUID) ([]*models.ActivityPlan, error) {
	return s.planRepo.ListBySection(ctx, sectionID)
}

func (s *planService) invalidate(ctx context.Context, planID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePlan(ctx, planID); err != nil {
		log.Warn().Err(err).Str("plan_id", planID.String()).Msg("Failed to invalidate plan cache")
	}
}

// derivePlanStatus computes the execution-driven statuses from block
// allocations; approval-driven statuses pass through untouched
func derivePlanStatus(plan *models.ActivityPlan) models.PlanStatus {
	if !plan.Status.Executable() && plan.Status != models.PlanStatusCompleted {
		return plan.Status
	}
	if len(plan.BlockActivities) == 0 {
		return plan.Status
	}

	allCompleted := true
	anyWorked := false
	for _, ba := range plan.BlockActivities {
		if ba.Status != models.BlockActivityStatusCompleted {
			allCompleted = false
		}
		if ba.CompletedArea > 0 {
			anyWorked = true
		}
	}

	switch {
	case allCompleted:
		return models.PlanStatusCompleted
	case anyWorked:
		return models.PlanStatusInProgress
	default:
		return models.PlanStatusApproved
	}
}
