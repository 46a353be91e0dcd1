package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
)

// ReconcilerService verifies that tracked completion totals agree with the
// recorded execution history and repairs any drift. It runs periodically
// from the worker as a safety net behind the transactional write path.
type ReconcilerService interface {
	ReconcilePlan(ctx context.Context, planID uuid.UUID) (int, error)
	ReconcileAll(ctx context.Context) (int, error)
}

// reconcilerService implements ReconcilerService
type reconcilerService struct {
	planRepo repository.PlanRepository
	baRepo   repository.BlockActivityRepository
	execRepo repository.ExecutionRepository
}

// NewReconcilerService creates a new reconciler service
func NewReconcilerService(
	planRepo repository.PlanRepository,
	baRepo repository.BlockActivityRepository,
	execRepo repository.ExecutionRepository,
) ReconcilerService {
	return &reconcilerService{
		planRepo: planRepo,
		baRepo:   baRepo,
		execRepo: execRepo,
	}
}

// ReconcileAll reconciles every plan that can still receive or has received
// work. Returns the number of repaired block allocations.
func (s *reconcilerService) ReconcileAll(ctx context.Context) (int, error) {
	plans, err := s.planRepo.ListByStatus(ctx, []models.PlanStatus{
		models.PlanStatusApproved,
		models.PlanStatusInProgress,
		models.PlanStatusCompleted,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list plans for reconciliation")
	}

	repaired := 0
	for _, plan := range plans {
		n, err := s.ReconcilePlan(ctx, plan.ID)
		if err != nil {
			log.Error().Err(err).Str("plan_id", plan.ID.String()).Msg("Plan reconciliation failed")
			continue
		}
		repaired += n
	}
	return repaired, nil
}

// ReconcilePlan compares each allocation's completed_area against the sum
// of its recorded deltas and overwrites the tracked total when they
// disagree, then re-derives block and plan statuses. A status that no
// longer matches the area figures is repaired even when the totals agree.
func (s *reconcilerService) ReconcilePlan(ctx context.Context, planID uuid.UUID) (int, error) {
	sums, err := s.execRepo.SumDeltasByBlockActivity(ctx, planID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to sum execution deltas")
	}

	activities, err := s.baRepo.FindByPlan(ctx, planID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load block activities")
	}

	repaired := 0
	for _, ba := range activities {
		expected := roundArea(sums[ba.ID])
		if expected > ba.AllocatedArea {
			// Over-allocation should be impossible under the guarded write
			// path; surface it loudly and cap the repair at the allocation.
			log.Error().
				Str("block_activity_id", ba.ID.String()).
				Float64("recorded", expected).
				Float64("allocated", ba.AllocatedArea).
				Msg("Recorded deltas exceed allocated area")
			expected = ba.AllocatedArea
		}

		drift := expected - ba.CompletedArea
		if drift > -areaEpsilon && drift < areaEpsilon {
			// The area figures agree; keep the tracked total and only
			// verify the status still matches it.
			expected = ba.CompletedArea
		}

		status := deriveBlockStatus(ba.AllocatedArea, expected)
		if expected == ba.CompletedArea && status == ba.Status {
			continue
		}
		if err := s.baRepo.SetCompletedArea(ctx, ba.ID, expected, status); err != nil {
			return repaired, errors.Wrap(err, "failed to repair completed area")
		}

		log.Warn().
			Str("block_activity_id", ba.ID.String()).
			Float64("tracked", ba.CompletedArea).
			Float64("recorded", expected).
			Str("status", string(status)).
			Msg("Repaired block allocation drift")
		repaired++
	}

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return repaired, err
	}
	status := derivePlanStatus(plan)
	if status != plan.Status {
		plan.Status = status
		if _, err := s.planRepo.Update(ctx, plan); err != nil {
			return repaired, errors.Wrap(err, "failed to update plan status")
		}
	}

	return repaired, nil
}

// deriveBlockStatus computes the progress status from the area figures
func deriveBlockStatus(allocated, completed float64) models.BlockActivityStatus {
	switch {
	case completed <= 0:
		return models.BlockActivityStatusPlanned
	case allocated-completed <= areaEpsilon:
		return models.BlockActivityStatusCompleted
	default:
		return models.BlockActivityStatusInProgress
	}
}
