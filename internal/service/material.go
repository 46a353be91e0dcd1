package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/fieldtrack/services/ledger/internal/repository"
)

// MaterialSummary is the aggregate view over one plan material budget.
// UsagePercentage is the raw ratio and can exceed 100 when consumption has
// outrun the budget; DisplayPercentage is clamped for progress bars.
type MaterialSummary struct {
	MaterialID        uuid.UUID `json:"material_id"`
	MaterialName      string    `json:"material_name"`
	UnitOfMeasure     string    `json:"unit_of_measure"`
	TotalQuantity     float64   `json:"total_quantity"`
	AllocatedQuantity float64   `json:"allocated_quantity"`
	RemainingQuantity float64   `json:"remaining_quantity"`
	UsagePercentage   float64   `json:"usage_percentage"`
	DisplayPercentage float64   `json:"display_percentage"`
	OverBudget        bool      `json:"over_budget"`
}

// MaterialService exposes the material reservation ledger views
type MaterialService interface {
	PlanSummary(ctx context.Context, planID uuid.UUID) ([]MaterialSummary, error)
}

// materialService implements MaterialService
type materialService struct {
	pmRepo   repository.PlannedMaterialRepository
	planRepo repository.PlanRepository
}

// NewMaterialService creates a new material service
func NewMaterialService(pmRepo repository.PlannedMaterialRepository, planRepo repository.PlanRepository) MaterialService {
	return &materialService{pmRepo: pmRepo, planRepo: planRepo}
}

// PlanSummary builds the total/allocated/remaining view for each material
// budget of a plan. Over-consumption stays visible rather than being
// clipped away, so operators can react to it.
func (s *materialService) PlanSummary(ctx context.Context, planID uuid.UUID) ([]MaterialSummary, error) {
	if _, err := s.planRepo.GetByID(ctx, planID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "plan", ID: planID}
		}
		return nil, err
	}

	budgets, err := s.pmRepo.FindByPlan(ctx, planID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load planned materials")
	}

	summaries := make([]MaterialSummary, 0, len(budgets))
	for _, pm := range budgets {
		summary := MaterialSummary{
			MaterialID:        pm.MaterialID,
			TotalQuantity:     pm.TotalQuantity,
			AllocatedQuantity: roundQuantity(pm.AllocatedQuantity),
			RemainingQuantity: roundQuantity(pm.RemainingQuantity()),
			UsagePercentage:   pm.UsagePercentage(),
			OverBudget:        pm.AllocatedQuantity > pm.TotalQuantity,
		}
		summary.DisplayPercentage = summary.UsagePercentage
		if summary.DisplayPercentage > 100 {
			summary.DisplayPercentage = 100
		}
		if pm.Material != nil {
			summary.MaterialName = pm.Material.Name
			summary.UnitOfMeasure = pm.Material.UnitOfMeasure
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
