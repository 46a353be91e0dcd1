package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
)

// CategoryBreakdown splits a quantity by crop category
type CategoryBreakdown struct {
	PlantCrop  float64 `json:"pc"`
	RatoonCrop float64 `json:"rc"`
}

// MaterialRequirement is the resolved quantity of one material for a set
// of blocks
type MaterialRequirement struct {
	MaterialID    uuid.UUID         `json:"material_id"`
	MaterialName  string            `json:"material_name"`
	UnitOfMeasure string            `json:"unit_of_measure"`
	TotalQuantity float64           `json:"total_quantity"`
	ByCategory    CategoryBreakdown `json:"by_category"`
}

// DosageService resolves material requirements from dosage rules. The same
// resolution path seeds plan budgets and computes execution consumption, so
// the two can never drift apart.
type DosageService interface {
	Resolve(ctx context.Context, activityTypeID uuid.UUID, stageID, optionID *uuid.UUID, blocks []models.Block) ([]MaterialRequirement, error)
	ResolveForAreas(rules []*models.DosageRule, stageID, optionID *uuid.UUID, pcArea, rcArea float64) []MaterialRequirement
}

// dosageService implements DosageService
type dosageService struct {
	ruleRepo repository.DosageRuleRepository
}

// NewDosageService creates a new dosage service
func NewDosageService(ruleRepo repository.DosageRuleRepository) DosageService {
	return &dosageService{ruleRepo: ruleRepo}
}

// Resolve computes the required quantity per material for the given blocks.
// Blocks without a recognized crop category count as plant crop.
func (s *dosageService) Resolve(ctx context.Context, activityTypeID uuid.UUID, stageID, optionID *uuid.UUID, blocks []models.Block) ([]MaterialRequirement, error) {
	rules, err := s.ruleRepo.FindByActivityType(ctx, activityTypeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load dosage rules")
	}

	pcArea, rcArea := partitionAreas(blocks)
	return s.ResolveForAreas(rules, stageID, optionID, pcArea, rcArea), nil
}

// ResolveForAreas applies the rule matching over pre-partitioned category
// areas. Rule selection is a conjunction over the non-nil keys: a nil stage
// or option key is a wildcard, a set key requires exact equality with the
// plan's value; a nil category key applies the dose to both category areas
// combined.
func (s *dosageService) ResolveForAreas(rules []*models.DosageRule, stageID, optionID *uuid.UUID, pcArea, rcArea float64) []MaterialRequirement {
	byMaterial := make(map[uuid.UUID]*MaterialRequirement)
	var order []uuid.UUID

	for _, rule := range rules {
		if !uuidKeyMatches(rule.StageID, stageID) {
			continue
		}
		if !uuidKeyMatches(rule.OptionID, optionID) {
			continue
		}

		var pcQty, rcQty float64
		switch {
		case rule.CropCategory == nil:
			pcQty = rule.DosePerArea * pcArea
			rcQty = rule.DosePerArea * rcArea
		case *rule.CropCategory == models.CropCategoryPlantCrop:
			pcQty = rule.DosePerArea * pcArea
		case *rule.CropCategory == models.CropCategoryRatoonCrop:
			rcQty = rule.DosePerArea * rcArea
		}

		if pcQty+rcQty <= 0 {
			continue
		}

		req, ok := byMaterial[rule.MaterialID]
		if !ok {
			req = &MaterialRequirement{MaterialID: rule.MaterialID}
			if rule.Material != nil {
				req.MaterialName = rule.Material.Name
				req.UnitOfMeasure = rule.Material.UnitOfMeasure
			}
			byMaterial[rule.MaterialID] = req
			order = append(order, rule.MaterialID)
		}
		req.ByCategory.PlantCrop = roundQuantity(req.ByCategory.PlantCrop + pcQty)
		req.ByCategory.RatoonCrop = roundQuantity(req.ByCategory.RatoonCrop + rcQty)
	}

	requirements := make([]MaterialRequirement, 0, len(order))
	for _, id := range order {
		req := byMaterial[id]
		req.TotalQuantity = roundQuantity(req.ByCategory.PlantCrop + req.ByCategory.RatoonCrop)
		if req.TotalQuantity <= 0 {
			continue
		}
		requirements = append(requirements, *req)
	}
	return requirements
}

// uuidKeyMatches applies nil-as-wildcard matching: a nil rule key matches
// any plan value, a set key requires exact equality
func uuidKeyMatches(ruleKey, planValue *uuid.UUID) bool {
	if ruleKey == nil {
		return true
	}
	if planValue == nil {
		return false
	}
	return *ruleKey == *planValue
}

// partitionAreas sums block areas per crop category
func partitionAreas(blocks []models.Block) (pcArea, rcArea float64) {
	for _, b := range blocks {
		if b.CropCategory == models.CropCategoryRatoonCrop {
			rcArea += b.TotalArea
		} else {
			pcArea += b.TotalArea
		}
	}
	return roundArea(pcArea), roundArea(rcArea)
}
