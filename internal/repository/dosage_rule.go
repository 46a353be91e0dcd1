package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/models"
)

// DosageRuleRepository defines data access for dosage rules
type DosageRuleRepository interface {
	FindByActivityType(ctx context.Context, activityTypeID uuid.UUID) ([]*models.DosageRule, error)
}

// dosageRuleRepository implements DosageRuleRepository
type dosageRuleRepository struct {
	db *gorm.DB
}

// NewDosageRuleRepository creates a new dosage rule repository
func NewDosageRuleRepository(db *gorm.DB) DosageRuleRepository {
	return &dosageRuleRepository{db: db}
}

// FindByActivityType lists all rules for one activity type with their
// materials; stage, option and category filtering happens in the resolver
func (r *dosageRuleRepository) FindByActivityType(ctx context.Context, activityTypeID uuid.UUID) ([]*models.DosageRule, error) {
	var rules []*models.DosageRule
	err := r.db.WithContext(ctx).
		Preload("Material").
		Where("activity_type_id = ?", activityTypeID).
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
