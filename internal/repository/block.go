package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"example.com/fieldtrack/services/ledger/internal/models"
)

// BlockRepository defines data access for blocks
type BlockRepository interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Block, error)
	FindBySection(ctx context.Context, sectionID uuid.UUID) ([]*models.Block, error)
}

// blockRepository implements BlockRepository
type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

// FindByIDs loads blocks by id
func (r *blockRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Block, error) {
	var blocks []*models.Block
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}

// FindBySection lists the blocks of one section
func (r *blockRepository) FindBySection(ctx context.Context, sectionID uuid.UUID) ([]*models.Block, error) {
	var blocks []*models.Block
	if err := r.db.WithContext(ctx).Where("section_id = ?", sectionID).Order("name").Find(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}
