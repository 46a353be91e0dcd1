package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/fieldtrack/services/ledger/config"
	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
	"example.com/fieldtrack/services/ledger/internal/tracing"
)

// newTestDB opens an isolated in-memory database. A single connection is
// shared so concurrent test goroutines serialize on it instead of each
// getting an empty database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.SetupModels(db))
	return db
}

func newTestTracer(t *testing.T) tracing.Tracer {
	t.Helper()
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	return tracer
}

// fixture bundles the master data most scenarios need
type fixture struct {
	db           *gorm.DB
	section      *models.Section
	activityType *models.ActivityType
	stage        *models.Stage
	material     *models.Material
	blockPC      *models.Block
	blockRC      *models.Block
}

// newFixture seeds a section with one plant-crop block of 3 ha and one
// ratoon-crop block of 2 ha, a material-consuming activity type and a
// single wildcard dosage rule of 2.5 per ha.
func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	f := &fixture{
		db:           db,
		section:      &models.Section{Code: "S-01", Name: "North"},
		activityType: &models.ActivityType{Name: "Spraying", RequiresMaterials: true},
		stage:        &models.Stage{Name: "Pre-emergence"},
		material:     &models.Material{Name: "Glyphosate", UnitOfMeasure: "L"},
	}
	require.NoError(t, db.Create(f.section).Error)
	require.NoError(t, db.Create(f.activityType).Error)
	require.NoError(t, db.Create(f.stage).Error)
	require.NoError(t, db.Create(f.material).Error)

	f.blockPC = &models.Block{
		SectionID:    f.section.ID,
		Name:         "A1",
		CropCategory: models.CropCategoryPlantCrop,
		TotalArea:    3,
	}
	f.blockRC = &models.Block{
		SectionID:    f.section.ID,
		Name:         "A2",
		CropCategory: models.CropCategoryRatoonCrop,
		TotalArea:    2,
	}
	require.NoError(t, db.Create(f.blockPC).Error)
	require.NoError(t, db.Create(f.blockRC).Error)

	rule := &models.DosageRule{
		ActivityTypeID: f.activityType.ID,
		MaterialID:     f.material.ID,
		DosePerArea:    2.5,
	}
	require.NoError(t, db.Create(rule).Error)

	return f
}

func (f *fixture) newPlanService(t *testing.T) PlanService {
	t.Helper()
	return NewPlanService(
		f.db,
		repository.NewPlanRepository(f.db),
		repository.NewBlockRepository(f.db),
		NewDosageService(repository.NewDosageRuleRepository(f.db)),
		nil,
	)
}

func (f *fixture) newExecutionService(t *testing.T) ExecutionService {
	t.Helper()
	return NewExecutionService(
		f.db,
		repository.NewExecutionRepository(f.db),
		repository.NewPlanRepository(f.db),
		NewDosageService(repository.NewDosageRuleRepository(f.db)),
		nil,
		newTestTracer(t),
	)
}

// createApprovedPlan creates and approves a plan over both fixture blocks
func (f *fixture) createApprovedPlan(t *testing.T) *models.ActivityPlan {
	t.Helper()

	planSvc := f.newPlanService(t)
	plan, err := planSvc.Create(context.Background(), &CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: f.activityType.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks: []BlockAllocationRequest{
			{BlockID: f.blockPC.ID},
			{BlockID: f.blockRC.ID},
		},
	})
	require.NoError(t, err)

	plan, err = planSvc.Approve(context.Background(), plan.ID, uuid.New())
	require.NoError(t, err)
	return plan
}

// blockActivityFor finds the allocation binding the plan to the given block
func blockActivityFor(t *testing.T, db *gorm.DB, planID, blockID uuid.UUID) *models.BlockActivity {
	t.Helper()
	var ba models.BlockActivity
	err := db.Where("plan_id = ? AND block_id = ?", planID, blockID).First(&ba).Error
	require.NoError(t, err)
	return &ba
}
