package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/fieldtrack/services/ledger/internal/models"
)

func TestCreatePlanSeedsAllocationsAndMaterials(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	svc := f.newPlanService(t)

	area := 2.5
	plan, err := svc.Create(context.Background(), &CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: f.activityType.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks: []BlockAllocationRequest{
			{BlockID: f.blockPC.ID},
			{BlockID: f.blockRC.ID, Area: &area},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.PlanStatusPending, plan.Status)
	require.Len(t, plan.BlockActivities, 2)

	byBlock := make(map[uuid.UUID]models.BlockActivity)
	for _, ba := range plan.BlockActivities {
		byBlock[ba.BlockID] = ba
	}
	// Omitted area defaults to the block's full area
	require.Equal(t, 3.0, byBlock[f.blockPC.ID].AllocatedArea)
	require.Equal(t, 2.5, byBlock[f.blockRC.ID].AllocatedArea)
	require.Equal(t, models.BlockActivityStatusPlanned, byBlock[f.blockPC.ID].Status)

	// Budget: 2.5 dose * (3 + 2.5) ha
	require.Len(t, plan.PlannedMaterials, 1)
	require.Equal(t, f.material.ID, plan.PlannedMaterials[0].MaterialID)
	require.Equal(t, 13.75, plan.PlannedMaterials[0].TotalQuantity)
	require.Equal(t, 0.0, plan.PlannedMaterials[0].AllocatedQuantity)
}

func TestCreatePlanValidation(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	svc := f.newPlanService(t)
	ctx := context.Background()

	base := CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: f.activityType.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks:         []BlockAllocationRequest{{BlockID: f.blockPC.ID}},
	}

	noBlocks := base
	noBlocks.Blocks = nil
	_, err := svc.Create(ctx, &noBlocks)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	backwards := base
	backwards.PeriodEnd = base.PeriodStart.AddDate(0, 0, -1)
	_, err = svc.Create(ctx, &backwards)
	require.ErrorAs(t, err, &vErr)

	zeroArea := base
	zero := 0.0
	zeroArea.Blocks = []BlockAllocationRequest{{BlockID: f.blockPC.ID, Area: &zero}}
	_, err = svc.Create(ctx, &zeroArea)
	require.ErrorAs(t, err, &vErr)

	unknownBlock := base
	unknownBlock.Blocks = []BlockAllocationRequest{{BlockID: uuid.New()}}
	_, err = svc.Create(ctx, &unknownBlock)
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestCreatePlanSkipsMaterialsWhenNotRequired(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)

	manual := &models.ActivityType{Name: "Weeding", RequiresMaterials: false}
	require.NoError(t, db.Create(manual).Error)

	svc := f.newPlanService(t)
	plan, err := svc.Create(context.Background(), &CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: manual.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks:         []BlockAllocationRequest{{BlockID: f.blockPC.ID}},
	})
	require.NoError(t, err)
	require.Empty(t, plan.PlannedMaterials)
}

func TestApproveOnlyFromPending(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	svc := f.newPlanService(t)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	require.Equal(t, models.PlanStatusApproved, plan.Status)
	require.NotNil(t, plan.ApprovedBy)
	require.NotNil(t, plan.ApprovedAt)

	// A second approval is an invalid transition
	_, err := svc.Approve(ctx, plan.ID, uuid.New())
	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, models.PlanStatusApproved, stateErr.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	svc := f.newPlanService(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, &CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: f.activityType.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks:         []BlockAllocationRequest{{BlockID: f.blockPC.ID}},
	})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, plan.ID, uuid.New(), "")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	rejected, err := svc.Reject(ctx, plan.ID, uuid.New(), "wrong period")
	require.NoError(t, err)
	require.Equal(t, models.PlanStatusRejected, rejected.Status)
	require.Equal(t, "wrong period", rejected.RejectionReason)

	// A rejected plan cannot be approved afterwards
	_, err = svc.Approve(ctx, plan.ID, uuid.New())
	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
}

func TestDeleteOnlyPendingPlans(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	svc := f.newPlanService(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, &CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: f.activityType.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks:         []BlockAllocationRequest{{BlockID: f.blockPC.ID}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, plan.ID))

	_, err = svc.GetByID(ctx, plan.ID)
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)

	// Child rows go with the plan
	var count int64
	require.NoError(t, db.Model(&models.BlockActivity{}).Where("plan_id = ?", plan.ID).Count(&count).Error)
	require.Zero(t, count)

	approved := f.createApprovedPlan(t)
	err = svc.Delete(ctx, approved.ID)
	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
}

func TestRejectedPlanRefusesExecution(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	planSvc := f.newPlanService(t)
	execSvc := f.newExecutionService(t)
	ctx := context.Background()

	plan, err := planSvc.Create(ctx, &CreatePlanRequest{
		SectionID:      f.section.ID,
		ActivityTypeID: f.activityType.ID,
		PeriodStart:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		CreatedBy:      uuid.New(),
		Blocks:         []BlockAllocationRequest{{BlockID: f.blockPC.ID}},
	})
	require.NoError(t, err)
	_, err = planSvc.Reject(ctx, plan.ID, uuid.New(), "no budget")
	require.NoError(t, err)

	ba := blockActivityFor(t, db, plan.ID, f.blockPC.ID)
	_, err = execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:      plan.ID,
		WorkDate:    time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		RecordedBy:  uuid.New(),
		BlockDeltas: []BlockDeltaRequest{{BlockActivityID: ba.ID, AreaWorked: 1}},
	})
	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
}
