package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/fieldtrack/services/ledger/internal/models"
	"example.com/fieldtrack/services/ledger/internal/repository"
)

func newReconciler(f *fixture) ReconcilerService {
	return NewReconcilerService(
		repository.NewPlanRepository(f.db),
		repository.NewBlockActivityRepository(f.db),
		repository.NewExecutionRepository(f.db),
	)
}

func TestSumDeltasMatchesRecordedWork(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	execSvc := f.newExecutionService(t)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	baPC := blockActivityFor(t, db, plan.ID, f.blockPC.ID)
	baRC := blockActivityFor(t, db, plan.ID, f.blockRC.ID)

	_, err := execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:     plan.ID,
		WorkDate:   workDate(),
		RecordedBy: uuid.New(),
		BlockDeltas: []BlockDeltaRequest{
			{BlockActivityID: baPC.ID, AreaWorked: 1.2},
			{BlockActivityID: baRC.ID, AreaWorked: 0.8},
		},
	})
	require.NoError(t, err)

	_, err = execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:      plan.ID,
		WorkDate:    workDate().AddDate(0, 0, 1),
		RecordedBy:  uuid.New(),
		BlockDeltas: []BlockDeltaRequest{{BlockActivityID: baPC.ID, AreaWorked: 0.3}},
	})
	require.NoError(t, err)

	sums, err := repository.NewExecutionRepository(db).SumDeltasByBlockActivity(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	require.InDelta(t, 1.5, sums[baPC.ID], 1e-9)
	require.InDelta(t, 0.8, sums[baRC.ID], 1e-9)
}

func TestReconcileRepairsDrift(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	execSvc := f.newExecutionService(t)
	reconciler := newReconciler(f)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	ba := blockActivityFor(t, db, plan.ID, f.blockPC.ID)

	_, err := execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:      plan.ID,
		WorkDate:    workDate(),
		RecordedBy:  uuid.New(),
		BlockDeltas: []BlockDeltaRequest{{BlockActivityID: ba.ID, AreaWorked: 2}},
	})
	require.NoError(t, err)

	// Simulate drift: the tracked total falls behind the recorded deltas
	require.NoError(t, db.Model(&models.BlockActivity{}).
		Where("id = ?", ba.ID).
		Update("completed_area", 0.5).Error)

	repaired, err := reconciler.ReconcilePlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)

	fresh := blockActivityFor(t, db, plan.ID, f.blockPC.ID)
	require.Equal(t, 2.0, fresh.CompletedArea)
	require.Equal(t, models.BlockActivityStatusInProgress, fresh.Status)
}

func TestReconcileIsStableWhenInSync(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	execSvc := f.newExecutionService(t)
	reconciler := newReconciler(f)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	ba := blockActivityFor(t, db, plan.ID, f.blockPC.ID)

	_, err := execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:      plan.ID,
		WorkDate:    workDate(),
		RecordedBy:  uuid.New(),
		BlockDeltas: []BlockDeltaRequest{{BlockActivityID: ba.ID, AreaWorked: 1.5}},
	})
	require.NoError(t, err)

	repaired, err := reconciler.ReconcilePlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Zero(t, repaired)
}

func TestReconcileRepairsStatusOnlyDrift(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	execSvc := f.newExecutionService(t)
	reconciler := newReconciler(f)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	baPC := blockActivityFor(t, db, plan.ID, f.blockPC.ID)
	baRC := blockActivityFor(t, db, plan.ID, f.blockRC.ID)

	_, err := execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:     plan.ID,
		WorkDate:   workDate(),
		RecordedBy: uuid.New(),
		BlockDeltas: []BlockDeltaRequest{
			{BlockActivityID: baPC.ID, AreaWorked: 3},
			{BlockActivityID: baRC.ID, AreaWorked: 2},
		},
	})
	require.NoError(t, err)

	// Roll the statuses back while the area figures stay correct
	require.NoError(t, db.Model(&models.BlockActivity{}).
		Where("id = ?", baPC.ID).
		Update("status", models.BlockActivityStatusInProgress).Error)
	require.NoError(t, db.Model(&models.ActivityPlan{}).
		Where("id = ?", plan.ID).
		Update("status", models.PlanStatusInProgress).Error)

	repaired, err := reconciler.ReconcilePlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)

	fresh := blockActivityFor(t, db, plan.ID, f.blockPC.ID)
	require.Equal(t, 3.0, fresh.CompletedArea)
	require.Equal(t, models.BlockActivityStatusCompleted, fresh.Status)

	var planRow models.ActivityPlan
	require.NoError(t, db.First(&planRow, "id = ?", plan.ID).Error)
	require.Equal(t, models.PlanStatusCompleted, planRow.Status)
}

func TestReconcileCapsAtAllocation(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	execSvc := f.newExecutionService(t)
	reconciler := newReconciler(f)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	ba := blockActivityFor(t, db, plan.ID, f.blockPC.ID)

	_, err := execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:      plan.ID,
		WorkDate:    workDate(),
		RecordedBy:  uuid.New(),
		BlockDeltas: []BlockDeltaRequest{{BlockActivityID: ba.ID, AreaWorked: 3}},
	})
	require.NoError(t, err)

	// A delta inserted outside the guarded path pushes the recorded sum past
	// the allocation; the repair clamps at the allocated area.
	rogueEvent := models.ExecutionEvent{
		PlanID:         plan.ID,
		WorkDate:       workDate(),
		RecordedBy:     uuid.New(),
		IdempotencyKey: uuid.New(),
	}
	require.NoError(t, db.Create(&rogueEvent).Error)
	rogue := models.ExecutionBlockDelta{
		EventID:         rogueEvent.ID,
		BlockActivityID: ba.ID,
		AreaWorked:      5,
	}
	require.NoError(t, db.Create(&rogue).Error)

	_, err = reconciler.ReconcilePlan(ctx, plan.ID)
	require.NoError(t, err)

	fresh := blockActivityFor(t, db, plan.ID, f.blockPC.ID)
	require.Equal(t, 3.0, fresh.CompletedArea)
	require.Equal(t, models.BlockActivityStatusCompleted, fresh.Status)
}

func TestReconcileAllCoversActivePlans(t *testing.T) {
	db := newTestDB(t)
	f := newFixture(t, db)
	execSvc := f.newExecutionService(t)
	reconciler := newReconciler(f)
	ctx := context.Background()

	plan := f.createApprovedPlan(t)
	ba := blockActivityFor(t, db, plan.ID, f.blockPC.ID)

	_, err := execSvc.Record(ctx, &RecordExecutionRequest{
		PlanID:      plan.ID,
		WorkDate:    workDate(),
		RecordedBy:  uuid.New(),
		BlockDeltas: []BlockDeltaRequest{{BlockActivityID: ba.ID, AreaWorked: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.BlockActivity{}).
		Where("id = ?", ba.ID).
		Update("completed_area", 0).Error)

	repaired, err := reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
}
