package check_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/refill/pkg/backfill/check"
	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/core/policy"
	"github.com/tigerroll/refill/pkg/backfill/infrastructure/repository/inmemory"
)

func newPlan(t *testing.T, table string) *model.BackfillPlan {
	t.Helper()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(12 * time.Hour)
	p := &model.BackfillPlan{
		Target:     model.TargetDescriptor{Database: "analytics", Table: table},
		Window:     model.TimeWindow{From: from, To: to},
		ChunkHours: 6,
		TimeColumn: "event_time",
		Strategy:   model.StrategyTable,
		Chunks: []model.Chunk{
			{Index: 0, Start: from, End: from.Add(6 * time.Hour)},
			{Index: 1, Start: from.Add(6 * time.Hour), End: to},
		},
		CreateTime: from,
	}
	p.PlanID = model.ComputePlanID(p.Target, p.Window, p.ChunkHours, p.TimeColumn)
	return p
}

func strictChecker(repo *inmemory.Repository) *check.Checker {
	return check.NewChecker(repo, policy.NewGuard(cfg.PolicyConfig{FailOnPending: true}))
}

func TestCheckNoPlans(t *testing.T) {
	repo := inmemory.NewRepository()
	report, err := strictChecker(repo).Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
	assert.False(t, report.HasBlockingFindings())
}

func TestCheckPlanWithoutRunIsPending(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	p := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, p, false))

	report, err := strictChecker(repo).Check(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, check.FindingRequiredPending, report.Findings[0].Kind)
	assert.Equal(t, p.PlanID, report.Findings[0].PlanID)
	assert.True(t, report.HasBlockingFindings())
}

func TestCheckIncompleteRunIsPending(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	p := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, p, false))

	run := model.NewBackfillRun(p)
	run.Status = model.RunStatusRunning
	require.NoError(t, repo.SaveRun(ctx, run))

	report, err := strictChecker(repo).Check(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, check.FindingRequiredPending, report.Findings[0].Kind)
	assert.Contains(t, report.Findings[0].Detail, "running")
}

func TestCheckCompletedRunIsClean(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	p := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, p, false))

	run := model.NewBackfillRun(p)
	run.Status = model.RunStatusCompleted
	for i := range run.ChunkStates {
		run.ChunkStates[i].Status = model.ChunkStatusSucceeded
	}
	require.NoError(t, repo.SaveRun(ctx, run))

	report, err := strictChecker(repo).Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestCheckExhaustedChunksAreFlagged(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	p := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, p, false))

	run := model.NewBackfillRun(p)
	run.Status = model.RunStatusCompletedWithFailures
	run.ChunkStates[0].Status = model.ChunkStatusSucceeded
	run.ChunkStates[1].Status = model.ChunkStatusFailedExhausted
	require.NoError(t, repo.SaveRun(ctx, run))

	report, err := strictChecker(repo).Check(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 2)

	kinds := []check.FindingKind{report.Findings[0].Kind, report.Findings[1].Kind}
	assert.Contains(t, kinds, check.FindingRequiredPending)
	assert.Contains(t, kinds, check.FindingChunkFailedRetryExhausted)
	assert.True(t, report.HasBlockingFindings())
}

func TestCheckRelaxedPolicyDemotesPendingFindings(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	p := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, p, false))

	checker := check.NewChecker(repo, policy.NewGuard(cfg.PolicyConfig{FailOnPending: false}))
	report, err := checker.Check(ctx)
	require.NoError(t, err)

	// One informational finding for the relaxed policy, plus the demoted
	// pending finding for the plan without a run.
	require.Len(t, report.Findings, 2)
	for _, f := range report.Findings {
		assert.Equal(t, check.FindingPolicyRelaxed, f.Kind)
		assert.False(t, f.Blocking())
	}
	assert.False(t, report.HasBlockingFindings())
}

func TestCheckRelaxedPolicyStillFlagsExhaustedChunks(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()
	p := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, p, false))

	run := model.NewBackfillRun(p)
	run.Status = model.RunStatusCompletedWithFailures
	run.ChunkStates[1].Status = model.ChunkStatusFailedExhausted
	require.NoError(t, repo.SaveRun(ctx, run))

	checker := check.NewChecker(repo, policy.NewGuard(cfg.PolicyConfig{FailOnPending: false}))
	report, err := checker.Check(ctx)
	require.NoError(t, err)

	// Permanent chunk failures block regardless of fail_on_pending.
	assert.True(t, report.HasBlockingFindings())
}

func TestCheckScansMultiplePlans(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewRepository()

	done := newPlan(t, "events")
	require.NoError(t, repo.SavePlan(ctx, done, false))
	run := model.NewBackfillRun(done)
	run.Status = model.RunStatusCompleted
	require.NoError(t, repo.SaveRun(ctx, run))

	pending := newPlan(t, "sessions")
	require.NoError(t, repo.SavePlan(ctx, pending, false))

	report, err := strictChecker(repo).Check(ctx)
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, pending.PlanID, report.Findings[0].PlanID)
}
