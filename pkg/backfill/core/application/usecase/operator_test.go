package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/refill/pkg/backfill/adapter/store/dummy"
	"github.com/tigerroll/refill/pkg/backfill/core/application/usecase"
	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/core/metrics"
	"github.com/tigerroll/refill/pkg/backfill/core/policy"
	"github.com/tigerroll/refill/pkg/backfill/engine/executor"
	"github.com/tigerroll/refill/pkg/backfill/engine/retry"
	"github.com/tigerroll/refill/pkg/backfill/infrastructure/repository/inmemory"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

type fixture struct {
	operator *usecase.BackfillOperator
	repo     *inmemory.Repository
	client   *dummy.Client
	config   *cfg.Config
}

func newFixture(t *testing.T, mutate func(c *cfg.Config)) *fixture {
	t.Helper()

	c := cfg.NewConfig()
	c.Refill.Backfill.RetryDelayMs = 1
	c.Refill.Backfill.StateRoot = t.TempDir()
	if mutate != nil {
		mutate(c)
	}

	repo := inmemory.NewRepository()
	client := dummy.NewClient()
	engine := executor.NewEngine(executor.EngineParams{
		Client:      client,
		Checkpoints: repo,
		RetryPolicy: retry.NewExponentialRetryPolicy(c.Refill.Backfill.MaxRetriesPerChunk, time.Millisecond),
		Recorder:    metrics.NewNoopMetricRecorder(),
		Tracer:      metrics.NewNoopTracer(),
	})
	guard := policy.NewGuard(c.Refill.Policies)

	return &fixture{
		operator: usecase.NewBackfillOperator(c, repo, engine, guard, client),
		repo:     repo,
		client:   client,
		config:   c,
	}
}

func planRequest() usecase.PlanRequest {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return usecase.PlanRequest{
		Target:     "analytics.events",
		From:       from,
		To:         from.Add(12 * time.Hour),
		ChunkHours: 6,
		TimeColumn: "event_time",
	}
}

func TestPlanCreatesAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)
	assert.Len(t, p.Chunks, 2)
	assert.Equal(t, "event_time", p.TimeColumn)

	stored, err := f.repo.FindPlan(ctx, p.PlanID)
	require.NoError(t, err)
	assert.Equal(t, p.PlanID, stored.PlanID)

	events, err := f.repo.FindEvents(ctx, p.PlanID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPlanCreated, events[0].Kind)

	// Planning is the dry-run: nothing reaches the store.
	assert.Empty(t, f.client.Executed())
}

func TestPlanIsWriteOnceUnlessForced(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	_, err = f.operator.Plan(ctx, planRequest())
	require.Error(t, err)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err))
	assert.Contains(t, err.Error(), "already exists")

	req := planRequest()
	req.Force = true
	_, err = f.operator.Plan(ctx, req)
	assert.NoError(t, err)
}

func TestPlanRequiresExplicitWindow(t *testing.T) {
	f := newFixture(t, nil)

	req := planRequest()
	req.From = time.Time{}
	_, err := f.operator.Plan(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, exception.KindPolicy, exception.KindOf(err))
}

func TestPlanDefaultsChunkHoursFromConfig(t *testing.T) {
	f := newFixture(t, func(c *cfg.Config) {
		c.Refill.Backfill.ChunkHours = 4
	})

	req := planRequest()
	req.ChunkHours = 0
	p, err := f.operator.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, p.ChunkHours)
	assert.Len(t, p.Chunks, 3)
}

func TestRunExecutesPersistedPlan(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	run, err := f.operator.Run(ctx, usecase.RunRequest{PlanID: p.PlanID})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Len(t, f.client.Executed(), len(p.Chunks))
}

func TestRunWithoutPlanHitsDryRunGuard(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.operator.Run(context.Background(), usecase.RunRequest{PlanID: "deadbeefdeadbeef"})
	require.Error(t, err)
	assert.Equal(t, exception.KindPolicy, exception.KindOf(err))
}

func TestRunWithoutPlanRelaxedGuard(t *testing.T) {
	f := newFixture(t, func(c *cfg.Config) {
		c.Refill.Policies.RequireDryRunBeforeRun = false
	})

	_, err := f.operator.Run(context.Background(), usecase.RunRequest{PlanID: "deadbeefdeadbeef"})
	require.Error(t, err)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err), "a missing plan is still an error, just not a policy one")
}

func TestRunBlocksOverlappingTarget(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	// Same target, different window, so a distinct plan id.
	req := planRequest()
	req.From = req.From.Add(24 * time.Hour)
	req.To = req.To.Add(24 * time.Hour)
	second, err := f.operator.Plan(ctx, req)
	require.NoError(t, err)
	require.NotEqual(t, first.PlanID, second.PlanID)

	// Leave a non-terminal run behind for the first plan.
	blocked := model.NewBackfillRun(first)
	blocked.Status = model.RunStatusRunning
	require.NoError(t, f.repo.SaveRun(ctx, blocked))

	_, err = f.operator.Run(ctx, usecase.RunRequest{PlanID: second.PlanID})
	require.Error(t, err)
	assert.Equal(t, exception.KindPolicy, exception.KindOf(err))
	assert.ErrorIs(t, err, policy.ErrOverlappingRun)

	run, err := f.operator.Run(ctx, usecase.RunRequest{PlanID: second.PlanID, ForceOverlap: true})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
}

func TestRunOwnCheckpointIsNotAConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	// An interrupted run of the same plan must not trip the overlap guard.
	interrupted := model.NewBackfillRun(p)
	interrupted.Status = model.RunStatusRunning
	interrupted.ChunkStates[0].Status = model.ChunkStatusSucceeded
	require.NoError(t, f.repo.SaveRun(ctx, interrupted))

	run, err := f.operator.Run(ctx, usecase.RunRequest{PlanID: p.PlanID})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Len(t, f.client.Executed(), 1, "the already succeeded chunk is skipped")
}

func TestRunRejectsIncompatibleCheckpoint(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	stale := model.NewBackfillRun(p)
	stale.ChunkStates = stale.ChunkStates[:1]
	require.NoError(t, f.repo.SaveRun(ctx, stale))

	_, err = f.operator.Run(ctx, usecase.RunRequest{PlanID: p.PlanID})
	require.Error(t, err)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err))

	run, err := f.operator.Run(ctx, usecase.RunRequest{PlanID: p.PlanID, ForceCompatibility: true})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.NotEqual(t, stale.ID, run.ID, "the incompatible checkpoint is discarded, not repaired")
	assert.Len(t, run.ChunkStates, len(p.Chunks))
}

func TestResumeRequiresExistingRun(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	_, err = f.operator.Resume(ctx, p.PlanID)
	require.Error(t, err)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err))
	assert.Contains(t, err.Error(), "no run to resume")
}

func TestCancelNonTerminalRun(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	running := model.NewBackfillRun(p)
	running.Status = model.RunStatusRunning
	require.NoError(t, f.repo.SaveRun(ctx, running))

	cancelled, err := f.operator.Cancel(ctx, p.PlanID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, cancelled.Status)

	stored, err := f.repo.FindRun(ctx, p.PlanID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, stored.Status)

	events, err := f.repo.FindEvents(ctx, p.PlanID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, model.EventRunCancelled, last.Kind)
}

func TestCancelTerminalRunFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	done := model.NewBackfillRun(p)
	done.Status = model.RunStatusCompleted
	require.NoError(t, f.repo.SaveRun(ctx, done))

	_, err = f.operator.Cancel(ctx, p.PlanID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already finished")

	_, err = f.operator.Cancel(ctx, "deadbeefdeadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run to cancel")
}

func TestStatusReport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	report, err := f.operator.Status(ctx, p.PlanID)
	require.NoError(t, err)
	assert.Equal(t, p.PlanID, report.Plan.PlanID)
	assert.Nil(t, report.Run, "never-started plans have no run checkpoint")
	assert.Len(t, report.Events, 1)

	_, err = f.operator.Run(ctx, usecase.RunRequest{PlanID: p.PlanID})
	require.NoError(t, err)

	report, err = f.operator.Status(ctx, p.PlanID)
	require.NoError(t, err)
	require.NotNil(t, report.Run)
	assert.Equal(t, model.RunStatusCompleted, report.Run.Status)
	assert.Greater(t, len(report.Events), 1)
}

func TestListPlans(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ids, err := f.operator.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	ids, err = f.operator.ListPlans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p.PlanID}, ids)
}

func TestDoctorHealthyEnvironment(t *testing.T) {
	f := newFixture(t, nil)
	assert.NoError(t, f.operator.Doctor(context.Background()))
}

func TestDoctorReportsBrokenSchemaSnapshot(t *testing.T) {
	f := newFixture(t, func(c *cfg.Config) {
		c.Refill.Schema.Path = "/nonexistent/schema.yaml"
	})

	err := f.operator.Doctor(context.Background())
	require.Error(t, err)
	assert.Equal(t, exception.KindConfiguration, exception.KindOf(err))
	assert.Contains(t, err.Error(), "schema snapshot")
}

func TestAdvise(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.operator.Plan(ctx, planRequest())
	require.NoError(t, err)

	advice, err := f.operator.Advise(ctx, p.PlanID)
	require.NoError(t, err)
	require.Len(t, advice, 1)
	assert.Contains(t, advice[0], "never been executed")

	run := model.NewBackfillRun(p)
	run.Status = model.RunStatusCompletedWithFailures
	run.ChunkStates[1].Status = model.ChunkStatusFailedExhausted
	run.ChunkStates[1].Attempts = 3
	run.ChunkStates[1].LastError = "code: 241, memory limit exceeded"
	require.NoError(t, f.repo.SaveRun(ctx, run))

	advice, err = f.operator.Advise(ctx, p.PlanID)
	require.NoError(t, err)
	require.Len(t, advice, 2)
	assert.Contains(t, advice[0], "resume --plan-id")
	assert.Contains(t, advice[1], "chunk 1 failed after 3 attempt(s)")
}
