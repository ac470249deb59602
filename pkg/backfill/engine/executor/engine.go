// Package executor drives a backfill run chunk by chunk: render statement,
// execute with the chunk's idempotency token, checkpoint, retry with backoff,
// and keep going past exhausted chunks so one bad window never blocks the rest.
package executor

import (
	"context"
	"errors"
	"time"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
	"github.com/tigerroll/refill/pkg/backfill/core/metrics"
	plan "github.com/tigerroll/refill/pkg/backfill/core/plan"
	"github.com/tigerroll/refill/pkg/backfill/engine/retry"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

const moduleName = "executor"

// Options controls which terminal chunks a run revisits.
type Options struct {
	// ReplayDone re-executes chunks already marked succeeded. Safe because the
	// idempotency token makes the re-insert a no-op on the store side.
	ReplayDone bool
	// ReplayFailed re-executes chunks whose retry budget was exhausted,
	// resetting their attempt counter. Resume enables this.
	ReplayFailed bool
}

// RunListener is notified at the boundaries of a run.
type RunListener interface {
	BeforeRun(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun)
	AfterRun(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun)
}

// ChunkListener is notified around each chunk attempt.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, p *model.BackfillPlan, chunk model.Chunk, attempt int)
	AfterChunk(ctx context.Context, p *model.BackfillPlan, chunk model.Chunk, err error)
}

// Engine executes backfill plans sequentially in ascending chunk order.
//
// Every state transition is checkpointed before the next statement is issued,
// so a crash at any point resumes without re-running succeeded chunks. The
// engine reloads the persisted run at each chunk boundary; an external
// cancellation observed there stops the run cooperatively. In-flight
// statements are never interrupted except through context cancellation.
type Engine struct {
	client      store.Client
	checkpoints repo.CheckpointRepository
	retryPolicy retry.RetryPolicy
	recorder    metrics.MetricRecorder
	tracer      metrics.Tracer

	runListeners   []RunListener
	chunkListeners []ChunkListener

	// sleep waits out the retry backoff, honoring cancellation. Replaceable in
	// tests so backoff does not slow the suite down.
	sleep func(ctx context.Context, d time.Duration) error
}

// EngineParams bundles the engine's dependencies.
type EngineParams struct {
	Client      store.Client
	Checkpoints repo.CheckpointRepository
	RetryPolicy retry.RetryPolicy
	Recorder    metrics.MetricRecorder
	Tracer      metrics.Tracer
}

// NewEngine creates an execution engine.
func NewEngine(p EngineParams) *Engine {
	return &Engine{
		client:      p.Client,
		checkpoints: p.Checkpoints,
		retryPolicy: p.RetryPolicy,
		recorder:    p.Recorder,
		tracer:      p.Tracer,
		sleep:       sleepContext,
	}
}

// AddRunListener registers a run lifecycle listener.
func (e *Engine) AddRunListener(l RunListener) {
	e.runListeners = append(e.runListeners, l)
}

// AddChunkListener registers a chunk lifecycle listener.
func (e *Engine) AddChunkListener(l ChunkListener) {
	e.chunkListeners = append(e.chunkListeners, l)
}

// Resume continues a previously interrupted or partially failed run.
// Equivalent to Run with ReplayFailed enabled: exhausted chunks get a fresh
// retry budget, succeeded chunks stay skipped.
func (e *Engine) Resume(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun) (*model.BackfillRun, error) {
	return e.Run(ctx, p, run, Options{ReplayFailed: true})
}

// Run executes the plan against the store, starting a fresh run when run is
// nil and continuing the given checkpoint otherwise. It returns the final run
// state alongside any error; the returned run is valid even on error.
//
// Chunk execution failures do not fail the run: an exhausted chunk is recorded
// and the engine moves on, finishing as completed_with_failures. Only
// persistence failures and cancellation abort the loop.
func (e *Engine) Run(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun, opts Options) (*model.BackfillRun, error) {
	if run == nil {
		run = model.NewBackfillRun(p)
	}

	template := plan.NewTemplate(p)

	fresh := run.Status == model.RunStatusNotStarted
	run.Status = model.RunStatusRunning
	run.Touch()
	// The entry write declares fresh intent: it deliberately overwrites a
	// terminal status left by an earlier incarnation (a cancelled run being
	// resumed). Only cancellations recorded after this point are adopted.
	if err := e.checkpoints.SaveRun(ctx, run); err != nil {
		return run, err
	}
	if fresh {
		if err := e.checkpoints.AppendEvent(ctx, p.PlanID, model.NewEvent(run.ID, model.EventRunStarted, "")); err != nil {
			return run, err
		}
	}

	e.recorder.RecordRunStart(ctx, run)
	for _, l := range e.runListeners {
		l.BeforeRun(ctx, p, run)
	}

	logger.Infof("Run %s started for plan %s: %d chunks, strategy=%s",
		run.ID, p.PlanID, len(p.Chunks), p.Strategy)

	loopErr := e.runChunks(ctx, p, run, template, opts)

	// Finalize. Cancellation (cooperative or via context) wins over the
	// chunk-derived outcome; persistence errors leave the last persisted state
	// as the checkpoint of record.
	switch {
	case loopErr != nil && isCancellation(loopErr):
		run.Status = model.RunStatusCancelled
	case loopErr != nil:
		// Persistence failure: report it without guessing a terminal status.
		for _, l := range e.runListeners {
			l.AfterRun(ctx, p, run)
		}
		return run, loopErr
	case run.HasExhaustedChunks():
		run.Status = model.RunStatusCompletedWithFailures
	default:
		run.Status = model.RunStatusCompleted
	}
	run.Touch()

	if err := e.checkpoints.SaveRun(ctx, run); err != nil {
		return run, err
	}
	finalEvent := model.EventRunCompleted
	if run.Status == model.RunStatusCancelled {
		finalEvent = model.EventRunCancelled
	}
	if err := e.checkpoints.AppendEvent(ctx, p.PlanID, model.NewEvent(run.ID, finalEvent, run.Status.String())); err != nil {
		return run, err
	}

	e.recorder.RecordRunEnd(ctx, run)
	for _, l := range e.runListeners {
		l.AfterRun(ctx, p, run)
	}

	logger.Infof("Run %s finished with status %s (%d succeeded, %d exhausted)",
		run.ID, run.Status,
		run.CountByStatus(model.ChunkStatusSucceeded),
		run.CountByStatus(model.ChunkStatusFailedExhausted))

	// A cancel requested through the checkpoint is a clean outcome; only
	// context cancellation propagates as an error.
	if run.Status == model.RunStatusCancelled && !errors.Is(loopErr, errRunCancelled) {
		return run, loopErr
	}
	return run, nil
}

// runChunks walks the chunks in ascending index order. The returned error is
// either a cancellation or a persistence failure; chunk execution errors are
// absorbed into chunk state.
func (e *Engine) runChunks(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun, template plan.QueryTemplate, opts Options) error {
	for i := range p.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Observe external state changes (cancel) at the chunk boundary.
		if run.Status == model.RunStatusCancelled {
			logger.Infof("Run %s: cancellation observed before chunk %d", run.ID, i)
			return errRunCancelled
		}
		persisted, err := e.checkpoints.FindRun(ctx, p.PlanID)
		if err == nil && persisted.ID == run.ID && persisted.Status == model.RunStatusCancelled {
			run.Status = model.RunStatusCancelled
			logger.Infof("Run %s: cancellation observed before chunk %d", run.ID, i)
			return errRunCancelled
		}

		state := &run.ChunkStates[i]
		switch state.Status {
		case model.ChunkStatusSucceeded:
			if !opts.ReplayDone {
				continue
			}
			state.Status = model.ChunkStatusPending
			state.Attempts = 0
			state.LastError = ""
		case model.ChunkStatusFailedExhausted:
			if !opts.ReplayFailed {
				continue
			}
			state.Status = model.ChunkStatusPending
			state.Attempts = 0
			state.LastError = ""
		}

		if err := e.executeChunk(ctx, p, run, template, i); err != nil {
			return err
		}
	}
	return nil
}

// executeChunk runs one chunk to a terminal chunk state (succeeded or
// failed_exhausted), retrying in place with backoff. Returns an error only on
// cancellation or when a checkpoint cannot be persisted.
func (e *Engine) executeChunk(ctx context.Context, p *model.BackfillPlan, run *model.BackfillRun, template plan.QueryTemplate, index int) error {
	chunk := p.Chunks[index]
	state := &run.ChunkStates[index]
	sql := template.Render(chunk)

	settings := map[string]string{}
	if p.Strategy.RequiresIdempotencyToken() {
		settings[store.SettingDeduplicationToken] = state.IdempotencyToken
	}

	state.Status = model.ChunkStatusRunning
	run.Touch()
	if err := e.persistRun(ctx, run); err != nil {
		return err
	}
	if state.Attempts == 0 {
		event := model.NewChunkEvent(run.ID, model.EventChunkStarted, index, chunk.Window().String())
		if err := e.checkpoints.AppendEvent(ctx, p.PlanID, event); err != nil {
			return err
		}
	}

	for {
		attempt := state.Attempts + 1
		for _, l := range e.chunkListeners {
			l.BeforeChunk(ctx, p, chunk, attempt)
		}

		spanCtx, span := e.tracer.StartChunkSpan(ctx, p.PlanID, index)
		started := time.Now()
		execErr := e.client.Execute(spanCtx, sql, settings)
		elapsed := time.Since(started)
		if execErr != nil {
			e.tracer.RecordError(spanCtx, execErr)
		}
		span.End()

		for _, l := range e.chunkListeners {
			l.AfterChunk(ctx, p, chunk, execErr)
		}

		state.Attempts = attempt

		if execErr == nil {
			state.Status = model.ChunkStatusSucceeded
			state.LastError = ""
			run.Touch()
			if err := e.persistRun(ctx, run); err != nil {
				return err
			}
			event := model.NewChunkEvent(run.ID, model.EventChunkSucceeded, index, elapsed.String())
			if err := e.checkpoints.AppendEvent(ctx, p.PlanID, event); err != nil {
				return err
			}
			e.recorder.RecordChunkSuccess(ctx, p.PlanID, chunk, elapsed)
			logger.Debugf("Chunk %d of plan %s succeeded in %s (attempt %d)", index, p.PlanID, elapsed, attempt)
			return nil
		}

		if isCancellation(execErr) {
			return execErr
		}

		detail := exception.ExtractErrorMessage(execErr)
		logger.Warnf("Chunk %d of plan %s failed on attempt %d: %s", index, p.PlanID, attempt, detail)

		if attempt < e.retryPolicy.GetMaxAttempts() && e.retryPolicy.ShouldRetry(execErr) {
			state.Status = model.ChunkStatusFailedRetrying
			state.LastError = detail
			run.Touch()
			if err := e.persistRun(ctx, run); err != nil {
				return err
			}
			event := model.NewChunkEvent(run.ID, model.EventChunkRetrying, index, detail)
			if err := e.checkpoints.AppendEvent(ctx, p.PlanID, event); err != nil {
				return err
			}
			e.recorder.RecordChunkRetry(ctx, p.PlanID, index)

			if run.Status == model.RunStatusCancelled {
				return errRunCancelled
			}

			backoff := e.retryPolicy.GetBackoffInterval(attempt)
			logger.Debugf("Chunk %d of plan %s: backing off %s before attempt %d", index, p.PlanID, backoff, attempt+1)
			if err := e.sleep(ctx, backoff); err != nil {
				return err
			}
			state.Status = model.ChunkStatusRunning
			continue
		}

		// Retry budget spent or the error class is stable across attempts.
		state.Status = model.ChunkStatusFailedExhausted
		state.LastError = detail
		run.Touch()
		if err := e.persistRun(ctx, run); err != nil {
			return err
		}
		event := model.NewChunkEvent(run.ID, model.EventChunkFailed, index, detail)
		if err := e.checkpoints.AppendEvent(ctx, p.PlanID, event); err != nil {
			return err
		}
		e.recorder.RecordChunkFailure(ctx, p.PlanID, index)
		return nil
	}
}

// persistRun writes the run checkpoint, first adopting an externally
// requested cancellation so a cancel recorded while a chunk was in flight is
// never clobbered by the engine's own write.
func (e *Engine) persistRun(ctx context.Context, run *model.BackfillRun) error {
	if !run.Status.IsTerminal() {
		persisted, err := e.checkpoints.FindRun(ctx, run.PlanID)
		if err == nil && persisted.ID == run.ID && persisted.Status == model.RunStatusCancelled {
			run.Status = model.RunStatusCancelled
		}
	}
	return e.checkpoints.SaveRun(ctx, run)
}

// errRunCancelled marks a cooperative cancellation observed in the persisted run.
var errRunCancelled = errors.New("run cancelled")

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errRunCancelled)
}

// sleepContext sleeps for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
