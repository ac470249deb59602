// Package usecase wires planning, policy enforcement, and execution into the
// operator-facing operations: plan, run, resume, status, cancel, doctor.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	metadata "github.com/tigerroll/refill/pkg/backfill/core/domain/metadata"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
	plan "github.com/tigerroll/refill/pkg/backfill/core/plan"
	"github.com/tigerroll/refill/pkg/backfill/core/policy"
	"github.com/tigerroll/refill/pkg/backfill/engine/executor"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

const moduleName = "usecase"

// PlanRequest carries the operator inputs for creating a plan.
type PlanRequest struct {
	// Target is the "database.table" destination.
	Target string
	// From/To bound the half-open backfill window. Zero values mean the window
	// was not given explicitly.
	From time.Time
	To   time.Time
	// ChunkHours overrides the configured default when positive.
	ChunkHours int
	// TimeColumn overrides time-column resolution when non-empty.
	TimeColumn string
	// Force regenerates an existing plan under the same id.
	Force bool
	// AllowLargeWindow overrides the window size limit for this invocation.
	AllowLargeWindow bool
}

// RunRequest carries the operator inputs for executing a plan.
type RunRequest struct {
	PlanID string
	// ReplayDone re-executes already succeeded chunks.
	ReplayDone bool
	// ReplayFailed re-executes chunks whose retry budget was exhausted.
	ReplayFailed bool
	// ForceOverlap overrides the overlapping-run guard.
	ForceOverlap bool
	// ForceCompatibility discards a run checkpoint that is structurally
	// incompatible with the plan (chunk count mismatch) instead of erroring,
	// starting over from a fresh checkpoint.
	ForceCompatibility bool
}

// StatusReport is the aggregate state of a plan as seen by the status operation.
type StatusReport struct {
	Plan   *model.BackfillPlan
	Run    *model.BackfillRun
	Events []model.Event
}

// BackfillOperator exposes the operator-facing backfill operations. It owns no
// execution state itself; everything durable lives in the checkpoint repository.
type BackfillOperator struct {
	config      *cfg.Config
	checkpoints repo.CheckpointRepository
	engine      *executor.Engine
	guard       *policy.Guard
	client      store.Client
}

// NewBackfillOperator creates the operator.
func NewBackfillOperator(
	config *cfg.Config,
	checkpoints repo.CheckpointRepository,
	engine *executor.Engine,
	guard *policy.Guard,
	client store.Client,
) *BackfillOperator {
	return &BackfillOperator{
		config:      config,
		checkpoints: checkpoints,
		engine:      engine,
		guard:       guard,
		client:      client,
	}
}

// Plan validates the request, resolves the time column, builds the chunked
// plan, and persists it. Planning is the dry-run: it touches no store data.
func (o *BackfillOperator) Plan(ctx context.Context, req PlanRequest) (*model.BackfillPlan, error) {
	hasExplicitWindow := !req.From.IsZero() && !req.To.IsZero()
	if err := o.guard.CheckExplicitWindow(hasExplicitWindow); err != nil {
		return nil, err
	}

	target, err := model.ParseTarget(req.Target)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "invalid target", err)
	}

	schema, err := metadata.LoadSchemaFile(o.config.Refill.Schema.Path)
	if err != nil {
		return nil, err
	}

	table, _ := schema.TableFor(target)
	timeColumn, err := plan.ResolveTimeColumn(
		req.TimeColumn,
		o.config.TableConfigFor(target.String()).TimeColumn,
		o.config.Refill.Backfill.TimeColumn,
		table,
	)
	if err != nil {
		return nil, err
	}

	chunkHours := req.ChunkHours
	if chunkHours <= 0 {
		chunkHours = o.config.Refill.Backfill.ChunkHours
	}

	p, err := plan.BuildPlan(plan.BuildRequest{
		Target:           target,
		Window:           model.TimeWindow{From: req.From.UTC(), To: req.To.UTC()},
		ChunkHours:       chunkHours,
		TimeColumn:       timeColumn,
		AllowLargeWindow: req.AllowLargeWindow,
	}, schema, plan.Limits{
		MaxWindowHours:  o.config.Refill.Policies.MaxWindowHours,
		MinChunkMinutes: o.config.Refill.Policies.MinChunkMinutes,
	})
	if err != nil {
		return nil, err
	}

	if err := o.checkpoints.SavePlan(ctx, p, req.Force); err != nil {
		if errors.Is(err, repo.ErrPlanAlreadyExists) {
			return nil, exception.NewConfigurationError(moduleName,
				fmt.Sprintf("plan %s already exists; use force to regenerate", p.PlanID), err)
		}
		return nil, err
	}
	event := model.NewEvent("", model.EventPlanCreated, fmt.Sprintf("target=%s window=%s", p.Target, p.Window))
	if err := o.checkpoints.AppendEvent(ctx, p.PlanID, event); err != nil {
		return nil, err
	}
	return p, nil
}

// Run executes a previously persisted plan, honoring the dry-run and
// overlapping-run guards. A run that already reached a terminal state is only
// revisited through the replay flags.
func (o *BackfillOperator) Run(ctx context.Context, req RunRequest) (*model.BackfillRun, error) {
	p, err := o.checkpoints.FindPlan(ctx, req.PlanID)
	if errors.Is(err, repo.ErrPlanNotFound) {
		if guardErr := o.guard.CheckDryRun(false); guardErr != nil {
			return nil, guardErr
		}
		return nil, exception.NewConfigurationError(moduleName,
			fmt.Sprintf("no plan with id %s", req.PlanID), err)
	}
	if err != nil {
		return nil, err
	}

	conflicting, err := o.findConflictingRuns(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := o.guard.CheckOverlap(p.Target, conflicting, req.ForceOverlap); err != nil {
		return nil, err
	}

	run, err := o.checkpoints.FindRun(ctx, req.PlanID)
	if errors.Is(err, repo.ErrRunNotFound) {
		run = nil
	} else if err != nil {
		return nil, err
	}

	// A checkpoint must have exactly one chunk state per plan chunk. A mismatch
	// means the plan was regenerated with different chunking after the run started.
	if run != nil && len(run.ChunkStates) != len(p.Chunks) {
		if !req.ForceCompatibility {
			return nil, exception.NewConfigurationError(moduleName,
				fmt.Sprintf("run checkpoint has %d chunk state(s) but plan %s has %d chunk(s); re-plan or use the compatibility override to start over",
					len(run.ChunkStates), p.PlanID, len(p.Chunks)), nil)
		}
		logger.Warnf("Discarding incompatible run checkpoint %s (%d chunk states vs %d plan chunks).",
			run.ID, len(run.ChunkStates), len(p.Chunks))
		run = nil
	}

	return o.engine.Run(ctx, p, run, executor.Options{
		ReplayDone:   req.ReplayDone,
		ReplayFailed: req.ReplayFailed,
	})
}

// Resume continues an interrupted or partially failed run: succeeded chunks
// stay skipped, exhausted chunks get a fresh retry budget.
func (o *BackfillOperator) Resume(ctx context.Context, planID string) (*model.BackfillRun, error) {
	p, err := o.checkpoints.FindPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repo.ErrPlanNotFound) {
			return nil, exception.NewConfigurationError(moduleName,
				fmt.Sprintf("no plan with id %s", planID), err)
		}
		return nil, err
	}
	run, err := o.checkpoints.FindRun(ctx, planID)
	if err != nil {
		if errors.Is(err, repo.ErrRunNotFound) {
			return nil, exception.NewConfigurationError(moduleName,
				fmt.Sprintf("plan %s has no run to resume; use 'run'", planID), err)
		}
		return nil, err
	}
	return o.engine.Resume(ctx, p, run)
}

// Status reports the plan, its run checkpoint (nil when never started), and
// the audit trail.
func (o *BackfillOperator) Status(ctx context.Context, planID string) (*StatusReport, error) {
	p, err := o.checkpoints.FindPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repo.ErrPlanNotFound) {
			return nil, exception.NewConfigurationError(moduleName,
				fmt.Sprintf("no plan with id %s", planID), err)
		}
		return nil, err
	}

	report := &StatusReport{Plan: p}
	run, err := o.checkpoints.FindRun(ctx, planID)
	if err == nil {
		report.Run = run
	} else if !errors.Is(err, repo.ErrRunNotFound) {
		return nil, err
	}

	events, err := o.checkpoints.FindEvents(ctx, planID)
	if err != nil {
		return nil, err
	}
	report.Events = events
	return report, nil
}

// ListPlans returns the ids of all persisted plans.
func (o *BackfillOperator) ListPlans(ctx context.Context) ([]string, error) {
	return o.checkpoints.ListPlanIDs(ctx)
}

// Cancel requests cancellation of a non-terminal run. The engine observes the
// persisted status at the next chunk boundary; the in-flight chunk is never
// interrupted.
func (o *BackfillOperator) Cancel(ctx context.Context, planID string) (*model.BackfillRun, error) {
	run, err := o.checkpoints.FindRun(ctx, planID)
	if err != nil {
		if errors.Is(err, repo.ErrRunNotFound) {
			return nil, exception.NewConfigurationError(moduleName,
				fmt.Sprintf("plan %s has no run to cancel", planID), err)
		}
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, exception.NewConfigurationError(moduleName,
			fmt.Sprintf("run for plan %s already finished with status %s", planID, run.Status), nil)
	}

	run.Status = model.RunStatusCancelled
	run.Touch()
	if err := o.checkpoints.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	event := model.NewEvent(run.ID, model.EventRunCancelled, "cancel requested")
	if err := o.checkpoints.AppendEvent(ctx, planID, event); err != nil {
		return nil, err
	}
	logger.Infof("Cancellation of run %s recorded; it takes effect at the next chunk boundary.", run.ID)
	return run, nil
}

// Doctor verifies the operating environment: store connectivity, writable
// state root, and a loadable schema snapshot. All findings are aggregated so
// one broken piece does not hide the others.
func (o *BackfillOperator) Doctor(ctx context.Context) error {
	var result *multierror.Error

	if err := o.client.Ping(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("store unreachable: %w", err))
	}

	stateRoot := o.config.Refill.Backfill.StateRoot
	if err := checkWritable(stateRoot); err != nil {
		result = multierror.Append(result, fmt.Errorf("state root %s not writable: %w", stateRoot, err))
	}

	if _, err := metadata.LoadSchemaFile(o.config.Refill.Schema.Path); err != nil {
		result = multierror.Append(result, fmt.Errorf("schema snapshot: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewConfigurationError(moduleName, "environment check failed", err)
	}
	return nil
}

// Advise derives remediation suggestions for a plan from its run checkpoint.
// Used by the doctor command; the wording is advisory output, not state.
func (o *BackfillOperator) Advise(ctx context.Context, planID string) ([]string, error) {
	report, err := o.Status(ctx, planID)
	if err != nil {
		return nil, err
	}

	run := report.Run
	if run == nil {
		return []string{fmt.Sprintf("plan %s has never been executed; start it with 'run --plan-id %s'", planID, planID)}, nil
	}

	var advice []string
	switch run.Status {
	case model.RunStatusRunning:
		advice = append(advice, fmt.Sprintf(
			"run %s is marked running; if no process is active it was interrupted mid-chunk — continue with 'resume --plan-id %s'",
			run.ID, planID))
	case model.RunStatusCancelled:
		advice = append(advice, fmt.Sprintf(
			"run %s was cancelled; continue the remaining chunks with 'resume --plan-id %s'", run.ID, planID))
	case model.RunStatusCompletedWithFailures:
		advice = append(advice, fmt.Sprintf(
			"run %s completed with permanent chunk failures; retry them with 'resume --plan-id %s'", run.ID, planID))
	case model.RunStatusCompleted:
		advice = append(advice, fmt.Sprintf("run %s completed; nothing to do", run.ID))
	}

	for i, cs := range run.ChunkStates {
		if cs.Status == model.ChunkStatusFailedExhausted {
			advice = append(advice, fmt.Sprintf("chunk %d failed after %d attempt(s): %s", i, cs.Attempts, cs.LastError))
		}
	}
	return advice, nil
}

// findConflictingRuns gathers non-terminal runs against the same target under
// other plans. The plan's own run is never a conflict: it is what run/resume
// continue.
func (o *BackfillOperator) findConflictingRuns(ctx context.Context, p *model.BackfillPlan) ([]*model.BackfillRun, error) {
	ids, err := o.checkpoints.ListPlanIDs(ctx)
	if err != nil {
		return nil, err
	}

	var conflicting []*model.BackfillRun
	for _, id := range ids {
		if id == p.PlanID {
			continue
		}
		other, err := o.checkpoints.FindPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		if other.Target != p.Target {
			continue
		}
		run, err := o.checkpoints.FindRun(ctx, id)
		if errors.Is(err, repo.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !run.Status.IsTerminal() {
			conflicting = append(conflicting, run)
		}
	}
	return conflicting, nil
}

// checkWritable probes the directory with a throwaway file.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
