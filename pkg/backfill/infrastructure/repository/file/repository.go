// Package file implements the checkpoint repository on the local filesystem:
//
//	<state-root>/
//	  plans/<planId>.json     written once
//	  runs/<planId>.json      rewritten per chunk attempt
//	  events/<planId>.ndjson  append-only
//
// Plan and run writes go through write-temp-then-rename so a crash mid-write
// never yields a truncated or corrupt checkpoint.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

const moduleName = "repository.file"

const (
	plansDir  = "plans"
	runsDir   = "runs"
	eventsDir = "events"
)

// Repository is the filesystem-backed checkpoint repository.
type Repository struct {
	root string
}

// NewRepository creates the repository rooted at the given state directory,
// creating the layout when absent.
func NewRepository(root string) (*Repository, error) {
	for _, dir := range []string{plansDir, runsDir, eventsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, exception.NewPersistenceError(moduleName, "failed to create state directory", err)
		}
	}
	return &Repository{root: root}, nil
}

// Root returns the state directory this repository operates on.
func (r *Repository) Root() string {
	return r.root
}

func (r *Repository) planPath(planID string) string {
	return filepath.Join(r.root, plansDir, planID+".json")
}

func (r *Repository) runPath(planID string) string {
	return filepath.Join(r.root, runsDir, planID+".json")
}

func (r *Repository) eventPath(planID string) string {
	return filepath.Join(r.root, eventsDir, planID+".ndjson")
}

// SavePlan implements repository.PlanRepository. Plans are write-once.
func (r *Repository) SavePlan(ctx context.Context, plan *model.BackfillPlan, force bool) error {
	path := r.planPath(plan.PlanID)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("plan %s: %w", plan.PlanID, repo.ErrPlanAlreadyExists)
		}
	}
	if err := r.writeJSONAtomic(path, plan); err != nil {
		return exception.NewPersistenceError(moduleName, "failed to persist plan", err)
	}
	return nil
}

// FindPlan implements repository.PlanRepository.
func (r *Repository) FindPlan(ctx context.Context, planID string) (*model.BackfillPlan, error) {
	raw, err := os.ReadFile(r.planPath(planID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("plan %s: %w", planID, repo.ErrPlanNotFound)
		}
		return nil, exception.NewPersistenceError(moduleName, "failed to read plan", err)
	}
	var plan model.BackfillPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, exception.NewPersistenceError(moduleName, "failed to decode plan", err)
	}
	return &plan, nil
}

// DeletePlan implements repository.PlanRepository.
func (r *Repository) DeletePlan(ctx context.Context, planID string) error {
	if err := os.Remove(r.planPath(planID)); err != nil && !os.IsNotExist(err) {
		return exception.NewPersistenceError(moduleName, "failed to delete plan", err)
	}
	return nil
}

// ListPlanIDs implements repository.PlanRepository.
func (r *Repository) ListPlanIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, plansDir))
	if err != nil {
		return nil, exception.NewPersistenceError(moduleName, "failed to list plans", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// SaveRun implements repository.RunRepository.
func (r *Repository) SaveRun(ctx context.Context, run *model.BackfillRun) error {
	if err := r.writeJSONAtomic(r.runPath(run.PlanID), run); err != nil {
		return exception.NewPersistenceError(moduleName, "failed to persist run checkpoint", err)
	}
	return nil
}

// FindRun implements repository.RunRepository.
func (r *Repository) FindRun(ctx context.Context, planID string) (*model.BackfillRun, error) {
	raw, err := os.ReadFile(r.runPath(planID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run for plan %s: %w", planID, repo.ErrRunNotFound)
		}
		return nil, exception.NewPersistenceError(moduleName, "failed to read run checkpoint", err)
	}
	var run model.BackfillRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, exception.NewPersistenceError(moduleName, "failed to decode run checkpoint", err)
	}
	return &run, nil
}

// AppendEvent implements repository.EventRepository. The line is written with
// a single write call so concurrent readers never observe a partial record.
func (r *Repository) AppendEvent(ctx context.Context, planID string, event model.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return exception.NewPersistenceError(moduleName, "failed to encode event", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(r.eventPath(planID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return exception.NewPersistenceError(moduleName, "failed to open event log", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return exception.NewPersistenceError(moduleName, "failed to append event", err)
	}
	if err := f.Sync(); err != nil {
		return exception.NewPersistenceError(moduleName, "failed to sync event log", err)
	}
	return nil
}

// FindEvents implements repository.EventRepository.
func (r *Repository) FindEvents(ctx context.Context, planID string) ([]model.Event, error) {
	raw, err := os.ReadFile(r.eventPath(planID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, exception.NewPersistenceError(moduleName, "failed to read event log", err)
	}

	var events []model.Event
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event model.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, exception.NewPersistenceError(moduleName, "failed to decode event record", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Close implements repository.CheckpointRepository.
func (r *Repository) Close() error {
	return nil
}

// writeJSONAtomic marshals v and writes it via a temp file in the same
// directory, fsyncs, then renames over the destination.
func (r *Repository) writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Verify interfaces
var _ repo.CheckpointRepository = (*Repository)(nil)
