// Package inmemory implements the checkpoint repository on process memory.
// Nothing survives a restart; it exists for tests and dry wiring.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

const moduleName = "repository.inmemory"

// Repository is the in-memory checkpoint repository. Safe for concurrent use.
type Repository struct {
	mu     sync.RWMutex
	plans  map[string][]byte
	runs   map[string][]byte
	events map[string][]model.Event
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		plans:  make(map[string][]byte),
		runs:   make(map[string][]byte),
		events: make(map[string][]model.Event),
	}
}

// SavePlan implements repository.PlanRepository.
func (r *Repository) SavePlan(ctx context.Context, plan *model.BackfillPlan, force bool) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return exception.NewPersistenceError(moduleName, "failed to encode plan", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plans[plan.PlanID]; exists && !force {
		return fmt.Errorf("plan %s: %w", plan.PlanID, repo.ErrPlanAlreadyExists)
	}
	r.plans[plan.PlanID] = raw
	return nil
}

// FindPlan implements repository.PlanRepository.
func (r *Repository) FindPlan(ctx context.Context, planID string) (*model.BackfillPlan, error) {
	r.mu.RLock()
	raw, ok := r.plans[planID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", planID, repo.ErrPlanNotFound)
	}
	var plan model.BackfillPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, exception.NewPersistenceError(moduleName, "failed to decode plan", err)
	}
	return &plan, nil
}

// DeletePlan implements repository.PlanRepository.
func (r *Repository) DeletePlan(ctx context.Context, planID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plans, planID)
	return nil
}

// ListPlanIDs implements repository.PlanRepository.
func (r *Repository) ListPlanIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.plans))
	for id := range r.plans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveRun implements repository.RunRepository. The run is stored as an
// encoded snapshot so later mutations of the caller's struct do not leak in.
func (r *Repository) SaveRun(ctx context.Context, run *model.BackfillRun) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return exception.NewPersistenceError(moduleName, "failed to encode run", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.PlanID] = raw
	return nil
}

// FindRun implements repository.RunRepository.
func (r *Repository) FindRun(ctx context.Context, planID string) (*model.BackfillRun, error) {
	r.mu.RLock()
	raw, ok := r.runs[planID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run for plan %s: %w", planID, repo.ErrRunNotFound)
	}
	var run model.BackfillRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, exception.NewPersistenceError(moduleName, "failed to decode run", err)
	}
	return &run, nil
}

// AppendEvent implements repository.EventRepository.
func (r *Repository) AppendEvent(ctx context.Context, planID string, event model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[planID] = append(r.events[planID], event)
	return nil
}

// FindEvents implements repository.EventRepository.
func (r *Repository) FindEvents(ctx context.Context, planID string) ([]model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.events[planID]
	out := make([]model.Event, len(stored))
	copy(out, stored)
	return out, nil
}

// Close implements repository.CheckpointRepository.
func (r *Repository) Close() error {
	return nil
}

// Verify interfaces
var _ repo.CheckpointRepository = (*Repository)(nil)
