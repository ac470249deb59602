package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// ErrRunNotFound is returned when no run checkpoint exists for the given plan.
var ErrRunNotFound = errors.New("backfill run not found")

// RunRepository defines persistence operations for run checkpoints.
//
// SaveRun is last-write-wins; single-writer per run is enforced by the overlap
// guard, not by the repository. In a concurrent-process deployment this
// guarantee is advisory unless paired with an external mutual-exclusion
// mechanism such as a file lock.
type RunRepository interface {
	// SaveRun persists the full run checkpoint. The write must be atomic so a
	// crash mid-write never yields a truncated checkpoint.
	SaveRun(ctx context.Context, run *model.BackfillRun) error

	// FindRun retrieves the run checkpoint for a plan, or ErrRunNotFound.
	FindRun(ctx context.Context, planID string) (*model.BackfillRun, error)
}
