package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// ErrPlanNotFound is returned when no plan exists for the given id.
var ErrPlanNotFound = errors.New("backfill plan not found")

// ErrPlanAlreadyExists is returned when saving a plan whose id is already
// persisted and force is not set. A conflicting re-plan under the same id
// requires an explicit force-overwrite.
var ErrPlanAlreadyExists = errors.New("backfill plan already exists")

// PlanRepository defines persistence operations for immutable backfill plans.
type PlanRepository interface {
	// SavePlan persists a plan. Plans are write-once: if a plan with the same
	// id already exists, ErrPlanAlreadyExists is returned unless force is set.
	SavePlan(ctx context.Context, plan *model.BackfillPlan, force bool) error

	// FindPlan retrieves the plan with the given id, or ErrPlanNotFound.
	FindPlan(ctx context.Context, planID string) (*model.BackfillPlan, error)

	// DeletePlan removes a plan. Used only by explicit force-regeneration.
	DeletePlan(ctx context.Context, planID string) error

	// ListPlanIDs returns the ids of all persisted plans.
	ListPlanIDs(ctx context.Context) ([]string, error)
}
