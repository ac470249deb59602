package repository

import (
	"context"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// EventRepository defines the append-only audit trail per plan.
//
// AppendEvent never fails silently: a failure here must abort the in-flight
// chunk rather than proceed with unrecorded state.
type EventRepository interface {
	// AppendEvent appends one event to the plan's log.
	AppendEvent(ctx context.Context, planID string, event model.Event) error

	// FindEvents returns the plan's events in append order.
	FindEvents(ctx context.Context, planID string) ([]model.Event, error)
}
