// Package repository defines the persistence boundary of the backfill core:
// durable, crash-safe storage for plans, run checkpoints, and the audit trail.
package repository

// CheckpointRepository is the interface the planning and execution layers
// depend on. It embeds the per-concern repository interfaces.
type CheckpointRepository interface {
	PlanRepository
	RunRepository
	EventRepository

	// Close releases resources held by the repository.
	Close() error
}
