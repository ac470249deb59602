package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// planIDLength is the number of hex characters kept from the plan fingerprint hash.
const planIDLength = 16

// tokenLength is the number of hex characters kept from the chunk idempotency hash.
const tokenLength = 32

// Strategy selects how a chunk's replay statement is constructed for a target.
type Strategy string

const (
	// StrategyTable replays a plain table by re-inserting the window from the target itself.
	StrategyTable Strategy = "table"
	// StrategyMVReplay replays a materialized-view destination by re-running the
	// view's own SELECT restricted to the window. Requires an idempotency token
	// on every statement.
	StrategyMVReplay Strategy = "mv_replay"
)

// String returns the string representation of the Strategy.
func (s Strategy) String() string {
	return string(s)
}

// RequiresIdempotencyToken reports whether statements built for this strategy
// must carry a deduplication token.
func (s Strategy) RequiresIdempotencyToken() bool {
	return s == StrategyMVReplay
}

// RunStatus represents the state of a backfill run.
type RunStatus string

const (
	RunStatusNotStarted            RunStatus = "not_started"
	RunStatusRunning               RunStatus = "running"
	RunStatusCompleted             RunStatus = "completed"
	RunStatusCompletedWithFailures RunStatus = "completed_with_failures"
	RunStatusCancelled             RunStatus = "cancelled"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal checks if the RunStatus represents a finished state.
// Only one non-terminal run may exist per target unless explicitly overridden.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCompletedWithFailures, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ChunkStatus represents the state of a single chunk within a run.
type ChunkStatus string

const (
	ChunkStatusPending         ChunkStatus = "pending"
	ChunkStatusRunning         ChunkStatus = "running"
	ChunkStatusSucceeded       ChunkStatus = "succeeded"
	ChunkStatusFailedRetrying  ChunkStatus = "failed_retrying"
	ChunkStatusFailedExhausted ChunkStatus = "failed_exhausted"
)

// String returns the string representation of the ChunkStatus.
func (s ChunkStatus) String() string {
	return string(s)
}

// TargetDescriptor identifies the destination table of a backfill.
// It is owned by the caller and immutable.
type TargetDescriptor struct {
	Database string `json:"database" yaml:"database"`
	Table    string `json:"table" yaml:"table"`
}

// String returns the "database.table" form of the target.
func (t TargetDescriptor) String() string {
	return t.Database + "." + t.Table
}

// IsZero reports whether the target is unset.
func (t TargetDescriptor) IsZero() bool {
	return t.Database == "" && t.Table == ""
}

// ParseTarget parses a "database.table" string into a TargetDescriptor.
func ParseTarget(s string) (TargetDescriptor, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TargetDescriptor{}, fmt.Errorf("target must be of the form 'database.table', got %q", s)
	}
	return TargetDescriptor{Database: parts[0], Table: parts[1]}, nil
}

// TimeWindow is a half-open [From, To) interval of UTC instants.
type TimeWindow struct {
	From time.Time `json:"from" yaml:"from"`
	To   time.Time `json:"to" yaml:"to"`
}

// Validate checks that the window is well-formed (To strictly after From).
func (w TimeWindow) Validate() error {
	if !w.To.After(w.From) {
		return fmt.Errorf("window 'to' (%s) must be after 'from' (%s)",
			w.To.Format(time.RFC3339), w.From.Format(time.RFC3339))
	}
	return nil
}

// Hours returns the window duration in hours.
func (w TimeWindow) Hours() float64 {
	return w.To.Sub(w.From).Hours()
}

// String returns a compact representation of the window.
func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.From.UTC().Format(time.RFC3339), w.To.UTC().Format(time.RFC3339))
}

// Chunk is one contiguous time sub-window of a backfill plan.
// Chunks are value objects inside a plan and are not separately persisted.
type Chunk struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Window returns the chunk's own half-open window.
func (c Chunk) Window() TimeWindow {
	return TimeWindow{From: c.Start, To: c.End}
}

// BackfillPlan is the immutable description of a backfill job.
// It is created once by the plan builder and read-only thereafter;
// it is deleted only by explicit force-regeneration.
type BackfillPlan struct {
	PlanID     string           `json:"plan_id"`
	Target     TargetDescriptor `json:"target"`
	Window     TimeWindow       `json:"window"`
	ChunkHours int              `json:"chunk_hours"`
	TimeColumn string           `json:"time_column"`
	Strategy   Strategy         `json:"strategy"`
	// MVQuery holds the stored SELECT text of the materialized view feeding the
	// target. Populated only for StrategyMVReplay.
	MVQuery    string    `json:"mv_query,omitempty"`
	Chunks     []Chunk   `json:"chunks"`
	CreateTime time.Time `json:"create_time"`
}

// ComputePlanID derives the deterministic plan identifier from the planning inputs.
// Re-planning identical inputs reproduces the same id; the strategy is derived
// from metadata and therefore not part of the fingerprint.
func ComputePlanID(target TargetDescriptor, window TimeWindow, chunkHours int, timeColumn string) string {
	fingerprint := fmt.Sprintf("%s|%s|%s|%d|%s",
		target.String(),
		window.From.UTC().Format(time.RFC3339),
		window.To.UTC().Format(time.RFC3339),
		chunkHours,
		timeColumn,
	)
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])[:planIDLength]
}

// ChunkIdempotencyToken derives the deduplication token for a chunk.
// The token is a pure function of (planID, index, start, end), so it is
// constant across retries and replays. This is the invariant that makes
// re-execution of a chunk safe.
func ChunkIdempotencyToken(planID string, chunk Chunk) string {
	fingerprint := fmt.Sprintf("%s|%d|%s|%s",
		planID,
		chunk.Index,
		chunk.Start.UTC().Format(time.RFC3339),
		chunk.End.UTC().Format(time.RFC3339),
	)
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])[:tokenLength]
}

// ChunkState is the per-chunk execution state inside a run, one per plan chunk,
// indexed identically to the plan's chunk slice.
type ChunkState struct {
	Status           ChunkStatus `json:"status"`
	Attempts         int         `json:"attempts"`
	LastError        string      `json:"last_error,omitempty"`
	IdempotencyToken string      `json:"idempotency_token"`
}

// BackfillRun is the mutable checkpoint for one execution attempt against a plan.
// It is owned by the execution engine, mutated after every chunk attempt, and
// never deleted automatically.
type BackfillRun struct {
	ID          string       `json:"id"`
	PlanID      string       `json:"plan_id"`
	Status      RunStatus    `json:"status"`
	ChunkStates []ChunkState `json:"chunk_states"`
	StartedAt   time.Time    `json:"started_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewBackfillRun initializes a run for the given plan with every chunk pending
// and its idempotency token precomputed.
func NewBackfillRun(plan *BackfillPlan) *BackfillRun {
	now := time.Now().UTC()
	states := make([]ChunkState, len(plan.Chunks))
	for i, chunk := range plan.Chunks {
		states[i] = ChunkState{
			Status:           ChunkStatusPending,
			IdempotencyToken: ChunkIdempotencyToken(plan.PlanID, chunk),
		}
	}
	return &BackfillRun{
		ID:          uuid.New().String(),
		PlanID:      plan.PlanID,
		Status:      RunStatusNotStarted,
		ChunkStates: states,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch refreshes the run's UpdatedAt timestamp.
func (r *BackfillRun) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// HasExhaustedChunks reports whether any chunk has permanently failed.
func (r *BackfillRun) HasExhaustedChunks() bool {
	for _, cs := range r.ChunkStates {
		if cs.Status == ChunkStatusFailedExhausted {
			return true
		}
	}
	return false
}

// AllChunksSucceeded reports whether every chunk has succeeded.
func (r *BackfillRun) AllChunksSucceeded() bool {
	for _, cs := range r.ChunkStates {
		if cs.Status != ChunkStatusSucceeded {
			return false
		}
	}
	return true
}

// CountByStatus returns the number of chunks currently in the given status.
func (r *BackfillRun) CountByStatus(status ChunkStatus) int {
	count := 0
	for _, cs := range r.ChunkStates {
		if cs.Status == status {
			count++
		}
	}
	return count
}

// EventKind identifies the kind of an audit-trail event.
type EventKind string

const (
	EventPlanCreated    EventKind = "plan_created"
	EventRunStarted     EventKind = "run_started"
	EventChunkStarted   EventKind = "chunk_started"
	EventChunkSucceeded EventKind = "chunk_succeeded"
	EventChunkRetrying  EventKind = "chunk_retrying"
	EventChunkFailed    EventKind = "chunk_failed"
	EventRunCompleted   EventKind = "run_completed"
	EventRunCancelled   EventKind = "run_cancelled"
)

// Event is one append-only audit-trail record. Events are never rewritten and
// never deleted, and are not consulted for control flow.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	RunID      string    `json:"run_id"`
	Kind       EventKind `json:"kind"`
	ChunkIndex *int      `json:"chunk_index,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// NewEvent creates an event stamped with the current UTC time.
func NewEvent(runID string, kind EventKind, detail string) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Kind:      kind,
		Detail:    detail,
	}
}

// NewChunkEvent creates an event scoped to a single chunk index.
func NewChunkEvent(runID string, kind EventKind, chunkIndex int, detail string) Event {
	e := NewEvent(runID, kind, detail)
	e.ChunkIndex = &chunkIndex
	return e
}
