// Package plan builds immutable, deterministically-identified backfill plans:
// window validation, chunk partitioning, strategy selection, and the per-chunk
// query templates. The builder performs no I/O beyond reading already-loaded
// metadata; persistence is a separate step owned by the checkpoint repository,
// so plan construction stays deterministic and testable without storage.
package plan

import (
	"errors"
	"fmt"
	"time"

	metadata "github.com/tigerroll/refill/pkg/backfill/core/domain/metadata"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

const moduleName = "plan.builder"

// ErrInvalidWindow is returned for a malformed window (to <= from).
var ErrInvalidWindow = errors.New("invalid window")

// ErrWindowTooLarge is returned when the window exceeds the configured limit
// and no override is set.
var ErrWindowTooLarge = errors.New("window too large")

// ErrChunkTooSmall is returned when the chunk size is below the configured minimum.
var ErrChunkTooSmall = errors.New("chunk too small")

// Limits are the window and chunk-size bounds the builder enforces.
type Limits struct {
	// MaxWindowHours caps the window duration. Zero disables the cap.
	MaxWindowHours int
	// MinChunkMinutes is the smallest permitted chunk duration.
	MinChunkMinutes int
}

// BuildRequest carries the validated planning inputs.
type BuildRequest struct {
	Target     model.TargetDescriptor
	Window     model.TimeWindow
	ChunkHours int
	// TimeColumn is the already-resolved window-filter column (see ResolveTimeColumn).
	TimeColumn string
	// AllowLargeWindow overrides the MaxWindowHours limit for this invocation.
	AllowLargeWindow bool
}

// BuildPlan turns (target, window, chunk size, time column) into an immutable
// plan of contiguous chunks, selecting the replay strategy for the target.
//
// Re-planning identical inputs reproduces the same plan id and chunk boundaries.
func BuildPlan(req BuildRequest, schema *metadata.SchemaMetadata, limits Limits) (*model.BackfillPlan, error) {
	if err := validateRequest(req, limits); err != nil {
		return nil, err
	}

	strategy := model.StrategyTable
	mvQuery := ""
	if view, ok := schema.MaterializedViewFor(req.Target); ok {
		strategy = model.StrategyMVReplay
		mvQuery = view.Query
		logger.Debugf("Target %s is the destination of materialized view '%s'. Selecting %s strategy.",
			req.Target, view.Name, strategy)
	}

	p := &model.BackfillPlan{
		PlanID:     model.ComputePlanID(req.Target, req.Window, req.ChunkHours, req.TimeColumn),
		Target:     req.Target,
		Window:     req.Window,
		ChunkHours: req.ChunkHours,
		TimeColumn: req.TimeColumn,
		Strategy:   strategy,
		MVQuery:    mvQuery,
		Chunks:     PartitionWindow(req.Window, req.ChunkHours),
		CreateTime: time.Now().UTC(),
	}

	logger.Infof("Built plan %s for target %s: window %s, %d chunk(s) of %dh, strategy %s, time column '%s'.",
		p.PlanID, p.Target, p.Window, len(p.Chunks), p.ChunkHours, p.Strategy, p.TimeColumn)
	return p, nil
}

// validateRequest enforces window well-formedness and the configured limits.
func validateRequest(req BuildRequest, limits Limits) error {
	if err := req.Window.Validate(); err != nil {
		return exception.NewConfigurationError(moduleName, "invalid backfill window",
			fmt.Errorf("%w: %v", ErrInvalidWindow, err))
	}
	if req.ChunkHours < 1 {
		return exception.NewConfigurationError(moduleName, "chunk size must be at least one hour",
			fmt.Errorf("%w: chunk_hours=%d", ErrChunkTooSmall, req.ChunkHours))
	}
	if limits.MinChunkMinutes > 0 && req.ChunkHours*60 < limits.MinChunkMinutes {
		return exception.NewConfigurationError(moduleName,
			fmt.Sprintf("chunk size %dh is below the %dm minimum", req.ChunkHours, limits.MinChunkMinutes),
			fmt.Errorf("%w: chunk_hours=%d", ErrChunkTooSmall, req.ChunkHours))
	}
	if limits.MaxWindowHours > 0 && !req.AllowLargeWindow && req.Window.Hours() > float64(limits.MaxWindowHours) {
		return exception.NewConfigurationError(moduleName,
			fmt.Sprintf("window spans %.1fh, above the %dh limit (use the large-window override to proceed)",
				req.Window.Hours(), limits.MaxWindowHours),
			fmt.Errorf("%w: %.1fh", ErrWindowTooLarge, req.Window.Hours()))
	}
	return nil
}

// PartitionWindow partitions a window into contiguous, non-overlapping chunks
// that exactly cover it. Every chunk spans chunkHours except possibly the last,
// which is shortened to fit the window's end.
func PartitionWindow(window model.TimeWindow, chunkHours int) []model.Chunk {
	chunkSpan := time.Duration(chunkHours) * time.Hour
	var chunks []model.Chunk

	start := window.From
	for index := 0; start.Before(window.To); index++ {
		end := start.Add(chunkSpan)
		if end.After(window.To) {
			end = window.To
		}
		chunks = append(chunks, model.Chunk{Index: index, Start: start, End: end})
		start = end
	}
	return chunks
}
