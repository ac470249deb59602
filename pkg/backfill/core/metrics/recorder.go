// Package metrics defines the abstract recording and tracing interfaces the
// execution engine reports into. Concrete backends live under
// infrastructure/metrics; the engine only depends on these interfaces.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// Span represents a single traced unit of work.
type Span interface {
	// End finishes the span.
	End()
}

// MetricRecorder records run- and chunk-level execution metrics.
type MetricRecorder interface {
	// RecordRunStart records the start of a backfill run.
	RecordRunStart(ctx context.Context, run *model.BackfillRun)

	// RecordRunEnd records the end of a backfill run with its final status.
	RecordRunEnd(ctx context.Context, run *model.BackfillRun)

	// RecordChunkSuccess records a successfully replayed chunk and its duration.
	RecordChunkSuccess(ctx context.Context, planID string, chunk model.Chunk, elapsed time.Duration)

	// RecordChunkRetry records one retried chunk attempt.
	RecordChunkRetry(ctx context.Context, planID string, chunkIndex int)

	// RecordChunkFailure records a chunk whose attempts were exhausted.
	RecordChunkFailure(ctx context.Context, planID string, chunkIndex int)
}

// Tracer creates spans around chunk replays.
type Tracer interface {
	// StartChunkSpan starts a span covering one chunk attempt.
	StartChunkSpan(ctx context.Context, planID string, chunkIndex int) (context.Context, Span)

	// RecordError attaches an error to the current span.
	RecordError(ctx context.Context, err error)
}
