package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// NoopMetricRecorder discards all metrics. It is the default when no backend
// is configured.
type NoopMetricRecorder struct{}

// NewNoopMetricRecorder creates a new NoopMetricRecorder.
func NewNoopMetricRecorder() MetricRecorder {
	return &NoopMetricRecorder{}
}

func (r *NoopMetricRecorder) RecordRunStart(ctx context.Context, run *model.BackfillRun) {}
func (r *NoopMetricRecorder) RecordRunEnd(ctx context.Context, run *model.BackfillRun)   {}
func (r *NoopMetricRecorder) RecordChunkSuccess(ctx context.Context, planID string, chunk model.Chunk, elapsed time.Duration) {
}
func (r *NoopMetricRecorder) RecordChunkRetry(ctx context.Context, planID string, chunkIndex int) {}
func (r *NoopMetricRecorder) RecordChunkFailure(ctx context.Context, planID string, chunkIndex int) {
}

// noopSpan is a Span that does nothing.
type noopSpan struct{}

func (noopSpan) End() {}

// NoopTracer discards all spans.
type NoopTracer struct{}

// NewNoopTracer creates a new NoopTracer.
func NewNoopTracer() Tracer {
	return &NoopTracer{}
}

func (t *NoopTracer) StartChunkSpan(ctx context.Context, planID string, chunkIndex int) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (t *NoopTracer) RecordError(ctx context.Context, err error) {}

// Verify interfaces
var (
	_ MetricRecorder = (*NoopMetricRecorder)(nil)
	_ Tracer         = (*NoopTracer)(nil)
)
