// Package metrics provides the concrete observability backends: a Prometheus
// recorder for run/chunk metrics and an OpenTelemetry tracer for chunk spans.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	metrics "github.com/tigerroll/refill/pkg/backfill/core/metrics"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run metrics
	runStatusCounter   *prometheus.CounterVec
	runDurationSeconds *prometheus.HistogramVec

	// Chunk metrics
	chunkDurationSeconds *prometheus.HistogramVec
	chunkRetryCounter    *prometheus.CounterVec
	chunkFailureCounter  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_run_status_total",
			Help: "Total number of backfill run transitions by status.",
		}, []string{"plan_id", "status"}),
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backfill_run_duration_seconds",
			Help:    "Duration of backfill runs.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"plan_id", "status"}),
		chunkDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backfill_chunk_duration_seconds",
			Help:    "Duration of successfully replayed chunks.",
			Buckets: prometheus.DefBuckets,
		}, []string{"plan_id"}),
		chunkRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_chunk_retry_total",
			Help: "Total chunk attempt retries.",
		}, []string{"plan_id"}),
		chunkFailureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backfill_chunk_failure_total",
			Help: "Total chunks whose retry budget was exhausted.",
		}, []string{"plan_id"}),
	}

	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.chunkDurationSeconds)
	registry.MustRegister(r.chunkRetryCounter)
	registry.MustRegister(r.chunkFailureCounter)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart records the start of a backfill run.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, run *model.BackfillRun) {
	r.runStatusCounter.WithLabelValues(run.PlanID, run.Status.String()).Inc()
	logger.Debugf("Metrics: run '%s' started for plan '%s'.", run.ID, run.PlanID)
}

// RecordRunEnd records the end of a backfill run with its final status.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.BackfillRun) {
	duration := run.UpdatedAt.Sub(run.StartedAt).Seconds()
	r.runStatusCounter.WithLabelValues(run.PlanID, run.Status.String()).Inc()
	r.runDurationSeconds.WithLabelValues(run.PlanID, run.Status.String()).Observe(duration)
	logger.Debugf("Metrics: run '%s' ended with status '%s'. Duration: %.3fs", run.ID, run.Status, duration)
}

// RecordChunkSuccess records a successfully replayed chunk and its duration.
func (r *PrometheusRecorder) RecordChunkSuccess(ctx context.Context, planID string, chunk model.Chunk, elapsed time.Duration) {
	r.chunkDurationSeconds.WithLabelValues(planID).Observe(elapsed.Seconds())
}

// RecordChunkRetry records one retried chunk attempt.
func (r *PrometheusRecorder) RecordChunkRetry(ctx context.Context, planID string, chunkIndex int) {
	r.chunkRetryCounter.WithLabelValues(planID).Inc()
}

// RecordChunkFailure records a chunk whose attempts were exhausted.
func (r *PrometheusRecorder) RecordChunkFailure(ctx context.Context, planID string, chunkIndex int) {
	r.chunkFailureCounter.WithLabelValues(planID).Inc()
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
