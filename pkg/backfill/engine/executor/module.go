package executor

import (
	"go.uber.org/fx"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
	"github.com/tigerroll/refill/pkg/backfill/core/metrics"
	"github.com/tigerroll/refill/pkg/backfill/engine/retry"
)

// Module provides the execution engine assembled from the store client,
// checkpoint repository, retry policy, and observability backends.
var Module = fx.Options(
	fx.Provide(func(
		client store.Client,
		checkpoints repo.CheckpointRepository,
		retryPolicy retry.RetryPolicy,
		recorder metrics.MetricRecorder,
		tracer metrics.Tracer,
	) *Engine {
		return NewEngine(EngineParams{
			Client:      client,
			Checkpoints: checkpoints,
			RetryPolicy: retryPolicy,
			Recorder:    recorder,
			Tracer:      tracer,
		})
	}),
)
