package metrics

import (
	"context"

	"go.uber.org/fx"

	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	metrics "github.com/tigerroll/refill/pkg/backfill/core/metrics"
)

// Module is an Fx module that provides PrometheusRecorder and OpenTelemetryTracer.
var Module = fx.Options(
	// Provide PrometheusRecorder as a core.MetricRecorder interface.
	fx.Provide(fx.Annotate(
		NewPrometheusRecorder,
		fx.As(new(metrics.MetricRecorder)),
	)),
	// Provide OpenTelemetryTracer as a core.Tracer interface, flushing spans on
	// shutdown.
	fx.Provide(fx.Annotate(
		func(lc fx.Lifecycle, c *cfg.Config) (*OpenTelemetryTracer, error) {
			tracer, err := NewOpenTelemetryTracer(context.Background(), c.Refill.System.Tracing)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return tracer.Shutdown(ctx)
				},
			})
			return tracer, nil
		},
		fx.As(new(metrics.Tracer)),
	)),
)
