package metrics

import "go.uber.org/fx"

// Module provides the no-op recorder and tracer. Applications that want real
// backends override these with the infrastructure/metrics module.
var Module = fx.Options(
	fx.Provide(NewNoopMetricRecorder),
	fx.Provide(NewNoopTracer),
)
