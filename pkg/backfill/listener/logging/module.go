package logging

import (
	"go.uber.org/fx"

	"github.com/tigerroll/refill/pkg/backfill/engine/executor"
)

// Module registers the logging listeners on the execution engine.
var Module = fx.Options(
	fx.Invoke(func(e *executor.Engine) {
		e.AddRunListener(NewLoggingRunListener())
		e.AddChunkListener(NewLoggingChunkListener())
	}),
)
