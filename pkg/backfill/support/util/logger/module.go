package logger

import "go.uber.org/fx"

// Module is an Fx module that installs the refill logger as the fx.Logger.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
