package usecase

import (
	"go.uber.org/fx"
)

// Module provides the backfill operator.
var Module = fx.Options(
	fx.Provide(NewBackfillOperator),
)
