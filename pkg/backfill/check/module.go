package check

import (
	"go.uber.org/fx"
)

// Module provides the CI checker.
var Module = fx.Options(
	fx.Provide(NewChecker),
)
