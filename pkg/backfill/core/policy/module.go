package policy

import (
	"go.uber.org/fx"

	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
)

// Module is an Fx module providing the policy guard.
var Module = fx.Options(
	fx.Provide(func(c *cfg.Config) *Guard {
		return NewGuard(c.Refill.Policies)
	}),
)
