package dummy

import (
	"go.uber.org/fx"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
)

// Module provides the dummy store client, for wiring without a live store.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewClient,
		fx.As(new(store.Client)),
	)),
)
