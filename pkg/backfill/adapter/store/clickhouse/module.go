package clickhouse

import (
	"go.uber.org/fx"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
)

// Module provides the ClickHouse store client.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(c *cfg.Config) (*Client, error) {
			sc, err := c.Store()
			if err != nil {
				return nil, err
			}
			return NewClient(sc)
		},
		fx.As(new(store.Client)),
	)),
)
