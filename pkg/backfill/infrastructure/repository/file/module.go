package file

import (
	"go.uber.org/fx"

	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
)

// Module provides the filesystem checkpoint repository rooted at the
// configured state directory.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		func(c *cfg.Config) (*Repository, error) {
			return NewRepository(c.Refill.Backfill.StateRoot)
		},
		fx.As(new(repo.CheckpointRepository)),
	)),
)
