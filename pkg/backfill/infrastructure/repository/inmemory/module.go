package inmemory

import (
	"go.uber.org/fx"

	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
)

// Module provides the in-memory checkpoint repository.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewRepository,
		fx.As(new(repo.CheckpointRepository)),
	)),
)
