// Package app assembles the refill application with uber-fx and hands the
// populated operator and checker to the command surface.
package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/refill/pkg/backfill/adapter/store/clickhouse"
	"github.com/tigerroll/refill/pkg/backfill/adapter/store/dummy"
	"github.com/tigerroll/refill/pkg/backfill/check"
	usecase "github.com/tigerroll/refill/pkg/backfill/core/application/usecase"
	config "github.com/tigerroll/refill/pkg/backfill/core/config"
	"github.com/tigerroll/refill/pkg/backfill/core/policy"
	"github.com/tigerroll/refill/pkg/backfill/engine/executor"
	"github.com/tigerroll/refill/pkg/backfill/engine/retry"
	infraMetrics "github.com/tigerroll/refill/pkg/backfill/infrastructure/metrics"
	fileRepo "github.com/tigerroll/refill/pkg/backfill/infrastructure/repository/file"
	loggingListener "github.com/tigerroll/refill/pkg/backfill/listener/logging"
	"github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// Options selects the infrastructure variant per command.
type Options struct {
	// WithoutStore wires the dummy store client. Commands that never issue
	// statements (plan, status, cancel, check) run without store connectivity.
	WithoutStore bool
}

// Runtime is the assembled application, populated from the fx container.
type Runtime struct {
	Operator *usecase.BackfillOperator
	Checker  *check.Checker

	app *fx.App
}

// New builds the fx application and populates the runtime. Start must be
// called before use and Stop when done.
func New(envFilePath string, embeddedConfig config.EmbeddedConfig, opts Options) *Runtime {
	rt := &Runtime{}

	storeModule := clickhouse.Module
	if opts.WithoutStore {
		storeModule = dummy.Module
	}

	rt.app = fx.New(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),

		logger.Module,
		config.Module,
		policy.Module,
		infraMetrics.Module,
		fileRepo.Module,
		storeModule,
		retry.Module,
		executor.Module,
		usecase.Module,
		check.Module,
		loggingListener.Module,

		fx.Populate(&rt.Operator, &rt.Checker),
	)
	return rt
}

// Start runs the container's start hooks.
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.app.Err(); err != nil {
		return err
	}
	return r.app.Start(ctx)
}

// Stop runs the container's stop hooks.
func (r *Runtime) Stop(ctx context.Context) {
	if err := r.app.Stop(ctx); err != nil {
		logger.Errorf("Failed to stop application cleanly: %v", err)
	}
}
