package config

import (
	"go.uber.org/fx"

	"github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// NewConfigProvider is an Fx provider that loads and provides *Config,
// and sets the global log level from the result.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Refill.System.Logging.Level)
	logger.Debugf("Log level set to: %s", cfg.Refill.System.Logging.Level)

	return cfg, nil
}

// Module is an Fx module providing the loaded configuration.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
)
