package retry

import (
	"time"

	"go.uber.org/fx"

	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
)

// Module provides the retry policy configured from the backfill settings.
var Module = fx.Options(
	fx.Provide(func(c *cfg.Config) RetryPolicy {
		b := c.Refill.Backfill
		return NewExponentialRetryPolicy(b.MaxRetriesPerChunk, time.Duration(b.RetryDelayMs)*time.Millisecond)
	}),
)
