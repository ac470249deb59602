// Package clickhouse implements the store client against ClickHouse using the
// native protocol driver.
package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

const moduleName = "store.clickhouse"

// Client is the ClickHouse-backed store client.
type Client struct {
	conn driver.Conn
}

// NewClient opens a native-protocol connection from the store configuration.
func NewClient(sc cfg.StoreConfig) (*Client, error) {
	dialTimeout := time.Duration(sc.DialTimeoutSeconds) * time.Second
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{sc.Addr},
		Auth: clickhouse.Auth{
			Database: sc.Database,
			Username: sc.Username,
			Password: sc.Password,
		},
		DialTimeout: dialTimeout,
		Debug:       sc.Debug,
		Debugf: func(format string, v ...interface{}) {
			logger.Debugf("clickhouse: "+format, v...)
		},
	})
	if err != nil {
		return nil, exception.NewExecutionError(moduleName, "failed to open store connection", err, true)
	}
	return &Client{conn: conn}, nil
}

// Execute implements store.Client, attaching the given settings per statement.
func (c *Client) Execute(ctx context.Context, sql string, settings map[string]string) error {
	if len(settings) > 0 {
		chSettings := make(clickhouse.Settings, len(settings))
		for k, v := range settings {
			chSettings[k] = v
		}
		ctx = clickhouse.Context(ctx, clickhouse.WithSettings(chSettings))
	}
	if err := c.conn.Exec(ctx, sql); err != nil {
		return exception.NewExecutionError(moduleName, "statement execution failed", err, true)
	}
	return nil
}

// Select implements store.Client.
func (c *Client) Select(ctx context.Context, dest interface{}, sql string) error {
	if err := c.conn.Select(ctx, dest, sql); err != nil {
		return exception.NewExecutionError(moduleName, "query failed", err, true)
	}
	return nil
}

// Ping implements store.Client.
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close implements store.Client.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Verify interfaces
var _ store.Client = (*Client)(nil)
