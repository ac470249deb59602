// Package dummy provides an in-memory store client for dry wiring and tests.
// Statements are recorded instead of executed; an optional hook scripts
// per-statement outcomes.
package dummy

import (
	"context"
	"sync"

	store "github.com/tigerroll/refill/pkg/backfill/adapter/store"
)

// ExecutedStatement records one Execute call.
type ExecutedStatement struct {
	SQL      string
	Settings map[string]string
}

// Client is the in-memory store client.
type Client struct {
	mu       sync.Mutex
	executed []ExecutedStatement

	// ExecuteHook, when set, decides the outcome of each Execute call.
	// The statement is recorded regardless.
	ExecuteHook func(sql string, settings map[string]string) error
}

// NewClient creates a new dummy client.
func NewClient() *Client {
	return &Client{}
}

// Execute implements store.Client.
func (c *Client) Execute(ctx context.Context, sql string, settings map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make(map[string]string, len(settings))
	for k, v := range settings {
		copied[k] = v
	}

	c.mu.Lock()
	c.executed = append(c.executed, ExecutedStatement{SQL: sql, Settings: copied})
	hook := c.ExecuteHook
	c.mu.Unlock()

	if hook != nil {
		return hook(sql, settings)
	}
	return nil
}

// Select implements store.Client. The dummy returns no rows.
func (c *Client) Select(ctx context.Context, dest interface{}, sql string) error {
	return ctx.Err()
}

// Ping implements store.Client.
func (c *Client) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements store.Client.
func (c *Client) Close() error {
	return nil
}

// Executed returns a snapshot of the recorded statements.
func (c *Client) Executed() []ExecutedStatement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ExecutedStatement, len(c.executed))
	copy(out, c.executed)
	return out
}

// Verify interfaces
var _ store.Client = (*Client)(nil)
