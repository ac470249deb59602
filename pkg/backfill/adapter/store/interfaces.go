// Package store defines the client boundary to the columnar analytical store.
// The execution engine depends only on this interface; concrete drivers live
// in subpackages.
package store

import "context"

// SettingDeduplicationToken is the per-statement setting carrying the chunk's
// idempotency token, so repeated execution of the same chunk has no
// duplicating effect.
const SettingDeduplicationToken = "insert_deduplication_token"

// Client executes statements against the analytical store.
type Client interface {
	// Execute runs a statement. settings are attached per statement
	// (e.g., the deduplication token); a nil map attaches nothing.
	Execute(ctx context.Context, sql string, settings map[string]string) error

	// Select runs a query and scans the result rows into dest, which must be
	// a pointer to a slice of row structs.
	Select(ctx context.Context, dest interface{}, sql string) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
