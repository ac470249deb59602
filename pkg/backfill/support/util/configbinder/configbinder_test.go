package configbinder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/refill/pkg/backfill/support/util/configbinder"
)

type connOptions struct {
	Addr        string `yaml:"addr"`
	Database    string `yaml:"database"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
	Debug       bool   `yaml:"debug"`
}

func TestBind(t *testing.T) {
	props := map[string]interface{}{
		"addr":            "localhost:9000",
		"database":        "analytics",
		"timeout_seconds": 15,
		"debug":           true,
	}

	var opts connOptions
	require.NoError(t, configbinder.Bind(props, &opts))
	assert.Equal(t, "localhost:9000", opts.Addr)
	assert.Equal(t, "analytics", opts.Database)
	assert.Equal(t, 15, opts.TimeoutSecs)
	assert.True(t, opts.Debug)
}

func TestBindWeakTyping(t *testing.T) {
	props := map[string]interface{}{
		"timeout_seconds": "30",
		"debug":           "true",
	}

	var opts connOptions
	require.NoError(t, configbinder.Bind(props, &opts))
	assert.Equal(t, 30, opts.TimeoutSecs)
	assert.True(t, opts.Debug)
}

func TestBindRejectsUnknownKeys(t *testing.T) {
	props := map[string]interface{}{
		"addr":     "localhost:9000",
		"databse":  "analytics",
		"timeouts": 10,
	}

	var opts connOptions
	err := configbinder.Bind(props, &opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration keys")
	assert.Contains(t, err.Error(), "databse")
}

func TestBindPartialMap(t *testing.T) {
	var opts connOptions
	require.NoError(t, configbinder.Bind(map[string]interface{}{"addr": "ch:9000"}, &opts))
	assert.Equal(t, "ch:9000", opts.Addr)
	assert.Empty(t, opts.Database, "unstated fields keep their zero values")
}
