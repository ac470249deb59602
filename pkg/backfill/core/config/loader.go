package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/refill/pkg/backfill/support/util/configbinder"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	"github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// Package config layers configuration from three sources, lowest priority
// first: compiled-in defaults, the YAML file, and environment variables.
// Each layer has its own merge function and the result is validated once.

const moduleName = "config"

// LoadConfig loads configuration from the given YAML bytes and the environment.
// It is expected to be called once during startup.
//
// Parameters:
//
//	envFilePath: The path to the .env file, may be empty.
//	raw: The raw YAML configuration bytes, may be empty.
//
// Returns:
//
//	A pointer to the loaded Config and an error if loading or validation fails.
func LoadConfig(envFilePath string, raw EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	}

	// 1. Defaults.
	cfg := NewConfig()

	// 2. YAML layer.
	if err := mergeYAML(cfg, raw); err != nil {
		return nil, err
	}

	// 3. Environment layer.
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeYAML overlays the YAML layer onto cfg. Unmarshalling happens in place,
// so keys absent from the file keep their defaults while keys stated
// explicitly (including explicit false for the policy toggles) win.
func mergeYAML(cfg *Config, raw EmbeddedConfig) error {
	if len(raw) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return exception.NewConfigurationError(moduleName, "failed to unmarshal configuration file", err)
	}
	return nil
}

// mergeEnv overlays environment variables onto cfg, using the "yaml" tags to
// build the variable names (e.g., REFILL_BACKFILL_CHUNK_HOURS).
func mergeEnv(cfg *Config) error {
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}
	return nil
}

// Store binds the loosely-typed store map onto a typed StoreConfig,
// rejecting unknown keys at the boundary.
func (c *Config) Store() (StoreConfig, error) {
	var sc StoreConfig
	if len(c.Refill.StoreRaw) == 0 {
		return sc, nil
	}
	if err := configbinder.Bind(c.Refill.StoreRaw, &sc); err != nil {
		return sc, exception.NewConfigurationError(moduleName, "invalid store configuration", err)
	}
	return sc, nil
}

// validate checks cross-field consistency of the merged result.
func validate(cfg *Config) error {
	b := cfg.Refill.Backfill
	if b.ChunkHours < 1 {
		return exception.NewConfigurationError(moduleName,
			fmt.Sprintf("backfill.chunk_hours must be positive, got %d", b.ChunkHours), nil)
	}
	if b.MaxRetriesPerChunk < 1 {
		return exception.NewConfigurationError(moduleName,
			fmt.Sprintf("backfill.max_retries_per_chunk must be positive, got %d", b.MaxRetriesPerChunk), nil)
	}
	if b.MaxParallelChunks < 1 {
		return exception.NewConfigurationError(moduleName,
			fmt.Sprintf("backfill.max_parallel_chunks must be positive, got %d", b.MaxParallelChunks), nil)
	}
	if _, err := cfg.Store(); err != nil {
		return err
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from
// environment variables.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}

		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
