package metadata

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

const moduleName = "metadata"

// LoadSchemaFile reads a schema metadata snapshot from a YAML file.
// An empty path yields an empty snapshot: planning then relies entirely on
// explicit/configured time columns, and every target uses the table strategy.
func LoadSchemaFile(path string) (*SchemaMetadata, error) {
	if path == "" {
		return &SchemaMetadata{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to read schema metadata file", err)
	}
	return ParseSchema(raw)
}

// ParseSchema parses a schema metadata snapshot from YAML bytes.
func ParseSchema(raw []byte) (*SchemaMetadata, error) {
	var schema SchemaMetadata
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to parse schema metadata", err)
	}
	return &schema, nil
}
