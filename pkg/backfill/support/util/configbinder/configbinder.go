// Package configbinder binds loosely-typed option maps onto typed structs.
// Unknown keys are rejected at the boundary instead of being passed through
// untyped, so a misspelled option fails loading rather than being ignored.
package configbinder

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Bind binds a map of properties to a target struct using mapstructure.
// It uses the "yaml" tag for binding and allows weakly typed input
// (e.g., string to int conversion). Keys with no matching struct field
// produce an error.
//
// Parameters:
//
//	properties: The map of properties to bind.
//	target: The target struct to bind the properties to.
//
// Returns:
//
//	An error if binding fails or unknown keys are present.
func Bind(properties map[string]interface{}, target interface{}) error {
	var metadata mapstructure.Metadata

	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         &metadata,
		Result:           target,
		TagName:          "yaml", // Use "yaml" tag for binding.
		WeaklyTypedInput: true,   // Allow converting strings to numeric types.
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		return fmt.Errorf("failed to decode properties: %w", err)
	}

	if len(metadata.Unused) > 0 {
		return fmt.Errorf("unknown configuration keys: %s", strings.Join(metadata.Unused, ", "))
	}

	return nil
}
