// Package metadata holds the already-loaded schema metadata the plan builder
// consumes: per-table column types and ordering keys for time-column detection,
// and materialized-view definitions for strategy selection. How this metadata
// is obtained (schema files, system tables) is outside the planning core.
package metadata

import (
	"strings"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// ColumnMetadata describes a single column of a target table.
type ColumnMetadata struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TableMetadata describes one table: its columns and its ordering key, in
// declaration order.
type TableMetadata struct {
	Target      model.TargetDescriptor `json:"target" yaml:"target"`
	Columns     []ColumnMetadata       `json:"columns" yaml:"columns"`
	OrderingKey []string               `json:"ordering_key" yaml:"ordering_key"`
}

// ColumnType returns the declared type of the named column.
func (t *TableMetadata) ColumnType(name string) (string, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// MaterializedView describes one materialized view: the table its results land
// in and the stored SELECT text that produces them.
type MaterializedView struct {
	Name        string                 `json:"name" yaml:"name"`
	Destination model.TargetDescriptor `json:"destination" yaml:"destination"`
	Query       string                 `json:"query" yaml:"query"`
}

// SchemaMetadata is the full metadata snapshot the plan builder reads.
type SchemaMetadata struct {
	Tables []TableMetadata    `json:"tables" yaml:"tables"`
	Views  []MaterializedView `json:"views" yaml:"views"`
}

// TableFor looks up the metadata for a target table.
func (s *SchemaMetadata) TableFor(target model.TargetDescriptor) (*TableMetadata, bool) {
	for i := range s.Tables {
		if s.Tables[i].Target == target {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// MaterializedViewFor returns the materialized view whose destination is the
// given target, if any. A hit means the target must be backfilled with the
// mv_replay strategy.
func (s *SchemaMetadata) MaterializedViewFor(target model.TargetDescriptor) (*MaterializedView, bool) {
	for i := range s.Views {
		if s.Views[i].Destination == target {
			return &s.Views[i], true
		}
	}
	return nil, false
}

// dateTimePrefixes are the column type kinds accepted as time columns.
// Nullable and LowCardinality wrappers are unwrapped before matching.
var dateTimePrefixes = []string{
	"DateTime64",
	"DateTime",
	"Date32",
	"Date",
	"Timestamp",
}

// IsDateTimeType reports whether a declared column type is a date/time kind.
func IsDateTimeType(columnType string) bool {
	t := columnType
	for {
		switch {
		case strings.HasPrefix(t, "Nullable(") && strings.HasSuffix(t, ")"):
			t = strings.TrimSuffix(strings.TrimPrefix(t, "Nullable("), ")")
		case strings.HasPrefix(t, "LowCardinality(") && strings.HasSuffix(t, ")"):
			t = strings.TrimSuffix(strings.TrimPrefix(t, "LowCardinality("), ")")
		default:
			for _, prefix := range dateTimePrefixes {
				if strings.HasPrefix(t, prefix) {
					return true
				}
			}
			return false
		}
	}
}
