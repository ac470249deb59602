package plan

import (
	"errors"
	"fmt"

	metadata "github.com/tigerroll/refill/pkg/backfill/core/domain/metadata"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// ErrNoTimeColumnFound is returned when no resolution source yields a usable
// time column for the target table.
var ErrNoTimeColumnFound = errors.New("no time column found")

// ErrAmbiguousTimeColumn is returned when auto-detection finds more than one
// undifferentiated date/time column and no configuration breaks the tie.
var ErrAmbiguousTimeColumn = errors.New("ambiguous time column")

// commonTimeColumns is the fixed list of column names auto-detection scans
// after the ordering key. Order matters: the first hit wins, which keeps
// resolution deterministic across invocations.
var commonTimeColumns = []string{
	"timestamp",
	"event_time",
	"event_date",
	"created_at",
	"inserted_at",
	"ts",
	"time",
	"datetime",
	"date",
}

// ResolveTimeColumn picks the timestamp column used for window filtering.
//
// Priority, first match wins:
//  1. explicit per-invocation override
//  2. per-table schema-level configuration
//  3. global configured default
//  4. auto-detection over the table metadata
//
// An explicit or per-table value naming a column that does not exist, or is
// not a date/time kind, is an error rather than a fall-through: silently
// ignoring it would mask a typo. The global default falls through instead,
// since a fleet-wide default cannot be expected to apply to every table.
//
// Pure function, no side effects.
func ResolveTimeColumn(explicit, tableConfig, globalDefault string, table *metadata.TableMetadata) (string, error) {
	const moduleName = "plan.timecolumn"

	if explicit != "" {
		if err := checkTimeColumn(explicit, table); err != nil {
			return "", exception.NewConfigurationError(moduleName,
				fmt.Sprintf("explicit time column %q is not usable", explicit), err)
		}
		return explicit, nil
	}

	if tableConfig != "" {
		if err := checkTimeColumn(tableConfig, table); err != nil {
			return "", exception.NewConfigurationError(moduleName,
				fmt.Sprintf("configured time column %q is not usable for table %s", tableConfig, table.Target), err)
		}
		return tableConfig, nil
	}

	if globalDefault != "" {
		if err := checkTimeColumn(globalDefault, table); err == nil {
			return globalDefault, nil
		}
		logger.Debugf("Global default time column %q does not apply to table %s. Falling back to auto-detection.", globalDefault, table.Target)
	}

	column, err := autoDetectTimeColumn(table)
	if err != nil {
		return "", exception.NewConfigurationError(moduleName, "failed to auto-detect time column", err)
	}
	return column, nil
}

// checkTimeColumn validates that the named column exists on the table and has
// a date/time type. A nil table means no metadata is available for the target;
// configured columns are then accepted unverified.
func checkTimeColumn(name string, table *metadata.TableMetadata) error {
	if table == nil {
		return nil
	}
	columnType, ok := table.ColumnType(name)
	if !ok {
		return fmt.Errorf("column %q does not exist on table %s", name, table.Target)
	}
	if !metadata.IsDateTimeType(columnType) {
		return fmt.Errorf("column %q has non-temporal type %q", name, columnType)
	}
	return nil
}

// autoDetectTimeColumn scans the ordering key first, then the fixed list of
// common timestamp names, accepting only columns typed as a date/time kind.
// As a last resort a single remaining date/time column is accepted; more than
// one is ambiguous.
func autoDetectTimeColumn(table *metadata.TableMetadata) (string, error) {
	if table == nil {
		return "", ErrNoTimeColumnFound
	}
	for _, name := range table.OrderingKey {
		if columnType, ok := table.ColumnType(name); ok && metadata.IsDateTimeType(columnType) {
			return name, nil
		}
	}

	for _, name := range commonTimeColumns {
		if columnType, ok := table.ColumnType(name); ok && metadata.IsDateTimeType(columnType) {
			return name, nil
		}
	}

	var candidates []string
	for _, c := range table.Columns {
		if metadata.IsDateTimeType(c.Type) {
			candidates = append(candidates, c.Name)
		}
	}
	switch len(candidates) {
	case 0:
		return "", ErrNoTimeColumnFound
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w: candidates %v", ErrAmbiguousTimeColumn, candidates)
	}
}
