package plan

import (
	"fmt"
	"strings"
	"time"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
)

// chunkTimeLayout is the literal timestamp format ClickHouse accepts in
// toDateTime with an explicit timezone argument.
const chunkTimeLayout = "2006-01-02 15:04:05"

// QueryTemplate renders the per-chunk INSERT statement for one strategy.
// Templates hold already-parsed structural pieces rather than performing raw
// string surgery at execution time, so the rendering is testable independent
// of the store connection.
type QueryTemplate interface {
	// Render builds the INSERT statement replaying the given chunk.
	Render(chunk model.Chunk) string
	// Strategy returns the replay strategy this template implements.
	Strategy() model.Strategy
}

// NewTemplate constructs the template matching the plan's strategy.
func NewTemplate(p *model.BackfillPlan) QueryTemplate {
	if p.Strategy == model.StrategyMVReplay {
		return NewMVReplayTemplate(p.Target, p.TimeColumn, p.MVQuery)
	}
	return NewTableTemplate(p.Target, p.TimeColumn)
}

// TableTemplate replays a plain table by re-inserting the chunk's window from
// the target itself: an idempotent reprocessing of rows already present.
type TableTemplate struct {
	target     model.TargetDescriptor
	timeColumn string
}

// NewTableTemplate creates the template for the plain table strategy.
func NewTableTemplate(target model.TargetDescriptor, timeColumn string) *TableTemplate {
	return &TableTemplate{target: target, timeColumn: timeColumn}
}

// Strategy implements QueryTemplate.
func (t *TableTemplate) Strategy() model.Strategy {
	return model.StrategyTable
}

// Render implements QueryTemplate.
func (t *TableTemplate) Render(chunk model.Chunk) string {
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s WHERE %s",
		t.target, t.target, windowPredicate(t.timeColumn, chunk))
}

// MVReplayTemplate replays a materialized-view destination by re-running the
// view's stored SELECT restricted to the chunk's window.
//
// The window predicate is spliced into the view's own top-level WHERE rather
// than wrapping the SELECT in an outer CTE: the outer wrap changes how
// ClickHouse resolves nullability for array-typed aggregate results and can
// make an otherwise valid aggregation illegal. This in-place splice is a
// documented workaround for that inference quirk, not a general SQL-rewriting
// rule.
type MVReplayTemplate struct {
	target     model.TargetDescriptor
	timeColumn string
	// baseQuery is the view's SELECT with trailing semicolon and padding removed.
	baseQuery string
	// whereEnd is the rune offset at which the window predicate is spliced:
	// the end of the top-level WHERE clause, or the start of the first
	// top-level trailing clause (GROUP BY, HAVING, ORDER BY, LIMIT, SETTINGS).
	whereEnd int
	// hasWhere records whether the base query already carries a top-level WHERE.
	hasWhere bool
}

// NewMVReplayTemplate creates the template for the mv_replay strategy,
// pre-computing the splice point in the view query.
func NewMVReplayTemplate(target model.TargetDescriptor, timeColumn, viewQuery string) *MVReplayTemplate {
	base := strings.TrimRight(strings.TrimSpace(viewQuery), ";")
	base = strings.TrimRight(base, " \t\n")
	whereEnd, hasWhere := locateSplicePoint(base)

	return &MVReplayTemplate{
		target:     target,
		timeColumn: timeColumn,
		baseQuery:  base,
		whereEnd:   whereEnd,
		hasWhere:   hasWhere,
	}
}

// Strategy implements QueryTemplate.
func (t *MVReplayTemplate) Strategy() model.Strategy {
	return model.StrategyMVReplay
}

// Render implements QueryTemplate.
func (t *MVReplayTemplate) Render(chunk model.Chunk) string {
	predicate := windowPredicate(t.timeColumn, chunk)

	head := strings.TrimRight(t.baseQuery[:t.whereEnd], " \t\n")
	tail := t.baseQuery[t.whereEnd:]

	var spliced string
	if t.hasWhere {
		spliced = head + " AND (" + predicate + ")"
	} else {
		spliced = head + " WHERE " + predicate
	}
	if tail != "" {
		spliced += " " + strings.TrimLeft(tail, " \t\n")
	}

	return fmt.Sprintf("INSERT INTO %s %s", t.target, spliced)
}

// windowPredicate renders the half-open window filter for a chunk.
func windowPredicate(timeColumn string, chunk model.Chunk) string {
	return fmt.Sprintf("%s >= toDateTime('%s', 'UTC') AND %s < toDateTime('%s', 'UTC')",
		timeColumn, chunk.Start.UTC().Format(chunkTimeLayout),
		timeColumn, chunk.End.UTC().Format(chunkTimeLayout))
}

// trailingClauseKeywords are the top-level clauses that terminate a WHERE.
var trailingClauseKeywords = []string{"GROUP", "HAVING", "ORDER", "LIMIT", "SETTINGS", "FORMAT", "UNION"}

// locateSplicePoint finds where the window predicate must be inserted in the
// view query: at the end of the top-level WHERE clause when one exists, else
// before the first top-level trailing clause (or at the end of the query).
// Only depth-zero keywords count, so subquery WHEREs are never touched.
func locateSplicePoint(query string) (offset int, hasWhere bool) {
	whereIdx := indexTopLevelKeyword(query, 0, "WHERE")
	searchFrom := 0
	if whereIdx >= 0 {
		hasWhere = true
		searchFrom = whereIdx + len("WHERE")
	}

	end := len(query)
	for _, kw := range trailingClauseKeywords {
		if idx := indexTopLevelKeyword(query, searchFrom, kw); idx >= 0 && idx < end {
			end = idx
		}
	}
	return end, hasWhere
}

// indexTopLevelKeyword returns the byte offset of the first occurrence of the
// keyword at parenthesis depth zero outside string literals and quoted
// identifiers, matching whole words case-insensitively. Returns -1 when absent.
func indexTopLevelKeyword(query string, from int, keyword string) int {
	depth := 0
	inSingle := false
	inDouble := false
	inBacktick := false

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case inSingle:
			if c == '\\' {
				i++
			} else if c == '\'' {
				inSingle = false
			}
			continue
		case inDouble:
			if c == '"' {
				inDouble = false
			}
			continue
		case inBacktick:
			if c == '`' {
				inBacktick = false
			}
			continue
		}

		switch c {
		case '\'':
			inSingle = true
			continue
		case '"':
			inDouble = true
			continue
		case '`':
			inBacktick = true
			continue
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}

		if depth != 0 || i < from {
			continue
		}

		if i+len(keyword) <= len(query) && strings.EqualFold(query[i:i+len(keyword)], keyword) {
			beforeOK := i == 0 || isWordBoundary(query[i-1])
			afterOK := i+len(keyword) == len(query) || isWordBoundary(query[i+len(keyword)])
			if beforeOK && afterOK {
				return i
			}
		}
	}
	return -1
}

// isWordBoundary reports whether the byte cannot be part of a SQL identifier.
func isWordBoundary(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return false
	default:
		return true
	}
}

// FormatChunkTime exposes the literal timestamp format used in rendered
// statements, for callers that display chunk boundaries alongside SQL.
func FormatChunkTime(t time.Time) string {
	return t.UTC().Format(chunkTimeLayout)
}
