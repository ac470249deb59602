package plan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	plan "github.com/tigerroll/refill/pkg/backfill/core/plan"
)

var testChunk = model.Chunk{
	Index: 0,
	Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC),
}

const testPredicate = "event_time >= toDateTime('2025-01-01 00:00:00', 'UTC') AND event_time < toDateTime('2025-01-01 06:00:00', 'UTC')"

func TestTableTemplateRender(t *testing.T) {
	tmpl := plan.NewTableTemplate(model.TargetDescriptor{Database: "analytics", Table: "events"}, "event_time")
	assert.Equal(t, model.StrategyTable, tmpl.Strategy())

	got := tmpl.Render(testChunk)
	assert.Equal(t,
		"INSERT INTO analytics.events SELECT * FROM analytics.events WHERE "+testPredicate,
		got)
}

func TestMVReplayTemplateSplicesIntoExistingWhere(t *testing.T) {
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "events_daily"},
		"event_time",
		"SELECT user_id, count() AS cnt FROM analytics.raw WHERE user_id > 0 GROUP BY user_id",
	)
	assert.Equal(t, model.StrategyMVReplay, tmpl.Strategy())

	got := tmpl.Render(testChunk)
	assert.Equal(t,
		"INSERT INTO analytics.events_daily SELECT user_id, count() AS cnt FROM analytics.raw"+
			" WHERE user_id > 0 AND ("+testPredicate+") GROUP BY user_id",
		got)
}

func TestMVReplayTemplateInsertsWhereBeforeTrailingClause(t *testing.T) {
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "events_daily"},
		"event_time",
		"SELECT user_id, count() AS cnt FROM analytics.raw GROUP BY user_id",
	)

	got := tmpl.Render(testChunk)
	assert.Equal(t,
		"INSERT INTO analytics.events_daily SELECT user_id, count() AS cnt FROM analytics.raw"+
			" WHERE "+testPredicate+" GROUP BY user_id",
		got)
}

func TestMVReplayTemplateAppendsWhereWithoutTrailingClause(t *testing.T) {
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "copies"},
		"ts",
		"SELECT * FROM analytics.raw;",
	)

	got := tmpl.Render(testChunk)
	assert.Contains(t, got, "SELECT * FROM analytics.raw WHERE ts >= toDateTime(")
	assert.NotContains(t, got, ";", "trailing semicolon must be stripped")
}

func TestMVReplayTemplateIgnoresSubqueryWhere(t *testing.T) {
	// The WHERE lives inside a subquery; the splice must add a new top-level
	// WHERE instead of touching the nested one.
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "events_daily"},
		"event_time",
		"SELECT user_id, cnt FROM (SELECT user_id, count() AS cnt FROM analytics.raw WHERE user_id > 0 GROUP BY user_id)",
	)

	got := tmpl.Render(testChunk)
	assert.Equal(t,
		"INSERT INTO analytics.events_daily SELECT user_id, cnt FROM"+
			" (SELECT user_id, count() AS cnt FROM analytics.raw WHERE user_id > 0 GROUP BY user_id)"+
			" WHERE "+testPredicate,
		got)
}

func TestMVReplayTemplateIgnoresKeywordsInLiterals(t *testing.T) {
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "tagged"},
		"ts",
		"SELECT * FROM analytics.raw WHERE tag != 'where group by limit'",
	)

	got := tmpl.Render(testChunk)
	assert.Equal(t,
		"INSERT INTO analytics.tagged SELECT * FROM analytics.raw WHERE tag != 'where group by limit'"+
			" AND (ts >= toDateTime('2025-01-01 00:00:00', 'UTC') AND ts < toDateTime('2025-01-01 06:00:00', 'UTC'))",
		got)
}

func TestMVReplayTemplateLowercaseKeywords(t *testing.T) {
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "events_daily"},
		"event_time",
		"select user_id, count() as cnt from analytics.raw where user_id > 0 group by user_id order by user_id limit 10",
	)

	got := tmpl.Render(testChunk)
	assert.Contains(t, got, "where user_id > 0 AND ("+testPredicate+") group by user_id")
}

func TestMVReplayTemplateNeverWrapsInOuterSelect(t *testing.T) {
	// Wrapping the view query in an outer SELECT changes ClickHouse's
	// nullability inference for array aggregates; the splice must stay in-place.
	tmpl := plan.NewMVReplayTemplate(
		model.TargetDescriptor{Database: "analytics", Table: "events_daily"},
		"event_time",
		"SELECT user_id, groupArray(payload) AS payloads FROM analytics.raw GROUP BY user_id",
	)

	got := tmpl.Render(testChunk)
	assert.NotContains(t, got, "SELECT * FROM (SELECT")
	assert.Contains(t, got, "FROM analytics.raw WHERE "+testPredicate+" GROUP BY user_id")
}

func TestNewTemplateSelectsStrategy(t *testing.T) {
	tablePlan := &model.BackfillPlan{
		Target:     model.TargetDescriptor{Database: "analytics", Table: "events"},
		TimeColumn: "event_time",
		Strategy:   model.StrategyTable,
	}
	assert.Equal(t, model.StrategyTable, plan.NewTemplate(tablePlan).Strategy())

	mvPlan := &model.BackfillPlan{
		Target:     tablePlan.Target,
		TimeColumn: "event_time",
		Strategy:   model.StrategyMVReplay,
		MVQuery:    "SELECT * FROM analytics.raw",
	}
	assert.Equal(t, model.StrategyMVReplay, plan.NewTemplate(mvPlan).Strategy())
}

func TestRenderedStatementsAreDeterministic(t *testing.T) {
	tmpl := plan.NewTableTemplate(model.TargetDescriptor{Database: "db", Table: "t"}, "ts")
	require.Equal(t, tmpl.Render(testChunk), tmpl.Render(testChunk))
}

func TestFormatChunkTime(t *testing.T) {
	ts := time.Date(2025, 6, 15, 9, 30, 0, 0, time.FixedZone("JST", 9*3600))
	assert.Equal(t, "2025-06-15 00:30:00", plan.FormatChunkTime(ts), "rendered literals are always UTC")
}
