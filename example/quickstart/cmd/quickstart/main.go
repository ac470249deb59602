// Command quickstart demonstrates the full plan/run/status cycle against the
// in-memory dummy store. It needs no running ClickHouse: statements are
// recorded instead of executed, but planning, chunking, checkpointing and the
// event log behave exactly as they do in production.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "embed"

	app "github.com/tigerroll/refill/internal/app"
	usecase "github.com/tigerroll/refill/pkg/backfill/core/application/usecase"
	"github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	if err := run(); err != nil {
		logger.Errorf("quickstart failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runtime := app.New("", embeddedConfig, app.Options{WithoutStore: true})
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	defer runtime.Stop(context.Background())

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := runtime.Operator.Plan(ctx, usecase.PlanRequest{
		Target:     "analytics.events",
		From:       from,
		To:         from.Add(48 * time.Hour),
		ChunkHours: 12,
		TimeColumn: "event_time",
		Force:      true,
	})
	if err != nil {
		return err
	}
	fmt.Printf("plan %s: %d chunk(s) over %s\n", p.PlanID, len(p.Chunks), p.Window)

	result, err := runtime.Operator.Run(ctx, usecase.RunRequest{PlanID: p.PlanID})
	if err != nil {
		return err
	}
	fmt.Printf("run %s finished: %s\n", result.ID, result.Status)

	report, err := runtime.Operator.Status(ctx, p.PlanID)
	if err != nil {
		return err
	}
	for i, cs := range report.Run.ChunkStates {
		fmt.Printf("  chunk %-2d %-10s attempts=%d\n", i, cs.Status, cs.Attempts)
	}
	fmt.Printf("%d event(s) in the audit trail\n", len(report.Events))
	return nil
}
