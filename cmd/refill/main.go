// Command refill plans and executes resumable, chunked backfills against a
// columnar analytical store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "embed"

	"github.com/spf13/cobra"

	"github.com/tigerroll/refill/internal/app"
	usecase "github.com/tigerroll/refill/pkg/backfill/core/application/usecase"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	"github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
// This file is used to load configuration at application startup.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// timestampLayouts are the accepted --from/--to formats.
var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Errorf("%s", exception.ExtractErrorMessage(err))
		return exitCodeFor(err)
	}
	return exitOK
}

// exitCodeFor maps the error taxonomy onto process exit codes: malformed
// input and policy violations exit 2, everything else exits 1.
func exitCodeFor(err error) int {
	switch exception.KindOf(err) {
	case exception.KindConfiguration, exception.KindPolicy:
		return exitConfig
	default:
		return exitRuntime
	}
}

func newRootCmd() *cobra.Command {
	var envFilePath string

	root := &cobra.Command{
		Use:           "refill",
		Short:         "Resumable, checkpointed backfills for columnar analytical stores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFilePath, "env-file", ".env", "path to the .env file with configuration overrides")

	root.AddCommand(
		newPlanCmd(&envFilePath),
		newRunCmd(&envFilePath),
		newResumeCmd(&envFilePath),
		newStatusCmd(&envFilePath),
		newCancelCmd(&envFilePath),
		newDoctorCmd(&envFilePath),
		newCheckCmd(&envFilePath),
	)
	return root
}

// withRuntime starts the assembled application around fn and stops it after.
func withRuntime(ctx context.Context, envFilePath string, opts app.Options, fn func(ctx context.Context, rt *app.Runtime) error) error {
	rt := app.New(envFilePath, embeddedConfig, opts)
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rt.Stop(stopCtx)
	}()
	return fn(ctx, rt)
}

func parseTimestamp(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, exception.NewConfigurationError("cli",
		fmt.Sprintf("--%s: cannot parse %q; use RFC3339 (2025-01-01T00:00:00Z) or a date (2025-01-01)", flag, value), nil)
}

func newPlanCmd(envFilePath *string) *cobra.Command {
	var (
		target           string
		from             string
		to               string
		chunkHours       int
		timeColumn       string
		forceLargeWindow bool
		force            bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build and persist a chunked backfill plan (dry-run; touches no store data)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromTs, err := parseTimestamp("from", from)
			if err != nil {
				return err
			}
			toTs, err := parseTimestamp("to", to)
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), *envFilePath, app.Options{WithoutStore: true}, func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Operator.Plan(ctx, usecase.PlanRequest{
					Target:           target,
					From:             fromTs,
					To:               toTs,
					ChunkHours:       chunkHours,
					TimeColumn:       timeColumn,
					Force:            force,
					AllowLargeWindow: forceLargeWindow,
				})
				if err != nil {
					return err
				}
				renderPlan(p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "destination table as database.table (required)")
	cmd.Flags().StringVar(&from, "from", "", "window start, inclusive")
	cmd.Flags().StringVar(&to, "to", "", "window end, exclusive")
	cmd.Flags().IntVar(&chunkHours, "chunk-hours", 0, "chunk duration in hours (defaults to configuration)")
	cmd.Flags().StringVar(&timeColumn, "time-column", "", "window-filter column (defaults to configured/auto-detected)")
	cmd.Flags().BoolVar(&forceLargeWindow, "force-large-window", false, "override the window size limit")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate an existing plan under the same id")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newRunCmd(envFilePath *string) *cobra.Command {
	var (
		planID             string
		replayDone         bool
		replayFailed       bool
		forceOverlap       bool
		forceCompatibility bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a persisted plan chunk by chunk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), *envFilePath, app.Options{}, func(ctx context.Context, rt *app.Runtime) error {
				run, err := rt.Operator.Run(ctx, usecase.RunRequest{
					PlanID:             planID,
					ReplayDone:         replayDone,
					ReplayFailed:       replayFailed,
					ForceOverlap:       forceOverlap,
					ForceCompatibility: forceCompatibility,
				})
				if err != nil {
					return err
				}
				return reportRunOutcome(run)
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan identifier (required)")
	cmd.Flags().BoolVar(&replayDone, "replay-done", false, "re-execute chunks already marked succeeded")
	cmd.Flags().BoolVar(&replayFailed, "replay-failed", false, "re-execute permanently failed chunks")
	cmd.Flags().BoolVar(&forceOverlap, "force-overlap", false, "override the overlapping-run guard")
	cmd.Flags().BoolVar(&forceCompatibility, "force-compatibility", false, "discard an incompatible run checkpoint and start over")
	_ = cmd.MarkFlagRequired("plan-id")
	return cmd
}

func newResumeCmd(envFilePath *string) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted or partially failed run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), *envFilePath, app.Options{}, func(ctx context.Context, rt *app.Runtime) error {
				run, err := rt.Operator.Resume(ctx, planID)
				if err != nil {
					return err
				}
				return reportRunOutcome(run)
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan identifier (required)")
	_ = cmd.MarkFlagRequired("plan-id")
	return cmd
}

func newStatusCmd(envFilePath *string) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Render a plan's run and chunk states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), *envFilePath, app.Options{WithoutStore: true}, func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Operator.Status(ctx, planID)
				if err != nil {
					return err
				}
				renderStatus(report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan identifier (required)")
	_ = cmd.MarkFlagRequired("plan-id")
	return cmd
}

func newCancelCmd(envFilePath *string) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Request cancellation of a running backfill at the next chunk boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), *envFilePath, app.Options{WithoutStore: true}, func(ctx context.Context, rt *app.Runtime) error {
				run, err := rt.Operator.Cancel(ctx, planID)
				if err != nil {
					return err
				}
				fmt.Printf("Run %s marked cancelled; takes effect at the next chunk boundary.\n", run.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan identifier (required)")
	_ = cmd.MarkFlagRequired("plan-id")
	return cmd
}

func newDoctorCmd(envFilePath *string) *cobra.Command {
	var planID string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify the environment and suggest remediation for a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), *envFilePath, app.Options{}, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Operator.Doctor(ctx); err != nil {
					return err
				}
				fmt.Println("Environment: OK")

				if planID == "" {
					return nil
				}
				advice, err := rt.Operator.Advise(ctx, planID)
				if err != nil {
					return err
				}
				for _, line := range advice {
					fmt.Printf("  - %s\n", line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "derive remediation for this plan")
	return cmd
}

func newCheckCmd(envFilePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "CI hook: fail when any known backfill is pending or permanently failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), *envFilePath, app.Options{WithoutStore: true}, func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Checker.Check(ctx)
				if err != nil {
					return err
				}
				for _, f := range report.Findings {
					if f.PlanID != "" {
						fmt.Printf("%s: plan %s: %s\n", f.Kind, f.PlanID, f.Detail)
					} else {
						fmt.Printf("%s: %s\n", f.Kind, f.Detail)
					}
				}
				if report.HasBlockingFindings() {
					return errors.New("backfill check failed")
				}
				fmt.Println("All backfills complete.")
				return nil
			})
		},
	}
	return cmd
}

func renderPlan(p *model.BackfillPlan) {
	fmt.Printf("Plan %s\n", p.PlanID)
	fmt.Printf("  Target:      %s\n", p.Target)
	fmt.Printf("  Window:      %s\n", p.Window)
	fmt.Printf("  Strategy:    %s\n", p.Strategy)
	fmt.Printf("  Time column: %s\n", p.TimeColumn)
	fmt.Printf("  Chunks:      %d x %dh\n", len(p.Chunks), p.ChunkHours)
	for _, c := range p.Chunks {
		fmt.Printf("    [%d] %s\n", c.Index, c.Window())
	}
}

func renderStatus(report *usecase.StatusReport) {
	renderPlan(report.Plan)

	if report.Run == nil {
		fmt.Println("  Run:         none (not started)")
		return
	}

	run := report.Run
	fmt.Printf("  Run:         %s\n", run.ID)
	fmt.Printf("  Status:      %s\n", run.Status)
	fmt.Printf("  Started:     %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Printf("  Updated:     %s\n", run.UpdatedAt.Format(time.RFC3339))
	for i, cs := range run.ChunkStates {
		line := fmt.Sprintf("    chunk %-3d %-16s attempts=%d", i, cs.Status, cs.Attempts)
		if cs.LastError != "" {
			line += " lastError=" + cs.LastError
		}
		fmt.Println(line)
	}
	if len(report.Events) > 0 {
		fmt.Printf("  Events:      %d recorded, last at %s\n",
			len(report.Events), report.Events[len(report.Events)-1].Timestamp.Format(time.RFC3339))
	}
}

// reportRunOutcome renders the final run state. Partial failure is reported as
// success-with-warnings so partial progress is never masked as a crash; only a
// cancelled run exits non-zero.
func reportRunOutcome(run *model.BackfillRun) error {
	succeeded := run.CountByStatus(model.ChunkStatusSucceeded)
	total := len(run.ChunkStates)

	switch run.Status {
	case model.RunStatusCompleted:
		fmt.Printf("Run %s completed: %d/%d chunk(s) succeeded.\n", run.ID, succeeded, total)
		return nil
	case model.RunStatusCompletedWithFailures:
		exhausted := run.CountByStatus(model.ChunkStatusFailedExhausted)
		logger.Warnf("Run %s completed with failures: %d/%d succeeded, %d permanently failed. Inspect with 'status', retry with 'resume'.",
			run.ID, succeeded, total, exhausted)
		return nil
	case model.RunStatusCancelled:
		return exception.NewExecutionError("cli",
			fmt.Sprintf("run %s was cancelled after %d/%d chunk(s)", run.ID, succeeded, total), nil, false)
	default:
		return exception.NewExecutionError("cli",
			fmt.Sprintf("run %s stopped in state %s", run.ID, run.Status), nil, false)
	}
}
