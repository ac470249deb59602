// Package policy enforces the preconditions evaluated before planning or
// running a backfill. Every check is individually toggle-able through
// configuration, and violations are reported as policy-kind errors, distinct
// from configuration errors, never silently downgraded.
package policy

import (
	"errors"
	"fmt"

	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
	logger "github.com/tigerroll/refill/pkg/backfill/support/util/logger"
)

const moduleName = "policy"

// ErrExplicitWindowRequired is returned when a backfill is requested without
// an explicit window while require_explicit_window is on.
var ErrExplicitWindowRequired = errors.New("explicit window required")

// ErrDryRunRequired is returned when run executes without a previously
// persisted plan while require_dry_run_before_run is on.
var ErrDryRunRequired = errors.New("dry-run (plan) required before run")

// ErrOverlappingRun is returned when a target already has a non-terminal run.
var ErrOverlappingRun = errors.New("overlapping run for target")

// Guard evaluates preconditions against the configured policy toggles.
// All checks are pure: callers gather the state the checks need.
//
// The overlap guarantee is advisory: it is enforced here, not by locking the
// checkpoint store, so a concurrent-process deployment needs an external
// mutual-exclusion mechanism on top of it.
type Guard struct {
	policies cfg.PolicyConfig
}

// NewGuard creates a Guard for the given policy configuration.
func NewGuard(policies cfg.PolicyConfig) *Guard {
	return &Guard{policies: policies}
}

// CheckExplicitWindow rejects implicit/auto windows when the policy is on.
func (g *Guard) CheckExplicitWindow(hasExplicitWindow bool) error {
	if !g.policies.RequireExplicitWindow {
		return nil
	}
	if !hasExplicitWindow {
		return exception.NewPolicyError(moduleName,
			"backfills must state their window explicitly (--from/--to)", ErrExplicitWindowRequired)
	}
	return nil
}

// CheckDryRun requires a persisted plan before run executes when the policy is on.
func (g *Guard) CheckDryRun(planExists bool) error {
	if !g.policies.RequireDryRunBeforeRun {
		return nil
	}
	if !planExists {
		return exception.NewPolicyError(moduleName,
			"no persisted plan for this id; run 'plan' first", ErrDryRunRequired)
	}
	return nil
}

// CheckOverlap rejects starting a run for a target that already has a
// non-terminal run for another plan, unless the per-invocation override is set.
//
// Parameters:
//
//	target: The destination table of the run being started.
//	conflicting: Non-terminal runs for the same target, excluding the current plan's own run.
//	forceOverlap: The per-invocation override.
func (g *Guard) CheckOverlap(target model.TargetDescriptor, conflicting []*model.BackfillRun, forceOverlap bool) error {
	if !g.policies.BlockOverlappingRuns || len(conflicting) == 0 {
		return nil
	}
	if forceOverlap {
		logger.Warnf("Overlap guard overridden for target %s: %d non-terminal run(s) exist.", target, len(conflicting))
		return nil
	}
	return exception.NewPolicyError(moduleName,
		fmt.Sprintf("target %s already has %d non-terminal run(s) (plan %s); finish or cancel them, or override explicitly",
			target, len(conflicting), conflicting[0].PlanID),
		ErrOverlappingRun)
}

// FailOnPending reports whether the CI check treats pending work as a failure.
func (g *Guard) FailOnPending() bool {
	return g.policies.FailOnPending
}
