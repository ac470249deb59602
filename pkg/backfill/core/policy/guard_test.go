// Package policy_test provides unit tests for the precondition guard.
package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	cfg "github.com/tigerroll/refill/pkg/backfill/core/config"
	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	"github.com/tigerroll/refill/pkg/backfill/core/policy"
	"github.com/tigerroll/refill/pkg/backfill/support/util/exception"
)

func strictPolicies() cfg.PolicyConfig {
	return cfg.PolicyConfig{
		RequireExplicitWindow:  true,
		RequireDryRunBeforeRun: true,
		BlockOverlappingRuns:   true,
		FailOnPending:          true,
	}
}

func TestCheckExplicitWindow(t *testing.T) {
	guard := policy.NewGuard(strictPolicies())

	assert.NoError(t, guard.CheckExplicitWindow(true))

	err := guard.CheckExplicitWindow(false)
	assert.ErrorIs(t, err, policy.ErrExplicitWindowRequired)
	assert.Equal(t, exception.KindPolicy, exception.KindOf(err), "policy violations must not look like configuration errors")

	relaxed := policy.NewGuard(cfg.PolicyConfig{RequireExplicitWindow: false})
	assert.NoError(t, relaxed.CheckExplicitWindow(false))
}

func TestCheckDryRun(t *testing.T) {
	guard := policy.NewGuard(strictPolicies())

	assert.NoError(t, guard.CheckDryRun(true))
	assert.ErrorIs(t, guard.CheckDryRun(false), policy.ErrDryRunRequired)

	relaxed := policy.NewGuard(cfg.PolicyConfig{RequireDryRunBeforeRun: false})
	assert.NoError(t, relaxed.CheckDryRun(false))
}

func TestCheckOverlap(t *testing.T) {
	guard := policy.NewGuard(strictPolicies())
	target := model.TargetDescriptor{Database: "analytics", Table: "events"}
	conflicting := []*model.BackfillRun{{PlanID: "aaaa111122223333", Status: model.RunStatusRunning}}

	assert.NoError(t, guard.CheckOverlap(target, nil, false), "no conflicts, no violation")

	err := guard.CheckOverlap(target, conflicting, false)
	assert.ErrorIs(t, err, policy.ErrOverlappingRun)
	assert.Equal(t, exception.KindPolicy, exception.KindOf(err))

	assert.NoError(t, guard.CheckOverlap(target, conflicting, true), "per-invocation override wins")

	relaxed := policy.NewGuard(cfg.PolicyConfig{BlockOverlappingRuns: false})
	assert.NoError(t, relaxed.CheckOverlap(target, conflicting, false))
}

func TestFailOnPending(t *testing.T) {
	assert.True(t, policy.NewGuard(strictPolicies()).FailOnPending())
	assert.False(t, policy.NewGuard(cfg.PolicyConfig{}).FailOnPending())
}
