// Package check implements the CI hook: it inspects every persisted plan and
// run and reports findings for pending or permanently failed backfill work.
package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	model "github.com/tigerroll/refill/pkg/backfill/core/domain/model"
	repo "github.com/tigerroll/refill/pkg/backfill/core/domain/repository"
	"github.com/tigerroll/refill/pkg/backfill/core/policy"
)

// FindingKind classifies a check finding.
type FindingKind string

const (
	// FindingRequiredPending flags a plan with no run or a run that has not
	// reached completed.
	FindingRequiredPending FindingKind = "required_pending"
	// FindingChunkFailedRetryExhausted flags a run with a permanently failed chunk.
	FindingChunkFailedRetryExhausted FindingKind = "chunk_failed_retry_exhausted"
	// FindingPolicyRelaxed flags that the fail-on-pending policy is disabled.
	// Informational only; it never fails the check.
	FindingPolicyRelaxed FindingKind = "policy_relaxed"
)

// Finding is one observation about a plan's backfill state.
type Finding struct {
	Kind   FindingKind `json:"kind"`
	PlanID string      `json:"plan_id,omitempty"`
	Detail string      `json:"detail"`
}

// Blocking reports whether the finding should fail the check.
func (f Finding) Blocking() bool {
	return f.Kind != FindingPolicyRelaxed
}

// Report is the outcome of one check pass.
type Report struct {
	Findings []Finding
}

// HasBlockingFindings reports whether any finding fails the check.
func (r *Report) HasBlockingFindings() bool {
	for _, f := range r.Findings {
		if f.Blocking() {
			return true
		}
	}
	return false
}

// Checker scans all known plans and runs.
type Checker struct {
	checkpoints repo.CheckpointRepository
	guard       *policy.Guard
}

// NewChecker creates a Checker.
func NewChecker(checkpoints repo.CheckpointRepository, guard *policy.Guard) *Checker {
	return &Checker{checkpoints: checkpoints, guard: guard}
}

// Check inspects every persisted plan. Read failures on individual plans are
// aggregated so one unreadable checkpoint does not hide the rest of the scan.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	report := &Report{}

	if !c.guard.FailOnPending() {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingPolicyRelaxed,
			Detail: "fail_on_pending is disabled; pending backfills will not fail this check",
		})
	}

	ids, err := c.checkpoints.ListPlanIDs(ctx)
	if err != nil {
		return nil, err
	}

	var scanErrs *multierror.Error
	for _, id := range ids {
		findings, err := c.checkPlan(ctx, id)
		if err != nil {
			scanErrs = multierror.Append(scanErrs, fmt.Errorf("plan %s: %w", id, err))
			continue
		}
		report.Findings = append(report.Findings, findings...)
	}

	if !c.guard.FailOnPending() {
		// Pending findings stay visible but demoted to informational.
		for i, f := range report.Findings {
			if f.Kind == FindingRequiredPending {
				report.Findings[i].Kind = FindingPolicyRelaxed
				report.Findings[i].Detail = f.Detail + " (not failing: fail_on_pending disabled)"
			}
		}
	}

	return report, scanErrs.ErrorOrNil()
}

func (c *Checker) checkPlan(ctx context.Context, planID string) ([]Finding, error) {
	var findings []Finding

	run, err := c.checkpoints.FindRun(ctx, planID)
	if errors.Is(err, repo.ErrRunNotFound) {
		return []Finding{{
			Kind:   FindingRequiredPending,
			PlanID: planID,
			Detail: "plan has no run",
		}}, nil
	}
	if err != nil {
		return nil, err
	}

	if run.Status != model.RunStatusCompleted {
		findings = append(findings, Finding{
			Kind:   FindingRequiredPending,
			PlanID: planID,
			Detail: fmt.Sprintf("run status is %s, not completed", run.Status),
		})
	}
	if run.HasExhaustedChunks() {
		findings = append(findings, Finding{
			Kind:   FindingChunkFailedRetryExhausted,
			PlanID: planID,
			Detail: fmt.Sprintf("%d chunk(s) failed permanently", run.CountByStatus(model.ChunkStatusFailedExhausted)),
		})
	}
	return findings, nil
}
