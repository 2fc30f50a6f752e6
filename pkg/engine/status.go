package engine

import (
	"encoding/json"
	"fmt"
)

// Verdict is the fact snapshot's answer about one action's precondition.
type Verdict string

const (
	// VerdictSatisfied means current state already matches the desired state.
	VerdictSatisfied Verdict = "satisfied"

	// VerdictUnsatisfied means current state differs and the action must run.
	VerdictUnsatisfied Verdict = "unsatisfied"

	// VerdictUnknown means the probe could not answer. Unknown is never
	// treated as satisfied; the action is forced into the execute set.
	VerdictUnknown Verdict = "unknown"
)

// Validate checks if the verdict is valid.
func (v Verdict) Validate() error {
	switch v {
	case VerdictSatisfied, VerdictUnsatisfied, VerdictUnknown:
		return nil
	default:
		return fmt.Errorf("invalid verdict: %s", v)
	}
}

// Decision is the planner's per-action call.
type Decision string

const (
	// DecisionSkip means the precondition already holds; the action will be
	// recorded as skipped without side effects.
	DecisionSkip Decision = "skip"

	// DecisionExecute means the action will be applied.
	DecisionExecute Decision = "execute"
)

// Validate checks if the decision is valid.
func (d Decision) Validate() error {
	switch d {
	case DecisionSkip, DecisionExecute:
		return nil
	default:
		return fmt.Errorf("invalid decision: %s", d)
	}
}

// Outcome is the terminal state of one action within a run.
type Outcome string

const (
	// OutcomeSkipped indicates the precondition already held; nothing ran.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeApplied indicates the action ran and converged its state.
	OutcomeApplied Outcome = "applied"

	// OutcomeFailed indicates the action ran and did not converge.
	OutcomeFailed Outcome = "failed"

	// OutcomeAborted indicates the action never ran because the run halted,
	// a dependency failed, or the run was cancelled.
	OutcomeAborted Outcome = "aborted"
)

// IsTerminalFailure returns true for outcomes that count against the run.
func (o Outcome) IsTerminalFailure() bool {
	return o == OutcomeFailed || o == OutcomeAborted
}

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeSkipped, OutcomeApplied, OutcomeFailed, OutcomeAborted:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// RunStatus is the overall status of a run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess indicates every required action was applied or skipped.
	RunStatusSuccess RunStatus = "success"

	// RunStatusPartialFailure indicates some required actions failed while
	// others were applied.
	RunStatusPartialFailure RunStatus = "partial_failure"

	// RunStatusAborted indicates the run stopped before attempting all
	// required actions: first failure under the halt policy, a run timeout,
	// or an external cancellation.
	RunStatusAborted RunStatus = "aborted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartialFailure || s == RunStatusAborted
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusPartialFailure, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
