package policy

import (
	"time"
)

// Severity grades a policy violation. Warnings and info surface in the
// result without blocking; error and critical block the run when the gate
// is enforcing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies admission.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Mode controls what the gate does with blocking violations.
type Mode string

const (
	// ModeEnforcing denies plans with blocking violations.
	ModeEnforcing Mode = "enforcing"

	// ModeAdvisory reports every violation but never denies.
	ModeAdvisory Mode = "advisory"
)

// Policy is one Rego rule set evaluated against a plan.
type Policy struct {
	// Name is the unique policy name.
	Name string `json:"name"`

	// Description says what the policy flags.
	Description string `json:"description"`

	// Rego holds the policy source. The package must export a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations the rule does not
	// grade itself.
	Severity Severity `json:"severity"`

	// Enabled gates evaluation.
	Enabled bool `json:"enabled"`

	// Tags label the policy for listing.
	Tags []string `json:"tags,omitempty"`
}

// Violation is one denied or flagged condition.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// ActionID names the offending action when the rule identifies one.
	ActionID string `json:"action_id,omitempty"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Severity grades the finding.
	Severity Severity `json:"severity"`
}

// Result is the outcome of gating one plan.
type Result struct {
	// Allowed is false only when an enforcing gate found a blocking
	// violation.
	Allowed bool `json:"allowed"`

	// Violations are blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are non-blocking findings, including every finding when the
	// gate runs in advisory mode.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies names the policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the gate ran.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is the total evaluation time.
	Duration time.Duration `json:"duration"`
}

// Input is the document handed to Rego. Params are pre-redacted so policy
// output can never leak a sensitive value.
type Input struct {
	// Actions carries one entry per planned action.
	Actions []ActionInput `json:"actions"`

	// Context describes the run being gated.
	Context *Context `json:"context"`
}

// ActionInput is the policy view of one planned action.
type ActionInput struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Decision  string                 `json:"decision"`
	Severity  string                 `json:"severity"`
	DependsOn []string               `json:"depends_on,omitempty"`
	Params    map[string]interface{} `json:"params"`
}

// Context describes the run being gated.
type Context struct {
	// PlanID identifies the plan.
	PlanID string `json:"plan_id"`

	// DryRun marks plan-only evaluations.
	DryRun bool `json:"dry_run"`

	// Timestamp is when the evaluation started.
	Timestamp time.Time `json:"timestamp"`
}
