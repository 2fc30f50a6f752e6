package engine

import (
	"encoding/json"
	"time"
)

// Kind identifies the category of system state an action converges.
type Kind string

const (
	KindPackage  Kind = "package"
	KindUser     Kind = "user"
	KindDatabase Kind = "database"
	KindFile     Kind = "file"
	KindService  Kind = "service"
	KindShell    Kind = "shell"
)

// Validate checks if the kind is one of the supported action kinds.
func (k Kind) Validate() error {
	switch k {
	case KindPackage, KindUser, KindDatabase, KindFile, KindService, KindShell:
		return nil
	default:
		return NewStructuralError("unknown action kind: "+string(k), nil).
			WithCode(ErrCodeValidation)
	}
}

// Severity controls how an action's failure affects the rest of the run.
type Severity string

const (
	// SeverityRequired failures trigger the run's failure policy and block
	// dependent actions.
	SeverityRequired Severity = "required"

	// SeverityAdvisory failures are recorded as warnings. They never halt the
	// run, never block dependents, and never demote the run status on their own.
	SeverityAdvisory Severity = "advisory"
)

// ResourceClass names a host subsystem that cannot tolerate concurrent
// mutation. The executor serializes actions within a class even when
// parallelism is enabled.
type ResourceClass string

const (
	ResourceClassPackage  ResourceClass = "package"
	ResourceClassUser     ResourceClass = "user"
	ResourceClassDatabase ResourceClass = "database"
	ResourceClassFile     ResourceClass = "file"
	ResourceClassService  ResourceClass = "service"
	ResourceClassShell    ResourceClass = "shell"
)

// Action is a single declarative convergence unit: a piece of desired host
// state plus the metadata the engine needs to order and execute it.
// Actions are immutable once a graph has been built from them.
type Action struct {
	// ID uniquely identifies the action within a manifest.
	ID string `json:"id"`

	// Kind selects the handler that probes and applies this action.
	Kind Kind `json:"kind"`

	// Params holds the kind-specific parameters, decoded by the handler.
	Params json.RawMessage `json:"params"`

	// DependsOn lists action IDs that must be in their desired state before
	// this action may run.
	DependsOn []string `json:"depends_on,omitempty"`

	// Severity defaults to required.
	Severity Severity `json:"severity,omitempty"`

	// Sensitive names parameters whose values must never appear in logs,
	// reports, or error output.
	Sensitive []string `json:"sensitive,omitempty"`

	// Timeout overrides the policy's per-action timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxRetries overrides the policy's retry budget when non-negative.
	// A negative value means "use the policy default".
	MaxRetries int `json:"max_retries"`
}

// EffectiveSeverity resolves the default severity.
func (a *Action) EffectiveSeverity() Severity {
	if a.Severity == SeverityAdvisory {
		return SeverityAdvisory
	}
	return SeverityRequired
}

// EffectiveTimeout resolves the per-action timeout against the policy.
func (a *Action) EffectiveTimeout(p RunPolicy) time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return p.ActionTimeout
}

// EffectiveRetries resolves the retry budget against the policy.
func (a *Action) EffectiveRetries(p RunPolicy) int {
	if a.MaxRetries >= 0 {
		return a.MaxRetries
	}
	return p.MaxRetries
}

// OnFailure selects the executor's behavior when a required action fails.
type OnFailure string

const (
	// OnFailureHalt stops dispatching new actions after the first required
	// failure. In-flight actions finish; everything else is aborted.
	OnFailureHalt OnFailure = "halt"

	// OnFailureContinue keeps executing branches that do not depend on the
	// failed action. Only transitive dependents of a failure are skipped.
	OnFailureContinue OnFailure = "continue"
)

// RunPolicy carries the run-wide execution knobs from the manifest.
type RunPolicy struct {
	// OnFailure is the failure strategy. Defaults to OnFailureHalt.
	OnFailure OnFailure `json:"on_failure" validate:"omitempty,oneof=halt continue"`

	// MaxRetries is the retry budget for transient failures per action.
	MaxRetries int `json:"max_retries" validate:"gte=0,lte=10"`

	// ActionTimeout bounds each action's apply. Zero disables the bound.
	ActionTimeout time.Duration `json:"action_timeout"`

	// RunTimeout bounds the whole run. Zero disables the bound.
	RunTimeout time.Duration `json:"run_timeout"`

	// Parallelism is the maximum number of concurrently applying actions.
	// Zero or one means strictly sequential execution.
	Parallelism int `json:"parallelism" validate:"gte=0,lte=64"`
}

// DefaultRunPolicy returns the policy used when the manifest has no policy block.
func DefaultRunPolicy() RunPolicy {
	return RunPolicy{
		OnFailure:     OnFailureHalt,
		MaxRetries:    2,
		ActionTimeout: 5 * time.Minute,
		RunTimeout:    30 * time.Minute,
		Parallelism:   1,
	}
}

// Normalize fills zero-valued policy fields with their defaults.
func (p RunPolicy) Normalize() RunPolicy {
	def := DefaultRunPolicy()
	if p.OnFailure == "" {
		p.OnFailure = def.OnFailure
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.Parallelism < 1 {
		p.Parallelism = 1
	}
	return p
}

// PlanEntry is one action's slot in a plan, annotated with the planner's
// decision and the fact verdict that produced it.
type PlanEntry struct {
	// ActionID references the action in the graph.
	ActionID string `json:"action_id"`

	// Kind mirrors the action's kind for rendering without a graph lookup.
	Kind Kind `json:"kind"`

	// Decision says whether the executor will run this action.
	Decision Decision `json:"decision"`

	// Verdict is the fact snapshot's answer for this action.
	Verdict Verdict `json:"verdict"`

	// Reason is a short human-readable explanation of the decision.
	Reason string `json:"reason,omitempty"`
}

// Plan is the ordered, annotated set of actions for one run. Entry order is
// the graph's deterministic topological order.
type Plan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Entries holds one entry per graph action, in execution order.
	Entries []PlanEntry `json:"entries"`

	// Policy is the run policy the plan was computed under.
	Policy RunPolicy `json:"policy"`
}

// PendingCount returns the number of entries the executor would run.
func (p *Plan) PendingCount() int {
	n := 0
	for _, e := range p.Entries {
		if e.Decision == DecisionExecute {
			n++
		}
	}
	return n
}

// Converged reports whether the plan requires no work.
func (p *Plan) Converged() bool {
	return p.PendingCount() == 0
}

// Entry returns the entry for the given action ID, or nil.
func (p *Plan) Entry(actionID string) *PlanEntry {
	for i := range p.Entries {
		if p.Entries[i].ActionID == actionID {
			return &p.Entries[i]
		}
	}
	return nil
}
