package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/convergo/convergo/pkg/engine"
)

// Document is the top-level manifest: variables, a run policy, and the
// declared actions. One document describes one host's desired state.
type Document struct {
	// Version is the manifest format version.
	Version int `yaml:"version" json:"version" validate:"required,eq=1"`

	// Vars are static substitution values available to action params.
	Vars map[string]interface{} `yaml:"vars,omitempty" json:"vars,omitempty"`

	// VarsScript is an optional Starlark script whose globals become
	// computed vars, layered over the static ones.
	VarsScript string `yaml:"vars_script,omitempty" json:"vars_script,omitempty"`

	// Policy tunes failure handling, retries, timeouts, and parallelism.
	Policy PolicySpec `yaml:"policy,omitempty" json:"policy,omitempty"`

	// Actions are the declared units of desired state.
	Actions []ActionSpec `yaml:"actions" json:"actions" validate:"required,min=1,dive"`
}

// PolicySpec is the manifest-level run policy. Zero values fall back to
// the engine defaults.
type PolicySpec struct {
	OnFailure     string `yaml:"on_failure,omitempty" json:"on_failure,omitempty" validate:"omitempty,oneof=halt continue"`
	MaxRetries    *int   `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	ActionTimeout string `yaml:"action_timeout,omitempty" json:"action_timeout,omitempty"`
	RunTimeout    string `yaml:"run_timeout,omitempty" json:"run_timeout,omitempty"`
	Parallelism   int    `yaml:"parallelism,omitempty" json:"parallelism,omitempty" validate:"omitempty,min=1,max=64"`
}

// ActionSpec is one declared action.
type ActionSpec struct {
	ID         string                 `yaml:"id" json:"id" validate:"required"`
	Kind       string                 `yaml:"kind" json:"kind" validate:"required"`
	DependsOn  []string               `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Params     map[string]interface{} `yaml:"params" json:"params" validate:"required"`
	Sensitive  []string               `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`
	Severity   string                 `yaml:"severity,omitempty" json:"severity,omitempty" validate:"omitempty,oneof=required advisory"`
	Timeout    string                 `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries *int                   `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
}

// ToRunPolicy converts the manifest policy into an engine run policy,
// filling unset fields from the defaults.
func (p *PolicySpec) ToRunPolicy() (engine.RunPolicy, error) {
	policy := engine.DefaultRunPolicy()

	if p.OnFailure != "" {
		policy.OnFailure = engine.OnFailure(p.OnFailure)
	}
	if p.MaxRetries != nil {
		policy.MaxRetries = *p.MaxRetries
	}
	if p.ActionTimeout != "" {
		d, err := time.ParseDuration(p.ActionTimeout)
		if err != nil {
			return policy, fmt.Errorf("invalid action_timeout: %w", err)
		}
		policy.ActionTimeout = d
	}
	if p.RunTimeout != "" {
		d, err := time.ParseDuration(p.RunTimeout)
		if err != nil {
			return policy, fmt.Errorf("invalid run_timeout: %w", err)
		}
		policy.RunTimeout = d
	}
	if p.Parallelism != 0 {
		policy.Parallelism = p.Parallelism
	}

	return policy.Normalize(), nil
}

// toAction converts one spec into an engine action. Params are carried as
// raw JSON so each handler decodes its own shape.
func (s *ActionSpec) toAction() (engine.Action, error) {
	params, err := json.Marshal(s.Params)
	if err != nil {
		return engine.Action{}, fmt.Errorf("action %s: cannot encode params: %w", s.ID, err)
	}

	action := engine.Action{
		ID:         s.ID,
		Kind:       engine.Kind(s.Kind),
		Params:     params,
		DependsOn:  s.DependsOn,
		Severity:   engine.Severity(s.Severity),
		Sensitive:  s.Sensitive,
		MaxRetries: -1,
	}

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return engine.Action{}, fmt.Errorf("action %s: invalid timeout: %w", s.ID, err)
		}
		action.Timeout = d
	}
	if s.MaxRetries != nil {
		if *s.MaxRetries < 0 {
			return engine.Action{}, fmt.Errorf("action %s: max_retries must not be negative", s.ID)
		}
		action.MaxRetries = *s.MaxRetries
	}

	return action, nil
}
