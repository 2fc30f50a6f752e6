package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/convergo/convergo/pkg/engine"
)

// Gate admits or flags plans before execution. Policies are Rego rule sets
// exporting a deny set; the gate evaluates every enabled policy against the
// plan and aggregates the findings.
type Gate struct {
	mu       sync.RWMutex
	mode     Mode
	policies map[string]*compiledPolicy
	log      zerolog.Logger
}

// compiledPolicy pairs a policy with its prepared query.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewGate creates a gate preloaded with the builtin policies.
func NewGate(mode Mode, log zerolog.Logger) (*Gate, error) {
	if mode == "" {
		mode = ModeEnforcing
	}

	g := &Gate{
		mode:     mode,
		policies: make(map[string]*compiledPolicy),
		log:      log.With().Str("component", "policy-gate").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		policy := p
		if err := g.compile(context.Background(), &policy); err != nil {
			return nil, fmt.Errorf("builtin policy %s: %w", policy.Name, err)
		}
	}

	return g, nil
}

// EvaluatePlan gates one plan. Sensitive parameter values are stripped from
// the input before Rego sees them.
func (g *Gate) EvaluatePlan(ctx context.Context, graph *engine.Graph, plan *engine.Plan) (*Result, error) {
	input, err := buildInput(graph, plan)
	if err != nil {
		return nil, err
	}
	return g.evaluate(ctx, input, plan.ID)
}

func (g *Gate) evaluate(ctx context.Context, input *Input, planID string) (*Result, error) {
	start := time.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := &Result{
		Allowed:     true,
		EvaluatedAt: start,
	}

	for _, name := range g.policyNames() {
		cp := g.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		findings, err := g.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}

		for _, v := range findings {
			if g.mode == ModeEnforcing && v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.Duration = time.Since(start)
	g.log.Debug().
		Str("plan_id", planID).
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("plan policy evaluation completed")

	return result, nil
}

// Load compiles additional policies, typically read from .rego files.
func (g *Gate) Load(ctx context.Context, policies []Policy) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range policies {
		if err := g.compile(ctx, &policies[i]); err != nil {
			return fmt.Errorf("policy %s: %w", policies[i].Name, err)
		}
	}
	return nil
}

// List returns the loaded policies sorted by name.
func (g *Gate) List() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Policy, 0, len(g.policies))
	for _, name := range g.policyNames() {
		out = append(out, *g.policies[name].policy)
	}
	return out
}

func (g *Gate) policyNames() []string {
	names := make([]string, 0, len(g.policies))
	for name := range g.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Gate) compile(ctx context.Context, policy *Policy) error {
	pkg := regoPackage(policy.Rego)
	if pkg == "" {
		return fmt.Errorf("missing package declaration")
	}

	query, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	g.policies[policy.Name] = &compiledPolicy{policy: policy, query: query}
	return nil
}

func (g *Gate) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	var findings []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				findings = append(findings, toViolation(cp.policy, d))
			}
		}
	}
	return findings, nil
}

// toViolation converts one deny entry. String entries use the policy's
// default severity; object entries may grade and attribute themselves.
func toViolation(policy *Policy, entry interface{}) Violation {
	v := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch val := entry.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if id, ok := val["action"].(string); ok {
			v.ActionID = id
		}
	default:
		v.Message = fmt.Sprintf("%v", entry)
	}

	return v
}

// buildInput flattens graph and plan into the policy input document with
// sensitive values already redacted.
func buildInput(graph *engine.Graph, plan *engine.Plan) (*Input, error) {
	input := &Input{
		Context: &Context{
			PlanID:    plan.ID,
			Timestamp: time.Now(),
		},
	}

	for _, entry := range plan.Entries {
		action := graph.Action(entry.ActionID)
		if action == nil {
			return nil, fmt.Errorf("plan entry %s has no action in graph", entry.ActionID)
		}

		redacted, err := engine.RedactParams(action)
		if err != nil {
			return nil, err
		}
		var params map[string]interface{}
		if err := json.Unmarshal(redacted, &params); err != nil {
			return nil, fmt.Errorf("action %s: cannot decode params: %w", action.ID, err)
		}

		input.Actions = append(input.Actions, ActionInput{
			ID:        action.ID,
			Kind:      string(action.Kind),
			Decision:  string(entry.Decision),
			Severity:  string(action.EffectiveSeverity()),
			DependsOn: action.DependsOn,
			Params:    params,
		})
	}

	return input, nil
}

// regoPackage extracts the package path from Rego source.
func regoPackage(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			fields := strings.Fields(trimmed)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return ""
}
