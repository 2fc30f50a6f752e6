package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Planner turns a graph plus a fact snapshot into an execution plan.
// Planning is pure: it performs no probing and no mutation.
type Planner struct {
	log zerolog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(log zerolog.Logger) *Planner {
	return &Planner{log: log}
}

// Plan annotates every action in the graph with a skip or execute decision.
// Entries follow the graph's deterministic topological order. Each decision
// depends only on the action's own verdict: a dependency being re-applied
// never forces a dependent whose precondition holds to re-run.
func (p *Planner) Plan(graph *Graph, snapshot *Snapshot, policy RunPolicy) (*Plan, error) {
	if graph == nil {
		return nil, NewStructuralError("graph is nil", nil).WithCode(ErrCodeValidation)
	}
	if snapshot == nil {
		return nil, NewStructuralError("snapshot is nil", nil).WithCode(ErrCodeValidation)
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Entries:   make([]PlanEntry, 0, len(graph.Order)),
		Policy:    policy.Normalize(),
	}

	for _, id := range graph.Order {
		action := graph.Actions[id]
		result := snapshot.Result(id)

		entry := PlanEntry{
			ActionID: id,
			Kind:     action.Kind,
			Verdict:  result.Verdict,
		}

		switch result.Verdict {
		case VerdictSatisfied:
			entry.Decision = DecisionSkip
			entry.Reason = "already satisfied"
		case VerdictUnsatisfied:
			entry.Decision = DecisionExecute
			if result.Detail != "" {
				entry.Reason = result.Detail
			} else {
				entry.Reason = "current state differs from desired state"
			}
		case VerdictUnknown:
			// Unknown never counts as satisfied.
			entry.Decision = DecisionExecute
			entry.Reason = fmt.Sprintf("current state unknown: %s", result.Detail)
		default:
			return nil, NewStructuralError(
				fmt.Sprintf("invalid verdict %q for action %s", result.Verdict, id), nil).
				WithCode(ErrCodeInternal)
		}

		plan.Entries = append(plan.Entries, entry)
	}

	p.log.Info().
		Str("plan_id", plan.ID).
		Int("total", len(plan.Entries)).
		Int("pending", plan.PendingCount()).
		Msg("plan computed")

	return plan, nil
}
