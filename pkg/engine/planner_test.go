package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func snapshotWith(results map[string]FactResult) *Snapshot {
	return &Snapshot{TakenAt: time.Now(), Results: results}
}

func TestPlanSkipsSatisfiedActions(t *testing.T) {
	graph, err := NewGraphBuilder().Build([]Action{action("pkg")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	snap := snapshotWith(map[string]FactResult{
		"pkg": {Verdict: VerdictSatisfied},
	})

	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snap, DefaultRunPolicy())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	entry := plan.Entry("pkg")
	if entry.Decision != DecisionSkip {
		t.Errorf("satisfied action decision = %s, want skip", entry.Decision)
	}
	if !plan.Converged() {
		t.Error("plan with only satisfied actions should be converged")
	}
}

func TestPlanExecutesUnsatisfiedActions(t *testing.T) {
	graph, err := NewGraphBuilder().Build([]Action{action("pkg")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	snap := snapshotWith(map[string]FactResult{
		"pkg": {Verdict: VerdictUnsatisfied, Detail: "package not installed"},
	})

	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snap, DefaultRunPolicy())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	entry := plan.Entry("pkg")
	if entry.Decision != DecisionExecute {
		t.Errorf("unsatisfied action decision = %s, want execute", entry.Decision)
	}
	if entry.Reason != "package not installed" {
		t.Errorf("reason = %q, want probe detail", entry.Reason)
	}
	if plan.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", plan.PendingCount())
	}
}

func TestPlanForcesExecuteOnUnknownVerdict(t *testing.T) {
	graph, err := NewGraphBuilder().Build([]Action{action("db")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// An unanswerable probe must never count as "already satisfied".
	snap := snapshotWith(map[string]FactResult{
		"db": {Verdict: VerdictUnknown, Detail: "database unreachable"},
	})

	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snap, DefaultRunPolicy())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Entry("db").Decision != DecisionExecute {
		t.Error("unknown verdict should force execute")
	}
}

func TestPlanMissingProbeResultDefaultsToExecute(t *testing.T) {
	graph, err := NewGraphBuilder().Build([]Action{action("pkg")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snapshotWith(nil), DefaultRunPolicy())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	entry := plan.Entry("pkg")
	if entry.Decision != DecisionExecute || entry.Verdict != VerdictUnknown {
		t.Errorf("missing probe result should execute with unknown verdict, got %s/%s",
			entry.Decision, entry.Verdict)
	}
}

func TestPlanDependentNotForcedByDependencyReapply(t *testing.T) {
	graph, err := NewGraphBuilder().Build([]Action{
		action("pkg"),
		action("svc", "pkg"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// pkg must re-apply but svc's precondition already holds. Ordering is
	// preserved, yet svc stays skipped.
	snap := snapshotWith(map[string]FactResult{
		"pkg": {Verdict: VerdictUnsatisfied},
		"svc": {Verdict: VerdictSatisfied},
	})

	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snap, DefaultRunPolicy())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if plan.Entry("pkg").Decision != DecisionExecute {
		t.Error("pkg should execute")
	}
	if plan.Entry("svc").Decision != DecisionSkip {
		t.Error("svc should stay skipped despite its dependency re-applying")
	}
}

func TestPlanEntriesFollowTopologicalOrder(t *testing.T) {
	graph, err := NewGraphBuilder().Build([]Action{
		action("svc", "cfg"),
		action("cfg", "pkg"),
		action("pkg"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snapshotWith(nil), DefaultRunPolicy())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := []string{"pkg", "cfg", "svc"}
	for i, id := range want {
		if plan.Entries[i].ActionID != id {
			t.Errorf("entry[%d] = %s, want %s", i, plan.Entries[i].ActionID, id)
		}
	}
}

func TestPlanRejectsNilInputs(t *testing.T) {
	planner := NewPlanner(zerolog.Nop())
	if _, err := planner.Plan(nil, snapshotWith(nil), DefaultRunPolicy()); err == nil {
		t.Error("expected error for nil graph")
	}
	graph, _ := NewGraphBuilder().Build(nil)
	if _, err := planner.Plan(graph, nil, DefaultRunPolicy()); err == nil {
		t.Error("expected error for nil snapshot")
	}
}
