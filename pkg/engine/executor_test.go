package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubHandler serves the shell kind with scripted per-action behavior.
type stubHandler struct {
	mu       sync.Mutex
	applyErr map[string]error
	failOnce map[string]error
	applied  []string
}

func newStubHandler() *stubHandler {
	return &stubHandler{
		applyErr: make(map[string]error),
		failOnce: make(map[string]error),
	}
}

func (h *stubHandler) Kind() Kind                   { return KindShell }
func (h *stubHandler) ResourceClass() ResourceClass { return ResourceClassShell }

func (h *stubHandler) Check(ctx context.Context, a *Action) (Verdict, error) {
	return VerdictUnsatisfied, nil
}

func (h *stubHandler) Apply(ctx context.Context, a *Action) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, a.ID)

	if err, ok := h.failOnce[a.ID]; ok {
		delete(h.failOnce, a.ID)
		return "", err
	}
	if err := h.applyErr[a.ID]; err != nil {
		return "", err
	}
	return "done", nil
}

func (h *stubHandler) appliedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.applied...)
}

func newTestExecutor(h Handler) *Executor {
	registry := NewRegistry()
	if err := registry.Register(h); err != nil {
		panic(err)
	}
	e := NewExecutor(registry, nil, zerolog.Nop())
	e.retryBaseDelay = time.Millisecond
	return e
}

func planFor(t *testing.T, graph *Graph, policy RunPolicy, skips ...string) *Plan {
	t.Helper()
	skipSet := make(map[string]bool)
	for _, id := range skips {
		skipSet[id] = true
	}
	results := make(map[string]FactResult, len(graph.Order))
	for _, id := range graph.Order {
		if skipSet[id] {
			results[id] = FactResult{Verdict: VerdictSatisfied}
		} else {
			results[id] = FactResult{Verdict: VerdictUnsatisfied}
		}
	}
	plan, err := NewPlanner(zerolog.Nop()).Plan(graph, snapshotWith(results), policy)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return plan
}

func mustBuild(t *testing.T, actions []Action) *Graph {
	t.Helper()
	graph, err := NewGraphBuilder().Build(actions)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return graph
}

func TestExecuteAppliesAllPendingActions(t *testing.T) {
	graph := mustBuild(t, []Action{
		action("pkg"),
		action("cfg", "pkg"),
		action("svc", "cfg"),
	})

	h := newStubHandler()
	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, DefaultRunPolicy()))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Status != RunStatusSuccess {
		t.Errorf("status = %s, want success", report.Status)
	}
	want := []string{"pkg", "cfg", "svc"}
	got := h.appliedIDs()
	if len(got) != len(want) {
		t.Fatalf("applied %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("apply order %v, want %v", got, want)
			break
		}
	}
}

func TestExecuteRecordsSkipsWithoutApplying(t *testing.T) {
	graph := mustBuild(t, []Action{action("pkg"), action("svc", "pkg")})

	h := newStubHandler()
	report, err := newTestExecutor(h).Execute(context.Background(), graph,
		planFor(t, graph, DefaultRunPolicy(), "pkg"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if rec := report.Record("pkg"); rec.Outcome != OutcomeSkipped {
		t.Errorf("pkg outcome = %s, want skipped", rec.Outcome)
	}
	if rec := report.Record("svc"); rec.Outcome != OutcomeApplied {
		t.Errorf("svc outcome = %s, want applied", rec.Outcome)
	}
	for _, id := range h.appliedIDs() {
		if id == "pkg" {
			t.Error("skipped action must not be applied")
		}
	}
}

func TestExecuteHaltPolicyAbortsRemaining(t *testing.T) {
	graph := mustBuild(t, []Action{
		action("bad"),
		action("child", "bad"),
		action("other"),
		action("late", "other"),
	})

	h := newStubHandler()
	h.applyErr["bad"] = NewStructuralError("exploded", nil)

	policy := DefaultRunPolicy()
	policy.OnFailure = OnFailureHalt

	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, policy))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Status != RunStatusAborted {
		t.Errorf("status = %s, want aborted", report.Status)
	}
	if rec := report.Record("bad"); rec.Outcome != OutcomeFailed {
		t.Errorf("bad outcome = %s, want failed", rec.Outcome)
	}
	if rec := report.Record("child"); rec.Outcome != OutcomeAborted {
		t.Errorf("child outcome = %s, want aborted", rec.Outcome)
	}
	if rec := report.Record("late"); rec.Outcome != OutcomeAborted {
		t.Errorf("late outcome = %s, want aborted", rec.Outcome)
	}
}

func TestExecuteContinuePolicyRunsIndependentBranches(t *testing.T) {
	graph := mustBuild(t, []Action{
		action("bad"),
		action("child", "bad"),
		action("grandchild", "child"),
		action("other"),
		action("otherchild", "other"),
	})

	h := newStubHandler()
	h.applyErr["bad"] = NewStructuralError("exploded", nil)

	policy := DefaultRunPolicy()
	policy.OnFailure = OnFailureContinue

	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, policy))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Status != RunStatusPartialFailure {
		t.Errorf("status = %s, want partial_failure", report.Status)
	}
	if rec := report.Record("child"); rec.Outcome != OutcomeAborted {
		t.Errorf("child outcome = %s, want aborted", rec.Outcome)
	}
	if rec := report.Record("grandchild"); rec.Outcome != OutcomeAborted {
		t.Errorf("grandchild outcome = %s, want aborted", rec.Outcome)
	}
	if rec := report.Record("other"); rec.Outcome != OutcomeApplied {
		t.Errorf("other outcome = %s, want applied", rec.Outcome)
	}
	if rec := report.Record("otherchild"); rec.Outcome != OutcomeApplied {
		t.Errorf("otherchild outcome = %s, want applied", rec.Outcome)
	}
}

func TestExecuteAdvisoryFailureDoesNotBlockOrDemote(t *testing.T) {
	actions := []Action{
		action("banner"),
		action("svc", "banner"),
	}
	actions[0].Severity = SeverityAdvisory

	graph := mustBuild(t, actions)

	h := newStubHandler()
	h.applyErr["banner"] = NewStructuralError("cosmetic failure", nil)

	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, DefaultRunPolicy()))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Status != RunStatusSuccess {
		t.Errorf("status = %s, want success despite advisory failure", report.Status)
	}
	if report.Warnings != 1 {
		t.Errorf("warnings = %d, want 1", report.Warnings)
	}
	if rec := report.Record("svc"); rec.Outcome != OutcomeApplied {
		t.Errorf("svc outcome = %s, want applied", rec.Outcome)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	graph := mustBuild(t, []Action{action("flaky")})

	h := newStubHandler()
	h.failOnce["flaky"] = NewTransientError("mirror timeout", nil)

	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, DefaultRunPolicy()))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	rec := report.Record("flaky")
	if rec.Outcome != OutcomeApplied {
		t.Fatalf("outcome = %s, want applied after retry", rec.Outcome)
	}
	if rec.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", rec.Attempts)
	}
}

func TestExecuteDoesNotRetryStructuralFailures(t *testing.T) {
	graph := mustBuild(t, []Action{action("broken")})

	h := newStubHandler()
	h.applyErr["broken"] = NewStructuralError("bad parameters", nil)

	policy := DefaultRunPolicy()
	policy.MaxRetries = 5

	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, policy))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	rec := report.Record("broken")
	if rec.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", rec.Outcome)
	}
	if rec.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 for structural failure", rec.Attempts)
	}
}

func TestExecutePerActionRetryOverride(t *testing.T) {
	actions := []Action{action("stubborn")}
	actions[0].MaxRetries = 0

	graph := mustBuild(t, actions)

	h := newStubHandler()
	h.applyErr["stubborn"] = NewTransientError("always failing", nil)

	policy := DefaultRunPolicy()
	policy.MaxRetries = 5
	policy.OnFailure = OnFailureContinue

	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, policy))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if rec := report.Record("stubborn"); rec.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 with per-action override", rec.Attempts)
	}
}

func TestExecuteCancelledContextAbortsRun(t *testing.T) {
	graph := mustBuild(t, []Action{action("pkg")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestExecutor(newStubHandler()).Execute(ctx, graph, planFor(t, graph, DefaultRunPolicy()))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Status != RunStatusAborted {
		t.Errorf("status = %s, want aborted", report.Status)
	}
	if rec := report.Record("pkg"); rec.Outcome != OutcomeAborted {
		t.Errorf("pkg outcome = %s, want aborted", rec.Outcome)
	}
}

func TestExecuteRedactsSensitiveValuesInDetails(t *testing.T) {
	actions := []Action{{
		ID:         "db",
		Kind:       KindShell,
		Params:     []byte(`{"password":"hunter2secret"}`),
		Sensitive:  []string{"password"},
		MaxRetries: -1,
	}}
	graph := mustBuild(t, actions)

	h := newStubHandler()
	h.applyErr["db"] = NewStructuralError("auth failed for password hunter2secret", nil)

	registry := NewRegistry()
	if err := registry.Register(h); err != nil {
		t.Fatal(err)
	}
	e := NewExecutor(registry, NewRedactorFromActions(actions), zerolog.Nop())
	e.retryBaseDelay = time.Millisecond

	policy := DefaultRunPolicy()
	policy.OnFailure = OnFailureContinue

	report, err := e.Execute(context.Background(), graph, planFor(t, graph, policy))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	rec := report.Record("db")
	if rec.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", rec.Outcome)
	}
	if strings.Contains(rec.Detail, "hunter2secret") {
		t.Errorf("detail leaked sensitive value: %q", rec.Detail)
	}
	if !strings.Contains(rec.Detail, RedactedToken) {
		t.Errorf("detail should contain redaction token, got %q", rec.Detail)
	}
}

func TestExecuteParallelRunsWholeLevel(t *testing.T) {
	graph := mustBuild(t, []Action{
		action("a"), action("b"), action("c"), action("d"),
	})

	policy := DefaultRunPolicy()
	policy.Parallelism = 4

	h := newStubHandler()
	report, err := newTestExecutor(h).Execute(context.Background(), graph, planFor(t, graph, policy))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Status != RunStatusSuccess {
		t.Errorf("status = %s, want success", report.Status)
	}
	if len(h.appliedIDs()) != 4 {
		t.Errorf("applied %d actions, want 4", len(h.appliedIDs()))
	}
}
