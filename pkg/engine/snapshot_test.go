package engine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

type probeHandler struct {
	stubHandler
	verdicts map[string]Verdict
	errs     map[string]error
}

func (h *probeHandler) Check(ctx context.Context, a *Action) (Verdict, error) {
	if err := h.errs[a.ID]; err != nil {
		return VerdictUnknown, err
	}
	if v, ok := h.verdicts[a.ID]; ok {
		return v, nil
	}
	return VerdictUnsatisfied, nil
}

func TestSnapshotRecordsVerdictPerAction(t *testing.T) {
	graph := mustBuild(t, []Action{action("a"), action("b")})

	h := &probeHandler{
		verdicts: map[string]Verdict{"a": VerdictSatisfied, "b": VerdictUnsatisfied},
		errs:     map[string]error{},
	}
	registry := NewRegistry()
	if err := registry.Register(h); err != nil {
		t.Fatal(err)
	}

	snap, err := NewSnapshotter(registry, nil, 0, zerolog.Nop()).Take(context.Background(), graph)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	if snap.Result("a").Verdict != VerdictSatisfied {
		t.Errorf("a verdict = %s, want satisfied", snap.Result("a").Verdict)
	}
	if snap.Result("b").Verdict != VerdictUnsatisfied {
		t.Errorf("b verdict = %s, want unsatisfied", snap.Result("b").Verdict)
	}
}

func TestSnapshotProbeErrorYieldsUnknown(t *testing.T) {
	graph := mustBuild(t, []Action{action("db")})

	h := &probeHandler{
		verdicts: map[string]Verdict{},
		errs: map[string]error{
			"db": NewProbeUnavailableError("database not reachable", nil),
		},
	}
	registry := NewRegistry()
	if err := registry.Register(h); err != nil {
		t.Fatal(err)
	}

	snap, err := NewSnapshotter(registry, nil, 0, zerolog.Nop()).Take(context.Background(), graph)
	if err != nil {
		t.Fatalf("probe failure must not fail the snapshot: %v", err)
	}

	result := snap.Result("db")
	if result.Verdict != VerdictUnknown {
		t.Errorf("verdict = %s, want unknown", result.Verdict)
	}
	if result.Detail == "" {
		t.Error("unknown verdict should carry the probe error detail")
	}
}

func TestSnapshotCancelledContext(t *testing.T) {
	graph := mustBuild(t, []Action{action("a")})

	registry := NewRegistry()
	if err := registry.Register(newStubHandler()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewSnapshotter(registry, nil, 0, zerolog.Nop()).Take(ctx, graph); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
