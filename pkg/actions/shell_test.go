package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

func TestShellCheckCreatesSatisfiedWhenPathExists(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "done")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewShellHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("bootstrap", engine.KindShell,
		`{"command":"touch `+marker+`","creates":"`+marker+`"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictSatisfied {
		t.Errorf("verdict = %s, want satisfied", verdict)
	}
}

func TestShellCheckCreatesUnsatisfiedWhenPathMissing(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "done")

	h := NewShellHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("bootstrap", engine.KindShell,
		`{"command":"touch `+marker+`","creates":"`+marker+`"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied", verdict)
	}
}

func TestShellCheckUnlessProbe(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Script("sh -c grep -q ready /etc/flag", &system.Result{ExitCode: 0})

	h := NewShellHandler(testDeps(runner))
	a := mkAction("mark-ready", engine.KindShell,
		`{"command":"echo ready > /etc/flag","unless":"grep -q ready /etc/flag"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictSatisfied {
		t.Errorf("verdict = %s, want satisfied when unless exits zero", verdict)
	}
}

func TestShellCheckUnlessProbeFailureIsProbeUnavailable(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.ScriptErr("sh -c probe", errors.New("fork failed"))

	h := NewShellHandler(testDeps(runner))
	a := mkAction("step", engine.KindShell, `{"command":"run","unless":"probe"}`)

	verdict, err := h.Check(context.Background(), a)
	if !engine.IsProbeUnavailable(err) {
		t.Errorf("error should be probe-unavailable, got %v", err)
	}
	if verdict != engine.VerdictUnknown {
		t.Errorf("verdict = %s, want unknown", verdict)
	}
}

func TestShellCheckWithoutPreconditionAlwaysRuns(t *testing.T) {
	h := NewShellHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("step", engine.KindShell, `{"command":"echo hi"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied without precondition", verdict)
	}
}

func TestShellApplyReportsStdout(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Script("sh -c echo hi", &system.Result{Stdout: "hi\n"})

	h := NewShellHandler(testDeps(runner))
	a := mkAction("step", engine.KindShell, `{"command":"echo hi"}`)

	detail, err := h.Apply(context.Background(), a)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if detail != "hi" {
		t.Errorf("detail = %q, want trimmed stdout", detail)
	}
}

func TestShellApplyPrependsWorkingDirectory(t *testing.T) {
	runner := system.NewFakeRunner()

	h := NewShellHandler(testDeps(runner))
	a := mkAction("step", engine.KindShell, `{"command":"make install","dir":"/opt/app"}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !runner.Called("sh -c cd /opt/app && make install") {
		t.Errorf("dir not applied, calls: %v", runner.Calls)
	}
}

func TestShellApplyNonZeroExitIsStructural(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Script("sh -c exit 3", &system.Result{ExitCode: 3, Stderr: "boom\n"})

	h := NewShellHandler(testDeps(runner))
	a := mkAction("step", engine.KindShell, `{"command":"exit 3"}`)

	_, err := h.Apply(context.Background(), a)
	if err == nil {
		t.Fatal("expected error")
	}
	if !engine.IsStructural(err) {
		t.Errorf("non-zero exit should be structural, got %v", err)
	}
}

func TestShellApplyRunFailureIsTransient(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.ScriptErr("sh -c echo hi", errors.New("resource temporarily unavailable"))

	h := NewShellHandler(testDeps(runner))
	a := mkAction("step", engine.KindShell, `{"command":"echo hi"}`)

	_, err := h.Apply(context.Background(), a)
	if err == nil {
		t.Fatal("expected error")
	}
	if !engine.IsTransient(err) {
		t.Errorf("run failure should be transient, got %v", err)
	}
}
