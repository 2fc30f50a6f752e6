package actions

import (
	"context"
	"strings"
	"testing"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

func scriptServiceStatus(runner *system.FakeRunner, name, active, enabled string) {
	runner.Script("systemctl is-active "+name, &system.Result{Stdout: active + "\n"})
	runner.Script("systemctl is-enabled "+name, &system.Result{Stdout: enabled + "\n"})
	runner.Script("systemctl show "+name+" --property=SubState --value",
		&system.Result{Stdout: "running\n"})
}

func TestServiceCheckSatisfied(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptServiceStatus(runner, "caddy", "active", "enabled")

	h := NewServiceHandler(testDeps(runner))
	a := mkAction("caddy-svc", engine.KindService,
		`{"name":"caddy","state":"running","enabled":true}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictSatisfied {
		t.Errorf("verdict = %s, want satisfied", verdict)
	}
}

func TestServiceCheckUnsatisfiedWhenStopped(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptServiceStatus(runner, "caddy", "inactive", "enabled")

	h := NewServiceHandler(testDeps(runner))
	a := mkAction("caddy-svc", engine.KindService, `{"name":"caddy","state":"running"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied", verdict)
	}
}

func TestServiceCheckProbeUnavailableWithoutSystemctl(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.MissingBinaries["systemctl"] = true

	h := NewServiceHandler(testDeps(runner))
	a := mkAction("caddy-svc", engine.KindService, `{"name":"caddy","state":"running"}`)

	verdict, err := h.Check(context.Background(), a)
	if !engine.IsProbeUnavailable(err) {
		t.Errorf("error should be probe-unavailable, got %v", err)
	}
	if verdict != engine.VerdictUnknown {
		t.Errorf("verdict = %s, want unknown", verdict)
	}
}

func TestServiceApplyStartsAndEnables(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptServiceStatus(runner, "caddy", "inactive", "disabled")

	h := NewServiceHandler(testDeps(runner))
	a := mkAction("caddy-svc", engine.KindService,
		`{"name":"caddy","state":"running","enabled":true,"daemon_reload":true}`)

	detail, err := h.Apply(context.Background(), a)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	for _, want := range []string{
		"systemctl daemon-reload",
		"systemctl enable caddy",
		"systemctl start caddy",
	} {
		if !runner.Called(want) {
			t.Errorf("%q not invoked, calls: %v", want, runner.Calls)
		}
	}
	if !strings.Contains(detail, "started") || !strings.Contains(detail, "enabled") {
		t.Errorf("detail %q should list both changes", detail)
	}
}

func TestServiceApplyLeavesConvergedUnitAlone(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptServiceStatus(runner, "caddy", "active", "enabled")

	h := NewServiceHandler(testDeps(runner))
	a := mkAction("caddy-svc", engine.KindService,
		`{"name":"caddy","state":"running","enabled":true}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if runner.Called("systemctl start caddy") || runner.Called("systemctl enable caddy") {
		t.Error("converged unit must not be touched")
	}
}

func TestServiceApplyStopsRunningUnit(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptServiceStatus(runner, "old-agent", "active", "disabled")

	h := NewServiceHandler(testDeps(runner))
	a := mkAction("old-agent-svc", engine.KindService, `{"name":"old-agent","state":"stopped"}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !runner.Called("systemctl stop old-agent") {
		t.Errorf("stop not invoked, calls: %v", runner.Calls)
	}
}
