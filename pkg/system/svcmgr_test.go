package system

import (
	"context"
	"testing"
)

func TestServiceStatusActiveEnabled(t *testing.T) {
	runner := NewFakeRunner()
	runner.Script("systemctl is-active caddy", &Result{Stdout: "active\n"})
	runner.Script("systemctl is-enabled caddy", &Result{Stdout: "enabled\n"})
	runner.Script("systemctl show caddy --property=SubState --value", &Result{Stdout: "running\n"})

	status, err := NewServiceManager(runner).Status(context.Background(), "caddy")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Active || !status.Enabled {
		t.Errorf("status = %+v, want active and enabled", status)
	}
	if status.SubState != "running" {
		t.Errorf("substate = %q, want running", status.SubState)
	}
}

func TestServiceStatusInactive(t *testing.T) {
	runner := NewFakeRunner()
	runner.Script("systemctl is-active caddy", &Result{Stdout: "inactive\n", ExitCode: 3})
	runner.Script("systemctl is-enabled caddy", &Result{Stdout: "disabled\n", ExitCode: 1})

	status, err := NewServiceManager(runner).Status(context.Background(), "caddy")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Active || status.Enabled {
		t.Errorf("status = %+v, want inactive and disabled", status)
	}
}

func TestServiceStatusNoSystemctl(t *testing.T) {
	runner := NewFakeRunner()
	runner.MissingBinaries["systemctl"] = true

	if _, err := NewServiceManager(runner).Status(context.Background(), "caddy"); err == nil {
		t.Fatal("expected error when systemctl is missing")
	}
}

func TestServiceLifecycleVerbs(t *testing.T) {
	runner := NewFakeRunner()
	m := NewServiceManager(runner)
	ctx := context.Background()

	if err := m.Start(ctx, "caddy"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Enable(ctx, "caddy"); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := m.Reload(ctx, "caddy"); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	for _, want := range []string{
		"systemctl start caddy",
		"systemctl enable caddy",
		"systemctl reload caddy",
	} {
		if !runner.Called(want) {
			t.Errorf("missing call %q, got %v", want, runner.Calls)
		}
	}
}

func TestServiceStartFailure(t *testing.T) {
	runner := NewFakeRunner()
	runner.Script("systemctl start broken", &Result{ExitCode: 1, Stderr: "Unit broken.service not found."})

	if err := NewServiceManager(runner).Start(context.Background(), "broken"); err == nil {
		t.Fatal("expected error for failed start")
	}
}
