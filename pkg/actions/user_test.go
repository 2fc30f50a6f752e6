package actions

import (
	"context"
	"strings"
	"testing"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

func scriptUser(runner *system.FakeRunner, name, home, shell, groups string) {
	runner.Script("getent passwd "+name,
		&system.Result{Stdout: name + ":x:998:998::" + home + ":" + shell + "\n"})
	runner.Script("id -nG "+name, &system.Result{Stdout: groups + "\n"})
}

func TestUserCheckSatisfied(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptUser(runner, "deploy", "/home/deploy", "/bin/bash", "deploy docker")

	h := NewUserHandler(testDeps(runner))
	a := mkAction("deploy-user", engine.KindUser,
		`{"name":"deploy","home":"/home/deploy","shell":"/bin/bash","groups":["docker"]}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictSatisfied {
		t.Errorf("verdict = %s, want satisfied", verdict)
	}
}

func TestUserCheckUnsatisfiedWhenMissing(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Script("getent passwd deploy", &system.Result{ExitCode: 2})

	h := NewUserHandler(testDeps(runner))
	a := mkAction("deploy-user", engine.KindUser, `{"name":"deploy"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied", verdict)
	}
}

func TestUserCheckUnsatisfiedWhenGroupMissing(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptUser(runner, "deploy", "/home/deploy", "/bin/bash", "deploy")

	h := NewUserHandler(testDeps(runner))
	a := mkAction("deploy-user", engine.KindUser, `{"name":"deploy","groups":["docker"]}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied for missing group", verdict)
	}
}

func TestUserApplyCreatesMissingAccount(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Script("getent passwd svcacct", &system.Result{ExitCode: 2})

	h := NewUserHandler(testDeps(runner))
	a := mkAction("svcacct-user", engine.KindUser,
		`{"name":"svcacct","shell":"/usr/sbin/nologin","system":true}`)

	detail, err := h.Apply(context.Background(), a)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !runner.Called("useradd --system --shell /usr/sbin/nologin svcacct") {
		t.Errorf("useradd not invoked, calls: %v", runner.Calls)
	}
	if !strings.Contains(detail, "created") {
		t.Errorf("detail %q should report creation", detail)
	}
}

func TestUserApplyModifiesExistingAccount(t *testing.T) {
	runner := system.NewFakeRunner()
	scriptUser(runner, "deploy", "/home/deploy", "/bin/sh", "deploy")

	h := NewUserHandler(testDeps(runner))
	a := mkAction("deploy-user", engine.KindUser, `{"name":"deploy","shell":"/bin/bash"}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !runner.Called("usermod --shell /bin/bash deploy") {
		t.Errorf("usermod not invoked, calls: %v", runner.Calls)
	}
}

func TestUserApplyCreateFailureIsStructural(t *testing.T) {
	runner := system.NewFakeRunner()
	runner.Script("getent passwd deploy", &system.Result{ExitCode: 2})
	runner.Script("useradd deploy", &system.Result{ExitCode: 9, Stderr: "useradd: group missing"})

	h := NewUserHandler(testDeps(runner))
	a := mkAction("deploy-user", engine.KindUser, `{"name":"deploy"}`)

	_, err := h.Apply(context.Background(), a)
	if err == nil {
		t.Fatal("expected error")
	}
	if !engine.IsStructural(err) {
		t.Errorf("create failure should be structural, got %v", err)
	}
}
