package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

func TestFileCheckUnsatisfiedWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"listen 8080\n"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied", verdict)
	}
}

func TestFileApplyThenCheckSatisfied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "app.conf")

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"listen {{ .port }}\n","values":{"port":8080},"mode":"0640"}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(got) != "listen 8080\n" {
		t.Errorf("content = %q, want rendered template", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %s, want 0640", info.Mode().Perm())
	}

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictSatisfied {
		t.Errorf("verdict = %s, want satisfied after apply", verdict)
	}
}

func TestFileCheckUnsatisfiedOnContentDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")
	if err := os.WriteFile(path, []byte("listen 9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"listen 8080\n"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied for drifted content", verdict)
	}
}

func TestFileCheckUnsatisfiedOnModeDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")
	if err := os.WriteFile(path, []byte("listen 8080\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"listen 8080\n","mode":"0644"}`)

	verdict, err := h.Check(context.Background(), a)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if verdict != engine.VerdictUnsatisfied {
		t.Errorf("verdict = %s, want unsatisfied for drifted mode", verdict)
	}
}

func TestFileCheckFailsOnUnknownTemplateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"listen {{ .port }}\n"}`)

	if _, err := h.Check(context.Background(), a); err == nil {
		t.Fatal("expected render failure for missing template value")
	}
}

func TestFileApplyChownsThroughRunner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")
	runner := system.NewFakeRunner()

	h := NewFileHandler(testDeps(runner))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"x\n","owner":"app","group":"app"}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !runner.Called("chown app:app " + path) {
		t.Errorf("chown not invoked, calls: %v", runner.Calls)
	}
}

func TestFileRollbackRestoresBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile,
		`{"path":"`+path+`","content":"new\n","backup":true}`)

	if _, err := h.Apply(context.Background(), a); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := h.Rollback(context.Background(), a); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old\n" {
		t.Errorf("content after rollback = %q, want previous content", got)
	}
}

func TestFileRollbackWithoutBackupFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")

	h := NewFileHandler(testDeps(system.NewFakeRunner()))
	a := mkAction("app-conf", engine.KindFile, `{"path":"`+path+`","content":"x\n"}`)

	if _, err := h.Rollback(context.Background(), a); err == nil {
		t.Fatal("expected error when no backup exists")
	}
}
