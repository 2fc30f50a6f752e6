package render

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesValues(t *testing.T) {
	out, err := Render("listen {{.domain}}:{{.port}}", map[string]interface{}{
		"domain": "example.com",
		"port":   8080,
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "listen example.com:8080" {
		t.Errorf("output = %q", out)
	}
}

func TestRenderUnknownKeyFails(t *testing.T) {
	if _, err := Render("hello {{.missing}}", map[string]interface{}{}); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestRenderDeterministic(t *testing.T) {
	values := map[string]interface{}{"name": "caddy"}
	first, err := Render("service {{.name}}", values)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Render("service {{.name}}", values)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if again != first {
			t.Fatal("render output not deterministic")
		}
	}
}

func TestRenderStringPassthrough(t *testing.T) {
	out, err := RenderString("plain text", nil)
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}
	if out != "plain text" {
		t.Errorf("output = %q", out)
	}
}

func TestHashContentStable(t *testing.T) {
	a := HashContent([]byte("content"))
	b := HashContent([]byte("content"))
	if a != b {
		t.Error("hash not stable")
	}
	if a == HashContent([]byte("different")) {
		t.Error("different content hashed equal")
	}
	if !strings.HasPrefix(a, "") || len(a) != 64 {
		t.Errorf("hash %q should be 64 hex chars", a)
	}
}
