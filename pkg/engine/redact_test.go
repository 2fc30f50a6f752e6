package engine

import (
	"strings"
	"testing"
)

func TestRedactReplacesKnownValues(t *testing.T) {
	r := NewRedactor([]string{"s3cretvalue"})
	got := r.Redact("connection failed: password s3cretvalue rejected")
	if strings.Contains(got, "s3cretvalue") {
		t.Errorf("output leaked secret: %q", got)
	}
	if !strings.Contains(got, RedactedToken) {
		t.Errorf("output missing redaction token: %q", got)
	}
}

func TestRedactSkipsShortValues(t *testing.T) {
	r := NewRedactor([]string{"ab"})
	got := r.Redact("a table with ab in it")
	if got != "a table with ab in it" {
		t.Errorf("short values should not be redacted, got %q", got)
	}
}

func TestRedactNilRedactorIsNoop(t *testing.T) {
	var r *Redactor
	if got := r.Redact("anything"); got != "anything" {
		t.Errorf("nil redactor changed text: %q", got)
	}
}

func TestRedactLongestValueFirst(t *testing.T) {
	r := NewRedactor([]string{"secret", "secret-extended"})
	got := r.Redact("value is secret-extended")
	if strings.Contains(got, "extended") {
		t.Errorf("partial redaction leaked suffix: %q", got)
	}
}

func TestNewRedactorFromActions(t *testing.T) {
	actions := []Action{{
		ID:        "db",
		Kind:      KindDatabase,
		Params:    []byte(`{"name":"app","password":"topsecret99"}`),
		Sensitive: []string{"password"},
	}}

	r := NewRedactorFromActions(actions)
	got := r.Redact("error: auth topsecret99 denied")
	if strings.Contains(got, "topsecret99") {
		t.Errorf("output leaked secret: %q", got)
	}
	if strings.Contains(r.Redact("the app database"), RedactedToken) {
		t.Error("non-sensitive param value was redacted")
	}
}

func TestRedactParams(t *testing.T) {
	a := &Action{
		ID:        "db",
		Kind:      KindDatabase,
		Params:    []byte(`{"name":"app","password":"topsecret99"}`),
		Sensitive: []string{"password"},
	}

	out, err := RedactParams(a)
	if err != nil {
		t.Fatalf("RedactParams failed: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "topsecret99") {
		t.Errorf("redacted params leaked secret: %s", s)
	}
	if !strings.Contains(s, `"name":"app"`) {
		t.Errorf("non-sensitive field should survive, got %s", s)
	}
}
