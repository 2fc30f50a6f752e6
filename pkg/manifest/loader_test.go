package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/convergo/convergo/pkg/engine"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeManifest(t, "site.yaml", `
version: 1
vars:
  app_port: 8080
policy:
  on_failure: continue
  max_retries: 4
  action_timeout: 90s
  parallelism: 4
actions:
  - id: caddy-pkg
    kind: package
    params:
      packages:
        - name: caddy
  - id: caddy-conf
    kind: file
    depends_on: [caddy-pkg]
    params:
      path: /etc/caddy/Caddyfile
      content: ":{{ .app_port }}\n"
`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(loaded.Actions))
	}
	if loaded.Policy.OnFailure != engine.OnFailureContinue {
		t.Errorf("on_failure = %s, want continue", loaded.Policy.OnFailure)
	}
	if loaded.Policy.MaxRetries != 4 {
		t.Errorf("max_retries = %d, want 4", loaded.Policy.MaxRetries)
	}
	if loaded.Policy.ActionTimeout != 90*time.Second {
		t.Errorf("action_timeout = %v, want 90s", loaded.Policy.ActionTimeout)
	}
	if loaded.Policy.Parallelism != 4 {
		t.Errorf("parallelism = %d, want 4", loaded.Policy.Parallelism)
	}

	conf := loaded.Actions[1]
	if conf.Kind != engine.KindFile {
		t.Errorf("kind = %s, want file", conf.Kind)
	}
	if !strings.Contains(string(conf.Params), `:8080`) {
		t.Errorf("vars not substituted into params: %s", conf.Params)
	}
	if conf.MaxRetries != -1 {
		t.Errorf("unset max_retries = %d, want -1 for policy default", conf.MaxRetries)
	}
}

func TestLoadYAMLDefaultsPolicy(t *testing.T) {
	path := writeManifest(t, "site.yaml", `
version: 1
actions:
  - id: step
    kind: shell
    params:
      command: "true"
`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := engine.DefaultRunPolicy()
	if loaded.Policy != def {
		t.Errorf("policy = %+v, want defaults %+v", loaded.Policy, def)
	}
}

func TestLoadVarsScript(t *testing.T) {
	path := writeManifest(t, "site.yaml", `
version: 1
vars:
  base_port: 8000
vars_script: |
  app_port = base_port + 80
  replicas = [str(i) for i in range(2)]
actions:
  - id: conf
    kind: file
    params:
      path: /etc/app.conf
      content: "port {{ .app_port }}\n"
`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.Contains(string(loaded.Actions[0].Params), "port 8080") {
		t.Errorf("computed var not substituted: %s", loaded.Actions[0].Params)
	}
	if _, ok := loaded.Vars["replicas"]; !ok {
		t.Error("script globals should become vars")
	}
}

func TestLoadVarsScriptFailure(t *testing.T) {
	path := writeManifest(t, "site.yaml", `
version: 1
vars_script: |
  x = undefined_name
actions:
  - id: step
    kind: shell
    params:
      command: "true"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for broken vars script")
	}
}

func TestLoadCUE(t *testing.T) {
	path := writeManifest(t, "site.cue", `
version: 1
vars: {domain: "example.com"}
actions: [{
	id:   "web-conf"
	kind: "file"
	params: {
		path:    "/etc/caddy/Caddyfile"
		content: "{{ .domain }}\n"
	}
	sensitive: []
}]
`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(loaded.Actions))
	}
	if !strings.Contains(string(loaded.Actions[0].Params), "example.com") {
		t.Errorf("vars not substituted: %s", loaded.Actions[0].Params)
	}
}

func TestLoadCUERejectsUnknownKind(t *testing.T) {
	path := writeManifest(t, "site.cue", `
version: 1
actions: [{
	id:   "oops"
	kind: "container"
	params: {}
}]
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected schema violation for unknown kind")
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeManifest(t, "site.toml", "version = 1\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadRejectsEmptyActions(t *testing.T) {
	path := writeManifest(t, "site.yaml", "version: 1\nactions: []\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty action list")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	path := writeManifest(t, "site.yaml", `
version: 1
actions:
  - id: step
    kind: shell
    timeout: soon
    params:
      command: "true"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unparseable timeout")
	}
}

func TestActionSpecCarriesSensitiveAndSeverity(t *testing.T) {
	path := writeManifest(t, "site.yaml", `
version: 1
actions:
  - id: app-db
    kind: database
    severity: advisory
    sensitive: [password, admin_password]
    params:
      engine: postgres
      database: app
      password: hunter22
`)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	a := loaded.Actions[0]
	if a.Severity != engine.SeverityAdvisory {
		t.Errorf("severity = %s, want advisory", a.Severity)
	}
	if len(a.Sensitive) != 2 {
		t.Errorf("sensitive = %v, want two entries", a.Sensitive)
	}
}
