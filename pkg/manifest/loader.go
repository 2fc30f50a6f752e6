// Package manifest loads the declarative manifest formats and turns them
// into engine actions. YAML is the primary format; CUE documents are
// accepted for manifests that want types and constraints. A Starlark
// vars_script can compute variables that static vars cannot express.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/convergo/convergo/pkg/engine"
)

var validate = validator.New()

// Loaded is the result of loading a manifest: the resolved actions, the
// run policy, and the variables after script evaluation.
type Loaded struct {
	Path    string
	Actions []engine.Action
	Policy  engine.RunPolicy
	Vars    map[string]interface{}
}

// Load reads, parses, resolves, and validates the manifest at path. The
// format is chosen by extension: .yaml and .yml parse as YAML, .cue as CUE.
func Load(path string) (*Loaded, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var doc Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
	case ".cue":
		if err := parseCUE(content, path, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q (want .yaml, .yml, or .cue)", ext)
	}

	loaded, err := Resolve(&doc)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	loaded.Path = path
	return loaded, nil
}

// Resolve validates a parsed document, evaluates its vars script, and
// substitutes variables into action params.
func Resolve(doc *Document) (*Loaded, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	vars, err := resolveVars(doc)
	if err != nil {
		return nil, err
	}

	policy, err := doc.Policy.ToRunPolicy()
	if err != nil {
		return nil, err
	}

	actions := make([]engine.Action, 0, len(doc.Actions))
	for i := range doc.Actions {
		spec := doc.Actions[i]
		substituted, err := substituteValue(spec.Params, vars)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", spec.ID, err)
		}
		spec.Params = substituted.(map[string]interface{})

		action, err := spec.toAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return &Loaded{Actions: actions, Policy: policy, Vars: vars}, nil
}

// resolveVars layers the vars script's globals over the static vars. The
// script sees the static vars as predeclared names.
func resolveVars(doc *Document) (map[string]interface{}, error) {
	vars := make(map[string]interface{}, len(doc.Vars))
	for k, v := range doc.Vars {
		vars[k] = v
	}

	if doc.VarsScript == "" {
		return vars, nil
	}

	computed, err := evalVarsScript(doc.VarsScript, vars)
	if err != nil {
		return nil, fmt.Errorf("vars_script: %w", err)
	}
	for k, v := range computed {
		vars[k] = v
	}
	return vars, nil
}

// VarNames returns the sorted variable names, for diagnostics.
func (l *Loaded) VarNames() []string {
	names := make([]string, 0, len(l.Vars))
	for k := range l.Vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
