package manifest

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// manifestSchema constrains CUE manifests before decoding. CUE unification
// reports constraint violations with file positions, which is the reason to
// write a manifest in CUE instead of YAML.
const manifestSchema = `
version: 1
vars?: {...}
vars_script?: string
policy?: {
	on_failure?:     "halt" | "continue"
	max_retries?:    int & >=0
	action_timeout?: string
	run_timeout?:    string
	parallelism?:    int & >=1 & <=64
}
actions: [...{
	id:          string & !=""
	kind:        "package" | "user" | "database" | "file" | "service" | "shell"
	depends_on?: [...string]
	params:      {...}
	sensitive?:  [...string]
	severity?:   "required" | "advisory"
	timeout?:    string
	max_retries?: int & >=0
}]
`

// parseCUE compiles a CUE manifest, unifies it with the schema, and decodes
// it into a document.
func parseCUE(content []byte, path string, doc *Document) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(manifestSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}

	val := ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to parse manifest %s: %s", path, cueDetails(err))
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest %s violates schema: %s", path, cueDetails(err))
	}

	if err := unified.Decode(doc); err != nil {
		return fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return nil
}

// cueDetails flattens a CUE error list into one readable message with
// positions.
func cueDetails(err error) string {
	errs := cueerrors.Errors(err)
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, cueerrors.Details(e, nil))
	}
	return strings.TrimSpace(strings.Join(parts, "; "))
}
