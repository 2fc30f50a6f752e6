// Package render produces file content from templates and substitution
// values. Rendering is deterministic: identical template and values yield
// byte-identical output, which is what makes content-hash preconditions work.
package render

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"text/template"
)

// Render executes a Go text template against the given values.
// Unknown keys are an error so typos in manifests fail loudly instead of
// rendering empty strings into config files.
func Render(tmpl string, values map[string]interface{}) (string, error) {
	t, err := template.New("content").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// RenderString substitutes values into a single scalar string. Strings
// without template markers pass through untouched.
func RenderString(s string, values map[string]interface{}) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	return Render(s, values)
}

// HashContent returns the hex SHA-256 of content. The same helper backs both
// the file probe and the file handler so their comparisons always agree.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
