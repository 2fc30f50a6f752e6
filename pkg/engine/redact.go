package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RedactedToken replaces sensitive parameter values in all textual output.
const RedactedToken = "[redacted]"

// Redactor removes sensitive parameter values from text before it reaches
// logs, reports, or error messages. A nil Redactor redacts nothing.
type Redactor struct {
	values []string
}

// NewRedactor creates a redactor over the given secret values. Longer values
// are replaced first so partial overlaps cannot leak a suffix.
func NewRedactor(values []string) *Redactor {
	uniq := make(map[string]bool, len(values))
	kept := make([]string, 0, len(values))
	for _, v := range values {
		// Redacting very short strings would mangle unrelated text.
		if len(v) < 3 || uniq[v] {
			continue
		}
		uniq[v] = true
		kept = append(kept, v)
	}
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	return &Redactor{values: kept}
}

// NewRedactorFromActions collects the values of every sensitive-flagged
// parameter across the given actions.
func NewRedactorFromActions(actions []Action) *Redactor {
	values := make([]string, 0)
	for i := range actions {
		values = append(values, sensitiveValues(&actions[i])...)
	}
	return NewRedactor(values)
}

// Redact replaces every known sensitive value in s with the redaction token.
func (r *Redactor) Redact(s string) string {
	if r == nil || len(r.values) == 0 || s == "" {
		return s
	}
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, RedactedToken)
	}
	return s
}

// RedactParams returns the action's params with sensitive fields replaced by
// the redaction token, for safe rendering.
func RedactParams(action *Action) (json.RawMessage, error) {
	if len(action.Sensitive) == 0 {
		return action.Params, nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal(action.Params, &params); err != nil {
		return nil, NewStructuralError("failed to decode params for redaction", err).
			WithCode(ErrCodeValidation).WithAction(action.ID)
	}
	for _, name := range action.Sensitive {
		if _, ok := params[name]; ok {
			params[name] = RedactedToken
		}
	}
	out, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode redacted params: %w", err)
	}
	return out, nil
}

// sensitiveValues extracts the string values of sensitive params.
func sensitiveValues(action *Action) []string {
	if len(action.Sensitive) == 0 || len(action.Params) == 0 {
		return nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(action.Params, &params); err != nil {
		return nil
	}
	values := make([]string, 0, len(action.Sensitive))
	for _, name := range action.Sensitive {
		if v, ok := params[name]; ok {
			switch s := v.(type) {
			case string:
				values = append(values, s)
			default:
				values = append(values, fmt.Sprintf("%v", v))
			}
		}
	}
	return values
}
