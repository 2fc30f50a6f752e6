package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

// ShellParams declares an imperative shell step, the escape hatch for state
// the typed kinds cannot express. Without a precondition the step runs every
// time, so manifests should prefer creates or unless.
type ShellParams struct {
	// Command is passed to sh -c.
	Command string `json:"command" validate:"required"`

	// Creates marks the step satisfied when this path exists.
	Creates string `json:"creates,omitempty"`

	// Unless marks the step satisfied when this probe command exits zero.
	Unless string `json:"unless,omitempty"`

	// Dir is the working directory.
	Dir string `json:"dir,omitempty"`

	// Environment holds extra KEY=VALUE entries for the command.
	Environment map[string]string `json:"environment,omitempty"`
}

// ShellHandler runs shell steps.
type ShellHandler struct {
	deps *Deps
}

// NewShellHandler creates the shell handler.
func NewShellHandler(deps *Deps) *ShellHandler {
	return &ShellHandler{deps: deps}
}

func (h *ShellHandler) Kind() engine.Kind                   { return engine.KindShell }
func (h *ShellHandler) ResourceClass() engine.ResourceClass { return engine.ResourceClassShell }

// Check evaluates the creates and unless preconditions.
func (h *ShellHandler) Check(ctx context.Context, action *engine.Action) (engine.Verdict, error) {
	var params ShellParams
	if err := decodeParams(action, &params); err != nil {
		return engine.VerdictUnknown, err
	}

	if params.Creates != "" {
		if _, err := os.Stat(params.Creates); err == nil {
			return engine.VerdictSatisfied, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return engine.VerdictUnknown, engine.NewProbeUnavailableError(
				fmt.Sprintf("cannot stat %s", params.Creates), err).
				WithAction(action.ID)
		}
		return engine.VerdictUnsatisfied, nil
	}

	if params.Unless != "" {
		result, err := h.deps.Runner.Run(ctx, h.command(params.Unless, &params))
		if err != nil {
			return engine.VerdictUnknown, engine.NewProbeUnavailableError(
				"unless probe could not run", err).
				WithAction(action.ID)
		}
		if result.Ok() {
			return engine.VerdictSatisfied, nil
		}
		return engine.VerdictUnsatisfied, nil
	}

	// No precondition: the step always runs.
	return engine.VerdictUnsatisfied, nil
}

// Apply runs the command and reports its trimmed output.
func (h *ShellHandler) Apply(ctx context.Context, action *engine.Action) (string, error) {
	var params ShellParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	result, err := h.deps.Runner.Run(ctx, h.command(params.Command, &params))
	if err != nil {
		return "", engine.NewTransientError("shell step could not run", err).
			WithCode(engine.ErrCodeApplyFailed).
			WithAction(action.ID)
	}
	if !result.Ok() {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(result.Stdout)
		}
		return "", engine.NewStructuralError(
			fmt.Sprintf("shell step exited %d: %s", result.ExitCode, detail), nil).
			WithCode(engine.ErrCodeApplyFailed).
			WithAction(action.ID)
	}

	out := strings.TrimSpace(result.Stdout)
	if out == "" {
		return "shell step completed", nil
	}
	return out, nil
}

func (h *ShellHandler) command(script string, params *ShellParams) system.Command {
	if params.Dir != "" {
		script = fmt.Sprintf("cd %s && %s", params.Dir, script)
	}

	env := make([]string, 0, len(params.Environment))
	for k, v := range params.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return system.Command{
		Name: "sh",
		Args: []string{"-c", script},
		Env:  env,
	}
}
