package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/render"
	"github.com/convergo/convergo/pkg/system"
)

// backupSuffix marks the copy of the previous content kept for rollback.
const backupSuffix = ".convergo.bak"

// FileParams declares a rendered file.
type FileParams struct {
	// Path is the absolute destination path.
	Path string `json:"path" validate:"required"`

	// Content is the file body, either literal or a Go template.
	Content string `json:"content" validate:"required"`

	// Values are the substitution values for Content.
	Values map[string]interface{} `json:"values,omitempty"`

	// Mode is the octal permission string, e.g. "0644". Defaults to 0644.
	Mode string `json:"mode,omitempty" validate:"omitempty,len=4"`

	// Owner and Group set ownership when non-empty. Requires privileges.
	Owner string `json:"owner,omitempty"`
	Group string `json:"group,omitempty"`

	// Backup keeps the previous content next to the file for rollback.
	Backup bool `json:"backup,omitempty"`
}

func (p *FileParams) fileMode() (os.FileMode, error) {
	if p.Mode == "" {
		return 0o644, nil
	}
	parsed, err := strconv.ParseUint(p.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", p.Mode, err)
	}
	return os.FileMode(parsed), nil
}

// FileHandler converges a file's content, mode, and ownership. The content
// comparison is by SHA-256, so an unchanged render rewrites nothing and
// triggers no downstream service churn.
type FileHandler struct {
	deps *Deps
}

// NewFileHandler creates the file handler.
func NewFileHandler(deps *Deps) *FileHandler {
	return &FileHandler{deps: deps}
}

func (h *FileHandler) Kind() engine.Kind                   { return engine.KindFile }
func (h *FileHandler) ResourceClass() engine.ResourceClass { return engine.ResourceClassFile }

// Check reports satisfied when the file exists with the rendered content and
// the declared mode.
func (h *FileHandler) Check(ctx context.Context, action *engine.Action) (engine.Verdict, error) {
	var params FileParams
	if err := decodeParams(action, &params); err != nil {
		return engine.VerdictUnknown, err
	}

	desired, err := h.renderContent(action, &params)
	if err != nil {
		return engine.VerdictUnknown, err
	}

	current, err := os.ReadFile(params.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return engine.VerdictUnsatisfied, nil
		}
		return engine.VerdictUnknown, engine.NewProbeUnavailableError(
			fmt.Sprintf("cannot read %s", params.Path), err).
			WithAction(action.ID)
	}

	if render.HashContent(current) != render.HashContent([]byte(desired)) {
		return engine.VerdictUnsatisfied, nil
	}

	mode, err := params.fileMode()
	if err != nil {
		return engine.VerdictUnknown, engine.NewStructuralError("invalid file mode", err).
			WithCode(engine.ErrCodeValidation).WithAction(action.ID)
	}
	info, err := os.Stat(params.Path)
	if err != nil {
		return engine.VerdictUnknown, engine.NewProbeUnavailableError(
			fmt.Sprintf("cannot stat %s", params.Path), err).
			WithAction(action.ID)
	}
	if info.Mode().Perm() != mode.Perm() {
		return engine.VerdictUnsatisfied, nil
	}

	return engine.VerdictSatisfied, nil
}

// Apply renders and writes the file.
func (h *FileHandler) Apply(ctx context.Context, action *engine.Action) (string, error) {
	var params FileParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	desired, err := h.renderContent(action, &params)
	if err != nil {
		return "", err
	}
	mode, err := params.fileMode()
	if err != nil {
		return "", engine.NewStructuralError("invalid file mode", err).
			WithCode(engine.ErrCodeValidation).WithAction(action.ID)
	}

	if params.Backup {
		if prev, err := os.ReadFile(params.Path); err == nil {
			if err := os.WriteFile(params.Path+backupSuffix, prev, 0o600); err != nil {
				return "", engine.NewStructuralError(
					fmt.Sprintf("failed to back up %s", params.Path), err).
					WithCode(engine.ErrCodeApplyFailed).WithAction(action.ID)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(params.Path), 0o755); err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("failed to create parent directory for %s", params.Path), err).
			WithCode(engine.ErrCodeApplyFailed).WithAction(action.ID)
	}
	if err := os.WriteFile(params.Path, []byte(desired), mode); err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("failed to write %s", params.Path), err).
			WithCode(engine.ErrCodeApplyFailed).WithAction(action.ID)
	}
	// WriteFile honors umask; enforce the exact mode.
	if err := os.Chmod(params.Path, mode); err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("failed to chmod %s", params.Path), err).
			WithCode(engine.ErrCodeApplyFailed).WithAction(action.ID)
	}

	if params.Owner != "" || params.Group != "" {
		if err := h.chown(ctx, &params); err != nil {
			return "", engine.NewStructuralError(
				fmt.Sprintf("failed to chown %s", params.Path), err).
				WithCode(engine.ErrCodeApplyFailed).WithAction(action.ID)
		}
	}

	return fmt.Sprintf("wrote %s (%d bytes, mode %s, sha256 %s)",
		params.Path, len(desired), mode.Perm(), render.HashContent([]byte(desired))[:12]), nil
}

// Rollback restores the backed-up previous content. Runs only on explicit
// user request.
func (h *FileHandler) Rollback(ctx context.Context, action *engine.Action) (string, error) {
	var params FileParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	prev, err := os.ReadFile(params.Path + backupSuffix)
	if err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("no backup available for %s", params.Path), err).
			WithCode(engine.ErrCodeNotFound).WithAction(action.ID)
	}

	mode, err := params.fileMode()
	if err != nil {
		return "", engine.NewStructuralError("invalid file mode", err).
			WithCode(engine.ErrCodeValidation).WithAction(action.ID)
	}
	if err := os.WriteFile(params.Path, prev, mode); err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("failed to restore %s", params.Path), err).
			WithCode(engine.ErrCodeApplyFailed).WithAction(action.ID)
	}
	return fmt.Sprintf("restored %s from backup", params.Path), nil
}

func (h *FileHandler) renderContent(action *engine.Action, params *FileParams) (string, error) {
	out, err := render.Render(params.Content, params.Values)
	if err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("failed to render content for %s", params.Path), err).
			WithCode(engine.ErrCodeValidation).WithAction(action.ID)
	}
	return out, nil
}

func (h *FileHandler) chown(ctx context.Context, params *FileParams) error {
	ownerSpec := params.Owner
	if params.Group != "" {
		ownerSpec += ":" + params.Group
	}
	result, err := h.deps.Runner.Run(ctx, system.Command{
		Name: "chown",
		Args: []string{ownerSpec, params.Path},
	})
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("chown: %s", result.Stderr)
	}
	return nil
}
