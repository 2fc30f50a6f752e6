package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

// PackageParams declares a set of packages and their desired state.
type PackageParams struct {
	// Packages lists the package names, optionally pinned.
	Packages []PackageSpec `json:"packages" validate:"required,min=1,dive"`

	// State is present, absent, or latest. Defaults to present.
	State string `json:"state,omitempty" validate:"omitempty,oneof=present absent latest"`

	// Manager overrides package manager detection (apt, dnf, yum, zypper).
	Manager string `json:"manager,omitempty" validate:"omitempty,oneof=apt dnf yum zypper"`
}

// PackageSpec is one package in the set.
type PackageSpec struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version,omitempty"`
}

func (p *PackageParams) state() string {
	if p.State == "" {
		return "present"
	}
	return p.State
}

// PackageHandler converges a set of OS packages.
type PackageHandler struct {
	deps *Deps
}

// NewPackageHandler creates the package handler.
func NewPackageHandler(deps *Deps) *PackageHandler {
	return &PackageHandler{deps: deps}
}

func (h *PackageHandler) Kind() engine.Kind                   { return engine.KindPackage }
func (h *PackageHandler) ResourceClass() engine.ResourceClass { return engine.ResourceClassPackage }

// manager honors a per-action manager override.
func (h *PackageHandler) manager(params *PackageParams) *system.PackageManager {
	if params.Manager != "" {
		return system.NewPackageManager(h.deps.Runner, params.Manager)
	}
	return h.deps.Packages
}

// Check reports satisfied when every package in the set already matches the
// desired state.
func (h *PackageHandler) Check(ctx context.Context, action *engine.Action) (engine.Verdict, error) {
	var params PackageParams
	if err := decodeParams(action, &params); err != nil {
		return engine.VerdictUnknown, err
	}

	for _, spec := range params.Packages {
		status, err := h.manager(&params).Query(ctx, spec.Name)
		if err != nil {
			return engine.VerdictUnknown, engine.NewProbeUnavailableError(
				fmt.Sprintf("cannot query package %s", spec.Name), err).
				WithAction(action.ID)
		}

		switch params.state() {
		case "present":
			if !status.Installed {
				return engine.VerdictUnsatisfied, nil
			}
			if spec.Version != "" && status.Version != spec.Version {
				return engine.VerdictUnsatisfied, nil
			}
		case "absent":
			if status.Installed {
				return engine.VerdictUnsatisfied, nil
			}
		case "latest":
			// Without an index refresh there is no cheap way to know whether
			// a newer version exists; latest always re-applies.
			return engine.VerdictUnsatisfied, nil
		}
	}

	return engine.VerdictSatisfied, nil
}

// Apply converges every package in the set. Packages already in the desired
// state are left alone so a partial retry never redoes finished work.
func (h *PackageHandler) Apply(ctx context.Context, action *engine.Action) (string, error) {
	var params PackageParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	changed := make([]string, 0, len(params.Packages))
	for _, spec := range params.Packages {
		status, err := h.manager(&params).Query(ctx, spec.Name)
		if err != nil {
			return "", classifyPackageError(action, spec.Name, err)
		}

		switch params.state() {
		case "present":
			if status.Installed && (spec.Version == "" || status.Version == spec.Version) {
				continue
			}
			if err := h.manager(&params).Install(ctx, spec.Name, spec.Version); err != nil {
				return "", classifyPackageError(action, spec.Name, err)
			}
			changed = append(changed, spec.Name)
		case "absent":
			if !status.Installed {
				continue
			}
			if err := h.manager(&params).Remove(ctx, spec.Name); err != nil {
				return "", classifyPackageError(action, spec.Name, err)
			}
			changed = append(changed, spec.Name)
		case "latest":
			if !status.Installed {
				if err := h.manager(&params).Install(ctx, spec.Name, ""); err != nil {
					return "", classifyPackageError(action, spec.Name, err)
				}
			} else if err := h.manager(&params).Upgrade(ctx, spec.Name); err != nil {
				return "", classifyPackageError(action, spec.Name, err)
			}
			changed = append(changed, spec.Name)
		}
	}

	if len(changed) == 0 {
		return "all packages already in desired state", nil
	}
	return fmt.Sprintf("%s: %s", params.state(), strings.Join(changed, ", ")), nil
}

// classifyPackageError treats dpkg/rpm lock contention and mirror trouble as
// transient; everything else fails fast.
func classifyPackageError(action *engine.Action, name string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "could not get lock") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "timed out") {
		return engine.NewTransientError(
			fmt.Sprintf("package operation on %s hit a transient condition", name), err).
			WithCode(engine.ErrCodeApplyFailed).
			WithAction(action.ID)
	}
	return engine.NewStructuralError(
		fmt.Sprintf("package operation on %s failed", name), err).
		WithCode(engine.ErrCodeApplyFailed).
		WithAction(action.ID)
}
