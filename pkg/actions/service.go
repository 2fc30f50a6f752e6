package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/convergo/convergo/pkg/engine"
)

// ServiceParams declares the desired state of a systemd unit.
type ServiceParams struct {
	// Name is the unit name.
	Name string `json:"name" validate:"required"`

	// State is running or stopped. Empty leaves the run state alone.
	State string `json:"state,omitempty" validate:"omitempty,oneof=running stopped"`

	// Enabled controls boot enablement. Nil leaves it alone.
	Enabled *bool `json:"enabled,omitempty"`

	// DaemonReload reloads unit files before changing state, for freshly
	// installed or rewritten unit definitions.
	DaemonReload bool `json:"daemon_reload,omitempty"`
}

// ServiceHandler converges a systemd unit's run and enablement state.
type ServiceHandler struct {
	deps *Deps
}

// NewServiceHandler creates the service handler.
func NewServiceHandler(deps *Deps) *ServiceHandler {
	return &ServiceHandler{deps: deps}
}

func (h *ServiceHandler) Kind() engine.Kind                   { return engine.KindService }
func (h *ServiceHandler) ResourceClass() engine.ResourceClass { return engine.ResourceClassService }

// Check reports satisfied when the unit's active and enabled state already
// match the declaration.
func (h *ServiceHandler) Check(ctx context.Context, action *engine.Action) (engine.Verdict, error) {
	var params ServiceParams
	if err := decodeParams(action, &params); err != nil {
		return engine.VerdictUnknown, err
	}

	status, err := h.deps.Services.Status(ctx, params.Name)
	if err != nil {
		return engine.VerdictUnknown, engine.NewProbeUnavailableError(
			fmt.Sprintf("cannot read status of service %s", params.Name), err).
			WithAction(action.ID)
	}

	if params.State == "running" && !status.Active {
		return engine.VerdictUnsatisfied, nil
	}
	if params.State == "stopped" && status.Active {
		return engine.VerdictUnsatisfied, nil
	}
	if params.Enabled != nil && status.Enabled != *params.Enabled {
		return engine.VerdictUnsatisfied, nil
	}

	return engine.VerdictSatisfied, nil
}

// Apply converges the unit. Already-correct aspects are left untouched.
func (h *ServiceHandler) Apply(ctx context.Context, action *engine.Action) (string, error) {
	var params ServiceParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	if params.DaemonReload {
		if err := h.deps.Services.DaemonReload(ctx); err != nil {
			return "", engine.NewTransientError("daemon-reload failed", err).
				WithAction(action.ID)
		}
	}

	status, err := h.deps.Services.Status(ctx, params.Name)
	if err != nil {
		return "", engine.NewTransientError(
			fmt.Sprintf("cannot read status of service %s", params.Name), err).
			WithAction(action.ID)
	}

	changes := make([]string, 0, 2)

	if params.Enabled != nil && status.Enabled != *params.Enabled {
		if *params.Enabled {
			err = h.deps.Services.Enable(ctx, params.Name)
			changes = append(changes, "enabled")
		} else {
			err = h.deps.Services.Disable(ctx, params.Name)
			changes = append(changes, "disabled")
		}
		if err != nil {
			return "", engine.NewStructuralError(
				fmt.Sprintf("failed to change enablement of %s", params.Name), err).
				WithCode(engine.ErrCodeApplyFailed).
				WithAction(action.ID)
		}
	}

	switch {
	case params.State == "running" && !status.Active:
		if err := h.deps.Services.Start(ctx, params.Name); err != nil {
			return "", engine.NewStructuralError(
				fmt.Sprintf("failed to start %s", params.Name), err).
				WithCode(engine.ErrCodeApplyFailed).
				WithAction(action.ID)
		}
		changes = append(changes, "started")
	case params.State == "stopped" && status.Active:
		if err := h.deps.Services.Stop(ctx, params.Name); err != nil {
			return "", engine.NewStructuralError(
				fmt.Sprintf("failed to stop %s", params.Name), err).
				WithCode(engine.ErrCodeApplyFailed).
				WithAction(action.ID)
		}
		changes = append(changes, "stopped")
	}

	if len(changes) == 0 {
		return fmt.Sprintf("service %s already in desired state", params.Name), nil
	}
	return fmt.Sprintf("service %s: %s", params.Name, strings.Join(changes, ", ")), nil
}
