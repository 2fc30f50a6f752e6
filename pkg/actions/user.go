package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

// UserParams declares a local account.
type UserParams struct {
	// Name is the account name.
	Name string `json:"name" validate:"required"`

	// Home is the home directory. Empty leaves the system default.
	Home string `json:"home,omitempty"`

	// Shell is the login shell. Empty leaves the system default.
	Shell string `json:"shell,omitempty"`

	// Groups are supplementary groups the account must belong to.
	Groups []string `json:"groups,omitempty"`

	// System marks the account as a system account on creation.
	System bool `json:"system,omitempty"`
}

// UserHandler converges a local account.
type UserHandler struct {
	deps *Deps
}

// NewUserHandler creates the user handler.
func NewUserHandler(deps *Deps) *UserHandler {
	return &UserHandler{deps: deps}
}

func (h *UserHandler) Kind() engine.Kind                   { return engine.KindUser }
func (h *UserHandler) ResourceClass() engine.ResourceClass { return engine.ResourceClassUser }

// Check reports satisfied when the account exists with the declared home,
// shell, and group memberships.
func (h *UserHandler) Check(ctx context.Context, action *engine.Action) (engine.Verdict, error) {
	var params UserParams
	if err := decodeParams(action, &params); err != nil {
		return engine.VerdictUnknown, err
	}

	status, err := h.deps.Users.Lookup(ctx, params.Name)
	if err != nil {
		return engine.VerdictUnknown, engine.NewProbeUnavailableError(
			fmt.Sprintf("cannot look up user %s", params.Name), err).
			WithAction(action.ID)
	}

	if !status.Exists {
		return engine.VerdictUnsatisfied, nil
	}
	if params.Home != "" && status.Home != params.Home {
		return engine.VerdictUnsatisfied, nil
	}
	if params.Shell != "" && status.Shell != params.Shell {
		return engine.VerdictUnsatisfied, nil
	}
	if !hasAllGroups(status.Groups, params.Groups) {
		return engine.VerdictUnsatisfied, nil
	}

	return engine.VerdictSatisfied, nil
}

// Apply creates the account or reconciles an existing one.
func (h *UserHandler) Apply(ctx context.Context, action *engine.Action) (string, error) {
	var params UserParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	status, err := h.deps.Users.Lookup(ctx, params.Name)
	if err != nil {
		return "", engine.NewTransientError(
			fmt.Sprintf("cannot look up user %s", params.Name), err).
			WithAction(action.ID)
	}

	spec := system.UserSpec{
		Name:   params.Name,
		Home:   params.Home,
		Shell:  params.Shell,
		Groups: params.Groups,
		System: params.System,
	}

	if !status.Exists {
		if err := h.deps.Users.Create(ctx, spec); err != nil {
			return "", engine.NewStructuralError(
				fmt.Sprintf("failed to create user %s", params.Name), err).
				WithCode(engine.ErrCodeApplyFailed).
				WithAction(action.ID)
		}
		return fmt.Sprintf("created user %s", params.Name), nil
	}

	if err := h.deps.Users.Modify(ctx, spec); err != nil {
		return "", engine.NewStructuralError(
			fmt.Sprintf("failed to modify user %s", params.Name), err).
			WithCode(engine.ErrCodeApplyFailed).
			WithAction(action.ID)
	}
	return fmt.Sprintf("reconciled user %s", params.Name), nil
}

// hasAllGroups reports whether every wanted group is in the current set.
func hasAllGroups(current, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	sorted := append([]string(nil), current...)
	sort.Strings(sorted)
	for _, g := range wanted {
		i := sort.SearchStrings(sorted, g)
		if i >= len(sorted) || sorted[i] != g {
			return false
		}
	}
	return true
}
