package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

// DatabaseParams declares a database schema, its owning role, and grants.
// Password fields belong in the action's sensitive list.
type DatabaseParams struct {
	// Engine is postgres or mysql.
	Engine string `json:"engine" validate:"required,oneof=postgres mysql"`

	// Database is the schema to ensure.
	Database string `json:"database" validate:"required"`

	// Role is the login role that owns the database. Empty skips role handling.
	Role string `json:"role,omitempty"`

	// Password is the role's password, used only on role creation.
	Password string `json:"password,omitempty"`

	// Privileges is the grant set for the role, defaulting to ALL PRIVILEGES.
	Privileges string `json:"privileges,omitempty"`

	// AdminUser and AdminPassword authenticate the client.
	AdminUser     string `json:"admin_user,omitempty"`
	AdminPassword string `json:"admin_password,omitempty"`
}

// DatabaseHandler converges a database schema and role through the engine's
// command line client.
type DatabaseHandler struct {
	deps *Deps
}

// NewDatabaseHandler creates the database handler.
func NewDatabaseHandler(deps *Deps) *DatabaseHandler {
	return &DatabaseHandler{deps: deps}
}

func (h *DatabaseHandler) Kind() engine.Kind                   { return engine.KindDatabase }
func (h *DatabaseHandler) ResourceClass() engine.ResourceClass { return engine.ResourceClassDatabase }

func (h *DatabaseHandler) admin(params *DatabaseParams) *system.DatabaseAdmin {
	return system.NewDatabaseAdmin(
		h.deps.Runner,
		system.DatabaseEngine(params.Engine),
		params.AdminUser,
		params.AdminPassword,
	)
}

// Check reports satisfied when the database and role both exist. Existence
// probes are read-only; an unreachable server yields an unknown verdict.
func (h *DatabaseHandler) Check(ctx context.Context, action *engine.Action) (engine.Verdict, error) {
	var params DatabaseParams
	if err := decodeParams(action, &params); err != nil {
		return engine.VerdictUnknown, err
	}

	admin := h.admin(&params)

	dbExists, err := admin.DatabaseExists(ctx, params.Database)
	if err != nil {
		return engine.VerdictUnknown, engine.NewProbeUnavailableError(
			fmt.Sprintf("cannot query database %s", params.Database), err).
			WithAction(action.ID)
	}
	if !dbExists {
		return engine.VerdictUnsatisfied, nil
	}

	if params.Role != "" {
		roleExists, err := admin.RoleExists(ctx, params.Role)
		if err != nil {
			return engine.VerdictUnknown, engine.NewProbeUnavailableError(
				fmt.Sprintf("cannot query role %s", params.Role), err).
				WithAction(action.ID)
		}
		if !roleExists {
			return engine.VerdictUnsatisfied, nil
		}
	}

	return engine.VerdictSatisfied, nil
}

// Apply creates the role and database as needed, then applies the grant.
// Each step re-checks existence so a retry never fails on already-done work.
func (h *DatabaseHandler) Apply(ctx context.Context, action *engine.Action) (string, error) {
	var params DatabaseParams
	if err := decodeParams(action, &params); err != nil {
		return "", err
	}

	admin := h.admin(&params)
	changes := make([]string, 0, 3)

	if params.Role != "" {
		roleExists, err := admin.RoleExists(ctx, params.Role)
		if err != nil {
			return "", classifyDatabaseError(action, "query role", err)
		}
		if !roleExists {
			if err := admin.CreateRole(ctx, params.Role, params.Password); err != nil {
				return "", classifyDatabaseError(action, "create role", err)
			}
			changes = append(changes, fmt.Sprintf("created role %s", params.Role))
		}
	}

	dbExists, err := admin.DatabaseExists(ctx, params.Database)
	if err != nil {
		return "", classifyDatabaseError(action, "query database", err)
	}
	if !dbExists {
		if err := admin.CreateDatabase(ctx, params.Database, params.Role); err != nil {
			return "", classifyDatabaseError(action, "create database", err)
		}
		changes = append(changes, fmt.Sprintf("created database %s", params.Database))
	}

	if params.Role != "" {
		if err := admin.Grant(ctx, params.Database, params.Role, params.Privileges); err != nil {
			return "", classifyDatabaseError(action, "grant", err)
		}
		changes = append(changes, fmt.Sprintf("granted %s on %s to %s",
			grantName(params.Privileges), params.Database, params.Role))
	}

	if len(changes) == 0 {
		return fmt.Sprintf("database %s already in desired state", params.Database), nil
	}
	return strings.Join(changes, "; "), nil
}

func grantName(privileges string) string {
	if privileges == "" {
		return "ALL PRIVILEGES"
	}
	return privileges
}

// classifyDatabaseError treats connection trouble as transient and statement
// failures as structural.
func classifyDatabaseError(action *engine.Action, op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "could not connect") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "server is starting up") {
		return engine.NewTransientError(
			fmt.Sprintf("database %s hit a transient condition", op), err).
			WithCode(engine.ErrCodeApplyFailed).
			WithAction(action.ID)
	}
	return engine.NewStructuralError(
		fmt.Sprintf("database %s failed", op), err).
		WithCode(engine.ErrCodeApplyFailed).
		WithAction(action.ID)
}
