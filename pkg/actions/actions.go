// Package actions implements the engine handlers for every supported action
// kind: package sets, user accounts, database schemas, rendered files,
// service states, and shell steps. Handlers talk to the host exclusively
// through the system package facades so they stay testable against fakes.
package actions

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/convergo/convergo/pkg/engine"
	"github.com/convergo/convergo/pkg/system"
)

var validate = validator.New()

// Deps bundles the host facades shared by the handlers.
type Deps struct {
	Runner   system.Runner
	Packages *system.PackageManager
	Services *system.ServiceManager
	Users    *system.UserAdmin
	Log      zerolog.Logger
}

// NewDeps wires the default facades over the given runner.
func NewDeps(runner system.Runner, log zerolog.Logger) *Deps {
	return &Deps{
		Runner:   runner,
		Packages: system.NewPackageManager(runner, ""),
		Services: system.NewServiceManager(runner),
		Users:    system.NewUserAdmin(runner),
		Log:      log,
	}
}

// RegisterAll registers one handler per supported kind.
func RegisterAll(registry *engine.Registry, deps *Deps) error {
	handlers := []engine.Handler{
		NewPackageHandler(deps),
		NewUserHandler(deps),
		NewDatabaseHandler(deps),
		NewFileHandler(deps),
		NewServiceHandler(deps),
		NewShellHandler(deps),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// decodeParams strictly decodes and validates an action's params into out.
// Decoding failures are structural: the manifest is wrong, not the host.
func decodeParams(action *engine.Action, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(action.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return engine.NewStructuralError(
			fmt.Sprintf("invalid params for %s action", action.Kind), err).
			WithCode(engine.ErrCodeValidation).
			WithAction(action.ID)
	}
	if err := validate.Struct(out); err != nil {
		return engine.NewStructuralError(
			fmt.Sprintf("params for %s action failed validation", action.Kind), err).
			WithCode(engine.ErrCodeValidation).
			WithAction(action.ID)
	}
	return nil
}
