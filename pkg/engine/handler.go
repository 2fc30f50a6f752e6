package engine

import (
	"context"
	"fmt"
	"sort"
)

// Handler converges one kind of action. Check is a read-only precondition
// probe against live system state; Apply mutates the system toward the
// desired state and must be idempotent.
type Handler interface {
	// Kind returns the action kind this handler serves.
	Kind() Kind

	// ResourceClass names the host subsystem the handler mutates. The
	// executor never applies two actions of the same class concurrently.
	ResourceClass() ResourceClass

	// Check reports whether the action's desired state already holds.
	// It must not mutate system state. A probe that cannot answer returns
	// an error satisfying IsProbeUnavailable.
	Check(ctx context.Context, action *Action) (Verdict, error)

	// Apply converges the system to the action's desired state. The returned
	// detail is a short human-readable summary of what was done.
	Apply(ctx context.Context, action *Action) (string, error)
}

// Rollbacker is implemented by handlers that can restore the state they
// replaced. Rollback only ever runs on explicit user request.
type Rollbacker interface {
	Rollback(ctx context.Context, action *Action) (string, error)
}

// Registry maps action kinds to their handlers.
type Registry struct {
	handlers map[Kind]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register adds a handler. Registering a kind twice is a programming error.
func (r *Registry) Register(h Handler) error {
	if _, exists := r.handlers[h.Kind()]; exists {
		return NewStructuralError(
			fmt.Sprintf("handler already registered for kind %s", h.Kind()), nil).
			WithCode(ErrCodeValidation)
	}
	r.handlers[h.Kind()] = h
	return nil
}

// Get returns the handler for a kind.
func (r *Registry) Get(kind Kind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, NewStructuralError(
			fmt.Sprintf("no handler registered for kind %s", kind), nil).
			WithCode(ErrCodeNotFound)
	}
	return h, nil
}

// Kinds returns the registered kinds in lexical order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	out := make([]Kind, len(kinds))
	for i, k := range kinds {
		out[i] = Kind(k)
	}
	return out
}
