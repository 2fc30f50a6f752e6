package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the validated dependency graph over a manifest's actions.
// Construction fails on duplicate IDs, dangling references, and cycles, so a
// Graph in hand is always executable.
type Graph struct {
	// Actions maps action ID to the action.
	Actions map[string]*Action

	// Order is the deterministic topological order: Kahn's algorithm with a
	// lexical tie-break on action ID.
	Order []string

	// Levels groups Order into waves of mutually independent actions.
	// Every action in level N has all dependencies in levels < N.
	Levels [][]string

	// Dependents maps action ID to the IDs that directly depend on it.
	Dependents map[string][]string

	// Dependencies maps action ID to its direct dependency IDs.
	Dependencies map[string][]string
}

// Action returns the action with the given ID, or nil.
func (g *Graph) Action(id string) *Action {
	return g.Actions[id]
}

// TransitiveDependents returns every action reachable downstream of the given
// IDs, not including the IDs themselves. Used to decide what to skip when a
// dependency fails.
func (g *Graph) TransitiveDependents(ids ...string) map[string]bool {
	reached := make(map[string]bool)
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents[id] {
			if !reached[dep] {
				reached[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return reached
}

// GraphBuilder assembles and validates a Graph from a set of actions.
type GraphBuilder struct {
	actions map[string]*Action

	// dependents maps action IDs to the IDs that depend on them
	dependents map[string][]string

	// dependencies maps action IDs to their dependency IDs
	dependencies map[string][]string

	// inDegree tracks the number of unmet dependencies per node
	inDegree map[string]int
}

// NewGraphBuilder creates a new graph builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		actions:      make(map[string]*Action),
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		inDegree:     make(map[string]int),
	}
}

// Build validates the actions and constructs the execution graph.
// All failures are structural and surface before any action runs.
func (b *GraphBuilder) Build(actions []Action) (*Graph, error) {
	if err := b.initialize(actions); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	order, levels, err := b.computeOrder()
	if err != nil {
		return nil, err
	}

	return &Graph{
		Actions:      b.actions,
		Order:        order,
		Levels:       levels,
		Dependents:   b.dependents,
		Dependencies: b.dependencies,
	}, nil
}

// initialize indexes the actions and wires the adjacency lists.
func (b *GraphBuilder) initialize(actions []Action) error {
	for i := range actions {
		action := &actions[i]
		if action.ID == "" {
			return NewGraphError("action has empty ID")
		}
		if err := action.Kind.Validate(); err != nil {
			return NewGraphError(err.Error()).WithAction(action.ID)
		}
		if _, exists := b.actions[action.ID]; exists {
			return NewGraphError(fmt.Sprintf("duplicate action ID: %s", action.ID))
		}

		b.actions[action.ID] = action
		b.dependents[action.ID] = make([]string, 0)
		b.dependencies[action.ID] = make([]string, 0)
		b.inDegree[action.ID] = 0
	}

	for _, action := range b.actions {
		for _, dep := range action.DependsOn {
			if _, exists := b.actions[dep]; !exists {
				return NewGraphError(
					fmt.Sprintf("action %s depends on unknown action %s", action.ID, dep),
				).WithAction(action.ID)
			}
			if dep == action.ID {
				return NewGraphError(
					fmt.Sprintf("action %s depends on itself", action.ID),
				).WithAction(action.ID)
			}

			b.dependents[dep] = append(b.dependents[dep], action.ID)
			b.dependencies[action.ID] = append(b.dependencies[action.ID], dep)
			b.inDegree[action.ID]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to find circular dependencies.
// The error names the actions participating in the cycle.
func (b *GraphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	ids := b.sortedIDs()
	for _, id := range ids {
		if !visited[id] {
			if cycle := b.findCycle(id, visited, onStack, nil); cycle != nil {
				return NewGraphError(
					fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
				)
			}
		}
	}

	return nil
}

// findCycle performs DFS and returns the cycle path when one exists.
func (b *GraphBuilder) findCycle(
	id string,
	visited map[string]bool,
	onStack map[string]bool,
	path []string,
) []string {
	visited[id] = true
	onStack[id] = true
	path = append(path, id)

	for _, dependent := range b.dependents[id] {
		if !visited[dependent] {
			if cycle := b.findCycle(dependent, visited, onStack, path); cycle != nil {
				return cycle
			}
		} else if onStack[dependent] {
			start := 0
			for i, p := range path {
				if p == dependent {
					start = i
					break
				}
			}
			return append(append([]string(nil), path[start:]...), dependent)
		}
	}

	onStack[id] = false
	return nil
}

// computeOrder runs Kahn's algorithm. The ready set is kept sorted so the
// resulting order is identical for identical inputs.
func (b *GraphBuilder) computeOrder() ([]string, [][]string, error) {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	current := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}
	sort.Strings(current)

	order := make([]string, 0, len(b.actions))
	levels := make([][]string, 0)

	for len(current) > 0 {
		levels = append(levels, current)
		order = append(order, current...)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range b.dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}

	// Unreachable if cycle detection holds.
	if len(order) != len(b.actions) {
		return nil, nil, NewGraphError("topological sort did not cover all actions").
			WithCode(ErrCodeInternal)
	}

	return order, levels, nil
}

// sortedIDs returns all action IDs in lexical order for deterministic traversal.
func (b *GraphBuilder) sortedIDs() []string {
	ids := make([]string, 0, len(b.actions))
	for id := range b.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToDOT renders the graph in DOT format for Graphviz visualization.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph actions {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, id := range g.Order {
		action := g.Actions[id]
		label := fmt.Sprintf("%s\\n%s", id, action.Kind)
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\", fillcolor=%q, style=\"filled,rounded\"];\n",
			id, label, kindColor(action.Kind)))
	}
	sb.WriteString("\n")

	for _, id := range g.Order {
		deps := append([]string(nil), g.Dependencies[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, id))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// kindColor returns a fill color per action kind for DOT output.
func kindColor(k Kind) string {
	switch k {
	case KindPackage:
		return "lightgreen"
	case KindService:
		return "lightblue"
	case KindFile:
		return "lightyellow"
	case KindDatabase:
		return "lightpink"
	case KindUser:
		return "lavender"
	case KindShell:
		return "lightgray"
	default:
		return "white"
	}
}
