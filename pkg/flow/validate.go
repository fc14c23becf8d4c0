package flow

import (
	"fmt"
	"strings"
)

// Validate checks the graph-level invariants of a flow and returns every
// violation found, never stopping at the first:
//
//  1. step names are unique,
//  2. every dependency references an existing step,
//  3. the dependency graph is acyclic (Kahn's algorithm),
//  4. every on_error target references an existing step,
//  5. no step depends on another step's on_error handler (handlers are
//     excluded from normal scheduling, so depending on one is never
//     satisfiable in a well-defined way).
//
// An empty result means the flow is runnable.
func Validate(f *Flow) []string {
	var errs []string

	names := make(map[string]bool, len(f.Steps))
	for _, step := range f.Steps {
		if names[step.Name] {
			errs = append(errs, fmt.Sprintf("duplicate step name %q", step.Name))
		}
		names[step.Name] = true
	}

	for _, step := range f.Steps {
		for _, dep := range step.Dependencies {
			if !names[dep] {
				errs = append(errs, fmt.Sprintf("step %q depends on unknown step %q", step.Name, dep))
			}
		}
		if step.OnError != "" && !names[step.OnError] {
			errs = append(errs, fmt.Sprintf("step %q has unknown on_error target %q", step.Name, step.OnError))
		}
	}

	// Handlers never participate in normal scheduling, so a normal
	// dependency on one can never be satisfied.
	handlerOf := make(map[string]string)
	for _, step := range f.Steps {
		if step.OnError != "" && names[step.OnError] {
			if _, ok := handlerOf[step.OnError]; !ok {
				handlerOf[step.OnError] = step.Name
			}
		}
	}
	for _, step := range f.Steps {
		for _, dep := range step.Dependencies {
			if owner, ok := handlerOf[dep]; ok {
				errs = append(errs, fmt.Sprintf(
					"step %q depends on %q, which is the on_error handler of %q and never runs in normal scheduling",
					step.Name, dep, owner))
			}
		}
	}

	if remainder := cycleRemainder(f); len(remainder) > 0 {
		errs = append(errs, fmt.Sprintf("dependency cycle detected among steps: %s", strings.Join(remainder, ", ")))
	}

	return errs
}

// ValidateNodeTypes checks every step's node_type against a registry. It is
// a separate pass because the engine resolves node types at execution time;
// the standalone validate surfaces (CLI and HTTP) run both passes.
func ValidateNodeTypes(f *Flow, registry *Registry) []string {
	var errs []string
	for _, step := range f.Steps {
		if _, ok := registry.Lookup(step.NodeType); !ok {
			errs = append(errs, fmt.Sprintf("step %q uses unknown node type %q", step.Name, step.NodeType))
		}
	}
	return errs
}

// BuildPhases groups the flow's steps into topologically ordered phases via
// Kahn's algorithm: each phase is the set of steps whose remaining in-degree
// is zero, and may execute in parallel. Steps keep authoring order within a
// phase. Returns an error when a cycle prevents completion.
func BuildPhases(f *Flow) ([][]*Step, error) {
	names := make(map[string]bool, len(f.Steps))
	for i := range f.Steps {
		names[f.Steps[i].Name] = true
	}

	indegree := make(map[string]int, len(f.Steps))
	dependents := make(map[string][]string)
	for i := range f.Steps {
		step := &f.Steps[i]
		count := 0
		for _, dep := range step.Dependencies {
			// Unknown dependencies are a Validate error; skip them here so
			// phase construction stays well-defined.
			if !names[dep] {
				continue
			}
			count++
			dependents[dep] = append(dependents[dep], step.Name)
		}
		indegree[step.Name] = count
	}

	var phases [][]*Step
	remaining := len(f.Steps)

	for remaining > 0 {
		var phase []*Step
		for i := range f.Steps {
			step := &f.Steps[i]
			if indegree[step.Name] == 0 {
				phase = append(phase, step)
				indegree[step.Name] = -1 // consumed
			}
		}

		if len(phase) == 0 {
			var stuck []string
			for i := range f.Steps {
				if indegree[f.Steps[i].Name] > 0 {
					stuck = append(stuck, f.Steps[i].Name)
				}
			}
			return nil, fmt.Errorf("dependency cycle detected among steps: %s", strings.Join(stuck, ", "))
		}

		for _, step := range phase {
			for _, dep := range dependents[step.Name] {
				indegree[dep]--
			}
		}
		remaining -= len(phase)
		phases = append(phases, phase)
	}

	return phases, nil
}

// cycleRemainder runs the Kahn peel and returns the names of steps left with
// positive in-degree, in authoring order. Empty means acyclic.
func cycleRemainder(f *Flow) []string {
	if _, err := BuildPhases(f); err == nil {
		return nil
	}

	names := make(map[string]bool, len(f.Steps))
	for i := range f.Steps {
		names[f.Steps[i].Name] = true
	}

	indegree := make(map[string]int, len(f.Steps))
	dependents := make(map[string][]string)
	for i := range f.Steps {
		step := &f.Steps[i]
		for _, dep := range step.Dependencies {
			if !names[dep] {
				continue
			}
			indegree[step.Name]++
			dependents[dep] = append(dependents[dep], step.Name)
		}
	}

	queue := make([]string, 0, len(f.Steps))
	for i := range f.Steps {
		if indegree[f.Steps[i].Name] == 0 {
			queue = append(queue, f.Steps[i].Name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	var remainder []string
	for i := range f.Steps {
		if indegree[f.Steps[i].Name] > 0 {
			remainder = append(remainder, f.Steps[i].Name)
		}
	}
	return remainder
}

// errorOnlySet returns the names of every step that appears as some other
// step's on_error target. These steps are excluded from normal phase
// execution; they run only as handlers.
func errorOnlySet(f *Flow) map[string]bool {
	set := make(map[string]bool)
	for _, step := range f.Steps {
		if step.OnError != "" {
			set[step.OnError] = true
		}
	}
	return set
}
