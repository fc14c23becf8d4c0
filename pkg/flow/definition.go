// Package flow provides the IronFlow execution engine: flow definitions,
// validation, topological phase scheduling, the shared run context, the node
// registry, and the state-store contract.
//
// A flow is a named DAG of steps. Each step names a node type from the
// registry, carries an opaque config map, and may declare dependencies, a
// retry/timeout policy, a conditional route, and an on_error handler. The
// Engine drives a validated flow to a terminal status against a bounded
// worker pool, persisting every state transition through a StateStore.
package flow

import (
	"fmt"
	"os"

	"github.com/tombee/ironflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Retry defaults applied when a step omits its retry block.
const (
	// DefaultMaxRetries is the default number of retries after the first
	// attempt (zero: a step runs exactly once).
	DefaultMaxRetries = 0

	// DefaultBackoffSeconds is the base backoff between attempts. The n-th
	// retry waits backoff_s * 2^(n-1) seconds.
	DefaultBackoffSeconds = 1.0
)

// Retry configures per-step retry behavior.
type Retry struct {
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// BackoffSeconds is the base delay between attempts; it doubles after
	// every failed attempt.
	BackoffSeconds float64 `yaml:"backoff_s" json:"backoff_s"`
}

// Step is one node of a flow. Immutable after load.
type Step struct {
	// Name uniquely identifies the step within its flow.
	Name string `yaml:"name" json:"name"`

	// NodeType selects the executor from the node registry.
	NodeType string `yaml:"node_type" json:"node_type"`

	// Config is passed opaquely to the node implementation. The loader
	// injects the step name under the _step_name key so conditional nodes
	// can address their _route_<step> context key.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`

	// Dependencies lists step names that must settle before this step runs.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// Retry configures retry count and backoff. Defaults: no retries,
	// one-second base backoff.
	Retry Retry `yaml:"retry,omitempty" json:"retry"`

	// TimeoutSeconds bounds each attempt; zero means no timeout.
	TimeoutSeconds float64 `yaml:"timeout_s,omitempty" json:"timeout_s,omitempty"`

	// Route makes the step conditional: it runs only if some dependency
	// wrote _route_<dependency> equal to this value.
	Route string `yaml:"route,omitempty" json:"route,omitempty"`

	// OnError names a sibling step to run if this step fails terminally.
	OnError string `yaml:"on_error,omitempty" json:"on_error,omitempty"`
}

// MaxAttempts returns the total number of attempts the step may make.
func (s *Step) MaxAttempts() int {
	if s.Retry.MaxRetries < 0 {
		return 1
	}
	return s.Retry.MaxRetries + 1
}

// Flow is a named, ordered collection of steps forming a DAG.
type Flow struct {
	// Name identifies the flow; recorded on every run.
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable context (optional).
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Steps in authoring order. Scheduling order is derived from
	// dependencies, but authoring order breaks ties deterministically.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step returns the step with the given name, or nil.
func (f *Flow) Step(name string) *Step {
	for i := range f.Steps {
		if f.Steps[i].Name == name {
			return &f.Steps[i]
		}
	}
	return nil
}

// Parse loads a flow definition from YAML (or JSON, which YAML accepts).
// It applies retry defaults, injects _step_name into every step config, and
// enforces the loader-level invariants: a non-empty flow name, non-empty
// unique step names, and a node type on every step. Graph-level validation
// (dependencies, cycles, handlers) is Validate's job.
func Parse(data []byte) (*Flow, error) {
	var f Flow
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parsing flow definition")
	}

	if f.Name == "" {
		return nil, &errors.ValidationError{
			Field:      "name",
			Message:    "flow has no name",
			Suggestion: "Add a top-level 'name' key to the flow file",
		}
	}

	seen := make(map[string]bool, len(f.Steps))
	for i := range f.Steps {
		step := &f.Steps[i]

		if step.Name == "" {
			return nil, &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].name", i),
				Message:    "step has no name",
				Suggestion: "Every step needs a unique 'name' key",
			}
		}
		if seen[step.Name] {
			return nil, &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].name", i),
				Message:    fmt.Sprintf("duplicate step name %q", step.Name),
				Suggestion: "Step names must be unique within a flow",
			}
		}
		seen[step.Name] = true

		if step.NodeType == "" {
			return nil, &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].node_type", i),
				Message:    fmt.Sprintf("step %q has no node_type", step.Name),
				Suggestion: "Set node_type to a registered node (see 'ironflow nodes')",
			}
		}

		applyStepDefaults(step)
	}

	return &f, nil
}

// ParseFile loads a flow definition from a file path.
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "flow file", ID: path}
		}
		return nil, errors.Wrapf(err, "reading flow file %s", path)
	}
	return Parse(data)
}

// applyStepDefaults fills retry defaults and injects _step_name into the
// step's config map.
func applyStepDefaults(step *Step) {
	if step.Retry.MaxRetries < 0 {
		step.Retry.MaxRetries = DefaultMaxRetries
	}
	if step.Retry.BackoffSeconds <= 0 {
		step.Retry.BackoffSeconds = DefaultBackoffSeconds
	}

	if step.Config == nil {
		step.Config = make(map[string]any, 1)
	}
	step.Config[KeyStepName] = step.Name
}
