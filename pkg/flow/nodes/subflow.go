package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tombee/ironflow/pkg/flow"
)

// FlowNode runs a nested flow file as a single step. The child run executes
// on a snapshot of the node's registry (with this node inserted, so flows can
// nest further) against a fresh in-memory store, and the child's final
// context is merged under output_key.
type FlowNode struct {
	registry *flow.Registry
	logger   *slog.Logger
}

// NewFlowNode creates the nested-flow node over a base registry.
func NewFlowNode(registry *flow.Registry, logger *slog.Logger) *FlowNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowNode{registry: registry, logger: logger}
}

// Type implements flow.Node.
func (n *FlowNode) Type() string { return "flow" }

// Description implements flow.Node.
func (n *FlowNode) Description() string {
	return "Runs a nested flow 'file' and merges its final context under 'output_key'"
}

// Execute implements flow.Node.
func (n *FlowNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	file, err := config.GetString("file")
	if err != nil {
		return nil, fmt.Errorf("flow node requires a 'file' string: %w", err)
	}

	path := file
	if !filepath.IsAbs(path) {
		baseDir := snapshot.GetStringOr(flow.KeyFlowDir, "")
		if baseDir == "" {
			return nil, fmt.Errorf("flow node: relative path %q needs %s in the context", file, flow.KeyFlowDir)
		}
		path = filepath.Join(baseDir, file)
	}

	child, err := flow.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading nested flow: %w", err)
	}

	initial := map[string]any{}
	if extra, err := config.GetMap("context"); err == nil {
		for k, v := range extra {
			initial[k] = v
		}
	}
	initial[flow.KeyFlowDir] = filepath.Dir(path)

	// Registry-snapshot pattern: the child sees everything the parent sees,
	// including this node, without mutating the registry in use.
	registry := n.registry.Snapshot()
	if _, ok := registry.Lookup(n.Type()); !ok {
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}

	engine := flow.NewEngine(registry, flow.NewMemoryStore()).WithLogger(n.logger)
	info, err := engine.Run(ctx, child, initial)
	if err != nil {
		return nil, fmt.Errorf("nested flow %q: %w", child.Name, err)
	}
	if info.Status != flow.RunSuccess {
		return nil, fmt.Errorf("nested flow %q finished %s", child.Name, info.Status)
	}

	outputKey := config.GetStringOr("output_key", "flow_output")
	return map[string]any{outputKey: info.Context}, nil
}
