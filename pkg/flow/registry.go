package flow

import (
	"context"
	"fmt"
	"sort"
)

// Node is the executor contract a step's node_type resolves to. Execute
// receives the step's opaque config and a point-in-time context snapshot and
// returns the key-value output to merge into the shared context.
//
// Conditional nodes write their routing decision under _route_<step name>,
// taking the step name from the _step_name config key injected by the loader.
// Nodes must honor ctx cancellation for long-running work.
type Node interface {
	Type() string
	Description() string
	Execute(ctx context.Context, config Values, snapshot Values) (map[string]any, error)
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc struct {
	// NodeType is the registry key.
	NodeType string
	// Desc describes the node for GET /nodes and the nodes command.
	Desc string
	// Fn is the execution body.
	Fn func(ctx context.Context, config Values, snapshot Values) (map[string]any, error)
}

// Type implements Node.
func (n NodeFunc) Type() string { return n.NodeType }

// Description implements Node.
func (n NodeFunc) Description() string { return n.Desc }

// Execute implements Node.
func (n NodeFunc) Execute(ctx context.Context, config Values, snapshot Values) (map[string]any, error) {
	return n.Fn(ctx, config, snapshot)
}

// NodeInfo is the listing entry for a registered node.
type NodeInfo struct {
	NodeType    string `json:"node_type"`
	Description string `json:"description"`
}

// Registry maps node type names to their implementations. It is built at
// process start and read-only during execution, so lookups need no
// synchronization. Composite nodes that must be visible to nested flows use
// Snapshot to obtain an independent copy they may extend.
type Registry struct {
	nodes map[string]Node
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]Node)}
}

// Register adds a node implementation. Registering a type twice is an error;
// node types are case-sensitive.
func (r *Registry) Register(node Node) error {
	name := node.Type()
	if name == "" {
		return fmt.Errorf("node has empty type")
	}
	if _, exists := r.nodes[name]; exists {
		return fmt.Errorf("node type %q already registered", name)
	}
	r.nodes[name] = node
	return nil
}

// MustRegister registers a node and panics on conflict. Intended for
// process-start wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(node Node) {
	if err := r.Register(node); err != nil {
		panic(err)
	}
}

// Lookup resolves a node type. O(1).
func (r *Registry) Lookup(nodeType string) (Node, bool) {
	node, ok := r.nodes[nodeType]
	return node, ok
}

// List returns the registered nodes sorted by type name.
func (r *Registry) List() []NodeInfo {
	infos := make([]NodeInfo, 0, len(r.nodes))
	for _, node := range r.nodes {
		infos = append(infos, NodeInfo{NodeType: node.Type(), Description: node.Description()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].NodeType < infos[j].NodeType
	})
	return infos
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int { return len(r.nodes) }

// Snapshot returns an independent copy of the registry. Further
// registrations on the copy do not affect the original, which lets a
// composite node insert itself for the child run without mutating the
// registry it was resolved from.
func (r *Registry) Snapshot() *Registry {
	copied := &Registry{nodes: make(map[string]Node, len(r.nodes))}
	for name, node := range r.nodes {
		copied.nodes[name] = node
	}
	return copied
}
