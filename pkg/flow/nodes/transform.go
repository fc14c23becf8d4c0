package nodes

import (
	"context"
	"fmt"

	"github.com/tombee/ironflow/internal/jq"
	"github.com/tombee/ironflow/pkg/flow"
)

// TransformNode runs a jq program over the context snapshot and writes the
// result under output_key.
type TransformNode struct {
	runner *jq.Runner
}

// Type implements flow.Node.
func (n *TransformNode) Type() string { return "transform" }

// Description implements flow.Node.
func (n *TransformNode) Description() string {
	return "Runs a jq 'query' over the context and writes the result under 'output_key'"
}

// Execute implements flow.Node.
func (n *TransformNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	query, err := config.GetString("query")
	if err != nil {
		return nil, fmt.Errorf("transform requires a 'query' string: %w", err)
	}

	runner := n.runner
	if runner == nil {
		runner = jq.NewRunner(0, 0)
	}

	result, err := runner.Run(ctx, query, map[string]any(snapshot))
	if err != nil {
		return nil, fmt.Errorf("jq query failed: %w", err)
	}

	return map[string]any{config.GetStringOr("output_key", "result"): result}, nil
}
