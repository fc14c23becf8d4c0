package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/tombee/ironflow/pkg/flow"
	"github.com/tombee/ironflow/pkg/flow/expression"
)

// Conditional nodes write their routing decision under _route_<step name>,
// taking the step name from the _step_name config key the loader injects.
// Downstream steps declaring a matching 'route' run; the rest are skipped.

// routeOutput builds the single-key output map carrying the routing decision.
func routeOutput(config flow.Values, route string) (map[string]any, error) {
	step, err := config.GetString(flow.KeyStepName)
	if err != nil {
		return nil, fmt.Errorf("conditional node is missing the injected %s config key", flow.KeyStepName)
	}
	if route == "" {
		return map[string]any{}, nil
	}
	return map[string]any{flow.RouteKey(step): route}, nil
}

// IfNode routes on a boolean expression over the context snapshot.
type IfNode struct {
	eval *expression.Evaluator
}

func (n *IfNode) evaluator() *expression.Evaluator {
	if n.eval == nil {
		return expression.New()
	}
	return n.eval
}

// Type implements flow.Node.
func (n *IfNode) Type() string { return "if" }

// Description implements flow.Node.
func (n *IfNode) Description() string {
	return "Evaluates 'condition' and routes to 'true_route' or 'false_route'"
}

// Execute implements flow.Node.
func (n *IfNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	condition, err := config.GetString("condition")
	if err != nil {
		return nil, fmt.Errorf("if node requires a 'condition' string: %w", err)
	}

	result, err := n.evaluator().Evaluate(condition, snapshot)
	if err != nil {
		return nil, err
	}

	route := config.GetStringOr("false_route", "false")
	if result {
		route = config.GetStringOr("true_route", "true")
	}
	return routeOutput(config, route)
}

// SwitchNode routes to the first case whose 'when' expression holds, else to
// 'default'. With no default and no match, no routing key is written and
// every routed dependent skips.
type SwitchNode struct {
	eval *expression.Evaluator
}

func (n *SwitchNode) evaluator() *expression.Evaluator {
	if n.eval == nil {
		return expression.New()
	}
	return n.eval
}

// Type implements flow.Node.
func (n *SwitchNode) Type() string { return "switch" }

// Description implements flow.Node.
func (n *SwitchNode) Description() string {
	return "Routes to the first matching case in 'cases', else to 'default'"
}

// Execute implements flow.Node.
func (n *SwitchNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	cases, err := config.GetSlice("cases")
	if err != nil {
		return nil, fmt.Errorf("switch node requires a 'cases' array: %w", err)
	}

	eval := n.evaluator()

	for i, raw := range cases {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("switch case %d is not an object", i)
		}
		c := flow.Values(entry)

		when, err := c.GetString("when")
		if err != nil {
			return nil, fmt.Errorf("switch case %d requires a 'when' string: %w", i, err)
		}
		route, err := c.GetString("route")
		if err != nil {
			return nil, fmt.Errorf("switch case %d requires a 'route' string: %w", i, err)
		}

		matched, err := eval.Evaluate(when, snapshot)
		if err != nil {
			return nil, fmt.Errorf("switch case %d: %w", i, err)
		}
		if matched {
			return routeOutput(config, route)
		}
	}

	return routeOutput(config, config.GetStringOr("default", ""))
}

// IfHTTPStatusNode routes on a status code a dependency wrote into the
// context, success for 2xx/3xx and error otherwise.
type IfHTTPStatusNode struct{}

// Type implements flow.Node.
func (n *IfHTTPStatusNode) Type() string { return "if_http_status" }

// Description implements flow.Node.
func (n *IfHTTPStatusNode) Description() string {
	return "Routes on an upstream HTTP status code: 2xx/3xx to 'success_route', else 'error_route'"
}

// Execute implements flow.Node.
func (n *IfHTTPStatusNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	key := config.GetStringOr("key", "status_code")
	status, err := snapshot.GetInt64(key)
	if err != nil {
		return nil, fmt.Errorf("if_http_status: context key %q: %w", key, err)
	}

	route := config.GetStringOr("error_route", "error")
	if status >= 200 && status < 400 {
		route = config.GetStringOr("success_route", "success")
	}
	return routeOutput(config, route)
}

// IfBodyContainsNode routes on a substring match in a context string value.
type IfBodyContainsNode struct{}

// Type implements flow.Node.
func (n *IfBodyContainsNode) Type() string { return "if_body_contains" }

// Description implements flow.Node.
func (n *IfBodyContainsNode) Description() string {
	return "Routes on a substring match in a context value: 'match_route' or 'no_match_route'"
}

// Execute implements flow.Node.
func (n *IfBodyContainsNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	needle, err := config.GetString("contains")
	if err != nil {
		return nil, fmt.Errorf("if_body_contains requires a 'contains' string: %w", err)
	}

	key := config.GetStringOr("key", "body")
	haystack := snapshot.GetStringOr(key, "")

	route := config.GetStringOr("no_match_route", "no_match")
	if strings.Contains(haystack, needle) {
		route = config.GetStringOr("match_route", "match")
	}
	return routeOutput(config, route)
}
