// Package nodes provides the built-in node library: logging and context
// helpers, an HTTP client, a jq transform, the conditional family, and the
// nested-flow composite. Builtin wires the full set into a registry.
package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/tombee/ironflow/pkg/flow"
	"github.com/tombee/ironflow/pkg/flow/expression"
)

// Builtin returns a registry holding the full built-in node library.
func Builtin(logger *slog.Logger) *flow.Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := flow.NewRegistry()
	r.MustRegister(&LogNode{logger: logger})
	r.MustRegister(&SetNode{})
	r.MustRegister(&SleepNode{})
	r.MustRegister(&FailNode{})
	r.MustRegister(&HTTPRequestNode{})
	r.MustRegister(&TransformNode{})
	eval := expression.New()
	r.MustRegister(&IfNode{eval: eval})
	r.MustRegister(&SwitchNode{eval: eval})
	r.MustRegister(&IfHTTPStatusNode{})
	r.MustRegister(&IfBodyContainsNode{})
	r.MustRegister(NewFlowNode(r, logger))
	return r
}

var templateKeyPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// renderTemplate substitutes {key} placeholders with context values.
// Unknown keys are left as-is.
func renderTemplate(template string, snapshot flow.Values) string {
	return templateKeyPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := snapshot[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}

// LogNode writes a message to the structured log. Placeholders of the form
// {key} are substituted from the context snapshot.
type LogNode struct {
	logger *slog.Logger
}

// Type implements flow.Node.
func (n *LogNode) Type() string { return "log" }

// Description implements flow.Node.
func (n *LogNode) Description() string {
	return "Logs a message with {key} placeholders substituted from the context"
}

// Execute implements flow.Node.
func (n *LogNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	message := renderTemplate(config.GetStringOr("message", ""), snapshot)
	step := config.GetStringOr(flow.KeyStepName, "")

	switch config.GetStringOr("level", "info") {
	case "debug":
		n.logger.Debug(message, slog.String("step", step))
	case "warn", "warning":
		n.logger.Warn(message, slog.String("step", step))
	case "error":
		n.logger.Error(message, slog.String("step", step))
	default:
		n.logger.Info(message, slog.String("step", step))
	}

	return map[string]any{}, nil
}

// SetNode merges its configured values into the context.
type SetNode struct{}

// Type implements flow.Node.
func (n *SetNode) Type() string { return "set" }

// Description implements flow.Node.
func (n *SetNode) Description() string {
	return "Merges the configured 'values' object into the context"
}

// Execute implements flow.Node.
func (n *SetNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	values, err := config.GetMap("values")
	if err != nil {
		return nil, fmt.Errorf("set node requires a 'values' object: %w", err)
	}
	return values, nil
}

// SleepNode pauses for a configured number of seconds.
type SleepNode struct{}

// Type implements flow.Node.
func (n *SleepNode) Type() string { return "sleep" }

// Description implements flow.Node.
func (n *SleepNode) Description() string {
	return "Sleeps for 'seconds' (fractional allowed), honoring cancellation"
}

// Execute implements flow.Node.
func (n *SleepNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	seconds := config.GetFloat64Or("seconds", 0)
	if seconds <= 0 {
		return map[string]any{}, nil
	}

	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return map[string]any{"slept_s": seconds}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FailNode always fails. Useful for exercising retry and on_error wiring.
type FailNode struct{}

// Type implements flow.Node.
func (n *FailNode) Type() string { return "fail" }

// Description implements flow.Node.
func (n *FailNode) Description() string {
	return "Always fails with the configured 'message'"
}

// Execute implements flow.Node.
func (n *FailNode) Execute(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
	return nil, fmt.Errorf("%s", renderTemplate(config.GetStringOr("message", "fail node triggered"), snapshot))
}
