// Package expression evaluates conditional-node expressions against a
// context snapshot using expr-lang. Compiled programs are cached so repeated
// evaluations of the same condition across runs stay cheap.
package expression

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/ironflow/pkg/errors"
)

// Evaluator evaluates boolean expressions against a flow context snapshot.
// Safe for concurrent use.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Evaluate evaluates an expression against the given snapshot. Context keys
// are visible as top-level variables, so a flow holding amount=200 can
// evaluate `amount > 100` directly. An empty expression is true.
func (e *Evaluator) Evaluate(expression string, snapshot map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax and ensure all referenced variables exist",
		}
	}

	// Merge helper functions into the runtime environment.
	// Note: "contains" is reserved in expr for string operations.
	env := make(map[string]any, len(snapshot)+3)
	for k, v := range snapshot {
		env[k] = v
	}
	env["has"] = containsFunc
	env["includes"] = containsFunc
	env["length"] = lenFunc

	result, err := expr.Run(program, env)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expression evaluation failed: %s", err.Error()),
			Suggestion: "verify that all referenced variables exist in the flow context",
		}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}

	return boolResult, nil
}

// compile compiles an expression and caches the result.
func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]any{
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
	}

	prog, err := expr.Compile(expression,
		expr.Env(env),
		// Context keys are supplied at runtime.
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// CacheSize returns the number of cached compiled programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// containsFunc reports whether a collection contains a value. Supports
// slices (element equality via string formatting for heterogeneous JSON
// values), maps (key presence), and strings (substring).
func containsFunc(collection any, item any) bool {
	switch c := collection.(type) {
	case []any:
		for _, v := range c {
			if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", item) {
				return true
			}
		}
	case []string:
		s, ok := item.(string)
		if !ok {
			return false
		}
		for _, v := range c {
			if v == s {
				return true
			}
		}
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false
		}
		_, present := c[s]
		return present
	case string:
		s, ok := item.(string)
		if !ok {
			return false
		}
		return strings.Contains(c, s)
	}
	return false
}

// lenFunc returns the length of a string, slice, or map; zero otherwise.
func lenFunc(v any) int {
	switch c := v.(type) {
	case string:
		return len(c)
	case []any:
		return len(c)
	case []string:
		return len(c)
	case map[string]any:
		return len(c)
	}
	return 0
}
