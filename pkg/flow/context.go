package flow

import (
	"fmt"
	"strings"
	"sync"
)

// Reserved context keys written by the engine. User flows should treat every
// key with a leading underscore as engine-owned.
const (
	// KeyFlowDir holds the canonical directory of the flow file, injected by
	// the CLI so nested-flow nodes can resolve relative paths.
	KeyFlowDir = "_flow_dir"
	// KeyErrorMessage holds the formatted error of the step that triggered an
	// on_error handler.
	KeyErrorMessage = "_error_message"
	// KeyErrorStep holds the name of the step that triggered an on_error handler.
	KeyErrorStep = "_error_step"
	// KeyErrorNodeType holds the node type of the step that triggered an
	// on_error handler.
	KeyErrorNodeType = "_error_node_type"
	// KeyWebhook holds the webhook route name for webhook-triggered runs.
	KeyWebhook = "_webhook"
	// KeyHeaders holds the lowercased request headers for webhook-triggered runs.
	KeyHeaders = "_headers"
	// KeyStepName is injected into every step's config by the loader so
	// conditional nodes know which _route_ key to write.
	KeyStepName = "_step_name"
	// RoutePrefix prefixes the per-step routing keys written by conditional
	// nodes: _route_<step name>.
	RoutePrefix = "_route_"
)

// RouteKey returns the context key a conditional node writes its routing
// decision under.
func RouteKey(stepName string) string {
	return RoutePrefix + stepName
}

// IsReservedKey reports whether key belongs to the engine's reserved namespace.
func IsReservedKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// ErrKeyNotFound represents an error when a requested key does not exist.
type ErrKeyNotFound struct {
	Key string
}

// Error implements the error interface.
func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// ErrTypeAssertion represents an error when a value cannot be asserted to the
// expected type.
type ErrTypeAssertion struct {
	Key  string // The key that was accessed
	Got  string // The actual type received (as string representation)
	Want string // The expected type
}

// Error implements the error interface.
func (e ErrTypeAssertion) Error() string {
	return fmt.Sprintf("key %q is %s, not %s", e.Key, e.Got, e.Want)
}

// Values is a JSON-typed key-value view. Node implementations use it as a
// typed window onto their config map and onto context snapshots, instead of
// declaring a bespoke struct per node: the recognized keys are documented per
// node and grow over time.
type Values map[string]any

// GetString retrieves a string value.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (v Values) GetString(key string) (string, error) {
	val, ok := v[key]
	if !ok {
		return "", ErrKeyNotFound{Key: key}
	}
	str, ok := val.(string)
	if !ok {
		return "", ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "string"}
	}
	return str, nil
}

// GetStringOr returns a string value or the default if key is missing or the
// wrong type. Never panics.
func (v Values) GetStringOr(key, defaultVal string) string {
	str, err := v.GetString(key)
	if err != nil {
		return defaultVal
	}
	return str
}

// GetInt64 retrieves an int64 value.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (v Values) GetInt64(key string) (int64, error) {
	val, ok := v[key]
	if !ok {
		return 0, ErrKeyNotFound{Key: key}
	}

	// Handle the integer types that come out of JSON/YAML unmarshaling
	switch n := val.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		// JSON numbers are unmarshaled as float64
		return int64(n), nil
	default:
		return 0, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "int64"}
	}
}

// GetInt64Or returns an int64 value or the default if key is missing or the
// wrong type. Never panics.
func (v Values) GetInt64Or(key string, defaultVal int64) int64 {
	i, err := v.GetInt64(key)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetFloat64 retrieves a float64 value.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (v Values) GetFloat64(key string) (float64, error) {
	val, ok := v[key]
	if !ok {
		return 0, ErrKeyNotFound{Key: key}
	}

	switch n := val.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "float64"}
	}
}

// GetFloat64Or returns a float64 value or the default if key is missing or
// the wrong type. Never panics.
func (v Values) GetFloat64Or(key string, defaultVal float64) float64 {
	f, err := v.GetFloat64(key)
	if err != nil {
		return defaultVal
	}
	return f
}

// GetBool retrieves a bool value.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (v Values) GetBool(key string) (bool, error) {
	val, ok := v[key]
	if !ok {
		return false, ErrKeyNotFound{Key: key}
	}
	b, ok := val.(bool)
	if !ok {
		return false, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "bool"}
	}
	return b, nil
}

// GetBoolOr returns a bool value or the default if key is missing or the
// wrong type. Never panics.
func (v Values) GetBoolOr(key string, defaultVal bool) bool {
	b, err := v.GetBool(key)
	if err != nil {
		return defaultVal
	}
	return b
}

// GetSlice retrieves a slice value.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (v Values) GetSlice(key string) ([]any, error) {
	val, ok := v[key]
	if !ok {
		return nil, ErrKeyNotFound{Key: key}
	}
	slice, ok := val.([]any)
	if !ok {
		return nil, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "[]any"}
	}
	return slice, nil
}

// GetMap retrieves a map value.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (v Values) GetMap(key string) (map[string]any, error) {
	val, ok := v[key]
	if !ok {
		return nil, ErrKeyNotFound{Key: key}
	}
	m, ok := val.(map[string]any)
	if !ok {
		return nil, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "map[string]any"}
	}
	return m, nil
}

// Context is the mutable key-value map threaded through one run. Steps of the
// same phase snapshot it concurrently; a step merging its output holds the
// write lock for the duration of the merge. Values are JSON-typed.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContext creates a Context seeded with the provided initial values.
// The seed map is copied; the caller keeps ownership of its map.
func NewContext(initial map[string]any) *Context {
	c := &Context{values: make(map[string]any, len(initial))}
	for k, v := range initial {
		c.values[k] = deepCopyValue(v)
	}
	return c
}

// Snapshot returns a point-in-time deep copy of the context. Mutating the
// returned map never affects the shared state.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snapshot[k] = deepCopyValue(v)
	}
	return snapshot
}

// Merge writes every key of output into the context, overwriting prior
// values. Merges are serialized; concurrent merges on overlapping keys
// resolve to some sequential ordering.
func (c *Context) Merge(output map[string]any) {
	if len(output) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range output {
		c.values[k] = deepCopyValue(v)
	}
}

// Get returns a single value and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	return deepCopyValue(v), true
}

// Len returns the number of keys currently held.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// deepCopyValue copies JSON-typed values (maps and slices recursively,
// scalars as-is). Non-JSON types are passed through by reference.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		copied := make(map[string]any, len(val))
		for k, item := range val {
			copied[k] = deepCopyValue(item)
		}
		return copied
	case []any:
		copied := make([]any, len(val))
		for i, item := range val {
			copied[i] = deepCopyValue(item)
		}
		return copied
	default:
		return v
	}
}
