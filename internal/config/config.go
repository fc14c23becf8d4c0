// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads ironflow configuration with the precedence
// CLI flag > environment variable > ironflow.yaml > built-in default.
// Commands apply their flag overlay on top of the Config this package
// returns.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tombee/ironflow/pkg/errors"
)

// DefaultFile is the configuration filename discovered in the working
// directory when no explicit path is given.
const DefaultFile = "ironflow.yaml"

// EnvConfigPath overrides config file discovery.
const EnvConfigPath = "IRONFLOW_CONFIG"

// Defaults.
const (
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8080
	DefaultStoreDir = "./ironflow_runs"
	DefaultFlowsDir = "./flows"
	DefaultMaxBody  = 1 << 20 // 1 MiB
)

// Store backend types.
const (
	StoreTypeFile   = "file"
	StoreTypeSQLite = "sqlite"
	StoreTypeMemory = "memory"
)

// WebhookRoute maps a webhook name to a flow file. In YAML it accepts both
// the scalar form (hello: hello.yaml) and the object form with a secret
// reference and a per-minute rate limit.
type WebhookRoute struct {
	// Flow is the flow file, relative to flows_dir or absolute.
	Flow string `yaml:"flow"`

	// Secret is an optional secret reference (env:NAME, keychain:NAME,
	// file:PATH, or a literal) used for HMAC signature verification.
	Secret string `yaml:"secret"`

	// RatePerMinute caps dispatches per minute; zero means unlimited.
	RatePerMinute int `yaml:"rate_per_minute"`
}

// UnmarshalYAML accepts the scalar shorthand for a route.
func (r *WebhookRoute) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Flow = value.Value
		return nil
	}

	type plain WebhookRoute
	return value.Decode((*plain)(r))
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Type is file, sqlite, or memory. Default: file.
	Type string `yaml:"type"`

	// Path is the sqlite database file. Default: <store_dir>/runs.db.
	Path string `yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format: text or json.
	Format string `yaml:"format"`
}

// TracingConfig configures the optional OpenTelemetry trace provider.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector address (host:port).
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `yaml:"insecure"`

	// Stdout writes spans to stdout instead of a collector (debugging).
	Stdout bool `yaml:"stdout"`
}

// Config is the full ironflow configuration.
type Config struct {
	// Host is the serve bind address.
	Host string `yaml:"host"`

	// Port is the serve port.
	Port int `yaml:"port"`

	// StoreDir is where the file backend keeps run documents.
	StoreDir string `yaml:"store_dir"`

	// FlowsDir is the base directory for flow files referenced by name.
	FlowsDir string `yaml:"flows_dir"`

	// MaxBody caps HTTP request body size in bytes.
	MaxBody int64 `yaml:"max_body"`

	// MaxConcurrentTasks bounds parallel step execution per run.
	// Zero defers to IRONFLOW_MAX_CONCURRENT_TASKS, then the CPU count.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// Webhooks maps webhook names to flow files.
	Webhooks map[string]WebhookRoute `yaml:"webhooks"`

	// Store selects the persistence backend.
	Store StoreConfig `yaml:"store"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Tracing configures the optional trace provider.
	Tracing TracingConfig `yaml:"tracing"`
}

// Default returns a Config with built-in defaults applied.
func Default() *Config {
	return &Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		StoreDir: DefaultStoreDir,
		FlowsDir: DefaultFlowsDir,
		MaxBody:  DefaultMaxBody,
		Webhooks: map[string]WebhookRoute{},
		Store:    StoreConfig{Type: StoreTypeFile},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration: defaults, then the config file (explicit
// path, IRONFLOW_CONFIG, or ./ironflow.yaml when present), then environment
// variables. A missing default file is fine; a missing explicit file is an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFile
	}

	if err := cfg.loadFromFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return &errors.ConfigError{Key: "config", Reason: fmt.Sprintf("cannot read %s", path), Cause: err}
	}

	// Non-strict decode: unknown keys are ignored.
	if err := yaml.Unmarshal(data, c); err != nil {
		return &errors.ConfigError{Key: "config", Reason: fmt.Sprintf("cannot parse %s", path), Cause: err}
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &errors.ConfigError{Key: "port", Reason: fmt.Sprintf("PORT %q is not a number", v), Cause: err}
		}
		c.Port = port
	}
	if v := os.Getenv("STORE_DIR"); v != "" {
		c.StoreDir = v
	}
	if v := os.Getenv("FLOWS_DIR"); v != "" {
		c.FlowsDir = v
	}
	if v := os.Getenv("MAX_BODY"); v != "" {
		maxBody, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &errors.ConfigError{Key: "max_body", Reason: fmt.Sprintf("MAX_BODY %q is not a number", v), Cause: err}
		}
		c.MaxBody = maxBody
	}
	if v := os.Getenv("IRONFLOW_MAX_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrentTasks = n
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &errors.ConfigError{Key: "port", Reason: fmt.Sprintf("port %d out of range", c.Port)}
	}
	if c.MaxBody <= 0 {
		return &errors.ConfigError{Key: "max_body", Reason: "max_body must be positive"}
	}
	if c.MaxConcurrentTasks < 0 {
		return &errors.ConfigError{Key: "max_concurrent_tasks", Reason: "max_concurrent_tasks must not be negative"}
	}

	switch c.Store.Type {
	case StoreTypeFile, StoreTypeSQLite, StoreTypeMemory:
	case "":
		c.Store.Type = StoreTypeFile
	default:
		return &errors.ConfigError{
			Key:    "store.type",
			Reason: fmt.Sprintf("unknown store type %q (expected file, sqlite, or memory)", c.Store.Type),
		}
	}

	for name, route := range c.Webhooks {
		if route.Flow == "" {
			return &errors.ConfigError{
				Key:    "webhooks." + name,
				Reason: "webhook route has no flow file",
			}
		}
		if route.RatePerMinute < 0 {
			return &errors.ConfigError{
				Key:    "webhooks." + name,
				Reason: "rate_per_minute must not be negative",
			}
		}
	}
	return nil
}

// ResolveMaxConcurrent returns the configured bound, falling back to the CPU
// count.
func (c *Config) ResolveMaxConcurrent() int {
	if c.MaxConcurrentTasks > 0 {
		return c.MaxConcurrentTasks
	}
	return runtime.NumCPU()
}
