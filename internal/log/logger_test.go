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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}

	if cfg.Format != FormatText {
		t.Errorf("expected default format 'text', got %q", cfg.Format)
	}

	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}

	if cfg.AddSource {
		t.Errorf("expected AddSource to default to false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "no env set uses defaults",
			env:        map[string]string{},
			wantLevel:  "info",
			wantFormat: FormatText,
		},
		{
			name:       "IRONFLOW_DEBUG enables debug and source",
			env:        map[string]string{"IRONFLOW_DEBUG": "1"},
			wantLevel:  "debug",
			wantFormat: FormatText,
			wantSource: true,
		},
		{
			name:       "IRONFLOW_LOG_LEVEL wins over LOG_LEVEL",
			env:        map[string]string{"IRONFLOW_LOG_LEVEL": "warn", "LOG_LEVEL": "error"},
			wantLevel:  "warn",
			wantFormat: FormatText,
		},
		{
			name:       "LOG_LEVEL as fallback",
			env:        map[string]string{"LOG_LEVEL": "ERROR"},
			wantLevel:  "error",
			wantFormat: FormatText,
		},
		{
			name:       "IRONFLOW_DEBUG wins over explicit level",
			env:        map[string]string{"IRONFLOW_DEBUG": "true", "IRONFLOW_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatText,
			wantSource: true,
		},
		{
			name:       "json format",
			env:        map[string]string{"IRONFLOW_LOG_FORMAT": "JSON"},
			wantLevel:  "info",
			wantFormat: FormatJSON,
		},
		{
			name:       "LOG_SOURCE enables source",
			env:        map[string]string{"LOG_SOURCE": "1"},
			wantLevel:  "info",
			wantFormat: FormatText,
			wantSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"IRONFLOW_DEBUG", "IRONFLOW_LOG_LEVEL", "LOG_LEVEL", "IRONFLOW_LOG_FORMAT", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.wantFormat)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.wantSource)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("run started", slog.String(RunIDKey, "abc-123"), slog.String(FlowKey, "deploy"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}

	if entry["msg"] != "run started" {
		t.Errorf("msg = %v, want 'run started'", entry["msg"])
	}
	if entry[RunIDKey] != "abc-123" {
		t.Errorf("run_id = %v, want abc-123", entry[RunIDKey])
	}
	if entry[FlowKey] != "deploy" {
		t.Errorf("flow = %v, want deploy", entry[FlowKey])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("task finished", slog.String(StepKey, "fetch"))

	out := buf.String()
	if !strings.Contains(out, "task finished") || !strings.Contains(out, "step=fetch") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	logger := New(nil)
	if logger == nil {
		t.Fatal("New(nil) returned nil logger")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("below-threshold entries leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithStepContext(WithComponent(base, "engine"), "run-1", "fetch").Info("attempt")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if entry["component"] != "engine" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry[RunIDKey] != "run-1" || entry[StepKey] != "fetch" {
		t.Errorf("missing run/step fields: %v", entry)
	}
}

func TestErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("failed", Error(errors.New("boom")))

	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("error attr missing: %s", buf.String())
	}
}

func TestTrace_GatedByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatText, Output: &buf})

	Trace(logger, "very detailed")
	if strings.Contains(buf.String(), "very detailed") {
		t.Error("trace entry should be suppressed at debug level")
	}

	buf.Reset()
	logger = New(&Config{Level: "trace", Format: FormatText, Output: &buf})

	Trace(logger, "very detailed", String("step", "x"))
	if !strings.Contains(buf.String(), "very detailed") {
		t.Error("trace entry should appear at trace level")
	}
}
