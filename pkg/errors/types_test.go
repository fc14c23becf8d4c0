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

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	ironflowerrors "github.com/tombee/ironflow/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ironflowerrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &ironflowerrors.ValidationError{
				Field:      "steps[2].name",
				Message:    "duplicate step name",
				Suggestion: "Step names must be unique within a flow",
			},
			wantMsg: "validation failed on steps[2].name: duplicate step name",
		},
		{
			name: "without field",
			err: &ironflowerrors.ValidationError{
				Message:    "flow has no name",
				Suggestion: "Add a top-level name key",
			},
			wantMsg: "validation failed: flow has no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ironflowerrors.NotFoundError
		wantMsg string
	}{
		{
			name: "run not found",
			err: &ironflowerrors.NotFoundError{
				Resource: "run",
				ID:       "3f6d1c2e",
			},
			wantMsg: "run not found: 3f6d1c2e",
		},
		{
			name: "webhook not found",
			err: &ironflowerrors.NotFoundError{
				Resource: "webhook",
				ID:       "deploy",
			},
			wantMsg: "webhook not found: deploy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("NotFoundError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNodeError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ironflowerrors.NodeError
		want    []string
		notWant []string
	}{
		{
			name: "multiple attempts with cause",
			err: &ironflowerrors.NodeError{
				Step:     "fetch",
				NodeType: "http_request",
				Attempts: 3,
				Cause:    errors.New("connection refused"),
			},
			want:    []string{`step "fetch"`, "http_request", "after 3 attempts", "connection refused"},
			notWant: []string{},
		},
		{
			name: "single attempt",
			err: &ironflowerrors.NodeError{
				Step:     "notify",
				Attempts: 1,
				Cause:    errors.New("boom"),
			},
			want:    []string{`step "notify" failed`, "boom"},
			notWant: []string{"attempts"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("NodeError.Error() = %q, missing %q", got, want)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(got, notWant) {
					t.Errorf("NodeError.Error() = %q, should not contain %q", got, notWant)
				}
			}
		})
	}
}

func TestNodeError_Unwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	err := &ironflowerrors.NodeError{
		Step:     "transform",
		NodeType: "transform",
		Attempts: 2,
		Cause:    cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should match the wrapped cause")
	}
	if got := errors.Unwrap(err); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *ironflowerrors.ConfigError
		wantMsg string
	}{
		{
			name: "with key",
			err: &ironflowerrors.ConfigError{
				Key:    "port",
				Reason: "must be between 1 and 65535",
			},
			wantMsg: "config error at port: must be between 1 and 65535",
		},
		{
			name: "without key",
			err: &ironflowerrors.ConfigError{
				Reason: "config file is not valid YAML",
				Cause:  errors.New("yaml: line 3: mapping values are not allowed"),
			},
			wantMsg: "config error: config file is not valid YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("read failed")
	err := &ironflowerrors.ConfigError{Key: "store_dir", Reason: "unreadable", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should match the wrapped cause")
	}
}

func TestTimeoutError_Error(t *testing.T) {
	err := &ironflowerrors.TimeoutError{
		Operation: `step "fetch"`,
		Duration:  1500 * time.Millisecond,
	}

	got := err.Error()
	if !strings.Contains(got, `step "fetch"`) || !strings.Contains(got, "1.5s") {
		t.Errorf("TimeoutError.Error() = %q", got)
	}
}

func TestTimeoutError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("context deadline exceeded")
	err := &ironflowerrors.TimeoutError{
		Operation: "jq query",
		Duration:  time.Second,
		Cause:     cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should match the wrapped cause")
	}
}

func TestErrorsAs_TypedMatch(t *testing.T) {
	var wrapped error = fmt.Errorf("running flow: %w", &ironflowerrors.NodeError{
		Step:     "risky",
		NodeType: "fail",
		Attempts: 2,
		Cause:    errors.New("always fails"),
	})

	var nodeErr *ironflowerrors.NodeError
	if !errors.As(wrapped, &nodeErr) {
		t.Fatal("errors.As should find NodeError through wrapping")
	}
	if nodeErr.Step != "risky" {
		t.Errorf("Step = %q, want %q", nodeErr.Step, "risky")
	}
	if nodeErr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", nodeErr.Attempts)
	}
}
