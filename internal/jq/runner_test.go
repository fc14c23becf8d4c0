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

package jq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRun(t *testing.T) {
	r := NewRunner(0, 0)
	snapshot := map[string]any{
		"service":  "api",
		"replicas": 3,
		"hosts":    []any{"a", "b", "c"},
	}

	t.Run("empty program returns snapshot", func(t *testing.T) {
		got, err := r.Run(context.Background(), "", snapshot)
		require.NoError(t, err)
		assert.Equal(t, snapshot, got)
	})

	t.Run("single value", func(t *testing.T) {
		got, err := r.Run(context.Background(), ".service", snapshot)
		require.NoError(t, err)
		assert.Equal(t, "api", got)
	})

	t.Run("object construction", func(t *testing.T) {
		got, err := r.Run(context.Background(), "{name: .service, fleet: (.hosts | length)}", snapshot)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "api", "fleet": 3}, got)
	})

	t.Run("multiple values come back as a slice", func(t *testing.T) {
		got, err := r.Run(context.Background(), ".hosts[]", snapshot)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "c"}, got)
	})

	t.Run("no values yields nil", func(t *testing.T) {
		got, err := r.Run(context.Background(), "empty", snapshot)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("runtime error surfaces", func(t *testing.T) {
		_, err := r.Run(context.Background(), ".service + 1", snapshot)
		assert.Error(t, err)
	})

	t.Run("bad syntax", func(t *testing.T) {
		_, err := r.Run(context.Background(), ".[unclosed", snapshot)
		assert.ErrorContains(t, err, "invalid jq program")
	})
}

func TestRunnerDeadline(t *testing.T) {
	r := NewRunner(50*time.Millisecond, 0)

	_, err := r.Run(context.Background(), ".n | last(while(true; . + 1))", map[string]any{"n": 0})
	assert.ErrorContains(t, err, "deadline")
}

func TestRunnerSnapshotCap(t *testing.T) {
	r := NewRunner(0, 16)

	_, err := r.Run(context.Background(), ".blob", map[string]any{"blob": "definitely more than sixteen bytes"})
	assert.ErrorContains(t, err, "transform cap")
}

func TestRunnerCheck(t *testing.T) {
	r := NewRunner(0, 0)

	assert.NoError(t, r.Check(""))
	assert.NoError(t, r.Check("{out: .in}"))
	assert.Error(t, r.Check(".["))
}
