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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/ironflow/pkg/errors"
	"github.com/tombee/ironflow/pkg/flow"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// The sqlite backend must satisfy the same contract as the file backend;
// these tests mirror the file store's.

func TestSqliteRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitRun(ctx, "run-1", "orders", map[string]any{"amount": 200.5}))

	now := time.Now().UTC().Truncate(time.Second)
	task := &flow.TaskState{
		Name:     "fetch",
		NodeType: "http_request",
		Status:   flow.TaskSuccess,
		Attempt:  1,
		Started:  &now,
		Finished: &now,
		Output:   map[string]any{"status_code": float64(200)},
	}
	require.NoError(t, s.UpsertTask(ctx, "run-1", task))
	require.NoError(t, s.SetRunStatus(ctx, "run-1", flow.RunSuccess))

	info, err := s.GetRunInfo(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "orders", info.FlowName)
	assert.Equal(t, flow.RunSuccess, info.Status)
	assert.Equal(t, 200.5, info.Context["amount"])
	require.NotNil(t, info.Finished)
	require.NotNil(t, info.Tasks["fetch"])
	assert.Equal(t, flow.TaskSuccess, info.Tasks["fetch"].Status)
}

func TestSqliteContextMerge(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitRun(ctx, "run-1", "f", map[string]any{"keep": "old", "replace": "old"}))
	require.NoError(t, s.UpdateContext(ctx, "run-1", map[string]any{"replace": "new", "add": true}))

	got, err := s.GetContext(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "old", got["keep"])
	assert.Equal(t, "new", got["replace"])
	assert.Equal(t, true, got["add"])
}

func TestSqliteListRuns(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitRun(ctx, "old", "f", nil))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.InitRun(ctx, "new", "f", nil))
	require.NoError(t, s.SetRunStatus(ctx, "old", flow.RunFailed))

	runs, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)

	failed, err := s.ListRuns(ctx, flow.RunFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "old", failed[0].ID)
}

func TestSqliteDeleteRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.InitRun(ctx, "run-1", "f", nil))
	require.NoError(t, s.DeleteRun(ctx, "run-1"))

	var nfe *errors.NotFoundError
	_, err := s.GetRunInfo(ctx, "run-1")
	assert.ErrorAs(t, err, &nfe)
	assert.ErrorAs(t, s.DeleteRun(ctx, "run-1"), &nfe)
}

func TestSqliteNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var nfe *errors.NotFoundError

	_, err := s.GetRunInfo(ctx, "ghost")
	assert.ErrorAs(t, err, &nfe)

	assert.Error(t, s.SetRunStatus(ctx, "ghost", flow.RunRunning))
	assert.Error(t, s.UpsertTask(ctx, "ghost", &flow.TaskState{Name: "a"}))
}

func TestSqliteEngineIntegration(t *testing.T) {
	s := newStore(t)

	r := flow.NewRegistry()
	r.MustRegister(flow.NodeFunc{
		NodeType: "echo",
		Desc:     "echoes",
		Fn: func(ctx context.Context, config flow.Values, snapshot flow.Values) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		},
	})

	engine := flow.NewEngine(r, s)
	f := &flow.Flow{Name: "sqlite-run", Steps: []flow.Step{
		{Name: "a", NodeType: "echo", Retry: flow.Retry{BackoffSeconds: 1}},
	}}

	info, err := engine.Run(context.Background(), f, nil)
	require.NoError(t, err)
	assert.Equal(t, flow.RunSuccess, info.Status)

	persisted, err := s.GetRunInfo(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.TaskSuccess, persisted.Tasks["a"].Status)
	assert.Equal(t, true, persisted.Context["done"])
}
