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

package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/tombee/ironflow/internal/commands/shared"
	filestore "github.com/tombee/ironflow/internal/store/file"
	"github.com/tombee/ironflow/pkg/flow"
)

func seedRun(t *testing.T, dir string) {
	t.Helper()
	store, err := filestore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.InitRun(ctx, "run-1", "deploy", map[string]any{"env": "staging"}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertTask(ctx, "run-1", &flow.TaskState{Name: "build", Status: flow.TaskSuccess, Attempt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertTask(ctx, "run-1", &flow.TaskState{Name: "notify", Status: flow.TaskFailed, Attempt: 2, Error: "connection refused"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetRunStatus(ctx, "run-1", flow.RunFailed); err != nil {
		t.Fatal(err)
	}
}

func TestInspectText(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run-1", "--store-dir", dir})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"run-1", "deploy", "failed", "build", "notify", "connection refused", "staging"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestInspectJSON(t *testing.T) {
	dir := t.TempDir()
	seedRun(t, dir)

	shared.SetJSONForTest(true)
	defer shared.SetJSONForTest(false)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run-1", "--store-dir", dir})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	var info flow.RunInfo
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if info.ID != "run-1" || info.Status != flow.RunFailed || len(info.Tasks) != 2 {
		t.Errorf("unexpected record: %+v", info)
	}
}

func TestInspectUnknownRun(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"no-such-run", "--store-dir", t.TempDir()})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown run to fail")
	}
}
