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

package schema

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSchemaPrintsJSON(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(out.Bytes(), &obj); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if obj["title"] != "IronFlow Flow" {
		t.Errorf("unexpected title: %v", obj["title"])
	}
}

func TestSchemaWrite(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--write"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("schema --write failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "schemas", "flow.schema.json"))
	if err != nil {
		t.Fatalf("schema file not written: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("written schema is not JSON: %v", err)
	}

	// A second write without --force must refuse.
	cmd = NewCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--write"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected second --write to fail without --force")
	}
}
