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

package examples

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExamplesList(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("examples failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "NAME") || !strings.Contains(got, "hello-world") {
		t.Errorf("unexpected listing:\n%s", got)
	}
}

func TestExamplesShow(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"show", "hello-world"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out.String(), "name: hello-world") {
		t.Errorf("unexpected content:\n%s", out.String())
	}
}

func TestExamplesShowUnknown(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"show", "no-such-example"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown example to fail")
	}
}

func TestExamplesCopyToDirectory(t *testing.T) {
	dir := t.TempDir()

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"copy", "hello-world", dir})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hello-world.yaml")); err != nil {
		t.Errorf("example not written: %v", err)
	}
}
