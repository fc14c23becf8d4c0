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

// Package examples ships starter flows embedded in the binary, so they work
// offline and always match the installed node set.
package examples

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tombee/ironflow/pkg/errors"
	"github.com/tombee/ironflow/pkg/flow"
)

//go:embed *.yaml
var embeddedFS embed.FS

// Example is a listing entry for one embedded flow.
type Example struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Steps       int    `json:"steps"`
}

// List returns all embedded examples sorted by name. Name, description, and
// step count come from the flow file itself.
func List() ([]Example, error) {
	entries, err := embeddedFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("reading embedded examples: %w", err)
	}

	examples := make([]Example, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		content, err := embeddedFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded example %s: %w", entry.Name(), err)
		}
		f, err := flow.Parse(content)
		if err != nil {
			return nil, fmt.Errorf("embedded example %s does not parse: %w", entry.Name(), err)
		}
		examples = append(examples, Example{
			Name:        strings.TrimSuffix(entry.Name(), ".yaml"),
			Description: f.Description,
			Steps:       len(f.Steps),
		})
	}

	sort.Slice(examples, func(i, j int) bool { return examples[i].Name < examples[j].Name })
	return examples, nil
}

// Get returns the YAML content of the named example.
func Get(name string) ([]byte, error) {
	content, err := embeddedFS.ReadFile(name + ".yaml")
	if err != nil {
		return nil, &errors.NotFoundError{Resource: "example", ID: name}
	}
	return content, nil
}

// Exists reports whether the named example is embedded.
func Exists(name string) bool {
	_, err := embeddedFS.ReadFile(name + ".yaml")
	return err == nil
}

// ResolveDest turns a copy destination into a concrete file path: an
// existing directory gets <name>.yaml appended, anything else is taken as
// the target file.
func ResolveDest(name, dest string) (string, error) {
	info, err := os.Stat(dest)
	if err == nil && info.IsDir() {
		return filepath.Join(dest, name+".yaml"), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("checking destination %s: %w", dest, err)
	}
	return dest, nil
}

// CopyTo writes the named example to destPath, creating parent directories.
func CopyTo(name, destPath string) error {
	content, err := Get(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return fmt.Errorf("writing example: %w", err)
	}
	return nil
}
