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

// Package flows maintains an index of the flow files under a directory.
// The index backs flow lookup by name for the server and CLI, and can keep
// itself current with a filesystem watcher.
package flows

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/ironflow/pkg/errors"
	"github.com/tombee/ironflow/pkg/flow"
)

// filePattern matches flow definition files anywhere under the flows dir.
const filePattern = "**/*.{yaml,yml}"

// Entry describes one flow file found in the directory. A file that fails to
// parse still gets an entry so listings can surface the problem.
type Entry struct {
	// Name is the flow's declared name, or the file basename when the file
	// does not parse.
	Name string `json:"name"`

	// Path is the file path relative to the flows directory.
	Path string `json:"file"`

	// Description from the flow definition.
	Description string `json:"description,omitempty"`

	// Steps is the number of steps in the flow.
	Steps int `json:"steps"`

	// Error is set when the file could not be parsed or validated.
	Error string `json:"error,omitempty"`
}

// Valid reports whether the entry's file parsed and validated.
func (e Entry) Valid() bool { return e.Error == "" }

// Index scans a directory for flow files and answers lookups by flow name.
// Safe for concurrent use; Reload swaps the entry set atomically.
type Index struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	byName  map[string]Entry
	entries []Entry
}

// NewIndex creates an index over dir. Call Reload to populate it.
func NewIndex(dir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		dir:    dir,
		logger: logger.With(slog.String("component", "flows"), slog.String("dir", dir)),
		byName: map[string]Entry{},
	}
}

// Dir returns the directory the index covers.
func (ix *Index) Dir() string { return ix.dir }

// Reload rescans the directory, parsing flow files concurrently. Files that
// fail to parse are indexed with their error rather than dropped.
func (ix *Index) Reload(ctx context.Context) error {
	matches, err := doublestar.Glob(os.DirFS(ix.dir), filePattern)
	if err != nil {
		return errors.Wrapf(err, "scanning %s", ix.dir)
	}
	sort.Strings(matches)

	entries := make([]Entry, len(matches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, rel := range matches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries[i] = ix.load(rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if !e.Valid() {
			continue
		}
		if prev, dup := byName[e.Name]; dup {
			ix.logger.Warn("duplicate flow name, keeping first",
				"name", e.Name, "kept", prev.Path, "ignored", e.Path)
			continue
		}
		byName[e.Name] = e
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.byName = byName
	ix.mu.Unlock()

	indexReloads.Inc()
	indexedFlows.Set(float64(len(byName)))
	ix.logger.Debug("flow index reloaded", "files", len(entries), "flows", len(byName))
	return nil
}

// load parses and validates a single file, relative to the index dir.
func (ix *Index) load(rel string) Entry {
	entry := Entry{Name: strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel)), Path: rel}

	f, err := flow.ParseFile(filepath.Join(ix.dir, rel))
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Name = f.Name
	entry.Description = f.Description
	entry.Steps = len(f.Steps)

	if errs := flow.Validate(f); len(errs) > 0 {
		entry.Error = strings.Join(errs, "; ")
	}
	return entry
}

// List returns every indexed file, parse failures included, in path order.
func (ix *Index) List() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// Lookup returns the entry for a flow name.
func (ix *Index) Lookup(name string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byName[name]
	return e, ok
}

// Resolve turns a flow reference into a loadable file path. A reference
// ending in .yaml or .yml is treated as a path (relative paths are joined
// with the flows dir); anything else is looked up as a flow name.
func (ix *Index) Resolve(ref string) (string, error) {
	ext := filepath.Ext(ref)
	if ext == ".yaml" || ext == ".yml" {
		if filepath.IsAbs(ref) {
			return ref, nil
		}
		path := filepath.Join(ix.dir, ref)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", &errors.NotFoundError{Resource: "flow file", ID: ref}
			}
			return "", errors.Wrapf(err, "resolving flow %s", ref)
		}
		return path, nil
	}

	if e, ok := ix.Lookup(ref); ok {
		return filepath.Join(ix.dir, e.Path), nil
	}
	return "", &errors.NotFoundError{Resource: "flow", ID: ref}
}

// IsFlowFile reports whether path names a file the index would scan.
func IsFlowFile(path string) bool {
	matched, _ := doublestar.Match(filePattern, filepath.Base(path))
	return matched
}
