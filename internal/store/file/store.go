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

// Package file implements the durable StateStore: one JSON document per run,
// written atomically via temp-file + rename so external readers never observe
// torn state.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tombee/ironflow/pkg/errors"
	"github.com/tombee/ironflow/pkg/flow"
)

// Store persists runs as <dir>/<run_id>.json. A writer lock serializes
// mutators; readers take the shared lock.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// compile-time interface check
var _ flow.StateStore = (*Store)(nil)

// New creates a file store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// load reads and parses one run document. Callers hold at least the read
// lock.
func (s *Store) load(runID string) (*flow.RunInfo, error) {
	data, err := os.ReadFile(s.runPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "run", ID: runID}
		}
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	var info flow.RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", runID, err)
	}
	return &info, nil
}

// save writes one run document atomically: marshal, write to a temp file in
// the same directory, rename into place. Callers hold the write lock.
func (s *Store) save(info *flow.RunInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", info.ID, err)
	}

	path := s.runPath(info.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing run %s: %w", info.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing run %s: %w", info.ID, err)
	}
	return nil
}

// mutate applies fn to the stored record under the writer lock and persists
// the result atomically.
func (s *Store) mutate(runID string, fn func(*flow.RunInfo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.load(runID)
	if err != nil {
		return err
	}
	if err := fn(info); err != nil {
		return err
	}
	return s.save(info)
}

// InitRun implements flow.StateStore.
func (s *Store) InitRun(ctx context.Context, runID, flowName string, initial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &flow.RunInfo{
		ID:       runID,
		FlowName: flowName,
		Status:   flow.RunPending,
		Started:  time.Now().UTC(),
		Context:  initial,
		Tasks:    make(map[string]*flow.TaskState),
	}
	if run.Context == nil {
		run.Context = map[string]any{}
	}
	return s.save(run)
}

// SetRunStatus implements flow.StateStore.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status flow.RunStatus) error {
	return s.mutate(runID, func(info *flow.RunInfo) error {
		info.Status = status
		if status.Terminal() {
			now := time.Now().UTC()
			info.Finished = &now
		}
		return nil
	})
}

// UpsertTask implements flow.StateStore.
func (s *Store) UpsertTask(ctx context.Context, runID string, task *flow.TaskState) error {
	return s.mutate(runID, func(info *flow.RunInfo) error {
		info.Tasks[task.Name] = task.Clone()
		return nil
	})
}

// GetContext implements flow.StateStore.
func (s *Store) GetContext(ctx context.Context, runID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.load(runID)
	if err != nil {
		return nil, err
	}
	return info.Context, nil
}

// UpdateContext implements flow.StateStore.
func (s *Store) UpdateContext(ctx context.Context, runID string, delta map[string]any) error {
	return s.mutate(runID, func(info *flow.RunInfo) error {
		for k, v := range delta {
			info.Context[k] = v
		}
		return nil
	})
}

// GetRunInfo implements flow.StateStore.
func (s *Store) GetRunInfo(ctx context.Context, runID string) (*flow.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(runID)
}

// ListRuns implements flow.StateStore. The directory is scanned on every
// call; entries that fail to parse are skipped rather than failing the whole
// listing.
func (s *Store) ListRuns(ctx context.Context, status flow.RunStatus) ([]*flow.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scanning store directory: %w", err)
	}

	runs := make([]*flow.RunInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		info, err := s.load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if status != "" && info.Status != status {
			continue
		}
		runs = append(runs, info)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})
	return runs, nil
}

// DeleteRun implements flow.StateStore.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.runPath(runID)); err != nil {
		if os.IsNotExist(err) {
			return &errors.NotFoundError{Resource: "run", ID: runID}
		}
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	return nil
}
