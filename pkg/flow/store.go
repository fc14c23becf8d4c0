package flow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tombee/ironflow/pkg/errors"
)

// StateStore is the persistence contract the engine writes through. Every
// mutator must publish a consistent snapshot: a reader concurrent with an
// UpsertTask sees either the pre-state or the post-state, never a partial
// record. Durable backends achieve this with side-location writes renamed
// into place; in-memory backends serialize mutators.
type StateStore interface {
	// InitRun creates the run record with status pending, started now, the
	// provided initial context, and no tasks.
	InitRun(ctx context.Context, runID, flowName string, initial map[string]any) error

	// SetRunStatus updates the run status, stamping finished when the status
	// is terminal.
	SetRunStatus(ctx context.Context, runID string, status RunStatus) error

	// UpsertTask creates or replaces the task entry keyed by task name.
	UpsertTask(ctx context.Context, runID string, task *TaskState) error

	// GetContext returns a copy of the run's stored context.
	GetContext(ctx context.Context, runID string) (map[string]any, error)

	// UpdateContext merges delta into the stored context: existing keys are
	// overwritten, others preserved.
	UpdateContext(ctx context.Context, runID string, delta map[string]any) error

	// GetRunInfo returns the full run record, or NotFoundError.
	GetRunInfo(ctx context.Context, runID string) (*RunInfo, error)

	// ListRuns returns all runs sorted by start time descending, optionally
	// filtered by status (empty status means no filter).
	ListRuns(ctx context.Context, status RunStatus) ([]*RunInfo, error)

	// DeleteRun removes the run record, or returns NotFoundError.
	DeleteRun(ctx context.Context, runID string) error
}

// MemoryStore is the ephemeral StateStore used for nested/child flows whose
// persistence is unnecessary, and for tests. All values are deep-copied on
// the way in and out so callers never alias store-owned state.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*RunInfo
}

// compile-time interface check
var _ StateStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*RunInfo)}
}

// InitRun implements StateStore.
func (s *MemoryStore) InitRun(ctx context.Context, runID, flowName string, initial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &RunInfo{
		ID:       runID,
		FlowName: flowName,
		Status:   RunPending,
		Started:  time.Now().UTC(),
		Context:  make(map[string]any, len(initial)),
		Tasks:    make(map[string]*TaskState),
	}
	for k, v := range initial {
		run.Context[k] = deepCopyValue(v)
	}
	s.runs[runID] = run
	return nil
}

// SetRunStatus implements StateStore.
func (s *MemoryStore) SetRunStatus(ctx context.Context, runID string, status RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return &errors.NotFoundError{Resource: "run", ID: runID}
	}
	run.Status = status
	if status.Terminal() {
		now := time.Now().UTC()
		run.Finished = &now
	}
	return nil
}

// UpsertTask implements StateStore.
func (s *MemoryStore) UpsertTask(ctx context.Context, runID string, task *TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return &errors.NotFoundError{Resource: "run", ID: runID}
	}
	run.Tasks[task.Name] = task.Clone()
	return nil
}

// GetContext implements StateStore.
func (s *MemoryStore) GetContext(ctx context.Context, runID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	copied := make(map[string]any, len(run.Context))
	for k, v := range run.Context {
		copied[k] = deepCopyValue(v)
	}
	return copied, nil
}

// UpdateContext implements StateStore.
func (s *MemoryStore) UpdateContext(ctx context.Context, runID string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return &errors.NotFoundError{Resource: "run", ID: runID}
	}
	for k, v := range delta {
		run.Context[k] = deepCopyValue(v)
	}
	return nil
}

// GetRunInfo implements StateStore.
func (s *MemoryStore) GetRunInfo(ctx context.Context, runID string) (*RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	return run.Clone(), nil
}

// ListRuns implements StateStore.
func (s *MemoryStore) ListRuns(ctx context.Context, status RunStatus) ([]*RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*RunInfo, 0, len(s.runs))
	for _, run := range s.runs {
		if status != "" && run.Status != status {
			continue
		}
		runs = append(runs, run.Clone())
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})
	return runs, nil
}

// DeleteRun implements StateStore.
func (s *MemoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return &errors.NotFoundError{Resource: "run", ID: runID}
	}
	delete(s.runs, runID)
	return nil
}
