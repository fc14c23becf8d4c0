package flow

import "time"

// RunStatus represents the lifecycle state of a run.
// Statuses serialize as lowercase strings.
type RunStatus string

const (
	// RunPending means the run record exists but execution has not started.
	RunPending RunStatus = "pending"
	// RunRunning means the engine is executing phases.
	RunRunning RunStatus = "running"
	// RunSuccess means every step settled without an unrecovered failure.
	RunSuccess RunStatus = "success"
	// RunFailed means at least one step failed terminally without a
	// successful handler.
	RunFailed RunStatus = "failed"
	// RunStalled means execution was interrupted before reaching a natural
	// terminal state (e.g. server shutdown cancelled the run's context).
	RunStalled RunStatus = "stalled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunStalled
}

// Valid reports whether s is one of the defined run statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunSuccess, RunFailed, RunStalled:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of one (run, step) pair.
// Statuses serialize as lowercase strings.
type TaskStatus string

const (
	// TaskPending means the task has not been scheduled yet.
	TaskPending TaskStatus = "pending"
	// TaskRunning means an attempt is in flight.
	TaskRunning TaskStatus = "running"
	// TaskSuccess means an attempt succeeded.
	TaskSuccess TaskStatus = "success"
	// TaskFailed means the last recorded attempt failed.
	TaskFailed TaskStatus = "failed"
	// TaskSkipped means the step was bypassed: a dependency failed, or the
	// step's route did not match any dependency's routing decision.
	TaskSkipped TaskStatus = "skipped"
)

// TaskState is the persisted record of one step within one run. Created
// pending when the run is initialized and mutated only by the engine; it
// outlives the run.
type TaskState struct {
	// Name is the step name.
	Name string `json:"name" yaml:"name"`

	// NodeType is the executor type the step declared.
	NodeType string `json:"node_type" yaml:"node_type"`

	// Status is the task's lifecycle state.
	Status TaskStatus `json:"status" yaml:"status"`

	// Attempt is the 1-based attempt counter, set once the task first runs.
	Attempt int `json:"attempt,omitempty" yaml:"attempt,omitempty"`

	// Started is when the current/last attempt began.
	Started *time.Time `json:"started,omitempty" yaml:"started,omitempty"`

	// Finished is when the last attempt settled.
	Finished *time.Time `json:"finished,omitempty" yaml:"finished,omitempty"`

	// Output holds the key-value map returned by a successful attempt.
	Output map[string]any `json:"output,omitempty" yaml:"output,omitempty"`

	// Error holds the last attempt's failure message.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Clone returns a deep copy of the task state.
func (t *TaskState) Clone() *TaskState {
	if t == nil {
		return nil
	}
	copied := *t
	if t.Started != nil {
		started := *t.Started
		copied.Started = &started
	}
	if t.Finished != nil {
		finished := *t.Finished
		copied.Finished = &finished
	}
	if t.Output != nil {
		copied.Output = make(map[string]any, len(t.Output))
		for k, v := range t.Output {
			copied.Output[k] = deepCopyValue(v)
		}
	}
	return &copied
}

// Duration returns the elapsed time of the last attempt, or zero when the
// task never settled.
func (t *TaskState) Duration() time.Duration {
	if t.Started == nil || t.Finished == nil {
		return 0
	}
	return t.Finished.Sub(*t.Started)
}

// RunInfo is the persisted record of one flow execution.
type RunInfo struct {
	// ID is the run's UUID.
	ID string `json:"id" yaml:"id"`

	// FlowName is the name of the executed flow.
	FlowName string `json:"flow_name" yaml:"flow_name"`

	// Status is the run's lifecycle state.
	Status RunStatus `json:"status" yaml:"status"`

	// Started is when the run record was initialized.
	Started time.Time `json:"started" yaml:"started"`

	// Finished is set once the run reaches a terminal status.
	Finished *time.Time `json:"finished,omitempty" yaml:"finished,omitempty"`

	// Context is the run's context snapshot: the initial context at init,
	// replaced by the final merged context at termination.
	Context map[string]any `json:"context" yaml:"context"`

	// Tasks maps step name to its task record.
	Tasks map[string]*TaskState `json:"tasks" yaml:"tasks"`
}

// Clone returns a deep copy of the run record.
func (r *RunInfo) Clone() *RunInfo {
	if r == nil {
		return nil
	}
	copied := *r
	if r.Finished != nil {
		finished := *r.Finished
		copied.Finished = &finished
	}
	copied.Context = make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		copied.Context[k] = deepCopyValue(v)
	}
	copied.Tasks = make(map[string]*TaskState, len(r.Tasks))
	for name, task := range r.Tasks {
		copied.Tasks[name] = task.Clone()
	}
	return &copied
}

// TaskCounts tallies the run's tasks by status.
func (r *RunInfo) TaskCounts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int, 5)
	for _, task := range r.Tasks {
		counts[task.Status]++
	}
	return counts
}
