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

// Package sqlite implements the StateStore over a single-file SQLite
// database. Each run is stored as a JSON document; transactions provide the
// atomic-replace property the engine relies on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/ironflow/pkg/errors"
	"github.com/tombee/ironflow/pkg/flow"
)

// Store is a SQLite-backed StateStore.
type Store struct {
	db *sql.DB
}

// compile-time interface check
var _ flow.StateStore = (*Store)(nil)

// New opens (or creates) the database at path and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		flow_name TEXT NOT NULL,
		status TEXT NOT NULL,
		started TEXT NOT NULL,
		document TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started DESC);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// loadTx reads one run document inside a transaction.
func loadTx(ctx context.Context, tx *sql.Tx, runID string) (*flow.RunInfo, error) {
	var document string
	err := tx.QueryRowContext(ctx, "SELECT document FROM runs WHERE id = ?", runID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	var info flow.RunInfo
	if err := json.Unmarshal([]byte(document), &info); err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", runID, err)
	}
	return &info, nil
}

// saveTx replaces one run document inside a transaction.
func saveTx(ctx context.Context, tx *sql.Tx, info *flow.RunInfo) error {
	document, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", info.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, flow_name, status, started, document)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   flow_name = excluded.flow_name,
		   status = excluded.status,
		   started = excluded.started,
		   document = excluded.document`,
		info.ID, info.FlowName, string(info.Status),
		info.Started.UTC().Format(time.RFC3339Nano), string(document))
	if err != nil {
		return fmt.Errorf("writing run %s: %w", info.ID, err)
	}
	return nil
}

// mutate applies fn to the stored record within one transaction.
func (s *Store) mutate(ctx context.Context, runID string, fn func(*flow.RunInfo) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	info, err := loadTx(ctx, tx, runID)
	if err != nil {
		return err
	}
	if err := fn(info); err != nil {
		return err
	}
	if err := saveTx(ctx, tx, info); err != nil {
		return err
	}
	return tx.Commit()
}

// InitRun implements flow.StateStore.
func (s *Store) InitRun(ctx context.Context, runID, flowName string, initial map[string]any) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveTx(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// SetRunStatus implements flow.StateStore.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status flow.RunStatus) error {
	return s.mutate(ctx, runID, func(info *flow.RunInfo) error {
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
	return s.mutate(ctx, runID, func(info *flow.RunInfo) error {
		info.Tasks[task.Name] = task.Clone()
		return nil
	})
}

// GetContext implements flow.StateStore.
func (s *Store) GetContext(ctx context.Context, runID string) (map[string]any, error) {
	info, err := s.GetRunInfo(ctx, runID)
	if err != nil {
		return nil, err
	}
	return info.Context, nil
}

// UpdateContext implements flow.StateStore.
func (s *Store) UpdateContext(ctx context.Context, runID string, delta map[string]any) error {
	return s.mutate(ctx, runID, func(info *flow.RunInfo) error {
		for k, v := range delta {
			info.Context[k] = v
		}
		return nil
	})
}

// GetRunInfo implements flow.StateStore.
func (s *Store) GetRunInfo(ctx context.Context, runID string) (*flow.RunInfo, error) {
	var document string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM runs WHERE id = ?", runID).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}

	var info flow.RunInfo
	if err := json.Unmarshal([]byte(document), &info); err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", runID, err)
	}
	return &info, nil
}

// ListRuns implements flow.StateStore.
func (s *Store) ListRuns(ctx context.Context, status flow.RunStatus) ([]*flow.RunInfo, error) {
	query := "SELECT document FROM runs ORDER BY started DESC"
	args := []any{}
	if status != "" {
		query = "SELECT document FROM runs WHERE status = ? ORDER BY started DESC"
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*flow.RunInfo
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		var info flow.RunInfo
		if err := json.Unmarshal([]byte(document), &info); err != nil {
			continue
		}
		runs = append(runs, &info)
	}
	return runs, rows.Err()
}

// DeleteRun implements flow.StateStore.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", runID)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	if affected == 0 {
		return &errors.NotFoundError{Resource: "run", ID: runID}
	}
	return nil
}
