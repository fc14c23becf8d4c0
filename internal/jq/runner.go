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

// Package jq evaluates jq programs over flow context snapshots for the
// transform node. Programs run under a deadline and a snapshot size cap so a
// runaway query cannot stall a run or balloon memory.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// Defaults applied when a Runner is built with zero values.
const (
	DefaultTimeout       = 1 * time.Second
	DefaultSnapshotBytes = 10 * 1024 * 1024
)

// Runner evaluates jq programs against context snapshots.
type Runner struct {
	timeout  time.Duration
	maxBytes int64
}

// NewRunner creates a Runner. Zero arguments fall back to the defaults.
func NewRunner(timeout time.Duration, maxBytes int64) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultSnapshotBytes
	}
	return &Runner{timeout: timeout, maxBytes: maxBytes}
}

// Run evaluates program against the snapshot. An empty program returns the
// snapshot unchanged. A program yielding no values returns nil, one value is
// returned directly, several come back as a slice.
func (r *Runner) Run(ctx context.Context, program string, snapshot map[string]any) (any, error) {
	if program == "" {
		return snapshot, nil
	}
	if err := r.checkSize(snapshot); err != nil {
		return nil, err
	}

	code, err := compile(program)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The iterator yields the context error as a value when the deadline
	// fires mid-evaluation.
	iter := code.RunWithContext(ctx, snapshot)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("jq program exceeded the %v deadline", r.timeout)
			}
			return nil, err
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Check compiles program without running it, so flow validation can reject a
// bad query before a run starts.
func (r *Runner) Check(program string) error {
	if program == "" {
		return nil
	}
	_, err := compile(program)
	return err
}

func compile(program string) (*gojq.Code, error) {
	query, err := gojq.Parse(program)
	if err != nil {
		return nil, fmt.Errorf("invalid jq program: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq program: %w", err)
	}
	return code, nil
}

// checkSize bounds the snapshot by its JSON encoding, the same shape jq
// operates on.
func (r *Runner) checkSize(snapshot map[string]any) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding context snapshot: %w", err)
	}
	if int64(len(encoded)) > r.maxBytes {
		return fmt.Errorf("context snapshot is %d bytes, transform cap is %d", len(encoded), r.maxBytes)
	}
	return nil
}
