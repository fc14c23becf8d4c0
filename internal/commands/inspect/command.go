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

// Package inspect implements 'ironflow inspect'.
package inspect

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
)

// NewCommand creates the inspect command.
func NewCommand() *cobra.Command {
	var storeDir string

	cmd := &cobra.Command{
		Use:   "inspect <run_id>",
		Short: "Show the full record of one run",
		Example: `  # Task states, timings, and final context of a run
  ironflow inspect 3e1f1c9a-...

  # Raw record as JSON
  ironflow inspect 3e1f1c9a-... --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], storeDir)
		},
	}

	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Directory for run state (overrides config)")

	return cmd
}

func runInspect(cmd *cobra.Command, runID, storeDir string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.Failure("loading config", err)
	}
	store, closeStore, err := shared.OpenStore(cfg, storeDir)
	if err != nil {
		return shared.Failure("opening state store", err)
	}
	defer closeStore()

	info, err := store.GetRunInfo(cmd.Context(), runID)
	if err != nil {
		return shared.Failure("", err)
	}

	if shared.GetJSON() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			return shared.Failure("encoding run", err)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", shared.Header.Render("Run"), info.ID)
	fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Flow:"), info.FlowName)
	fmt.Fprintf(out, "  %s %s %s\n", shared.RenderLabel("Status:"), shared.RunStatusIcon(info.Status), info.Status)
	fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Started:"), info.Started.Format("2006-01-02 15:04:05"))
	if info.Finished != nil {
		fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Finished:"), info.Finished.Format("2006-01-02 15:04:05"))
	}

	names := make([]string, 0, len(info.Tasks))
	for name := range info.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "\n%s\n", shared.Header.Render("Tasks"))
	for _, name := range names {
		task := info.Tasks[name]
		fmt.Fprintf(out, "  %s %s (%s, attempt %d", shared.TaskStatusIcon(task.Status), name, task.Status, task.Attempt)
		if d := task.Duration(); d > 0 {
			fmt.Fprintf(out, ", %s", d.Round(time.Millisecond))
		}
		fmt.Fprint(out, ")\n")
		if task.Error != "" {
			fmt.Fprintf(out, "      %s\n", shared.Muted.Render(task.Error))
		}
	}

	if len(info.Context) > 0 {
		fmt.Fprintf(out, "\n%s\n", shared.Header.Render("Context"))
		data, err := json.MarshalIndent(info.Context, "  ", "  ")
		if err != nil {
			return shared.Failure("encoding context", err)
		}
		fmt.Fprintf(out, "  %s\n", data)
	}
	return nil
}
