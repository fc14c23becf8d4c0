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

// Package list implements 'ironflow list'.
package list

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/pkg/flow"
)

// NewCommand creates the list command.
func NewCommand() *cobra.Command {
	var (
		status   string
		storeDir string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs",
		Example: `  # All runs, newest first
  ironflow list

  # Only failures
  ironflow list --status failed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, status, storeDir, format)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by run status (pending, running, success, failed, stalled)")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Directory for run state (overrides config)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

func runList(cmd *cobra.Command, status, storeDir, format string) error {
	filter := flow.RunStatus(status)
	if filter != "" && !filter.Valid() {
		return shared.Failure(fmt.Sprintf("unknown status %q", status), nil)
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.Failure("loading config", err)
	}
	store, closeStore, err := shared.OpenStore(cfg, storeDir)
	if err != nil {
		return shared.Failure("opening state store", err)
	}
	defer closeStore()

	runs, err := store.ListRuns(cmd.Context(), filter)
	if err != nil {
		return shared.Failure("listing runs", err)
	}

	if format == "json" || shared.GetJSON() {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(runs); err != nil {
			return shared.Failure("encoding runs", err)
		}
		return nil
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tFLOW\tSTATUS\tSTARTED\tTASKS")
	for _, run := range runs {
		counts := run.TaskCounts()
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%d ok / %d failed / %d skipped\n",
			run.ID,
			run.FlowName,
			shared.RunStatusIcon(run.Status), run.Status,
			run.Started.Format("2006-01-02 15:04:05"),
			counts[flow.TaskSuccess], counts[flow.TaskFailed], counts[flow.TaskSkipped],
		)
	}
	return w.Flush()
}
