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

// Package run implements 'ironflow run'.
package run

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/pkg/flow"
	"github.com/tombee/ironflow/pkg/flow/nodes"
)

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	var (
		contextJSON   string
		storeDir      string
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "run <flow.yaml>",
		Short: "Execute a flow to completion",
		Long: `Run loads a flow file, validates it, and drives it to a terminal
status. The initial context can be seeded with --context; the flow file's
directory is injected as _flow_dir so nested flows resolve relative paths.

Exit code 0 when the run succeeds, 1 otherwise.`,
		Example: `  # Run a flow
  ironflow run deploy.yaml

  # Seed the initial context
  ironflow run deploy.yaml --context '{"env": "staging"}'

  # Machine-readable result
  ironflow run deploy.yaml --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, args[0], contextJSON, storeDir, maxConcurrent)
		},
	}

	cmd.Flags().StringVarP(&contextJSON, "context", "c", "", "Initial context as a JSON object")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Directory for run state (overrides config)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum concurrent tasks per phase (overrides config)")

	return cmd
}

func runFlow(cmd *cobra.Command, path, contextJSON, storeDir string, maxConcurrent int) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.Failure("loading config", err)
	}
	if maxConcurrent > 0 {
		cfg.MaxConcurrentTasks = maxConcurrent
	}
	logger := shared.NewLogger(cfg)

	f, err := flow.ParseFile(path)
	if err != nil {
		return shared.Failure("loading flow", err)
	}

	registry := nodes.Builtin(logger)
	if errs := append(flow.Validate(f), flow.ValidateNodeTypes(f, registry)...); len(errs) > 0 {
		for _, msg := range errs {
			fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderError(msg))
		}
		return shared.Silent()
	}

	initial := map[string]any{}
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &initial); err != nil {
			return shared.Failure("parsing --context", err)
		}
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return shared.Failure("resolving flow directory", err)
	}
	initial[flow.KeyFlowDir] = dir

	store, closeStore, err := shared.OpenStore(cfg, storeDir)
	if err != nil {
		return shared.Failure("opening state store", err)
	}
	defer closeStore()

	engine := flow.NewEngine(registry, store).
		WithLogger(logger).
		WithMaxConcurrent(cfg.ResolveMaxConcurrent())

	// Ctrl-C cancels scheduling at the next phase boundary; the run is
	// recorded as stalled.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := engine.Run(ctx, f, initial)
	if err != nil {
		return shared.Failure("run failed", err)
	}

	if shared.GetJSON() {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(info); err != nil {
			return shared.Failure("encoding result", err)
		}
	} else if !shared.GetQuiet() {
		printResult(cmd, info)
	}

	if info.Status != flow.RunSuccess {
		return shared.Silent()
	}
	return nil
}

func printResult(cmd *cobra.Command, info *flow.RunInfo) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s Run %s (%s) finished: %s\n",
		shared.RunStatusIcon(info.Status), info.ID, info.FlowName, info.Status)

	names := make([]string, 0, len(info.Tasks))
	for name := range info.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	verbose := shared.GetVerbose()
	for _, name := range names {
		task := info.Tasks[name]
		line := fmt.Sprintf("%s %s (%s)", shared.TaskStatusIcon(task.Status), name, task.Status)
		if verbose {
			if d := task.Duration(); d > 0 {
				line += " " + shared.Muted.Render(d.Round(time.Millisecond).String())
			}
		}
		if task.Error != "" {
			line += " " + shared.Muted.Render("- "+task.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "  "+line)

		if verbose && len(task.Output) > 0 {
			if encoded, err := json.Marshal(task.Output); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "    "+shared.Muted.Render("output: "+string(encoded)))
			}
		}
	}
}
