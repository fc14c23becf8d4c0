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

// Package cli assembles the ironflow root command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/internal/dotenv"
)

// SetVersion records build-time version information (called from main).
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for ironflow.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ironflow",
		Short: "IronFlow - workflow execution engine",
		Long: `IronFlow runs user-authored flows: named DAGs of steps with
dependencies, retries, timeouts, conditional routing, and error handlers.

Run 'ironflow setup' to write a starter configuration.
Run 'ironflow nodes' to list the available node types.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path := shared.GetDotenvPath(); path != "" {
				if _, err := dotenv.Load(path); err != nil {
					return shared.Failure("loading dotenv file", err)
				}
				return nil
			}
			if _, err := dotenv.LoadDefault(); err != nil {
				return shared.Failure("loading .env", err)
			}
			return nil
		},
	}

	verbose, quiet, json, config, dotenvPath := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ./ironflow.yaml)")
	cmd.PersistentFlags().StringVar(dotenvPath, "dotenv", "", "Path to .env file loaded before the command runs")

	return cmd
}

// HandleExitError exits the process with the error's exit code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
