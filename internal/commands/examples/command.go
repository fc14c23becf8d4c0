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

// Package examples implements 'ironflow examples'.
package examples

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/internal/examples"
)

// NewCommand creates the examples command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Browse the embedded starter flows",
		Long: `Examples lists, shows, and copies the starter flows embedded in the
binary. They work offline and always match the installed node set.`,
		Example: `  # List examples
  ironflow examples

  # Print one to stdout
  ironflow examples show hello-world

  # Copy one into the current directory and run it
  ironflow examples copy hello-world .
  ironflow run hello-world.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newListCmd(), newShowCmd(), newCopyCmd())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runList(cmd)
	}

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the embedded examples",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	list, err := examples.List()
	if err != nil {
		return shared.Failure("listing examples", err)
	}

	if shared.GetJSON() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTEPS\tDESCRIPTION")
	for _, ex := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\n", ex.Name, ex.Steps, ex.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.Muted.Render("\nUse 'ironflow examples show <name>' to view one."))
	return nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print an example flow",
		Example: `  # Print an example, or pipe it into a file
  ironflow examples show hello-world
  ironflow examples show data-pipeline > pipeline.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := examples.Get(args[0])
			if err != nil {
				return shared.Failure("", err)
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		},
	}
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "copy <name> <dest>",
		Short:         "Copy an example flow to a file or directory",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, dest := args[0], args[1]
			path, err := examples.ResolveDest(name, dest)
			if err != nil {
				return shared.Failure("", err)
			}
			if err := examples.CopyTo(name, path); err != nil {
				return shared.Failure("", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Wrote "+path))
			return nil
		},
	}
}
