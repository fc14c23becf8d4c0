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

// Package nodes implements 'ironflow nodes'.
package nodes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	builtins "github.com/tombee/ironflow/pkg/flow/nodes"
)

// NewCommand creates the nodes command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "nodes",
		Short:         "List the available node types",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := builtins.Builtin(slog.Default()).List()

			if shared.GetJSON() {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(infos); err != nil {
					return shared.Failure("encoding nodes", err)
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NODE TYPE\tDESCRIPTION")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\n", info.NodeType, info.Description)
			}
			return w.Flush()
		},
	}
}
