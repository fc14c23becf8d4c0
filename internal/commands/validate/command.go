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

// Package validate implements 'ironflow validate'.
package validate

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/pkg/flow"
	"github.com/tombee/ironflow/pkg/flow/nodes"
)

// NewCommand creates the validate command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <flow.yaml>",
		Short: "Validate a flow file without executing it",
		Long: `Validate parses a flow file and checks its graph: unique step names,
resolvable dependencies and error handlers, no cycles, and known node
types. Nothing is executed.`,
		Example: `  # Validate a flow
  ironflow validate deploy.yaml

  # Machine-readable report
  ironflow validate deploy.yaml --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
	return cmd
}

type report struct {
	Valid    bool     `json:"valid"`
	FlowName string   `json:"flow_name,omitempty"`
	Steps    int      `json:"steps,omitempty"`
	Errors   []string `json:"errors"`
}

func runValidate(cmd *cobra.Command, path string) error {
	rep := report{Errors: []string{}}

	f, err := flow.ParseFile(path)
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
	} else {
		rep.FlowName = f.Name
		rep.Steps = len(f.Steps)
		registry := nodes.Builtin(slog.Default())
		rep.Errors = append(rep.Errors, flow.Validate(f)...)
		rep.Errors = append(rep.Errors, flow.ValidateNodeTypes(f, registry)...)
	}
	rep.Valid = len(rep.Errors) == 0

	if shared.GetJSON() {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(rep); err != nil {
			return shared.Failure("encoding report", err)
		}
		if !rep.Valid {
			return shared.Silent()
		}
		return nil
	}

	if rep.Valid {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("%s is valid (%d steps)", path, rep.Steps)))
		return nil
	}
	for _, msg := range rep.Errors {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderError(msg))
	}
	return shared.Silent()
}
