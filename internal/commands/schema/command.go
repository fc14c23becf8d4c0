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

// Package schema implements 'ironflow schema'.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/schemas"
)

const writePath = "schemas/flow.schema.json"

// NewCommand creates the schema command.
func NewCommand() *cobra.Command {
	var (
		writeToFile bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Output the flow JSON Schema",
		Long: `Output the embedded JSON Schema for flow files. The schema drives
IDE autocompletion and standalone validation. By default it prints to
stdout; --write saves it to ./` + writePath + `.`,
		Example: `  # Print the schema
  ironflow schema

  # Save it for editor integration
  ironflow schema --write

  # Inspect the step shape
  ironflow schema | jq '.["$defs"].step'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, writeToFile, force)
		},
	}

	cmd.Flags().BoolVar(&writeToFile, "write", false, "Write the schema to ./"+writePath)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing schema file")

	return cmd
}

func runSchema(cmd *cobra.Command, writeToFile, force bool) error {
	raw := schemas.GetFlowSchema()

	var obj any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return shared.Failure("parsing embedded schema", err)
	}
	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return shared.Failure("encoding schema", err)
	}
	pretty = append(pretty, '\n')

	if !writeToFile {
		_, err := cmd.OutOrStdout().Write(pretty)
		return err
	}

	if _, err := os.Stat(writePath); err == nil && !force {
		return shared.Failure(writePath+" already exists (use --force to overwrite)", nil)
	}
	if err := os.MkdirAll(filepath.Dir(writePath), 0o755); err != nil {
		return shared.Failure("creating schema directory", err)
	}
	if err := os.WriteFile(writePath, pretty, 0o644); err != nil {
		return shared.Failure("writing schema", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Wrote "+writePath))
	return nil
}
