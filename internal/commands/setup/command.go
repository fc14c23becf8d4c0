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

// Package setup implements 'ironflow setup', an interactive wizard that
// writes a starter ironflow.yaml.
package setup

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/internal/config"
)

// NewCommand creates the setup command.
func NewCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactively create an ironflow.yaml",
		Long: `Setup walks through the server and storage settings and writes a
starter ironflow.yaml in the current directory. An existing file is
left untouched unless --force is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing ironflow.yaml")

	return cmd
}

func runSetup(cmd *cobra.Command, force bool) error {
	if _, err := os.Stat(config.DefaultFile); err == nil && !force {
		return shared.Failure(config.DefaultFile+" already exists (use --force to overwrite)", nil)
	}

	cfg := config.Default()
	host := cfg.Host
	port := strconv.Itoa(cfg.Port)
	flowsDir := cfg.FlowsDir
	storeType := cfg.Store.Type
	storeDir := cfg.StoreDir
	confirm := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("ironflow setup").
				Description("Answers become ./"+config.DefaultFile+". Every value can be\nchanged later by editing the file."),
			huh.NewInput().
				Title("Bind address").
				Value(&host),
			huh.NewInput().
				Title("Port").
				Validate(validatePort).
				Value(&port),
			huh.NewInput().
				Title("Flows directory").
				Description("Flow files referenced by name are looked up here").
				Value(&flowsDir),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Run state backend").
				Options(
					huh.NewOption("File (one JSON document per run)", config.StoreTypeFile),
					huh.NewOption("SQLite (single database file)", config.StoreTypeSQLite),
					huh.NewOption("Memory (lost on restart)", config.StoreTypeMemory),
				).
				Value(&storeType),
			huh.NewInput().
				Title("State directory").
				Value(&storeDir),
			huh.NewConfirm().
				Title("Write " + config.DefaultFile + "?").
				Value(&confirm),
		),
	)

	if err := form.Run(); err != nil {
		return shared.Failure("setup aborted", err)
	}
	if !confirm {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing written.")
		return nil
	}

	cfg.Host = host
	cfg.Port, _ = strconv.Atoi(port)
	cfg.FlowsDir = flowsDir
	cfg.StoreDir = storeDir
	cfg.Store.Type = storeType

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return shared.Failure("encoding config", err)
	}
	if err := os.WriteFile(config.DefaultFile, data, 0o644); err != nil {
		return shared.Failure("writing "+config.DefaultFile, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Wrote "+config.DefaultFile))
	fmt.Fprintln(cmd.OutOrStdout(), shared.Muted.Render("Next: put a flow in "+flowsDir+" and try 'ironflow run' or 'ironflow serve'."))
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
