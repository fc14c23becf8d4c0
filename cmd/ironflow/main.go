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

package main

import (
	"github.com/tombee/ironflow/internal/cli"
	examplescmd "github.com/tombee/ironflow/internal/commands/examples"
	"github.com/tombee/ironflow/internal/commands/inspect"
	"github.com/tombee/ironflow/internal/commands/list"
	"github.com/tombee/ironflow/internal/commands/nodes"
	"github.com/tombee/ironflow/internal/commands/run"
	"github.com/tombee/ironflow/internal/commands/schema"
	"github.com/tombee/ironflow/internal/commands/serve"
	"github.com/tombee/ironflow/internal/commands/setup"
	"github.com/tombee/ironflow/internal/commands/validate"
	versioncmd "github.com/tombee/ironflow/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Flow commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())
	rootCmd.AddCommand(nodes.NewCommand())
	rootCmd.AddCommand(schema.NewCommand())
	rootCmd.AddCommand(examplescmd.NewCommand())

	// Run inspection
	rootCmd.AddCommand(list.NewCommand())
	rootCmd.AddCommand(inspect.NewCommand())

	// Server
	rootCmd.AddCommand(serve.NewCommand())

	// Configuration
	rootCmd.AddCommand(setup.NewCommand())

	rootCmd.AddCommand(versioncmd.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
