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

// Package serve implements 'ironflow serve'.
package serve

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/ironflow/internal/commands/shared"
	"github.com/tombee/ironflow/internal/flows"
	"github.com/tombee/ironflow/internal/server"
	"github.com/tombee/ironflow/internal/tracing"
	"github.com/tombee/ironflow/pkg/flow/nodes"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var (
		host     string
		port     int
		storeDir string
		flowsDir string
		maxBody  int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Serve starts the JSON HTTP API: flow execution and validation, run
inspection, named webhooks, the node catalog, and Prometheus metrics.
The flows directory is indexed at startup and kept fresh with a
filesystem watcher. Shuts down gracefully on SIGINT/SIGTERM.`,
		Example: `  # Serve on the configured host and port
  ironflow serve

  # Override the bind address and flow directory
  ironflow serve --host 0.0.0.0 -p 9090 --flows-dir ./flows`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port, storeDir, flowsDir, maxBody)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (overrides config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port (overrides config)")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "Directory for run state (overrides config)")
	cmd.Flags().StringVar(&flowsDir, "flows-dir", "", "Directory of flow files (overrides config)")
	cmd.Flags().Int64Var(&maxBody, "max-body", 0, "Max request body size in bytes (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, host string, port int, storeDir, flowsDir string, maxBody int64) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return shared.Failure("loading config", err)
	}
	if host != "" {
		cfg.Host = host
	}
	if port != 0 {
		cfg.Port = port
	}
	if flowsDir != "" {
		cfg.FlowsDir = flowsDir
	}
	if maxBody != 0 {
		cfg.MaxBody = maxBody
	}

	logger := shared.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version, _, _ := shared.GetVersion()
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Stdout:         cfg.Tracing.Stdout,
		ServiceVersion: version,
	})
	if err != nil {
		return shared.Failure("initializing tracing", err)
	}
	defer shutdownTracing(cmd.Context())

	store, closeStore, err := shared.OpenStore(cfg, storeDir)
	if err != nil {
		return shared.Failure("opening state store", err)
	}
	defer closeStore()

	index := flows.NewIndex(cfg.FlowsDir, logger)
	if err := index.Reload(ctx); err != nil {
		logger.Warn("initial flow index load failed", slog.Any("error", err))
	}
	if watcher, err := flows.Watch(ctx, index); err != nil {
		logger.Warn("flow directory watcher unavailable", slog.Any("error", err))
	} else {
		defer watcher.Stop()
	}

	srv := server.New(server.Options{
		Config:   cfg,
		Registry: nodes.Builtin(logger),
		Store:    store,
		Index:    index,
		Logger:   logger,
		Version:  version,
	})

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return shared.Failure("server error", err)
	}
	return nil
}
