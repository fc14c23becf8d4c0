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

// Package server exposes the flow engine over JSON HTTP: run and validate
// endpoints, run inspection, the node catalog, named webhooks, and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/tombee/ironflow/internal/config"
	"github.com/tombee/ironflow/internal/flows"
	"github.com/tombee/ironflow/internal/log"
	"github.com/tombee/ironflow/internal/secrets"
	"github.com/tombee/ironflow/internal/tracing"
	"github.com/tombee/ironflow/pkg/flow"
)

// shutdownTimeout bounds graceful drain on exit.
const shutdownTimeout = 10 * time.Second

// Options wires the server's collaborators.
type Options struct {
	Config   *config.Config
	Registry *flow.Registry
	Store    flow.StateStore
	Index    *flows.Index
	Logger   *slog.Logger
	Version  string

	// ResolveSecret resolves webhook secret references. Defaults to
	// secrets.Resolve.
	ResolveSecret func(string) (string, error)
}

// Server is the IronFlow HTTP API.
type Server struct {
	cfg           *config.Config
	registry      *flow.Registry
	store         flow.StateStore
	engine        *flow.Engine
	index         *flows.Index
	logger        *slog.Logger
	version       string
	resolveSecret func(string) (string, error)

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Server from its options.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithComponent(logger, "server")

	resolve := opts.ResolveSecret
	if resolve == nil {
		resolve = secrets.Resolve
	}

	engine := flow.NewEngine(opts.Registry, opts.Store).
		WithLogger(logger).
		WithMaxConcurrent(opts.Config.ResolveMaxConcurrent())

	return &Server{
		cfg:           opts.Config,
		registry:      opts.Registry,
		store:         opts.Store,
		engine:        engine,
		index:         opts.Index,
		logger:        logger,
		version:       opts.Version,
		resolveSecret: resolve,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// Handler builds the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /flows/run", s.handleRunFlow)
	mux.HandleFunc("POST /flows/validate", s.handleValidateFlow)
	mux.HandleFunc("POST /webhooks/{name}", s.handleWebhook)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /nodes", s.handleNodes)
	mux.HandleFunc("GET /flows", s.handleFlows)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Innermost to outermost: body cap, CORS, request log, recovery,
	// optional tracing.
	var handler http.Handler = mux
	handler = withMaxBody(s.cfg.MaxBody, handler)
	handler = withCORS(handler)
	handler = withRequestLog(s.logger, handler)
	handler = withRecovery(s.logger, handler)
	if s.cfg.Tracing.Enabled {
		handler = tracing.Middleware(handler)
	}
	return handler
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// execute runs a validated flow synchronously and records metrics. The run
// uses a context detached from the request so a dropped client connection
// does not stall the run mid-flight.
func (s *Server) execute(ctx context.Context, f *flow.Flow, initial map[string]any) (*flow.RunInfo, error) {
	activeRuns.Inc()
	defer activeRuns.Dec()

	start := time.Now()
	runCtx := context.WithoutCancel(ctx)

	var endSpan func(string)
	if s.cfg.Tracing.Enabled {
		runCtx, endSpan = tracing.StartRun(runCtx, f.Name)
	}

	info, err := s.engine.Run(runCtx, f, initial)
	if endSpan != nil {
		status := "error"
		if info != nil {
			status = string(info.Status)
		}
		endSpan(status)
	}
	if info != nil {
		observeRun(info, time.Since(start))
	}
	return info, err
}

// limiter returns the rate limiter for a webhook name, creating it on first
// use from the route's per-minute budget.
func (s *Server) limiter(name string, perMinute int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	lim, ok := s.limiters[name]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
		s.limiters[name] = lim
	}
	return lim
}
