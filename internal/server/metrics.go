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

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/ironflow/pkg/flow"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironflow_runs_total",
			Help: "Total flow runs by terminal status",
		},
		[]string{"status"},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironflow_tasks_total",
			Help: "Total tasks by terminal status",
		},
		[]string{"status"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ironflow_run_duration_seconds",
			Help:    "Flow run wall-clock duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ironflow_active_runs",
			Help: "Number of runs currently executing",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironflow_http_requests_total",
			Help: "Total HTTP requests by method, route pattern, and status code",
		},
		[]string{"method", "path", "code"},
	)

	webhookRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironflow_webhook_rate_limited_total",
			Help: "Total webhook dispatches rejected by the per-name rate limit",
		},
		[]string{"name"},
	)
)

// observeRun records a completed run's terminal status, duration, and task
// tallies.
func observeRun(info *flow.RunInfo, elapsed time.Duration) {
	runsTotal.WithLabelValues(string(info.Status)).Inc()
	runDuration.Observe(elapsed.Seconds())
	for status, count := range info.TaskCounts() {
		tasksTotal.WithLabelValues(string(status)).Add(float64(count))
	}
}
