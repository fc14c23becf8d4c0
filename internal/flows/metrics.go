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

package flows

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ironflow_flow_index_reloads_total",
			Help: "Total flow index reloads",
		},
	)

	indexReloadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ironflow_flow_index_reload_errors_total",
			Help: "Total flow index reloads that failed",
		},
	)

	indexedFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ironflow_flow_index_flows",
			Help: "Number of valid flows currently indexed",
		},
	)
)
