// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics is a built-in stats-handler Plugin that republishes
// every process's ProcessStats as Prometheus gauges.
package metrics

import (
	"net/http"

	"github.com/dcondrey/process-pilot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const handlerName = "metrics"

var (
	memoryMB = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "process_pilot",
		Name:      "memory_mb",
		Help:      "Resident memory usage of a supervised process, in megabytes.",
	}, []string{"process", "run_id"})

	cpuPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "process_pilot",
		Name:      "cpu_percent",
		Help:      "CPU usage of a supervised process since the previous sample.",
	}, []string{"process", "run_id"})

	numThreads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "process_pilot",
		Name:      "num_threads",
		Help:      "Thread count of a supervised process.",
	}, []string{"process", "run_id"})

	numChildren = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "process_pilot",
		Name:      "num_children",
		Help:      "Child process count of a supervised process.",
	}, []string{"process", "run_id"})
)

// Plugin is the metrics stats-handler plugin. A manifest entry opts in
// by listing "metrics" in its stats_handlers.
type Plugin struct{}

// New returns the metrics Plugin, ready to register.
func New() Plugin { return Plugin{} }

func (Plugin) Name() string { return "metrics" }

func (Plugin) Hooks() map[string]map[pilot.HookKind][]pilot.HookFunc { return nil }

func (Plugin) Strategies() map[string]pilot.Strategy { return nil }

func (Plugin) StatsHandlers() map[string]pilot.StatsHandlerFunc {
	return map[string]pilot.StatsHandlerFunc{
		handlerName: publish,
	}
}

// publish republishes batch as gauges labeled by process name and the
// run_id of the OS process instance the sample came from, so a
// restart shows up as a fresh label combination rather than silently
// overwriting the previous process instance's last sample.
func publish(batch []pilot.ProcessStats) {
	for _, s := range batch {
		memoryMB.WithLabelValues(s.Name, s.RunID).Set(s.MemoryMB)
		cpuPercent.WithLabelValues(s.Name, s.RunID).Set(s.CPUPercent)
		numThreads.WithLabelValues(s.Name, s.RunID).Set(float64(s.NumThreads))
		numChildren.WithLabelValues(s.Name, s.RunID).Set(float64(s.NumChildren))
	}
}

// Handler returns the Prometheus scrape endpoint for an HTTP server to
// mount, typically at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
