// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package malloc

import "github.com/prometheus/client_golang/prometheus"

var (
	memMallocCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "malloc_counter",
			Help:      "Total allocated by malloc.",
		}, []string{"type"})

	MallocAllocateBytesCounter   = memMallocCounter.WithLabelValues("allocate-bytes")
	MallocAllocateObjectsCounter = memMallocCounter.WithLabelValues("allocate-objects")

	memMallocGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "malloc_gauge",
			Help:      "Inuse of malloc.",
		}, []string{"type"})

	MallocInuseBytesGauge   = memMallocGauge.WithLabelValues("inuse-bytes")
	MallocInuseObjectsGauge = memMallocGauge.WithLabelValues("inuse-objects")
)

// RegisterMetrics registers the malloc collectors. Call once per
// registry, typically at service setup.
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(memMallocCounter)
	registry.MustRegister(memMallocGauge)
}
