// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a Heap reports through when
// Options.Metrics is set. Grounded on the prometheus/client_golang +
// go.uber.org/zap pairing the arena-cache example repo depends on for its
// own allocator instrumentation; this heap exposes the mark-region
// equivalents (allocation count/bytes, cycle count/duration, live bytes,
// evacuated objects) rather than a generic cache's hit/miss counters.
type Metrics struct {
	Allocations      prometheus.Counter
	AllocatedBytes   prometheus.Counter
	Collections      prometheus.Counter
	EvacuatingCycles prometheus.Counter
	CollectionSeconds prometheus.Histogram
	LiveBytes        prometheus.Gauge
	Threshold        prometheus.Gauge
	EvacuatedObjects prometheus.Counter
	DestructedObjects prometheus.Counter
}

// NewMetrics builds a Metrics set registered under namespace ns in reg.
// Pass the result to Options.Metrics before calling NewHeap.
func NewMetrics(reg prometheus.Registerer, ns string) *Metrics {
	m := &Metrics{
		Allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gcheap_allocations_total",
			Help: "Number of objects allocated.",
		}),
		AllocatedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gcheap_allocated_bytes_total",
			Help: "Bytes handed out by the allocators, including headers.",
		}),
		Collections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gcheap_collections_total",
			Help: "Number of completed collection cycles.",
		}),
		EvacuatingCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gcheap_evacuating_collections_total",
			Help: "Number of collection cycles that ran in evacuating mode.",
		}),
		CollectionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "gcheap_collection_seconds",
			Help:    "Wall-clock duration of a collection cycle.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		LiveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "gcheap_live_bytes",
			Help: "Bytes reachable at the end of the last collection.",
		}),
		Threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "gcheap_threshold_bytes",
			Help: "Allocation threshold that will trigger the next collection.",
		}),
		EvacuatedObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gcheap_evacuated_objects_total",
			Help: "Objects relocated out of evacuation-candidate blocks.",
		}),
		DestructedObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "gcheap_destructed_objects_total",
			Help: "Objects whose destructor ran during a sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Allocations, m.AllocatedBytes, m.Collections,
			m.EvacuatingCycles, m.CollectionSeconds, m.LiveBytes, m.Threshold,
			m.EvacuatedObjects, m.DestructedObjects)
	}
	return m
}
