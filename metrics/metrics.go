// Package metrics exposes Prometheus counters for the indexing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veriframe_indexer_events_processed_total",
		Help: "Total number of chain events applied to the entity store",
	}, []string{"event"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veriframe_indexer_events_dropped_total",
		Help: "Total number of chain events dropped without effect",
	}, []string{"event", "reason"})

	BlocksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veriframe_indexer_blocks_indexed_total",
		Help: "Total number of blocks scanned for registry logs",
	})

	IntegrityClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veriframe_indexer_integrity_clamps_total",
		Help: "Total number of counter decrements clamped at zero",
	}, []string{"counter"})
)
