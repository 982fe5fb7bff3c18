// Package observability exposes the SDK's Prometheus metrics and the
// optional admin server that serves them alongside health probes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., mimir_...).
const namespace = "mimir"

var (
	// -------------------------------------------------------------------------
	// STORE / SYNC
	// -------------------------------------------------------------------------

	// SyncCycles counts poller cycles by source and outcome.
	// Metric: mimir_store_sync_cycles_total
	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "sync_cycles_total",
		Help:      "Sync cycles by source (rulesets, id_lists) and outcome (success, failure, no_update)",
	}, []string{"source", "outcome"})

	// CatalogUpdateTime tracks the control plane timestamp of the
	// currently-installed catalog, for staleness alerting.
	// Metric: mimir_store_catalog_update_time_ms
	CatalogUpdateTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "catalog_update_time_ms",
		Help:      "Unix ms timestamp of the installed rule catalog",
	})

	// IDListResets counts lists rebuilt from offset zero after a
	// generation change or corrupt chunk.
	// Metric: mimir_store_id_list_resets_total
	IDListResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "id_list_resets_total",
		Help:      "ID lists dropped and rebuilt from offset zero",
	})

	// PollerRestarts counts watchdog-forced poller restarts.
	// Metric: mimir_store_poller_restarts_total
	PollerRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "poller_restarts_total",
		Help:      "Pollers restarted by the quiesce watchdog",
	}, []string{"source"})

	// -------------------------------------------------------------------------
	// EVALUATOR
	// -------------------------------------------------------------------------

	// Evaluations counts evaluator entry-point calls by kind and the
	// provenance reason attached to the result.
	// Metric: mimir_evaluator_evaluations_total
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluator",
		Name:      "evaluations_total",
		Help:      "Evaluations by kind (gate, config, layer) and result reason",
	}, []string{"kind", "reason"})
)
