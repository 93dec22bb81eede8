package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// Ledger mutations
	OrdersUpserted  prometheus.Counter
	OrdersDuplicate prometheus.Counter
	OrdersRejected  prometheus.Counter
	StatusUpdates   prometheus.Counter

	// Recompute
	RecomputeRuns    prometheus.Counter
	RecomputeDropped prometheus.Counter
	RecomputeErrors  prometheus.Counter
	RecomputeSec     prometheus.Histogram

	// Persistence / recovery
	JournalAppended    prometheus.Counter
	SnapshotWrites     prometheus.Counter
	ReplayApplied      prometheus.Counter
	ReplaySkipped      prometheus.Counter
	JournalLag         prometheus.Gauge
	TTRSec             prometheus.Gauge
	LastManifestAgeSec prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	upserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_orders_upserted_total"})
	duplicate := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_orders_duplicate_total"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_orders_rejected_total"})
	statusUpdates := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_status_updates_total"})

	recomputeRuns := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_recompute_runs_total"})
	recomputeDropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_recompute_dropped_total"})
	recomputeErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_recompute_errors_total"})
	recomputeSec := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oms_recompute_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	journalAppended := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_journal_appended_total"})
	snapshotWrites := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_snapshot_writes_total"})
	replayApplied := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_replay_applied_total"})
	replaySkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "oms_replay_skipped_total"})
	journalLag := prometheus.NewGauge(prometheus.GaugeOpts{Name: "oms_journal_lag"})
	ttr := prometheus.NewGauge(prometheus.GaugeOpts{Name: "oms_recovery_ttr_seconds"})
	lastAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "oms_last_manifest_age_seconds"})

	r.MustRegister(
		upserted, duplicate, rejected, statusUpdates,
		recomputeRuns, recomputeDropped, recomputeErrors, recomputeSec,
		journalAppended, snapshotWrites, replayApplied, replaySkipped, journalLag, ttr, lastAge,
	)
	return &Registry{
		reg:                r,
		OrdersUpserted:     upserted,
		OrdersDuplicate:    duplicate,
		OrdersRejected:     rejected,
		StatusUpdates:      statusUpdates,
		RecomputeRuns:      recomputeRuns,
		RecomputeDropped:   recomputeDropped,
		RecomputeErrors:    recomputeErrors,
		RecomputeSec:       recomputeSec,
		JournalAppended:    journalAppended,
		SnapshotWrites:     snapshotWrites,
		ReplayApplied:      replayApplied,
		ReplaySkipped:      replaySkipped,
		JournalLag:         journalLag,
		TTRSec:             ttr,
		LastManifestAgeSec: lastAge,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
