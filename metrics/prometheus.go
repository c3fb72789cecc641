package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const namespace = "oidcstore"

var (
	IntentsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intents_submitted_total",
		Help:      "Total number of mutation intents handed to the intent log.",
	}, []string{"reducer"})

	IntentsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intents_applied_total",
		Help:      "Total number of mutation intents applied to the local snapshot.",
	}, []string{"reducer"})

	IntentsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intents_rejected_total",
		Help:      "Total number of mutation intents dropped by a reducer.",
	}, []string{"reducer", "reason"})

	CodecFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "codec_failures_total",
		Help:      "Structured column values that could not be encoded or decoded.",
	}, []string{"kind", "op"})

	RowsScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_scanned_total",
		Help:      "Snapshot rows materialized by in-memory queries.",
	}, []string{"table"})

	VisibilityTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "visibility_timeouts_total",
		Help:      "Created rows that did not show up in the snapshot before the pending TTL.",
	}, []string{"table"})

	PendingVisibility = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_visibility",
		Help:      "Created rows submitted but not yet visible in the snapshot.",
	})
)

// Register registers every collector of the package with reg. Collectors that
// are already registered are skipped, so calling it twice is harmless.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register oidcstore metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"IntentsSubmitted":   IntentsSubmitted,
		"IntentsApplied":     IntentsApplied,
		"IntentsRejected":    IntentsRejected,
		"CodecFailures":      CodecFailures,
		"RowsScanned":        RowsScanned,
		"VisibilityTimeouts": VisibilityTimeouts,
		"PendingVisibility":  PendingVisibility,
	}

	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}
}
