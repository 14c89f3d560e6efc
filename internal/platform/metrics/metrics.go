package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the anchoring service.
type Metrics struct {
	AnchorsCreated       prometheus.Counter
	AnchorFailures       *prometheus.CounterVec
	Verifications        *prometheus.CounterVec
	BulkItems            *prometheus.CounterVec
	LedgerPublishSeconds prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers metrics on the given registerer so tests can use an
// isolated registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AnchorsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "receiptanchor_anchors_created_total",
			Help: "Total number of receipts successfully anchored to the ledger",
		}),
		AnchorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptanchor_anchor_failures_total",
			Help: "Anchor attempts that failed, labeled by error code",
		}, []string{"code"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptanchor_verifications_total",
			Help: "Verification calls, labeled by outcome",
		}, []string{"outcome"}),
		BulkItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptanchor_bulk_items_total",
			Help: "Bulk anchoring items, labeled by result",
		}, []string{"result"}),
		LedgerPublishSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receiptanchor_ledger_publish_seconds",
			Help:    "Latency of ledger publish calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
