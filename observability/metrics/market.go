package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks marketplace activity: operations by outcome, settled
// and refunded sales, and the royalty reserve. A nil receiver is safe so
// callers can skip wiring metrics in tests.
type MarketMetrics struct {
	operations    *prometheus.CounterVec
	settlements   prometheus.Counter
	refunds       prometheus.Counter
	collectedFees prometheus.Gauge
	openListings  prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the process-wide marketplace metrics registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_operations_total",
				Help: "Count of marketplace operations by tag and outcome.",
			}, []string{"op", "outcome"}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_settlements_total",
				Help: "Count of completed asset-for-payment settlements.",
			}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_refunds_total",
				Help: "Count of buyer refunds returning a sale to open.",
			}),
			collectedFees: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_collected_fees",
				Help: "Royalty fees accumulated and not yet claimed by the creator.",
			}),
			openListings: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_open_listings",
				Help: "Number of listings currently recorded on the ledger.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.settlements,
			marketRegistry.refunds,
			marketRegistry.collectedFees,
			marketRegistry.openListings,
		)
	})
	return marketRegistry
}

// ObserveOperation records one dispatched operation and its outcome.
func (m *MarketMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// ObserveSettlement records one completed settlement.
func (m *MarketMetrics) ObserveSettlement() {
	if m == nil {
		return
	}
	m.settlements.Inc()
}

// ObserveRefund records one buyer refund.
func (m *MarketMetrics) ObserveRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// SetCollectedFees publishes the current royalty reserve.
func (m *MarketMetrics) SetCollectedFees(amount uint64) {
	if m == nil {
		return
	}
	m.collectedFees.Set(float64(amount))
}

// SetOpenListings publishes the current listing count.
func (m *MarketMetrics) SetOpenListings(count int) {
	if m == nil {
		return
	}
	m.openListings.Set(float64(count))
}
