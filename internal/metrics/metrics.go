// Package metrics exposes Prometheus metrics for the reconcile loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenLiquidity/internal/model"
)

// Metrics holds the collectors of one process. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	// Settlement metrics
	SettlementsTotal   *prometheus.CounterVec
	SettlementAttempts *prometheus.HistogramVec

	// Cycle metrics
	CyclesTotal         *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	TxDetected          *prometheus.CounterVec
	LastSuccessfulCycle *prometheus.GaugeVec

	// Pool metrics
	PoolBaseBalance  prometheus.Gauge
	PoolTokenBalance prometheus.Gauge
	USDPerBase       prometheus.Gauge
	SpotPriceUSD     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_liquidity"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SettlementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "total",
			Help:      "Settled inbound transactions by chain, type and status",
		}, []string{"chain", "type", "status"}),
		SettlementAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "attempts",
			Help:      "Attempts needed per settlement",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"chain"}),

		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycles_total",
			Help:      "Reconcile cycles by chain and status",
		}, []string{"chain", "status"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycle_duration_seconds",
			Help:      "Reconcile cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"chain"}),
		TxDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "tx_detected_total",
			Help:      "Unseen inbound transactions detected",
		}, []string{"chain"}),
		LastSuccessfulCycle: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful cycle",
		}, []string{"chain"}),

		PoolBaseBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "base_balance",
			Help:      "Base currency reserve believed by the pool",
		}),
		PoolTokenBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "token_balance",
			Help:      "Notional token position of the pool",
		}),
		USDPerBase: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "usd_per_base",
			Help:      "Last known USD rate of the base currency",
		}),
		SpotPriceUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "spot_price_usd",
			Help:      "Spot price of one token in USD",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSettlement records one settlement attempt sequence.
func (m *Metrics) ObserveSettlement(chain string, kind model.SettlementType, attempts int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	if kind == "" {
		kind = "unknown"
	}
	m.SettlementsTotal.WithLabelValues(chain, string(kind), status).Inc()
	if attempts > 0 {
		m.SettlementAttempts.WithLabelValues(chain).Observe(float64(attempts))
	}
}

// ObserveCycle records one reconcile cycle.
func (m *Metrics) ObserveCycle(chain string, detected int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.CycleDuration.WithLabelValues(chain).Observe(elapsed.Seconds())
	if detected > 0 {
		m.TxDetected.WithLabelValues(chain).Add(float64(detected))
	}
	if err != nil {
		m.CyclesTotal.WithLabelValues(chain, "error").Inc()
		return
	}
	m.CyclesTotal.WithLabelValues(chain, "ok").Inc()
	m.LastSuccessfulCycle.WithLabelValues(chain).SetToCurrentTime()
}

// ObservePool publishes the pool reserves and spot price.
func (m *Metrics) ObservePool(state model.PoolState, spot float64) {
	if m == nil {
		return
	}
	m.PoolBaseBalance.Set(state.BaseBalance.InexactFloat64())
	m.PoolTokenBalance.Set(state.TokenBalance.InexactFloat64())
	m.USDPerBase.Set(state.USDPerBase.InexactFloat64())
	if spot > 0 {
		m.SpotPriceUSD.Set(spot)
	}
}
