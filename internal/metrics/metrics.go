package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market trades ingested by the live feed"},
		[]string{"symbol"},
	)
	BarsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bars_processed_total", Help: "Observations replayed through the engine"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by the strategy"},
		[]string{"kind"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_total", Help: "Signals executed against the ledger"},
		[]string{"kind"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Leg orders submitted"},
		[]string{"symbol", "side"},
	)
	RiskRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "risk_rejections_total", Help: "Entries skipped by the leverage guard"},
	)
	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "portfolio_equity", Help: "Marked-to-market portfolio value"},
	)
	ZScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "spread_zscore", Help: "Latest innovation z-score"},
	)
	HedgeRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "hedge_ratio", Help: "Latest filtered beta estimate"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, BarsTotal, SignalsTotal, TradesTotal, OrdersTotal,
		RiskRejectionsTotal, Equity, ZScore, HedgeRatio,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
