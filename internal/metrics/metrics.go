package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "snapshots_total", Help: "Market snapshots processed"},
	)
	SnapshotsDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "snapshots_duplicate_total", Help: "Snapshots skipped as duplicates"},
	)
	TradesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_ingested_total", Help: "Trades ingested from the feed"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Trading signals generated"},
		[]string{"source", "action"},
	)
	PositionExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "position_exits_total", Help: "Positions closed"},
		[]string{"reason"},
	)
	DataErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "data_errors_total", Help: "Errors while reading or processing feed data"},
		[]string{"stage"},
	)
	SpreadZScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "spread_zscore", Help: "Current spread z-score"},
	)
	ActivePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "active_positions", Help: "Open monitored positions"},
	)
)

func init() {
	prometheus.MustRegister(
		SnapshotsTotal, SnapshotsDuplicate, TradesIngested,
		SignalsTotal, PositionExits, DataErrors,
		SpreadZScore, ActivePositions,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
