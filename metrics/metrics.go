// Package metrics exposes Prometheus counters for the order keeper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Keeper bundles every collector the keeper emits. A nil *Keeper is valid and
// counts nothing, so components never need to guard their hot path.
type Keeper struct {
	Cycles        prometheus.Counter
	Cancels       prometheus.Counter
	Replacements  prometheus.Counter
	Placements    prometheus.Counter
	Mirrors       prometheus.Counter
	ThrottleWaits prometheus.Counter
	OpenOrders    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Keeper {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Keeper{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_reconcile_cycles_total",
			Help: "Completed reconciliation cycles.",
		}),
		Cancels: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_order_cancels_total",
			Help: "Orders canceled because their price drifted.",
		}),
		Replacements: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_order_replacements_total",
			Help: "Orders re-placed at a recomputed price.",
		}),
		Placements: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_order_placements_total",
			Help: "Orders placed through the confirmation flow.",
		}),
		Mirrors: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_mirror_orders_total",
			Help: "Opposite-side orders placed after completed trades.",
		}),
		ThrottleWaits: f.NewCounter(prometheus.CounterOpts{
			Name: "keeper_throttle_waits_total",
			Help: "Cooldown sleeps caused by broker rate limiting.",
		}),
		OpenOrders: f.NewGauge(prometheus.GaugeOpts{
			Name: "keeper_open_orders",
			Help: "Resting orders seen in the last reconciliation cycle.",
		}),
	}
}

func (k *Keeper) IncCycles() {
	if k != nil {
		k.Cycles.Inc()
	}
}

func (k *Keeper) IncCancels() {
	if k != nil {
		k.Cancels.Inc()
	}
}

func (k *Keeper) IncReplacements() {
	if k != nil {
		k.Replacements.Inc()
	}
}

func (k *Keeper) IncPlacements() {
	if k != nil {
		k.Placements.Inc()
	}
}

func (k *Keeper) IncMirrors() {
	if k != nil {
		k.Mirrors.Inc()
	}
}

func (k *Keeper) IncThrottleWaits() {
	if k != nil {
		k.ThrottleWaits.Inc()
	}
}

func (k *Keeper) SetOpenOrders(n int) {
	if k != nil {
		k.OpenOrders.Set(float64(n))
	}
}

// Serve starts a promhttp endpoint on addr in the background.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
