package order

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"order-keeper-go/market"
	"order-keeper-go/metrics"
)

// Reconciler revalidates every resting order against current market truth.
// For each open order it rebuilds the valuation, recomputes the correct
// price, and on drift cancels the order, replacing it only while the
// economics still clear the minimum income ratio. Leaving a correctly priced
// order untouched is the default transition.
type Reconciler struct {
	Gateway    Gateway
	Valuations ValuationSource
	Log        *zap.Logger
	Metrics    *metrics.Keeper

	mu       sync.RWMutex
	minRatio float64
}

func NewReconciler(gw Gateway, vs ValuationSource, minRatio float64, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		Gateway:    gw,
		Valuations: vs,
		Log:        log,
		minRatio:   minRatio,
	}
}

// SetMinRatio updates the replacement threshold; the config watcher calls it
// on hot reload.
func (r *Reconciler) SetMinRatio(ratio float64) {
	r.mu.Lock()
	r.minRatio = ratio
	r.mu.Unlock()
}

// MinRatio returns the current replacement threshold.
func (r *Reconciler) MinRatio() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.minRatio
}

// ReconcileOnce runs a single cycle over all open orders. A failure on one
// instrument is logged and never aborts the rest of the cycle; only the
// initial open-orders fetch can fail the cycle as a whole.
func (r *Reconciler) ReconcileOnce() error {
	orders, err := r.Gateway.OpenOrders()
	if err != nil {
		return err
	}
	r.Metrics.SetOpenOrders(len(orders))
	for _, o := range orders {
		if err := r.reconcileOrder(o); err != nil {
			r.Log.Warn("reconcile: instrument skipped",
				zap.String("figi", o.FIGI),
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}
	r.Metrics.IncCycles()
	return nil
}

func (r *Reconciler) reconcileOrder(o Order) error {
	v, err := r.Valuations.ByFIGI(o.FIGI)
	if err != nil {
		return err
	}
	want := PriceFor(v, o.Side)
	if market.PriceEq(o.Price, want) {
		return nil
	}
	// Ratio is needed before touching the order: a non-evaluable snapshot
	// excludes the instrument from this cycle entirely.
	ratio, err := v.IncomeRatio()
	if err != nil {
		return err
	}
	if err := r.Gateway.Cancel(o.ID); err != nil {
		return err
	}
	r.Metrics.IncCancels()
	r.Log.Info("order canceled on price drift",
		zap.String("figi", o.FIGI),
		zap.String("order_id", o.ID),
		zap.String("side", string(o.Side)),
		zap.Float64("resting", o.Price),
		zap.Float64("correct", want))

	if !r.clearsThreshold(o.Side, ratio) {
		r.Log.Info("threshold missed, instrument left without order",
			zap.String("figi", o.FIGI),
			zap.Float64("income_ratio", ratio))
		return nil
	}
	id, err := r.Gateway.PlaceLimit(o.FIGI, o.Side, o.Lots, want)
	if err != nil {
		return err
	}
	r.Metrics.IncReplacements()
	r.Log.Info("order replaced",
		zap.String("figi", o.FIGI),
		zap.String("order_id", id),
		zap.Float64("price", want),
		zap.Float64("income_ratio", ratio))
	return nil
}

// clearsThreshold applies the intentionally asymmetric gate: a buy stays
// attractive only while the ratio is positively above the threshold, a sell
// whenever the price has moved by at least the threshold in either direction
// of the close.
func (r *Reconciler) clearsThreshold(side Side, ratio float64) bool {
	min := r.MinRatio()
	if side == Buy {
		return ratio > min
	}
	return math.Abs(ratio) > min
}
