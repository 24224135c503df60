package order

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-keeper-go/alert"
	"order-keeper-go/metrics"
)

// Dedup remembers recently mirrored trade IDs so an overlapping history
// window, for example after a restart replaying the same checkpoint, cannot
// produce a duplicate mirror order. Entries expire after ttl.
type Dedup struct {
	seen  map[string]time.Time
	ttl   time.Duration
	clock Clock
	mu    sync.Mutex
}

func NewDedup(ttl time.Duration, clock Clock) *Dedup {
	if clock == nil {
		clock = NowUTC
	}
	return &Dedup{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		clock: clock,
	}
}

// Seen reports whether tradeID was already handled inside the TTL window.
func (d *Dedup) Seen(tradeID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.seen[tradeID]
	return ok && d.clock.Now().Sub(last) < d.ttl
}

// Mark records tradeID as handled. Call it only after the mirror order went
// through; a failed mirror must stay retryable on the next pass.
func (d *Dedup) Mark(tradeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[tradeID] = d.clock.Now()
}

// Cleanup drops expired entries; call it periodically to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Responder watches completed trades and autonomously places the mirror
// order closing each round trip. No confirmation gate on this path.
type Responder struct {
	Trades     TradeSource
	Gateway    Gateway
	Valuations ValuationSource
	Dedup      *Dedup
	Alerts     *alert.Manager
	Lots       int
	Clock      Clock
	Log        *zap.Logger
	Metrics    *metrics.Keeper
}

// RespondSince mirrors every trade completed since the checkpoint and
// returns the next checkpoint for the caller to persist. Failures on one
// trade are logged and do not block the rest of the batch.
func (r *Responder) RespondSince(since time.Time) (time.Time, error) {
	clock := r.Clock
	if clock == nil {
		clock = NowUTC
	}
	now := clock.Now()
	trades, err := r.Trades.Trades(since, now)
	if err != nil {
		return since, fmt.Errorf("list trades: %w", err)
	}
	r.Log.Debug("settlement: trades fetched",
		zap.Time("from", since), zap.Time("to", now), zap.Int("count", len(trades)))
	for _, tr := range trades {
		if tr.Status != TradeDone {
			r.Log.Debug("settlement: trade not done, skipping",
				zap.String("trade_id", tr.ID),
				zap.String("status", string(tr.Status)))
			continue
		}
		if r.Dedup != nil && r.Dedup.Seen(tr.ID) {
			r.Log.Debug("settlement: duplicate trade suppressed",
				zap.String("trade_id", tr.ID))
			continue
		}
		if err := r.mirror(tr); err != nil {
			r.Log.Warn("settlement: mirror failed",
				zap.String("figi", tr.FIGI),
				zap.String("trade_id", tr.ID),
				zap.Error(err))
			continue
		}
		if r.Dedup != nil {
			r.Dedup.Mark(tr.ID)
		}
	}
	return now, nil
}

func (r *Responder) mirror(tr Trade) error {
	r.Alerts.Notify(alert.Alert{
		Level:   "INFO",
		Message: "trade completed",
		Fields:  map[string]any{"figi": tr.FIGI, "side": string(tr.Side)},
	})
	v, err := r.Valuations.ByFIGI(tr.FIGI)
	if err != nil {
		return err
	}
	side := tr.Side.Opposite()
	price := PriceFor(v, side)
	lots := r.Lots
	if lots <= 0 {
		lots = 1
	}
	id, err := r.Gateway.PlaceLimit(tr.FIGI, side, lots, price)
	if err != nil {
		return err
	}
	r.Metrics.IncMirrors()
	r.Log.Info("mirror order placed",
		zap.String("figi", tr.FIGI),
		zap.String("side", string(side)),
		zap.String("order_id", id),
		zap.Float64("price", price))
	return nil
}
