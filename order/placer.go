package order

import (
	"fmt"

	"go.uber.org/zap"

	"order-keeper-go/market"
	"order-keeper-go/metrics"
	"order-keeper-go/screen"
)

// Decision is the operator's answer for one candidate.
type Decision int

const (
	Confirm Decision = iota
	Reject
	Abort
)

// Decider supplies per-candidate confirmation. A console implementation
// lives in cmd/keeper; tests inject scripted answers.
type Decider interface {
	Decide(v market.Valuation, price float64) Decision
}

// Placer walks a candidate list, screens each instrument, asks the operator
// and submits confirmed buy orders.
type Placer struct {
	Gateway  Gateway
	Screener screen.Screener
	Decider  Decider
	Lots     int
	Log      *zap.Logger
	Metrics  *metrics.Keeper
}

// PlaceEligible ranks candidates by income ratio and processes them in order.
// An operator abort stops the batch cleanly; a placement failure stops it
// with the error, since a rejected submission usually means account or
// session trouble rather than a single bad instrument. Rejects skip.
func (p *Placer) PlaceEligible(candidates []market.Valuation) error {
	lots := p.Lots
	if lots <= 0 {
		lots = 1
	}
	for _, v := range screen.Rank(candidates) {
		if !p.Screener.Eligible(v) {
			continue
		}
		price := PriceFor(v, Buy)
		switch p.Decider.Decide(v, price) {
		case Abort:
			p.Log.Info("placement batch aborted by operator",
				zap.String("figi", v.FIGI))
			return nil
		case Reject:
			continue
		}
		id, err := p.Gateway.PlaceLimit(v.FIGI, Buy, lots, price)
		if err != nil {
			p.Log.Error("placement failed, stopping batch",
				zap.String("figi", v.FIGI),
				zap.Float64("price", price),
				zap.Error(err))
			return fmt.Errorf("place %s: %w", v.FIGI, err)
		}
		p.Metrics.IncPlacements()
		p.Log.Info("order placed",
			zap.String("figi", v.FIGI),
			zap.String("ticker", v.Ticker),
			zap.String("order_id", id),
			zap.Float64("price", price),
			zap.Int("lots", lots))
	}
	return nil
}
