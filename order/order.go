// Package order holds the keeper's decision logic: pricing, confirmed
// placement, resting-order reconciliation and settlement mirroring.
package order

import (
	"time"

	"order-keeper-go/market"
)

// Side of an order or trade.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Opposite returns the mirror side used to close a round trip.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is the keeper's read-only view of a resting order. The broker owns
// it; the keeper re-reads current state before every action and never trusts
// this view across cycles.
type Order struct {
	ID     string
	FIGI   string
	Side   Side
	Price  float64
	Lots   int
	Status string
}

// TradeStatus is the broker-reported completion state of an operation.
type TradeStatus string

const (
	TradeDone     TradeStatus = "Done"
	TradeDecline  TradeStatus = "Decline"
	TradeProgress TradeStatus = "Progress"
)

// Trade is one completed (or pending) operation from the broker's history.
type Trade struct {
	ID     string
	FIGI   string
	Side   Side
	Status TradeStatus
	Time   time.Time
}

// Gateway is the broker surface the keeper writes through. The cmd wiring
// adapts the REST client to it.
type Gateway interface {
	OpenOrders() ([]Order, error)
	PlaceLimit(figi string, side Side, lots int, price float64) (string, error)
	Cancel(orderID string) error
}

// TradeSource lists completed operations inside a time window.
type TradeSource interface {
	Trades(from, to time.Time) ([]Trade, error)
}

// ValuationSource rebuilds an instrument's valuation from current truth.
type ValuationSource interface {
	ByFIGI(figi string) (market.Valuation, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC is the default clock.
var NowUTC Clock = realClock{}
