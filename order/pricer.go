package order

import (
	"math"

	"order-keeper-go/market"
)

// PriceFor computes the limit price one tick inside the best opposing level:
// a buy queues one tick above the current best bid, a sell one tick below the
// current best ask. The result is rounded to 2 decimals before submission.
func PriceFor(v market.Valuation, side Side) float64 {
	var p float64
	if side == Buy {
		p = v.Bid.Price + v.TickSize
	} else {
		p = v.Ask.Price - v.TickSize
	}
	return math.Round(p*100) / 100
}
