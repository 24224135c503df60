package market

import (
	"errors"
	"fmt"
	"math"
)

// Empty-side sentinels. A book with zero depth on one side still yields a
// Valuation both sides of which can be compared: an absent ask is priced at
// zero, an absent bid far above anything tradable.
const (
	EmptyAskPrice = 0
	EmptyBidPrice = 10000
)

// ErrNotEvaluable marks a snapshot whose last price is zero, so no income
// ratio can be derived. Callers exclude the instrument for the current
// decision only.
var ErrNotEvaluable = errors.New("last price is zero")

// Level is one side of the book at a single price.
type Level struct {
	Price    float64
	Quantity float64
}

// Valuation is one instrument's tradable state at a single instant together
// with the previous session close it is judged against. It is built fresh for
// every decision and never cached across reconciliation cycles.
type Valuation struct {
	FIGI       string
	Ticker     string
	Ask        Level
	Bid        Level
	LastPrice  float64
	ClosePrice float64
	Currency   string
	TickSize   float64
}

// Delta is the raw expected gain: previous close minus current best bid.
func (v Valuation) Delta() float64 {
	return v.ClosePrice - v.Bid.Price
}

// IncomeRatio is the delta normalized by the last traded price, rounded to
// the 3-decimal precision used across the keeper.
func (v Valuation) IncomeRatio() (float64, error) {
	if v.LastPrice == 0 {
		return 0, fmt.Errorf("%s: %w", v.FIGI, ErrNotEvaluable)
	}
	return Round3(v.Delta() / v.LastPrice), nil
}

// ChangedToday reports whether the instrument has traded this session:
// last price differs from the previous close at 3-decimal precision.
func (v Valuation) ChangedToday() bool {
	return Round3(v.LastPrice) != Round3(v.ClosePrice)
}

func (v Valuation) String() string {
	ratio, err := v.IncomeRatio()
	if err != nil {
		ratio = math.NaN()
	}
	return fmt.Sprintf("figi: %s, ticker: %s, delta: %.3f, last_price: %.3f, income: %.3f, bid_price: %.3f, currency: %s, changed: %t",
		v.FIGI, v.Ticker, v.Delta(), v.LastPrice, ratio, v.Bid.Price, v.Currency, v.ChangedToday())
}

// Round3 rounds to the comparison precision used for prices and ratios.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// PriceEq compares two prices at 3-decimal precision.
func PriceEq(a, b float64) bool {
	return Round3(a) == Round3(b)
}
