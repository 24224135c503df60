package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"order-keeper-go/market"
)

func valuation(figi string, bid, ask, last, close, tick float64) market.Valuation {
	return market.Valuation{
		FIGI:       figi,
		Currency:   "USD",
		Bid:        market.Level{Price: bid, Quantity: 1},
		Ask:        market.Level{Price: ask, Quantity: 1},
		LastPrice:  last,
		ClosePrice: close,
		TickSize:   tick,
	}
}

func TestReconcileNoOpWhenPriceCorrect(t *testing.T) {
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG1", Side: Buy, Price: 100.5, Lots: 1},
	}}
	vals := &fakeValuations{byFIGI: map[string]market.Valuation{
		// correct buy price = 100 + 0.5 = 100.5, matches the resting order
		"BBG1": valuation("BBG1", 100, 101, 102, 105, 0.5),
	}}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce())
	assert.Empty(t, gw.cancels, "correctly priced order must not be canceled")
	assert.Empty(t, gw.placed)
}

func TestReconcileCancelAndReplaceOnDrift(t *testing.T) {
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG1", Side: Buy, Price: 100.5, Lots: 1},
	}}
	vals := &fakeValuations{byFIGI: map[string]market.Valuation{
		// bid moved to 100.2 -> correct price 100.7; ratio (105-100.2)/102 ≈ 0.047
		"BBG1": valuation("BBG1", 100.2, 101, 102, 105, 0.5),
	}}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce())
	assert.Equal(t, []string{"ord-1"}, gw.cancels, "exactly one cancel")
	if assert.Len(t, gw.placed, 1, "at most one replace") {
		assert.Equal(t, 100.7, gw.placed[0].Price)
		assert.Equal(t, Buy, gw.placed[0].Side)
		assert.Equal(t, 1, gw.placed[0].Lots)
	}
}

func TestReconcileThresholdMissedLeavesAbsent(t *testing.T) {
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG1", Side: Buy, Price: 100.5, Lots: 1},
	}}
	vals := &fakeValuations{byFIGI: map[string]market.Valuation{
		// drifted, but ratio (102.2-102)/102 ≈ 0.002 under the 0.02 floor
		"BBG1": valuation("BBG1", 102, 103, 102, 102.2, 0.5),
	}}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce())
	assert.Equal(t, []string{"ord-1"}, gw.cancels)
	assert.Empty(t, gw.placed, "threshold miss must not replace")
	assert.Empty(t, gw.open, "instrument left without an open order")
}

func TestReconcileSellUsesAbsoluteRatio(t *testing.T) {
	// Sell order drifted; ratio is negative (close below bid) but its
	// magnitude clears the threshold, so the sell is still replaced.
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG1", Side: Sell, Price: 101.5, Lots: 2},
	}}
	vals := &fakeValuations{byFIGI: map[string]market.Valuation{
		// correct sell price = 103 - 0.5 = 102.5; ratio (100-104)/102 ≈ -0.039
		"BBG1": valuation("BBG1", 104, 103, 102, 100, 0.5),
	}}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce())
	assert.Equal(t, []string{"ord-1"}, gw.cancels)
	if assert.Len(t, gw.placed, 1) {
		assert.Equal(t, Sell, gw.placed[0].Side)
		assert.Equal(t, 102.5, gw.placed[0].Price)
		assert.Equal(t, 2, gw.placed[0].Lots)
	}

	// A buy with the same negative ratio would not be replaced.
	gw2 := &fakeGateway{open: []Order{
		{ID: "ord-2", FIGI: "BBG1", Side: Buy, Price: 101.5, Lots: 1},
	}}
	r2 := NewReconciler(gw2, vals, 0.02, nil)
	assert.NoError(t, r2.ReconcileOnce())
	assert.Equal(t, []string{"ord-2"}, gw2.cancels)
	assert.Empty(t, gw2.placed)
}

func TestReconcileIdempotentWithoutMarketMovement(t *testing.T) {
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG1", Side: Buy, Price: 100.0, Lots: 1},
	}}
	vals := &fakeValuations{byFIGI: map[string]market.Valuation{
		"BBG1": valuation("BBG1", 100.2, 101, 102, 105, 0.5),
	}}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce())
	cancelsAfterFirst := len(gw.cancels)
	placedAfterFirst := len(gw.placed)
	assert.Equal(t, 1, cancelsAfterFirst)
	assert.Equal(t, 1, placedAfterFirst)

	// No market movement: the second run must be a pure no-op.
	assert.NoError(t, r.ReconcileOnce())
	assert.Equal(t, cancelsAfterFirst, len(gw.cancels))
	assert.Equal(t, placedAfterFirst, len(gw.placed))
}

func TestReconcileIsolatesPerInstrumentFailures(t *testing.T) {
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG_BAD", Side: Buy, Price: 100.5, Lots: 1},
		{ID: "ord-2", FIGI: "BBG_OK", Side: Buy, Price: 100.5, Lots: 1},
	}}
	vals := &fakeValuations{
		byFIGI: map[string]market.Valuation{
			"BBG_OK": valuation("BBG_OK", 100.2, 101, 102, 105, 0.5),
		},
		errs: map[string]error{"BBG_BAD": assert.AnError},
	}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce(), "one bad instrument must not fail the cycle")
	assert.Equal(t, []string{"ord-2"}, gw.cancels, "healthy instrument still reconciled")
	assert.Len(t, gw.placed, 1)
}

func TestReconcileZeroLastPriceSkipsBeforeCancel(t *testing.T) {
	gw := &fakeGateway{open: []Order{
		{ID: "ord-1", FIGI: "BBG1", Side: Buy, Price: 100.5, Lots: 1},
	}}
	vals := &fakeValuations{byFIGI: map[string]market.Valuation{
		// drifted price but last price 0: not evaluable this cycle
		"BBG1": valuation("BBG1", 100.2, 101, 0, 105, 0.5),
	}}
	r := NewReconciler(gw, vals, 0.02, nil)

	assert.NoError(t, r.ReconcileOnce())
	assert.Empty(t, gw.cancels, "non-evaluable instrument must be left untouched")
	assert.Len(t, gw.open, 1)
}

func TestSetMinRatio(t *testing.T) {
	r := NewReconciler(&fakeGateway{}, &fakeValuations{}, 0.02, nil)
	r.SetMinRatio(0.05)
	assert.Equal(t, 0.05, r.MinRatio())
}
