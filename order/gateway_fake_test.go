package order

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"order-keeper-go/market"
)

func testLogger() *zap.Logger { return zap.NewNop() }

// fakeGateway simulates the broker's active-orders set: placements add to it,
// cancels remove from it, so consecutive reconciliation runs see the same
// truth a real account would report.
type fakeGateway struct {
	open      []Order
	cancels   []string
	placed    []Order
	placeErr  error
	cancelErr error
	nextID    int
}

func (g *fakeGateway) OpenOrders() ([]Order, error) {
	out := make([]Order, len(g.open))
	copy(out, g.open)
	return out, nil
}

func (g *fakeGateway) PlaceLimit(figi string, side Side, lots int, price float64) (string, error) {
	if g.placeErr != nil {
		return "", g.placeErr
	}
	g.nextID++
	o := Order{
		ID:    fmt.Sprintf("ord-%d", g.nextID),
		FIGI:  figi,
		Side:  side,
		Price: price,
		Lots:  lots,
	}
	g.placed = append(g.placed, o)
	g.open = append(g.open, o)
	return o.ID, nil
}

func (g *fakeGateway) Cancel(orderID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancels = append(g.cancels, orderID)
	for i, o := range g.open {
		if o.ID == orderID {
			g.open = append(g.open[:i], g.open[i+1:]...)
			return nil
		}
	}
	return errors.New("unknown order")
}

// fakeValuations serves canned valuations per instrument.
type fakeValuations struct {
	byFIGI map[string]market.Valuation
	errs   map[string]error
}

func (f *fakeValuations) ByFIGI(figi string) (market.Valuation, error) {
	if err, ok := f.errs[figi]; ok {
		return market.Valuation{}, err
	}
	v, ok := f.byFIGI[figi]
	if !ok {
		return market.Valuation{}, errors.New("no valuation")
	}
	return v, nil
}

// fixedClock always reports the same instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }
