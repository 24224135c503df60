package market

import (
	"errors"
	"fmt"

	"order-keeper-go/gateway"
)

// ErrInvalidTick marks an instrument whose reported price increment is not
// positive; nothing can be priced against it.
var ErrInvalidTick = errors.New("tick size must be positive")

// QuoteSource supplies the two reads a Valuation is built from.
type QuoteSource interface {
	InstrumentByFIGI(figi string) (gateway.Instrument, error)
	Orderbook(figi string, depth int) (gateway.Orderbook, error)
}

// Builder assembles fresh Valuations from the market-data gateway.
type Builder struct {
	Source QuoteSource
}

// ByFIGI performs exactly two reads (instrument metadata, then the live
// book) and returns the assembled snapshot.
func (b Builder) ByFIGI(figi string) (Valuation, error) {
	inst, err := b.Source.InstrumentByFIGI(figi)
	if err != nil {
		return Valuation{}, err
	}
	ob, err := b.Source.Orderbook(figi, 1)
	if err != nil {
		return Valuation{}, err
	}
	return FromOrderbook(inst, ob)
}

// FromOrderbook builds a Valuation from already-fetched gateway data,
// applying the empty-side substitution so downstream comparisons never
// operate on an absent level.
func FromOrderbook(inst gateway.Instrument, ob gateway.Orderbook) (Valuation, error) {
	if ob.MinPriceIncrement <= 0 {
		return Valuation{}, fmt.Errorf("%s: %w", inst.FIGI, ErrInvalidTick)
	}
	v := Valuation{
		FIGI:       inst.FIGI,
		Ticker:     inst.Ticker,
		Currency:   inst.Currency,
		LastPrice:  ob.LastPrice,
		ClosePrice: ob.ClosePrice,
		TickSize:   ob.MinPriceIncrement,
	}
	if len(ob.Asks) == 0 {
		v.Ask = Level{Price: EmptyAskPrice, Quantity: 0}
	} else {
		v.Ask = Level{Price: ob.Asks[0].Price, Quantity: ob.Asks[0].Quantity}
	}
	if len(ob.Bids) == 0 {
		v.Bid = Level{Price: EmptyBidPrice, Quantity: 0}
	} else {
		v.Bid = Level{Price: ob.Bids[0].Price, Quantity: ob.Bids[0].Quantity}
	}
	return v, nil
}
