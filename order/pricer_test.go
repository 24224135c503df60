package order

import (
	"testing"

	"order-keeper-go/market"
)

func TestPriceFor(t *testing.T) {
	v := market.Valuation{
		Bid:      market.Level{Price: 100},
		Ask:      market.Level{Price: 101},
		TickSize: 0.5,
	}
	if got := PriceFor(v, Buy); got != 100.5 {
		t.Fatalf("buy price = %v, want 100.5", got)
	}
	if got := PriceFor(v, Sell); got != 100.5 {
		t.Fatalf("sell price = %v, want 100.5", got)
	}
}

func TestPriceForRoundsToTwoDecimals(t *testing.T) {
	v := market.Valuation{
		Bid:      market.Level{Price: 10.333},
		Ask:      market.Level{Price: 10.666},
		TickSize: 0.001,
	}
	if got := PriceFor(v, Buy); got != 10.33 {
		t.Fatalf("buy price = %v, want 10.33", got)
	}
	if got := PriceFor(v, Sell); got != 10.67 {
		t.Fatalf("sell price = %v, want 10.67", got)
	}
}

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Fatal("opposite side mapping broken")
	}
}
