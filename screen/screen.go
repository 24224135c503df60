// Package screen filters and ranks valuation snapshots against the keeper's
// economic thresholds before any order is placed.
package screen

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"order-keeper-go/market"
)

// Quote currencies the screener knows how to normalize.
const (
	CurrencyUSD = "USD"
	CurrencyRUB = "RUB"
)

// Criteria holds the eligibility gates. All gates are independent ANDs.
type Criteria struct {
	USDToRUB       float64 // rubles per dollar, used to normalize RUB quotes
	MaxPriceUSD    float64
	MinIncomeRatio float64
	RequireChanged bool // only admit instruments that traded today
}

// Screener applies Criteria to individual valuations.
type Screener struct {
	Criteria Criteria
	Log      *zap.Logger
}

func New(c Criteria, log *zap.Logger) Screener {
	if log == nil {
		log = zap.NewNop()
	}
	return Screener{Criteria: c, Log: log}
}

// Eligible reports whether v clears every gate: normalized price under the
// cap, income ratio at or above the minimum, and (when required) at least one
// trade today. Unknown currencies and non-evaluable snapshots are rejected.
func (s Screener) Eligible(v market.Valuation) bool {
	price, ok := s.normalizedPrice(v)
	if !ok {
		return false
	}
	ratio, err := v.IncomeRatio()
	if err != nil {
		s.Log.Warn("screen: not evaluable", zap.String("figi", v.FIGI), zap.Error(err))
		return false
	}
	if price > s.Criteria.MaxPriceUSD {
		return false
	}
	if ratio < s.Criteria.MinIncomeRatio {
		return false
	}
	if s.Criteria.RequireChanged && !v.ChangedToday() {
		return false
	}
	return true
}

func (s Screener) normalizedPrice(v market.Valuation) (float64, bool) {
	switch v.Currency {
	case CurrencyUSD:
		return v.LastPrice, true
	case CurrencyRUB:
		return v.LastPrice / s.Criteria.USDToRUB, true
	default:
		s.Log.Warn("screen: unknown currency",
			zap.String("figi", v.FIGI),
			zap.String("currency", v.Currency))
		return 0, false
	}
}

// Rank returns a copy of vals sorted by income ratio descending; ties fall
// back to the instrument key so the ordering is deterministic. Snapshots with
// no evaluable ratio sink to the bottom.
func Rank(vals []market.Valuation) []market.Valuation {
	out := make([]market.Valuation, len(vals))
	copy(out, vals)
	ratio := func(v market.Valuation) float64 {
		r, err := v.IncomeRatio()
		if err != nil {
			return math.Inf(-1)
		}
		return r
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := ratio(out[i]), ratio(out[j])
		if ri != rj {
			return ri > rj
		}
		return out[i].FIGI < out[j].FIGI
	})
	return out
}
