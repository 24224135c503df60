// Package scan walks the broker's full instrument universe and snapshots the
// resulting valuations for later offline screening.
package scan

import (
	"go.uber.org/zap"

	"order-keeper-go/gateway"
	"order-keeper-go/market"
)

// Universe lists every tradable instrument.
type Universe interface {
	Stocks() ([]gateway.Instrument, error)
}

// Books fetches live orderbooks.
type Books interface {
	Orderbook(figi string, depth int) (gateway.Orderbook, error)
}

// Scanner builds a valuation for each instrument in the universe, riding
// broker throttling out through the guard and skipping instruments that fail
// for any other reason.
type Scanner struct {
	Universe Universe
	Books    Books
	Guard    *gateway.Guard
	Log      *zap.Logger
}

// ScanAll valuates up to limit instruments (limit <= 0 means the whole
// universe). Per-instrument failures are logged and skipped.
func (s *Scanner) ScanAll(limit int) ([]market.Valuation, error) {
	instruments, err := s.Universe.Stocks()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(instruments) {
		limit = len(instruments)
	}
	out := make([]market.Valuation, 0, limit)
	for _, inst := range instruments {
		if len(out) >= limit {
			break
		}
		var ob gateway.Orderbook
		err := s.Guard.Do("orderbook", func() error {
			var err error
			ob, err = s.Books.Orderbook(inst.FIGI, 1)
			return err
		})
		if err != nil {
			s.Log.Warn("scan: instrument skipped",
				zap.String("figi", inst.FIGI),
				zap.String("ticker", inst.Ticker),
				zap.Error(err))
			continue
		}
		v, err := market.FromOrderbook(inst, ob)
		if err != nil {
			s.Log.Warn("scan: bad snapshot",
				zap.String("figi", inst.FIGI),
				zap.Error(err))
			continue
		}
		out = append(out, v)
		if len(out)%100 == 0 {
			s.Log.Info("scan progress", zap.Int("valuated", len(out)))
		}
	}
	s.Log.Info("scan complete",
		zap.Int("universe", len(instruments)),
		zap.Int("valuated", len(out)))
	return out, nil
}
