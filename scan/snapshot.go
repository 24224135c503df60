package scan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"order-keeper-go/market"
	"order-keeper-go/screen"
)

// SaveSnapshot persists a scanned valuation list as JSON, so a later run can
// screen offline without hitting the broker again. This path is plain glue:
// the reconciliation loop never reads persisted valuations.
func SaveSnapshot(path string, vals []market.Valuation) error {
	raw, err := json.MarshalIndent(vals, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a valuation list saved by SaveSnapshot.
func LoadSnapshot(path string) ([]market.Valuation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var vals []market.Valuation
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return vals, nil
}

// WriteReport renders the ranked candidate list human-readably, best income
// ratio first.
func WriteReport(w io.Writer, vals []market.Valuation) error {
	for _, v := range screen.Rank(vals) {
		if _, err := fmt.Fprintln(w, v.String()); err != nil {
			return err
		}
	}
	return nil
}
