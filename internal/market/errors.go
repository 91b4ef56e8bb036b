package market

import "errors"

var (
	// ErrDataUnavailable means a market-data fetch failed or returned empty.
	// Callers recover by skipping the affected step for the current cycle.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidInput means a price history is malformed (for example, no
	// closing prices). Fatal to the current cycle's computation only.
	ErrInvalidInput = errors.New("invalid price history")
)
