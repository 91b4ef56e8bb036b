package market

import "context"

// Source is the scraped market-data capability. Implementations live outside
// this module; tests substitute fakes.
type Source interface {
	// GetLiveIndex returns the current intraday snapshot of the underlying
	// index, or ErrDataUnavailable.
	GetLiveIndex(ctx context.Context) (LiveQuote, error)

	// GetOptionChain returns the current option-chain snapshot. An empty
	// snapshot is a valid answer for a quiet source; errors mean the fetch
	// itself failed.
	GetOptionChain(ctx context.Context) (ChainSnapshot, error)

	// GetHistoricalIndex returns the ordered daily bar series for the
	// underlying index, oldest first.
	GetHistoricalIndex(ctx context.Context) ([]Bar, error)
}
