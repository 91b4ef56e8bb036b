// Package filesource implements the market data capability on top of local
// JSON files. It exists for paper sessions and replay runs where no broker
// gateway is wired; an operator (or an exporter sidecar) refreshes the files
// and the engine consumes whatever is current.
package filesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"ironfly/internal/market"
)

const (
	liveFile  = "live.json"
	chainFile = "chain.json"
	histFile  = "history.json"
)

// Source reads market snapshots from a directory of JSON files.
type Source struct {
	dir string
}

func New(dir string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file source: %s is not a directory", dir)
	}
	return &Source{dir: dir}, nil
}

func (s *Source) GetLiveIndex(ctx context.Context) (market.LiveQuote, error) {
	var q market.LiveQuote
	if err := s.read(ctx, liveFile, &q); err != nil {
		return market.LiveQuote{}, err
	}
	if q.Timestamp.IsZero() {
		return market.LiveQuote{}, fmt.Errorf("live quote: %w", market.ErrDataUnavailable)
	}
	return q, nil
}

func (s *Source) GetOptionChain(ctx context.Context) (market.ChainSnapshot, error) {
	var c market.ChainSnapshot
	if err := s.read(ctx, chainFile, &c); err != nil {
		return market.ChainSnapshot{}, err
	}
	if c.Empty() {
		return market.ChainSnapshot{}, fmt.Errorf("option chain: %w", market.ErrDataUnavailable)
	}
	return c, nil
}

func (s *Source) GetHistoricalIndex(ctx context.Context) ([]market.Bar, error) {
	var bars []market.Bar
	if err := s.read(ctx, histFile, &bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("historical series: %w", market.ErrDataUnavailable)
	}
	return bars, nil
}

func (s *Source) read(ctx context.Context, name string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", name, market.ErrDataUnavailable)
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

var _ market.Source = (*Source)(nil)
