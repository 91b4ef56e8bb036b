package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironfly/internal/analysis/indicator"
	"ironfly/internal/market"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func enriched(n int) []indicator.EnrichedBar {
	base := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	out := make([]indicator.EnrichedBar, n)
	for i := range out {
		out[i] = indicator.EnrichedBar{
			Bar: market.Bar{
				Close:     100 + float64(i),
				Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			},
			ShortMA: 100 + float64(i),
			LongMA:  100,
			RSI:     55,
		}
	}
	return out
}

func TestStore_SaveAndLoadBars(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBars(ctx, enriched(3)))
	got, err := s.LoadBars(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 102.0, got[2].Close)
	assert.Equal(t, 55.0, got[2].RSI)
}

func TestStore_SaveBarsReplacesPreviousCycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBars(ctx, enriched(5)))
	require.NoError(t, s.SaveBars(ctx, enriched(2)))

	got, err := s.LoadBars(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2, "each save replaces the stored window")
}

func TestStore_SaveAndLoadChain(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	chain := market.ChainSnapshot{
		Strikes: map[float64]market.StrikeRow{
			24000: {CallOI: 100, PutOI: 300, CallBid: 80.5, CallID: "N24000CE"},
		},
		Timestamp:  time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Underlying: 24012.35,
	}
	require.NoError(t, s.SaveChain(ctx, chain))

	got, err := s.LoadChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24012.35, got.Underlying)
	row, ok := got.Strikes[24000]
	require.True(t, ok)
	assert.Equal(t, "N24000CE", row.CallID)

	// Only the latest snapshot is kept.
	chain.Underlying = 24100
	require.NoError(t, s.SaveChain(ctx, chain))
	got, err = s.LoadChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24100.0, got.Underlying)
}

func TestStore_LoadChainBeforeAnySave(t *testing.T) {
	s := openStore(t)
	got, err := s.LoadChain(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Empty())
}
