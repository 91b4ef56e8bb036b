package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ironfly/internal/config"
	"ironfly/internal/market"
	"ironfly/internal/strategy/paramtable"
	"ironfly/internal/trader"
)

type fakeSource struct {
	mu       sync.Mutex
	quotes   []market.LiveQuote
	idx      int
	chains   []market.ChainSnapshot
	chainIdx int
	hist     []market.Bar
}

func (f *fakeSource) GetLiveIndex(context.Context) (market.LiveQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quotes[f.idx]
	if f.idx < len(f.quotes)-1 {
		f.idx++
	}
	return q, nil
}

func (f *fakeSource) GetOptionChain(context.Context) (market.ChainSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chains) == 0 {
		return market.ChainSnapshot{}, market.ErrDataUnavailable
	}
	c := f.chains[f.chainIdx]
	if f.chainIdx < len(f.chains)-1 {
		f.chainIdx++
	}
	if c.Empty() {
		return market.ChainSnapshot{}, market.ErrDataUnavailable
	}
	return c, nil
}

func (f *fakeSource) GetHistoricalIndex(context.Context) ([]market.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.hist) == 0 {
		return nil, market.ErrDataUnavailable
	}
	return f.hist, nil
}

type memTradeLog struct {
	mu      sync.Mutex
	entries []trader.Trade
}

func (l *memTradeLog) Append(t trader.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, t)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			Timezone:    "UTC",
			MarketOpen:  "09:26",
			EntryStart:  "11:26",
			EntryEnd:    "14:25",
			ForceExit:   "15:00",
			SessionEnd:  "15:25",
			MarketClose: "15:30",
			TickSeconds: 300,
			IdleSeconds: 60,
			PollSeconds: 60,
		},
		Trading: config.TradingConfig{
			Mode:          "paper",
			Quantity:      25,
			TakeProfitPct: 13,
			StopLossPct:   -6,
		},
		Analysis: config.AnalysisConfig{WindowBars: 18},
	}
}

// callChain is put-heavy flow: Decision CALL with the call-side max at
// 24100. putBoost inflates the put flow so successive cycles see a rising
// OI difference and resolve the trend up.
func callChain(putBoost float64) market.ChainSnapshot {
	return market.ChainSnapshot{
		Strikes: map[float64]market.StrikeRow{
			24000: {CallOI: 50, PutOI: 400, CallOIChange: 10, PutOIChange: 60 + putBoost,
				CallBid: 90, PutBid: 110, CallID: "N24000CE", PutID: "N24000PE"},
			24100: {CallOI: 300, PutOI: 100, CallOIChange: 40, PutOIChange: 80,
				CallBid: 70, PutBid: 130, CallID: "N24100CE", PutID: "N24100PE"},
		},
		Timestamp:  time.Now().UTC(),
		Underlying: 24050,
	}
}

func callChains(n int) []market.ChainSnapshot {
	out := make([]market.ChainSnapshot, n)
	for i := range out {
		out[i] = callChain(float64(20 * i))
	}
	return out
}

func risingQuotes(n int) []market.LiveQuote {
	base := time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)
	out := make([]market.LiveQuote, n)
	for i := range out {
		out[i] = market.LiveQuote{
			Open:      24000,
			High:      24100,
			Low:       23900,
			Last:      24000 + float64(10*i),
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
		}
	}
	return out
}

func newTestRunner(t *testing.T, src *fakeSource, now time.Time) (*Runner, *trader.Manager, *memTradeLog) {
	t.Helper()
	cfg := testConfig()
	log := &memTradeLog{}
	fetcher := market.NewFetcher(nil, src, 0, 0)
	manager := trader.NewManager(trader.ManagerParams{
		Book:         trader.NewBook(),
		Fetcher:      fetcher,
		Log:          log,
		PollInterval: time.Hour,
	})
	clock := now
	r, err := NewRunner(Params{
		Config:  cfg,
		Source:  src,
		Fetcher: fetcher,
		Manager: manager,
		NowFn:   func() time.Time { return clock },
	})
	require.NoError(t, err)
	return r, manager, log
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
}

func TestRunner_EntryNeedsFullConfluence(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(4), chains: callChains(6)}
	r, manager, _ := newTestRunner(t, src, at(12, 0))
	ctx := context.Background()

	// First cycle: a single diff value means the trend is still unknown,
	// so no entry regardless of the CALL decision.
	r.runCycle(ctx)
	assert.Equal(t, 0, manager.Book().Len())

	// Second cycle: trend resolves up, momentum is positive, the default
	// day label is bullish. All gates agree; the trade opens.
	r.runCycle(ctx)
	require.Equal(t, 1, manager.Book().Len())
	assert.True(t, manager.Book().EntryGateOpen())

	open := manager.Book().Snapshot()[0]
	assert.Equal(t, market.SideCall, open.OptionType)
	assert.Equal(t, 24100.0, open.Strike)
	assert.Equal(t, "N24100CE", open.Identifier)
	assert.Equal(t, 70.0, open.EntryPrice)
	assert.Equal(t, 25, open.Qty)

	// Third cycle: the gate blocks a second entry.
	r.runCycle(ctx)
	assert.Equal(t, 1, manager.Book().Len())

	manager.Close(ctx, open.Identifier, 70)
}

func TestRunner_NoEntryOutsideWindow(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(4), chains: callChains(6)}
	r, manager, _ := newTestRunner(t, src, at(10, 0))
	ctx := context.Background()

	r.runCycle(ctx)
	r.runCycle(ctx)
	assert.Equal(t, 0, manager.Book().Len(), "10:00 is before the entry window")
}

func TestRunner_SweepClosesEverythingAfterForceExit(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(6), chains: callChains(6)}
	r, manager, log := newTestRunner(t, src, at(12, 0))
	ctx := context.Background()

	r.runCycle(ctx)
	r.runCycle(ctx)
	require.Equal(t, 1, manager.Book().Len())

	r.nowFn = func() time.Time { return at(15, 1) }
	r.runCycle(ctx)

	assert.Equal(t, 0, manager.Book().Len())
	assert.False(t, manager.Book().EntryGateOpen())
	require.Len(t, log.entries, 1)
	closed := log.entries[0]
	require.NotNil(t, closed.ExitPrice)
	assert.Equal(t, 70.0, *closed.ExitPrice, "swept at the chain bid")
}

func TestRunner_SweepClosesFlatWhenStrikeAbsent(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(6), chains: callChains(6)}
	r, manager, log := newTestRunner(t, src, at(12, 0))
	ctx := context.Background()

	r.runCycle(ctx)
	r.runCycle(ctx)
	require.Equal(t, 1, manager.Book().Len())

	// The strike vanishes from the chain before the sweep.
	src.mu.Lock()
	for i := range src.chains {
		delete(src.chains[i].Strikes, 24100)
	}
	src.mu.Unlock()

	r.nowFn = func() time.Time { return at(15, 1) }
	r.runCycle(ctx)

	require.Len(t, log.entries, 1)
	closed := log.entries[0]
	require.NotNil(t, closed.PnL)
	assert.Zero(t, *closed.PnL, "unknown exit price closes at entry")
}

func TestRunner_EmptyChainCycleIsNeutral(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(4)}
	r, manager, _ := newTestRunner(t, src, at(12, 0))
	ctx := context.Background()

	r.runCycle(ctx)
	r.runCycle(ctx)
	assert.Equal(t, 0, manager.Book().Len(), "empty chain can never satisfy the gate")
}

func TestRunner_StartRefusesAfterClose(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(1)}
	r, _, _ := newTestRunner(t, src, at(16, 0))

	err := r.Start(context.Background())
	assert.NoError(t, err)
	assert.False(t, r.Running())
}

func TestRunner_PreOpenWaitIsCancellable(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(1)}
	r, _, _ := newTestRunner(t, src, at(7, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("pre-open wait did not observe cancellation")
	}
}

func TestRunner_SecondStartIsNoOp(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(1)}
	r, _, _ := newTestRunner(t, src, at(7, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	require.Eventually(t, func() bool { return r.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, r.Start(ctx), "second start must return immediately")
	assert.True(t, r.Running())
}

func flatHist(n int, px float64) []market.Bar {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Bar, n)
	for i := range out {
		out[i] = market.Bar{Open: px, High: px, Low: px, Close: px,
			Timestamp: base.AddDate(0, 0, i)}
	}
	return out
}

// spikingQuotes opens at 105 and then runs far away from the daily series,
// so a classification computed off the live bar would flip its pattern key.
func spikingQuotes(n int) []market.LiveQuote {
	base := time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)
	out := make([]market.LiveQuote, n)
	for i := range out {
		out[i] = market.LiveQuote{
			Open:      105,
			High:      330,
			Low:       100,
			Last:      305 + float64(10*i),
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
		}
	}
	return out
}

func TestRunner_DayLabelFixedByDailySeries(t *testing.T) {
	// Flat daily closes at 100 and a 105 open give the pattern key
	// YESYESYESNOYES. The same comparisons against any bar carrying the
	// spiking intraday quote would give NONONONONO and a bearish label.
	tablePath := filepath.Join(t.TempDir(), "day_params.yaml")
	require.NoError(t, os.WriteFile(tablePath, []byte(`
params:
  YESYESYESNOYES:
    bearish: 20
    bullish: 80
  NONONONONO:
    bearish: 60
    bullish: 40
`), 0o644))
	table, err := paramtable.NewRegistry(tablePath)
	require.NoError(t, err)

	src := &fakeSource{
		quotes: spikingQuotes(4),
		chains: callChains(6),
		hist:   flatHist(18, 100),
	}
	r, manager, _ := newTestRunner(t, src, at(12, 0))
	r.table = table
	ctx := context.Background()

	r.seedHistory(ctx)
	require.NotNil(t, r.dayBar)
	assert.Equal(t, "Bullish 80.00", r.dayLabel(105),
		"label comes from the last daily bar, not the live one")

	r.runCycle(ctx)
	r.runCycle(ctx)
	require.Equal(t, 1, manager.Book().Len(),
		"bullish day label must let the call confluence through")
	assert.Equal(t, "Bullish 80.00", r.dayLabel(105),
		"label holds steady while the live quote runs away")

	open := manager.Book().Snapshot()[0]
	manager.Close(ctx, open.Identifier, open.EntryPrice)
}

func TestRunner_SweepDropsGateEvenWithEmptyBook(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(2)}
	r, manager, _ := newTestRunner(t, src, at(15, 1))

	manager.Book().SetEntryGate(true)
	r.runCycle(context.Background())

	assert.False(t, manager.Book().EntryGateOpen(),
		"sweep must release the gate even when nothing is open")
}

func TestRunner_StartIdlesBetweenSessionEndAndClose(t *testing.T) {
	src := &fakeSource{quotes: risingQuotes(1)}
	r, _, _ := newTestRunner(t, src, at(15, 27))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, func() bool { return r.Running() }, 2*time.Second, 5*time.Millisecond,
		"15:27 is past the last tick but before the hard close, the runner idles")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("idling runner did not observe cancellation")
	}
}
