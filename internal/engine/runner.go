// Package engine hosts the top-level strategy loop. One Runner advances the
// whole decision pipeline once per tick during market hours and hands exits
// off to the per-trade watchers in the trader package.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ironfly/internal/analysis/indicator"
	"ironfly/internal/config"
	"ironfly/internal/logger"
	"ironfly/internal/market"
	"ironfly/internal/store/signallog"
	"ironfly/internal/store/snapshot"
	"ironfly/internal/strategy"
	"ironfly/internal/strategy/paramtable"
	"ironfly/internal/trader"
)

// openWaitStep bounds how long a pre-open sleep can go without checking ctx.
const openWaitStep = 5 * time.Second

// Params wires a Runner. Stores and the liveness path are optional; a nil
// store simply skips that artifact.
type Params struct {
	Config    *config.Config
	Source    market.Source
	Fetcher   *market.Fetcher
	Manager   *trader.Manager
	Table     *paramtable.Registry
	Snapshots *snapshot.Store
	Signals   *signallog.Store

	LivenessPath string
	NowFn        func() time.Time
}

// Runner drives the 5-minute evaluation cycle and the end-of-day sweep.
type Runner struct {
	cfg       *config.Config
	source    market.Source
	fetcher   *market.Fetcher
	manager   *trader.Manager
	table     *paramtable.Registry
	snapshots *snapshot.Store
	signals   *signallog.Store

	livenessPath string
	nowFn        func() time.Time
	loc          *time.Location

	running atomic.Bool

	// Loop-local state, touched only by the single Start goroutine.
	bars  []market.Bar
	diffs []float64

	// dayBar is the last enriched bar of the seeded daily series. The day
	// classification reads it all session long so the label never drifts
	// with the intraday quote.
	dayBar *indicator.EnrichedBar
}

func NewRunner(p Params) (*Runner, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	if p.Source == nil {
		return nil, fmt.Errorf("engine: market source is required")
	}
	if p.Manager == nil {
		return nil, fmt.Errorf("engine: trade manager is required")
	}
	if p.NowFn == nil {
		p.NowFn = time.Now
	}
	return &Runner{
		cfg:          p.Config,
		source:       p.Source,
		fetcher:      p.Fetcher,
		manager:      p.Manager,
		table:        p.Table,
		snapshots:    p.Snapshots,
		signals:      p.Signals,
		livenessPath: p.LivenessPath,
		nowFn:        p.NowFn,
		loc:          p.Config.Session.Location(),
	}, nil
}

// Start runs the control loop until ctx is cancelled. Calling Start while a
// loop is already active is a no-op; starting after market close refuses and
// returns nil.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		logger.Warnf("runner already active, ignoring start")
		return nil
	}
	defer r.running.Store(false)

	now := r.now()
	if now.After(r.clockToday(r.cfg.Session.MarketClose, now)) {
		logger.Infof("market closed for the day, runner will not start")
		return nil
	}
	if open := r.clockToday(r.cfg.Session.MarketOpen, now); now.Before(open) {
		logger.Infof("waiting %s until market open at %s", open.Sub(now).Truncate(time.Second), r.cfg.Session.MarketOpen)
		if !r.waitUntil(ctx, open) {
			return ctx.Err()
		}
	}

	r.seedHistory(ctx)
	logger.Infof("runner started mode=%s tick=%s", r.cfg.Trading.Mode, r.cfg.Session.TickInterval())

	for {
		now = r.now()
		var sleep time.Duration
		if r.inSession(now) {
			r.runCycle(ctx)
			sleep = r.cfg.Session.TickInterval()
		} else {
			sleep = r.cfg.Session.IdleInterval()
		}
		if !sleepCtx(ctx, sleep) {
			logger.Infof("runner stopping")
			return ctx.Err()
		}
	}
}

// Running reports whether the control loop is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// seedHistory preloads the retained bar window from the historical series so
// indicators have context on the first tick. Failure is not fatal, the window
// fills from live ticks instead.
func (r *Runner) seedHistory(ctx context.Context) {
	hist, err := r.source.GetHistoricalIndex(ctx)
	if err != nil {
		logger.Warnf("historical series unavailable, starting cold: %v", err)
		return
	}
	if enriched, err := indicator.Enrich(hist); err == nil {
		bar := enriched[len(enriched)-1]
		r.dayBar = &bar
	}
	if n := r.cfg.Analysis.WindowBars; len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	r.bars = append(r.bars[:0], hist...)
	logger.Infof("seeded %d historical bars", len(r.bars))
}

// runCycle advances the pipeline one step. Every failure degrades to
// skipping the affected stage; nothing here may take the loop down.
func (r *Runner) runCycle(ctx context.Context) {
	traceID := uuid.NewString()
	now := r.now()

	quote, err := r.liveIndex(ctx)
	if err != nil {
		logger.Warnf("[%s] live index unavailable, skipping cycle: %v", traceID, err)
		return
	}
	r.appendBar(quote.Bar())

	enriched, err := indicator.Enrich(r.bars)
	if err != nil {
		logger.Errorf("[%s] indicator computation failed: %v", traceID, err)
		return
	}
	last := enriched[len(enriched)-1]

	var chain market.ChainSnapshot
	if r.fetcher != nil {
		chain = r.fetcher.Fetch(ctx)
	}
	if chain.Empty() {
		logger.Warnf("[%s] option chain empty this cycle", traceID)
	}

	stats := strategy.StatsFromChain(chain)
	decision := strategy.Evaluate(stats)
	r.diffs = append(r.diffs, stats.Diff())
	trend := strategy.Trend(r.diffs)
	dayLabel := r.dayLabel(quote.Open)

	row := strategy.SignalRow{
		TraceID:       traceID,
		Timestamp:     now,
		Underlying:    chain.Underlying,
		PutSum:        stats.PutSum,
		CallSum:       stats.CallSum,
		Diff:          stats.Diff(),
		PCR:           stats.Ratio(),
		CallMaxStrike: stats.CallMaxStrike,
		CallMax:       stats.CallMax,
		PutMaxStrike:  stats.PutMaxStrike,
		PutMax:        stats.PutMax,
		Decision:      decision,
		DayLabel:      dayLabel,
		Trend:         trend,
	}
	logger.Infof("[%s] cycle decision=%s trend=%s day=%q pcr=%.3f diff=%.0f",
		traceID, decision, trend, dayLabel, row.PCR, row.Diff)

	r.persistArtifacts(ctx, traceID, enriched, chain, row)

	if r.inEntryWindow(now) {
		r.maybeEnter(ctx, traceID, row, last, chain)
	}
	if !now.Before(r.clockToday(r.cfg.Session.ForceExit, now)) {
		r.sweep(ctx, traceID, chain)
	}
}

// liveIndex fetches the current index bar, broker-preferred when a fetcher
// with a broker feed is wired.
func (r *Runner) liveIndex(ctx context.Context) (market.LiveQuote, error) {
	if r.fetcher != nil {
		return r.fetcher.LiveIndex(ctx)
	}
	return r.source.GetLiveIndex(ctx)
}

// dayLabel classifies the day off the seeded daily series and today's open.
// Without a seeded series the label stays at the neutral default.
func (r *Runner) dayLabel(todayOpen float64) string {
	if r.dayBar == nil {
		return strategy.DefaultDayLabel
	}
	return strategy.ClassifyDay(*r.dayBar, todayOpen, r.table)
}

// persistArtifacts writes the three cycle datasets concurrently and then
// touches the liveness marker.
func (r *Runner) persistArtifacts(ctx context.Context, traceID string, enriched []indicator.EnrichedBar, chain market.ChainSnapshot, row strategy.SignalRow) {
	g, gctx := errgroup.WithContext(ctx)
	if r.snapshots != nil {
		g.Go(func() error { return r.snapshots.SaveBars(gctx, enriched) })
		if !chain.Empty() {
			g.Go(func() error { return r.snapshots.SaveChain(gctx, chain) })
		}
	}
	if r.signals != nil {
		g.Go(func() error { return r.signals.Append(gctx, row) })
	}
	if err := g.Wait(); err != nil {
		logger.Errorf("[%s] artifact persistence failed: %v", traceID, err)
	}
	if r.livenessPath != "" {
		if err := writeLiveness(r.livenessPath, r.now()); err != nil {
			logger.Warnf("[%s] liveness marker write failed: %v", traceID, err)
		}
	}
}

// maybeEnter opens at most one position when decision, trend, day label and
// the latest momentum sign all agree directionally.
func (r *Runner) maybeEnter(ctx context.Context, traceID string, row strategy.SignalRow, last indicator.EnrichedBar, chain market.ChainSnapshot) {
	book := r.manager.Book()
	if book.EntryGateOpen() {
		return
	}
	var side market.OptionSide
	var strike float64
	switch {
	case row.Decision == strategy.DecisionCall &&
		row.Trend == strategy.TrendUp &&
		strategy.IsBullish(row.DayLabel) &&
		last.Momentum == 1:
		side, strike = market.SideCall, row.CallMaxStrike
	case row.Decision == strategy.DecisionPut &&
		row.Trend == strategy.TrendDown &&
		strategy.IsBearish(row.DayLabel) &&
		last.Momentum == -1:
		side, strike = market.SidePut, row.PutMaxStrike
	default:
		return
	}

	identifier, ok := chain.Identifier(strike, side)
	if !ok {
		logger.Warnf("[%s] no instrument id for strike %g %s, entry skipped", traceID, strike, side)
		return
	}
	price, ok := chain.Bid(strike, side)
	if !ok || price <= 0 {
		logger.Warnf("[%s] no bid for strike %g %s, entry skipped", traceID, strike, side)
		return
	}

	qty := r.cfg.Trading.Quantity
	var err error
	if r.cfg.Trading.Live() {
		_, err = r.manager.OpenLive(ctx, identifier, qty, side, strike, price)
	} else {
		_, err = r.manager.OpenPaper(ctx, identifier, qty, side, strike, price)
	}
	if err != nil {
		logger.Errorf("[%s] entry failed %s %g: %v", traceID, side, strike, err)
		return
	}
	logger.Infof("[%s] entered %s %g @ %.2f", traceID, side, strike, price)
}

// sweep force-closes every open trade at the best available chain bid. A
// strike missing from the snapshot closes at entry price with zero result.
func (r *Runner) sweep(ctx context.Context, traceID string, chain market.ChainSnapshot) {
	book := r.manager.Book()
	// The gate drops even when nothing is open, so an entry racing a close
	// cannot leave it latched for the rest of the session.
	defer book.SetEntryGate(false)
	open := book.Snapshot()
	if len(open) == 0 {
		return
	}
	logger.Infof("[%s] end of day sweep, %d open trade(s)", traceID, len(open))
	for _, t := range open {
		price, ok := chain.Bid(t.Strike, t.OptionType)
		if !ok || price <= 0 {
			logger.Warnf("[%s] no exit price for %q, closing flat", traceID, t.Option())
			price = t.EntryPrice
		}
		r.manager.Close(ctx, t.Identifier, price)
	}
}

func (r *Runner) appendBar(b market.Bar) {
	r.bars = append(r.bars, b)
	if n := r.cfg.Analysis.WindowBars; len(r.bars) > n {
		r.bars = r.bars[len(r.bars)-n:]
	}
}

func (r *Runner) now() time.Time {
	return r.nowFn().In(r.loc)
}

// clockToday anchors an "HH:MM" boundary to ref's date in the session zone.
func (r *Runner) clockToday(clock string, ref time.Time) time.Time {
	h, m := config.Clock(clock)
	return time.Date(ref.Year(), ref.Month(), ref.Day(), h, m, 0, 0, r.loc)
}

func (r *Runner) inSession(now time.Time) bool {
	return !now.Before(r.clockToday(r.cfg.Session.MarketOpen, now)) &&
		!now.After(r.clockToday(r.cfg.Session.SessionEnd, now))
}

func (r *Runner) inEntryWindow(now time.Time) bool {
	return !now.Before(r.clockToday(r.cfg.Session.EntryStart, now)) &&
		!now.After(r.clockToday(r.cfg.Session.EntryEnd, now))
}

// waitUntil sleeps toward deadline in short increments so a stop request is
// observed promptly even during the long pre-open wait.
func (r *Runner) waitUntil(ctx context.Context, deadline time.Time) bool {
	for {
		remaining := deadline.Sub(r.now())
		if remaining <= 0 {
			return true
		}
		step := remaining
		if step > openWaitStep {
			step = openWaitStep
		}
		if !sleepCtx(ctx, step) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func writeLiveness(path string, now time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(now.Format(time.RFC3339)), 0o644)
}
