// Package app assembles the engine from configuration: stores, trade log,
// percentile table, data fetcher, order manager and the runner itself.
package app

import (
	"context"
	"fmt"

	"ironfly/internal/config"
	"ironfly/internal/engine"
	"ironfly/internal/gateway/broker"
	"ironfly/internal/gateway/filesource"
	"ironfly/internal/logger"
	"ironfly/internal/market"
	"ironfly/internal/store/signallog"
	"ironfly/internal/store/snapshot"
	"ironfly/internal/strategy/paramtable"
	"ironfly/internal/tradelog"
	"ironfly/internal/trader"
)

// Deps lets callers supply real gateway implementations. A nil Source falls
// back to the file-based replay source; a nil Broker restricts the session
// to paper trades.
type Deps struct {
	Source market.Source
	Broker broker.Broker
}

// App owns the wired component graph for one process lifetime.
type App struct {
	cfg       *config.Config
	runner    *engine.Runner
	table     *paramtable.Registry
	snapshots *snapshot.Store
	signals   *signallog.Store
}

// New builds the application without starting it.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if cfg.Trading.Live() && deps.Broker == nil {
		return nil, fmt.Errorf("live mode requires a broker gateway: %w", broker.ErrUnavailable)
	}

	source := deps.Source
	if source == nil {
		fs, err := filesource.New(cfg.Paths.MarketData)
		if err != nil {
			return nil, fmt.Errorf("market data source: %w", err)
		}
		source = fs
		logger.Infof("using file market source at %s", cfg.Paths.MarketData)
	}

	table, err := paramtable.NewRegistry(cfg.Paths.ParamTable)
	if err != nil {
		return nil, fmt.Errorf("percentile table: %w", err)
	}

	snapshots, err := snapshot.NewStore(cfg.Paths.SnapshotDB)
	if err != nil {
		return nil, err
	}
	signals, err := signallog.NewStore(cfg.Paths.SignalDB)
	if err != nil {
		snapshots.Close()
		return nil, err
	}
	trades, err := tradelog.NewWriter(cfg.Paths.TradeLog)
	if err != nil {
		snapshots.Close()
		signals.Close()
		return nil, err
	}

	fetcher := market.NewFetcher(deps.Broker, source, cfg.Fetch.Retries, cfg.Fetch.Backoff())
	manager := trader.NewManager(trader.ManagerParams{
		Book:          trader.NewBook(),
		Broker:        deps.Broker,
		Fetcher:       fetcher,
		Log:           trades,
		TakeProfitPct: cfg.Trading.TakeProfitPct,
		StopLossPct:   cfg.Trading.StopLossPct,
		PollInterval:  cfg.Session.PollInterval(),
	})

	runner, err := engine.NewRunner(engine.Params{
		Config:       cfg,
		Source:       source,
		Fetcher:      fetcher,
		Manager:      manager,
		Table:        table,
		Snapshots:    snapshots,
		Signals:      signals,
		LivenessPath: cfg.Paths.Liveness,
	})
	if err != nil {
		snapshots.Close()
		signals.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		runner:    runner,
		table:     table,
		snapshots: snapshots,
		signals:   signals,
	}, nil
}

// Run drives the engine until ctx is cancelled, then releases resources.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.runner == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	return a.runner.Start(ctx)
}

// Runner exposes the engine for test harnesses.
func (a *App) Runner() *engine.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

// Close releases stores and watchers. Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.snapshots != nil {
		a.snapshots.Close()
	}
	if a.signals != nil {
		a.signals.Close()
	}
}
