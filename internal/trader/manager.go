package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ironfly/internal/gateway/broker"
	"ironfly/internal/logger"
	"ironfly/internal/market"
)

// ManagerParams wires a Manager. Broker may be nil for paper-only sessions.
type ManagerParams struct {
	Book    *Book
	Broker  broker.Broker
	Fetcher *market.Fetcher
	Log     TradeLog

	TakeProfitPct float64 // close at or above, e.g. 13
	StopLossPct   float64 // close at or below, e.g. -6
	PollInterval  time.Duration
	NowFn         func() time.Time
}

// Manager is the sole mutator of trade state. It opens positions, spawns one
// monitor per open trade, and finalizes closes exactly once.
type Manager struct {
	book    *Book
	broker  broker.Broker
	fetcher *market.Fetcher
	log     TradeLog

	takeProfitPct float64
	stopLossPct   float64
	pollInterval  time.Duration
	nowFn         func() time.Time
}

func NewManager(p ManagerParams) *Manager {
	if p.Book == nil {
		p.Book = NewBook()
	}
	if p.TakeProfitPct == 0 {
		p.TakeProfitPct = 13
	}
	if p.StopLossPct == 0 {
		p.StopLossPct = -6
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Minute
	}
	if p.NowFn == nil {
		p.NowFn = time.Now
	}
	return &Manager{
		book:          p.Book,
		broker:        p.Broker,
		fetcher:       p.Fetcher,
		log:           p.Log,
		takeProfitPct: p.TakeProfitPct,
		stopLossPct:   p.StopLossPct,
		pollInterval:  p.PollInterval,
		nowFn:         p.NowFn,
	}
}

// Book exposes the shared trade book.
func (m *Manager) Book() *Book {
	return m.book
}

// OpenPaper registers a simulated trade and starts its monitor.
func (m *Manager) OpenPaper(ctx context.Context, identifier string, qty int, side market.OptionSide, strike, entryPrice float64) (Trade, error) {
	t := Trade{
		Mode:       ModePaper,
		EntryTime:  m.nowFn(),
		Strike:     strike,
		OptionType: side,
		Qty:        qty,
		EntryPrice: entryPrice,
		Identifier: identifier,
	}
	return m.open(ctx, t)
}

// OpenLive places the order at the broker, then registers and monitors the
// trade exactly like a paper one.
func (m *Manager) OpenLive(ctx context.Context, identifier string, qty int, side market.OptionSide, strike, entryPrice float64) (Trade, error) {
	if m.broker == nil {
		return Trade{}, fmt.Errorf("open live %s: %w", identifier, broker.ErrUnavailable)
	}
	orderID, err := m.broker.PlaceOrder(ctx, identifier, qty, side, entryPrice)
	if err != nil {
		return Trade{}, fmt.Errorf("open live %s: %w", identifier, err)
	}
	t := Trade{
		Mode:       ModeLive,
		EntryTime:  m.nowFn(),
		Strike:     strike,
		OptionType: side,
		Qty:        qty,
		EntryPrice: entryPrice,
		Identifier: identifier,
		OrderID:    orderID,
	}
	return m.open(ctx, t)
}

func (m *Manager) open(ctx context.Context, t Trade) (Trade, error) {
	if err := m.book.Insert(t); err != nil {
		return Trade{}, fmt.Errorf("register %s: %w", t.Identifier, err)
	}
	logger.Infof("trade opened mode=%s option=%q qty=%d entry=%.2f id=%s",
		t.Mode, t.Option(), t.Qty, t.EntryPrice, t.Identifier)
	go m.watch(ctx, t.Identifier)
	return t, nil
}

// Close finalizes an open trade at exitPrice; calling it for an identifier
// that is not open is a no-op. The book removal is the single close winner,
// so concurrent callers produce exactly one trade-log entry.
func (m *Manager) Close(ctx context.Context, identifier string, exitPrice float64) (Trade, bool) {
	t, ok := m.book.Remove(identifier)
	if !ok {
		return Trade{}, false
	}
	now := m.nowFn()
	pnl := realizedPnL(t, exitPrice)
	t.ExitTime = &now
	t.ExitPrice = &exitPrice
	t.PnL = &pnl

	if t.Mode == ModeLive && m.broker != nil && t.OrderID != "" {
		if err := m.broker.CancelOrder(ctx, t.OrderID); err != nil {
			// Local close stands even when the broker exit fails.
			logger.Errorf("broker exit failed order=%s: %v", t.OrderID, err)
		}
	}

	if m.log != nil {
		if err := m.log.Append(t); err != nil {
			logger.Errorf("trade log append failed id=%s: %v", t.Identifier, err)
		}
	}
	logger.Infof("trade closed mode=%s option=%q exit=%.2f pnl=%.2f id=%s",
		t.Mode, t.Option(), exitPrice, pnl, t.Identifier)
	return t, true
}

// realizedPnL is (exit-entry)*qty for calls and (entry-exit)*qty for puts.
func realizedPnL(t Trade, exitPrice float64) float64 {
	entry := decimal.NewFromFloat(t.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromInt(int64(t.Qty))
	var diff decimal.Decimal
	if t.OptionType == market.SidePut {
		diff = entry.Sub(exit)
	} else {
		diff = exit.Sub(entry)
	}
	pnl, _ := diff.Mul(qty).Float64()
	return pnl
}
