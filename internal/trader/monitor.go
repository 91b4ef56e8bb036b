package trader

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ironfly/internal/logger"
)

// watch polls one open trade until it hits an exit threshold or leaves the
// book. Each opened trade gets exactly one watcher and a watcher never
// restarts; a closed trade simply stops being watched.
func (m *Manager) watch(ctx context.Context, identifier string) {
	removed := m.book.Removed(identifier)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	logger.Debugf("monitor started id=%s interval=%s", identifier, m.pollInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Debugf("monitor cancelled id=%s", identifier)
			return
		case <-removed:
			logger.Debugf("monitor released id=%s", identifier)
			return
		case <-ticker.C:
		}

		t, ok := m.book.Get(identifier)
		if !ok {
			return
		}
		price, ok := m.currentPrice(ctx, t)
		if !ok {
			logger.Debugf("no quote for %s, retrying", identifier)
			continue
		}
		pct := changePct(t.EntryPrice, price)
		if pct >= m.takeProfitPct {
			logger.Infof("take profit hit id=%s price=%.2f change=%.2f%%", identifier, price, pct)
			m.Close(ctx, identifier, price)
			return
		}
		if pct <= m.stopLossPct {
			logger.Infof("stop loss hit id=%s price=%.2f change=%.2f%%", identifier, price, pct)
			m.Close(ctx, identifier, price)
			return
		}
	}
}

// currentPrice prefers a direct broker quote and falls back to the bid from
// a fresh option chain snapshot.
func (m *Manager) currentPrice(ctx context.Context, t Trade) (float64, bool) {
	if m.broker != nil {
		price, ok, err := m.broker.Quote(ctx, t.Identifier)
		if err != nil {
			logger.Debugf("quote error id=%s: %v", t.Identifier, err)
		} else if ok {
			return price, true
		}
	}
	if m.fetcher == nil {
		return 0, false
	}
	chain := m.fetcher.Fetch(ctx)
	if chain.Empty() {
		return 0, false
	}
	return chain.Bid(t.Strike, t.OptionType)
}

// changePct returns the percentage move from entry, 0 when entry is 0.
func changePct(entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	p := decimal.NewFromFloat(price)
	pct, _ := p.Sub(e).Div(e).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
