package trader

import (
	"errors"
	"fmt"
	"time"

	"ironfly/internal/market"
)

// ErrDuplicateTrade means an instrument already has an open trade. Hitting it
// indicates an entry-gate bug upstream; callers log and skip.
var ErrDuplicateTrade = errors.New("duplicate open trade")

// Mode tells whether a trade is simulated or routed to the broker.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeLive  Mode = "LIVE"
)

// Trade is one position. A trade is OPEN from creation until its exit price
// and P&L are set together with removal from the book; CLOSED is terminal.
type Trade struct {
	Mode       Mode              `json:"mode"`
	EntryTime  time.Time         `json:"entry_time"`
	ExitTime   *time.Time        `json:"exit_time"`
	Strike     float64           `json:"strike"`
	OptionType market.OptionSide `json:"option_type"`
	Qty        int               `json:"qty"`
	EntryPrice float64           `json:"entry_price"`
	ExitPrice  *float64          `json:"exit_price"`
	PnL        *float64          `json:"pnl"`
	Identifier string            `json:"identifier"`
	OrderID    string            `json:"order_id"` // empty for paper trades
}

// Option renders the option descriptor, e.g. "24500 CALL".
func (t Trade) Option() string {
	return fmt.Sprintf("%g %s", t.Strike, t.OptionType)
}

// Closed reports whether the trade has been finalized.
func (t Trade) Closed() bool {
	return t.ExitPrice != nil
}

// TradeLog is the append-only sink closed trades are recorded to.
type TradeLog interface {
	Append(t Trade) error
}
