package broker

import (
	"context"
	"errors"

	"ironfly/internal/market"
)

var (
	// ErrUnavailable means no broker is configured or the broker call failed.
	// Callers fall back to paper semantics where applicable.
	ErrUnavailable = errors.New("broker unavailable")

	// ErrOrderRejected means the broker refused the order.
	ErrOrderRejected = errors.New("order rejected")

	// ErrCancelFailed means the broker could not square off an order. The
	// position is still marked closed locally.
	ErrCancelFailed = errors.New("order cancel failed")
)

// Side is the option leg an order trades.
type Side = market.OptionSide

// Broker is the order-execution and quote capability. Implementations wrap a
// live brokerage API; this module only consumes the interface.
type Broker interface {
	// PlaceOrder submits a single-shot order and returns the broker order id.
	PlaceOrder(ctx context.Context, identifier string, qty int, side Side, price float64) (string, error)

	// CancelOrder squares off a previously placed order.
	CancelOrder(ctx context.Context, orderID string) error

	// Quote returns the last traded price for an instrument. ok=false means
	// the broker had no quote; that is not an error.
	Quote(ctx context.Context, identifier string) (price float64, ok bool, err error)

	// IndexQuote returns the live OHLC snapshot of the underlying index.
	IndexQuote(ctx context.Context) (market.LiveQuote, error)

	// OptionChain returns the broker-sourced option chain.
	OptionChain(ctx context.Context) (market.ChainSnapshot, error)
}
