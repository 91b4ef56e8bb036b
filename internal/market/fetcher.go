package market

import (
	"context"
	"time"

	"ironfly/internal/logger"
	"ironfly/internal/pkg/circuit"
)

// Provider is the broker-side market-data capability. Declared here so the
// fetcher does not depend on the broker gateway package.
type Provider interface {
	OptionChain(ctx context.Context) (ChainSnapshot, error)
	IndexQuote(ctx context.Context) (LiveQuote, error)
}

// Fetcher retrieves the option chain with bounded retry. Each attempt tries
// the broker-sourced chain first and the scraped source second; after all
// attempts fail it gives up and returns an empty snapshot, never an error.
type Fetcher struct {
	broker  Provider // may be nil
	source  Source
	retries int
	backoff time.Duration
	breaker *circuit.Breaker
}

// NewFetcher builds a Fetcher. retries is the number of retries after the
// initial attempt; backoff is the pause between attempts.
func NewFetcher(b Provider, src Source, retries int, backoff time.Duration) *Fetcher {
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		broker:  b,
		source:  src,
		retries: retries,
		backoff: backoff,
		breaker: circuit.NewBreaker("option-chain", 3, 5*time.Minute),
	}
}

// LiveIndex returns the current intraday snapshot of the underlying index,
// preferring the broker feed and falling back to the scraped source.
func (f *Fetcher) LiveIndex(ctx context.Context) (LiveQuote, error) {
	if f == nil {
		return LiveQuote{}, ErrDataUnavailable
	}
	if f.broker != nil {
		q, err := f.broker.IndexQuote(ctx)
		if err == nil {
			return q, nil
		}
		logger.Debugf("broker index quote failed, trying scraped source: %v", err)
	}
	if f.source == nil {
		return LiveQuote{}, ErrDataUnavailable
	}
	return f.source.GetLiveIndex(ctx)
}

// Fetch returns the freshest option chain it can obtain. The returned
// snapshot is empty when every attempt failed.
func (f *Fetcher) Fetch(ctx context.Context) ChainSnapshot {
	if f == nil {
		return ChainSnapshot{}
	}
	if !f.breaker.Allow() {
		logger.Warnf("option-chain fetch skipped: circuit open")
		return ChainSnapshot{}
	}
	for attempt := 0; attempt <= f.retries; attempt++ {
		if snap, ok := f.attempt(ctx); ok {
			f.breaker.RecordSuccess()
			logger.Debugf("option-chain fetch ok on attempt %d (%d strikes)", attempt+1, len(snap.Strikes))
			return snap
		}
		if attempt < f.retries {
			logger.Warnf("option-chain fetch attempt %d failed, retrying in %s", attempt+1, f.backoff)
			if !sleepCtx(ctx, f.backoff) {
				return ChainSnapshot{}
			}
		}
	}
	f.breaker.RecordFailure()
	logger.Errorf("option-chain fetch failed after %d attempts, returning empty snapshot", f.retries+1)
	return ChainSnapshot{}
}

func (f *Fetcher) attempt(ctx context.Context) (ChainSnapshot, bool) {
	if f.broker != nil {
		snap, err := f.broker.OptionChain(ctx)
		if err == nil && !snap.Empty() {
			return snap, true
		}
		if err != nil {
			logger.Debugf("broker option chain failed: %v", err)
		}
	}
	if f.source != nil {
		snap, err := f.source.GetOptionChain(ctx)
		if err == nil && !snap.Empty() {
			return snap, true
		}
		if err != nil {
			logger.Debugf("scraped option chain failed: %v", err)
		}
	}
	return ChainSnapshot{}, false
}

// sleepCtx sleeps for d unless ctx is cancelled first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
