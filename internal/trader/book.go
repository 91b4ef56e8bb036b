package trader

import "sync"

// Book owns the set of currently open trades plus the entry gate. One mutex
// guards both: monitors and the control loop only ever cooperate through it.
type Book struct {
	mu        sync.Mutex
	trades    map[string]*slot
	entryGate bool
}

type slot struct {
	trade   Trade
	removed chan struct{}
}

func NewBook() *Book {
	return &Book{trades: make(map[string]*slot)}
}

// Insert registers a new open trade and raises the entry gate in the same
// critical section, so a concurrent Remove can never observe a registered
// trade with the gate still down. An already-open identifier yields
// ErrDuplicateTrade.
func (b *Book) Insert(t Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.trades[t.Identifier]; ok {
		return ErrDuplicateTrade
	}
	b.trades[t.Identifier] = &slot{trade: t, removed: make(chan struct{})}
	b.entryGate = true
	return nil
}

// Get returns a copy of the open trade for identifier.
func (b *Book) Get(identifier string) (Trade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.trades[identifier]
	if !ok {
		return Trade{}, false
	}
	return s.trade, true
}

// Remove takes the trade out of the book and returns it. This is the single
// point of truth for close-exactly-once: whichever caller wins the remove
// owns the close, losers observe absence. Removing the last trade clears the
// entry gate.
func (b *Book) Remove(identifier string) (Trade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.trades[identifier]
	if !ok {
		return Trade{}, false
	}
	delete(b.trades, identifier)
	close(s.removed)
	if len(b.trades) == 0 {
		b.entryGate = false
	}
	return s.trade, true
}

// Removed returns a channel closed when the trade leaves the book, letting
// monitors exit promptly instead of waiting out their poll interval.
func (b *Book) Removed(identifier string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.trades[identifier]; ok {
		return s.removed
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Snapshot returns a consistent copy of all open trades so callers can
// iterate without holding the lock during I/O.
func (b *Book) Snapshot() []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Trade, 0, len(b.trades))
	for _, s := range b.trades {
		out = append(out, s.trade)
	}
	return out
}

// Len reports the number of open trades.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.trades)
}

// SetEntryGate marks whether an order is currently gating new entries.
func (b *Book) SetEntryGate(open bool) {
	b.mu.Lock()
	b.entryGate = open
	b.mu.Unlock()
}

// EntryGateOpen reports whether a position is currently gating entry.
func (b *Book) EntryGateOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entryGate
}
