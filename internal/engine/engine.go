// Package engine is the multi-symbol matching engine: it routes a submission
// to the correct per-symbol order book, holds that book exclusively for the
// duration of the match, and publishes the resulting trades in matching
// order once the critical section is released.
//
// Grounded in the teacher's internal/engine/engine.go (the Engine-owns-Books
// shape) and internal/net/server.go (a mutex-guarded map as the concurrent
// per-key structure), generalized from a fixed AssetType key to an arbitrary
// symbol string per spec.md §4.2, and from a single Books map access to a
// proper per-symbol critical section per spec.md §5.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"matchcore/internal/book"
	"matchcore/internal/common"
)

var (
	// ErrUnsupportedOrderType is returned by Submit for StopLimit/StopMarket
	// orders: the taxonomy accepts them but this core has no trigger
	// scheduler, per spec.md §9 Open Question 1, option (a).
	ErrUnsupportedOrderType = errors.New("engine: unsupported order type")
	// ErrNotFound is returned by Cancel when the symbol is unknown or id is
	// not resting on either side of its book.
	ErrNotFound = errors.New("engine: order not found")
)

// bookEntry pairs a per-symbol order book with the mutex that gives callers
// exclusive access to it for the duration of a match plus residual insert.
type bookEntry struct {
	mu   sync.Mutex
	book *book.Book
}

// Engine routes submissions and cancellations to per-symbol order books and
// fans out emitted trades to subscribers. The symbol map itself is guarded by
// a RWMutex (cheap concurrent reads for the common case of an already-known
// symbol); each book's critical section is its own mutex, so operations on
// different symbols never contend with each other.
type Engine struct {
	mu    sync.RWMutex
	books map[string]*bookEntry
	bus   *tradeBus
}

// New creates an engine with no known symbols. Symbols are created lazily on
// first Submit, per spec.md §4.2's Absent -> Present state machine; there is
// no GC of empty books in this core, to avoid id-reuse races across symbols.
func New() *Engine {
	return &Engine{
		books: make(map[string]*bookEntry),
		bus:   newTradeBus(),
	}
}

func (e *Engine) entryFor(symbol string) *bookEntry {
	e.mu.RLock()
	entry, ok := e.books[symbol]
	e.mu.RUnlock()
	if ok {
		return entry
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok = e.books[symbol]; ok {
		return entry
	}
	entry = &bookEntry{book: book.New(symbol)}
	e.books[symbol] = entry
	return entry
}

// Submit runs the submission pipeline from spec.md §4.2: mark the order Open,
// acquire the symbol's book exclusively, match it against the opposite side,
// classify the resulting status, rest any unfilled Limit residual, release
// the book, then publish the emitted trades in matching order. Submit does
// not accept a context: it is not meant to be cancelled mid-match, and the
// critical section is all-or-nothing by construction. Risk admission is the
// caller's responsibility (see the gateway), which runs Check before Submit.
func (e *Engine) Submit(order common.Order) (common.Order, error) {
	if order.Type == common.StopLimit || order.Type == common.StopMarket {
		return order, ErrUnsupportedOrderType
	}

	order.Status = common.Open
	entry := e.entryFor(order.Symbol)

	entry.mu.Lock()
	order.ExchTimestamp = time.Now().UTC()
	updated, trades := entry.book.Match(order)

	switch {
	case updated.IsFullyFilled():
		updated.Status = common.Filled
	case updated.Filled.GreaterThan(decimal.Zero):
		updated.Status = common.PartiallyFilled
	default:
		updated.Status = common.Open
	}

	if !updated.IsFullyFilled() {
		if updated.Type == common.Limit {
			residual := updated
			entry.book.Add(&residual)
		} else {
			// Market orders never rest: an unfilled remainder means the
			// opposite book was exhausted, so the remainder is cancelled.
			updated.Status = common.Cancelled
		}
	}
	entry.mu.Unlock()

	for _, trade := range trades {
		log.Info().
			Str("tradeID", trade.ID.String()).
			Str("symbol", trade.Symbol).
			Str("price", trade.Price.String()).
			Str("qty", trade.Quantity.String()).
			Msg("trade executed")
		e.bus.publish(trade)
	}

	return updated, nil
}

// Cancel removes id from symbol's book, trying the buy side then the sell
// side, and is atomic with respect to concurrent Submit/Cancel on the same
// symbol. It returns ErrNotFound if the symbol is unknown or id is resting on
// neither side.
func (e *Engine) Cancel(id uuid.UUID, symbol string) (common.Order, error) {
	e.mu.RLock()
	entry, ok := e.books[symbol]
	e.mu.RUnlock()
	if !ok {
		return common.Order{}, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if removed, ok := entry.book.Remove(id, common.Buy); ok {
		removed.Status = common.Cancelled
		return *removed, nil
	}
	if removed, ok := entry.book.Remove(id, common.Sell); ok {
		removed.Status = common.Cancelled
		return *removed, nil
	}
	return common.Order{}, ErrNotFound
}

// Snapshot returns a consistent point-in-time view of symbol's book, or false
// if the symbol is unknown.
func (e *Engine) Snapshot(symbol string) (common.Snapshot, bool) {
	e.mu.RLock()
	entry, ok := e.books[symbol]
	e.mu.RUnlock()
	if !ok {
		return common.Snapshot{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.book.Snapshot(0), true
}

// Symbols enumerates currently known symbol keys, in no particular order.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for symbol := range e.books {
		out = append(out, symbol)
	}
	return out
}

// Trades subscribes to the engine's outbound trade stream. The returned
// unsubscribe function must be called when the caller is done listening.
func (e *Engine) Trades() (<-chan common.Trade, func()) {
	return e.bus.Subscribe()
}
