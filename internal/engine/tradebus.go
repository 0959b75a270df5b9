package engine

import (
	"sync"

	"github.com/rs/zerolog/log"

	"matchcore/internal/common"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls behind this far has each newly published trade dropped for it (the
// trades already buffered are kept) rather than blocking the publisher, per spec.md §5 ("await channel send" is not on the
// critical path; a full channel is logged and the trade dropped, never
// retried from inside the core).
const subscriberBuffer = 256

// tradeBus is a multi-producer, multi-consumer fan-out of Trade records in
// per-symbol matching order, realized as a small broadcast hub: every
// Subscribe call gets its own channel buffered to subscriberBuffer trades,
// and publish is a non-blocking send to each one.
type tradeBus struct {
	mu          sync.Mutex
	subscribers map[int]chan common.Trade
	nextID      int
}

func newTradeBus() *tradeBus {
	return &tradeBus{subscribers: make(map[int]chan common.Trade)}
}

// Subscribe registers a new consumer and returns its channel along with an
// unsubscribe function the caller must invoke when done listening.
func (b *tradeBus) Subscribe() (<-chan common.Trade, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan common.Trade, subscriberBuffer)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// publish fans trade out to every current subscriber. A subscriber whose
// channel is full has the trade dropped for it and the drop logged; the trade
// itself is authoritative regardless — publication failure never rolls back a
// match.
func (b *tradeBus) publish(trade common.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- trade:
		default:
			log.Warn().
				Int("subscriber", id).
				Str("tradeID", trade.ID.String()).
				Str("symbol", trade.Symbol).
				Msg("trade publish dropped: subscriber channel full")
		}
	}
}
