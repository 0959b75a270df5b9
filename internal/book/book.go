// Package book implements a single-symbol, price-time-priority limit order
// book: two price-keyed ladders (bids, asks) each holding FIFO queues of
// resting orders, plus the matching algorithm that drives an incoming order
// against the opposite ladder.
//
// Grounded in the teacher's internal/engine/orderbook.go, which already reaches
// for github.com/tidwall/btree.BTreeG for the price ladder; this package keeps
// that structure and generalizes it from a single fixed asset type to an
// arbitrary symbol, from float64 prices to decimal.Decimal, and from a
// single-side sweep to the full FIFO-preserving match contract in spec.md §4.1.
package book

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"matchcore/internal/common"
)

// DefaultSnapshotDepth is the number of levels returned per side when Snapshot
// is called without an explicit depth.
const DefaultSnapshotDepth = 20

// PriceLevel is a single price key and the FIFO of live orders resting at it.
// Intra-level ordering is insertion order; it is never reordered. No empty
// level is ever left in a ladder — a level is pruned the instant its FIFO
// drains, so a price key's presence in the ladder always implies a non-empty
// queue.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

type ladder = btree.BTreeG[*PriceLevel]

// Book is the order book for a single symbol.
type Book struct {
	symbol string
	bids   *ladder // keyed descending: best bid (highest price) sorts first
	asks   *ladder // keyed ascending: best ask (lowest price) sorts first
}

// New creates an empty order book for symbol.
func New(symbol string) *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &Book{symbol: symbol, bids: bids, asks: asks}
}

// Symbol returns the symbol this book was created for.
func (b *Book) Symbol() string {
	return b.symbol
}

func (b *Book) ladderFor(side common.Side) *ladder {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// Add appends order to the FIFO tail of its price level, creating the level
// if this is the first order resting at that price. The caller is expected to
// hold order.Remaining() > 0; add never fails and never blocks.
func (b *Book) Add(order *common.Order) {
	l := b.ladderFor(order.Side)
	key := &PriceLevel{Price: order.Price}
	if level, ok := l.GetMut(key); ok {
		level.Orders = append(level.Orders, order)
		return
	}
	l.Set(&PriceLevel{Price: order.Price, Orders: []*common.Order{order}})
}

// Remove scans the indicated ladder for the first order with id, removes it,
// and prunes the price level if it drains to empty. It returns (nil, false)
// if no such order is resting.
func (b *Book) Remove(id uuid.UUID, side common.Side) (*common.Order, bool) {
	l := b.ladderFor(side)

	var found *common.Order
	var drained *PriceLevel
	l.Scan(func(level *PriceLevel) bool {
		for i, o := range level.Orders {
			if o.ID == id {
				found = o
				level.Orders = append(level.Orders[:i:i], level.Orders[i+1:]...)
				if len(level.Orders) == 0 {
					drained = level
				}
				return false
			}
		}
		return true
	})
	if drained != nil {
		l.Delete(drained)
	}
	return found, found != nil
}

// crosses reports whether a resting level at levelPrice is eligible to trade
// against an aggressor with the given side and limit price. Market orders
// cross every level on the opposite book.
func crosses(aggressorSide common.Side, aggressorType common.OrderType, limit, levelPrice decimal.Decimal) bool {
	if aggressorType == common.Market {
		return true
	}
	if aggressorSide == common.Buy {
		return levelPrice.LessThanOrEqual(limit)
	}
	return levelPrice.GreaterThanOrEqual(limit)
}

// Match drives incoming against the opposite ladder in price-time priority:
// best opposing price first, then FIFO order within a level. Each match emits
// a trade priced at the resting (passive) order's limit — price improvement
// always accrues to the aggressor, never the passive side. Match never fails;
// a zero-remaining incoming order short-circuits to (incoming, nil).
//
// Market orders sweep the opposite book until filled or the book is
// exhausted; any unfilled remainder on a Market order is left for the caller
// to cancel rather than rest (this core does not queue market orders).
func (b *Book) Match(incoming common.Order) (common.Order, []common.Trade) {
	if incoming.Remaining().LessThanOrEqual(decimal.Zero) {
		return incoming, nil
	}

	opp := b.ladderFor(incoming.Side.Opposite())
	var trades []common.Trade

	for incoming.Remaining().GreaterThan(decimal.Zero) {
		level, ok := opp.MinMut()
		if !ok {
			break
		}
		if !crosses(incoming.Side, incoming.Type, incoming.Price, level.Price) {
			break
		}

		for len(level.Orders) > 0 && incoming.Remaining().GreaterThan(decimal.Zero) {
			resting := level.Orders[0]
			qty := decimal.Min(incoming.Remaining(), resting.Remaining())

			buyID, sellID := incoming.ID, resting.ID
			if incoming.Side == common.Sell {
				buyID, sellID = resting.ID, incoming.ID
			}
			trades = append(trades, common.NewTrade(b.symbol, level.Price, qty, buyID, sellID))

			incoming.Filled = incoming.Filled.Add(qty)
			resting.Filled = resting.Filled.Add(qty)

			if resting.IsFullyFilled() {
				level.Orders = level.Orders[1:]
			}
		}

		if len(level.Orders) == 0 {
			opp.Delete(level)
		}
	}

	return incoming, trades
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	level, ok := b.bids.Min()
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// Spread returns BestAsk - BestBid. The second return is false unless both
// sides are populated.
func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return decimal.Zero, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

func levelQuantity(level *PriceLevel) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range level.Orders {
		sum = sum.Add(o.Remaining())
	}
	return sum
}

// Depth returns up to levels top-of-book price levels on side, in market
// convention order (bids descending, asks ascending), each carrying the
// price and the summed remaining quantity across that level's FIFO.
func (b *Book) Depth(side common.Side, levels int) []common.OrderBookLevel {
	if levels <= 0 {
		return nil
	}
	l := b.ladderFor(side)
	out := make([]common.OrderBookLevel, 0, levels)
	l.Scan(func(level *PriceLevel) bool {
		out = append(out, common.OrderBookLevel{Price: level.Price, Quantity: levelQuantity(level)})
		return len(out) < levels
	})
	return out
}

// Snapshot returns a read-only view of the book truncated to depth levels per
// side. A depth <= 0 uses DefaultSnapshotDepth. Two consecutive snapshots with
// no intervening mutation have equal Bids and Asks; Timestamp is taken afresh
// on each call.
func (b *Book) Snapshot(depth int) common.Snapshot {
	if depth <= 0 {
		depth = DefaultSnapshotDepth
	}
	return common.Snapshot{
		Symbol:    b.symbol,
		Bids:      b.Depth(common.Buy, depth),
		Asks:      b.Depth(common.Sell, depth),
		Timestamp: time.Now().UTC(),
	}
}
