// Package risk implements the pre-trade risk gate: a per-order size/position/
// daily-loss check, per-symbol position accounting, and an advisory circuit
// breaker.
//
// Grounded in other_examples' 0xtitan6-polymarket-mm/internal/risk/manager.go
// (the sync.RWMutex-guarded map-of-positions-plus-scalar shape, the
// Check-then-Apply split) and in original_source/src/risk/manager.rs, which
// pins down the exact position-update arithmetic (weighted-average cost basis
// on buys, realized PnL delta on sells, collapse-to-zero when a sell exhausts
// the position)
// that spec.md §4.3 specifies only in prose.
package risk

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
)

// Limits configures the gate. All fields are exact decimals; MaxLeverage is
// informational in this core (not enforced by Check).
type Limits struct {
	MaxOrderSize    decimal.Decimal
	MaxPositionSize decimal.Decimal
	MaxDailyLoss    decimal.Decimal // positive magnitude
	MaxLeverage     decimal.Decimal
}

// Position is the per-symbol accounting state. AveragePrice is undefined when
// Quantity is zero; by convention it is held at zero in that case.
type Position struct {
	Symbol       string
	Quantity     decimal.Decimal // signed type; ApplyTrade never leaves it negative (an over-sized sell collapses to zero)
	AveragePrice decimal.Decimal
	RealizedPnL  decimal.Decimal
}

// Rejection describes why Check refused an order.
type Rejection struct {
	Reason common.RejectReason
}

func (r Rejection) Error() string {
	return "order rejected: " + r.Reason.String()
}

// Gate is the risk gate. It guards a per-symbol position map and a single
// daily PnL scalar with a reader-writer lock: Check takes reader access,
// ApplyTrade takes writer access briefly.
type Gate struct {
	limits Limits

	mu        sync.RWMutex
	positions map[string]*Position
	dailyPnL  decimal.Decimal
}

// New creates a risk gate with the given limits.
func New(limits Limits) *Gate {
	return &Gate{
		limits:    limits,
		positions: make(map[string]*Position),
	}
}

// Check runs the pre-trade checks from spec.md §4.3 in order: order size,
// projected position size, then the standing daily-loss breach. It never
// mutates state.
func (g *Gate) Check(order common.Order) error {
	if order.Quantity.GreaterThan(g.limits.MaxOrderSize) {
		return Rejection{Reason: common.OrderSize}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	current := decimal.Zero
	if pos, ok := g.positions[order.Symbol]; ok {
		current = pos.Quantity
	}
	var projected decimal.Decimal
	if order.Side == common.Buy {
		projected = current.Add(order.Quantity).Abs()
	} else {
		projected = current.Sub(order.Quantity).Abs()
	}
	if projected.GreaterThan(g.limits.MaxPositionSize) {
		return Rejection{Reason: common.PositionSize}
	}

	if g.dailyPnL.LessThan(g.limits.MaxDailyLoss.Neg()) {
		return Rejection{Reason: common.DailyLoss}
	}
	return nil
}

// positionLocked returns the position for symbol, creating a zero position if
// none exists. Callers must hold g.mu for writing.
func (g *Gate) positionLocked(symbol string) *Position {
	pos, ok := g.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		g.positions[symbol] = pos
	}
	return pos
}

// ApplyTrade folds one side of an executed trade into the symbol's position
// using a side-perspective update: buys extend the position at a new
// weighted-average cost; sells realize PnL against the existing average
// before reducing (or closing) the position. The realized PnL delta, if any,
// is added to the daily aggregate.
func (g *Gate) ApplyTrade(symbol string, side common.Side, price, qty decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos := g.positionLocked(symbol)
	before := pos.RealizedPnL

	switch side {
	case common.Buy:
		totalCost := pos.AveragePrice.Mul(pos.Quantity).Add(price.Mul(qty))
		pos.Quantity = pos.Quantity.Add(qty)
		if pos.Quantity.GreaterThan(decimal.Zero) {
			pos.AveragePrice = totalCost.Div(pos.Quantity)
		}
	case common.Sell:
		if pos.Quantity.GreaterThan(decimal.Zero) {
			pos.RealizedPnL = pos.RealizedPnL.Add(price.Sub(pos.AveragePrice).Mul(qty))
		}
		pos.Quantity = pos.Quantity.Sub(qty)
		if pos.Quantity.LessThanOrEqual(decimal.Zero) {
			pos.Quantity = decimal.Zero
			pos.AveragePrice = decimal.Zero
		}
	}

	delta := pos.RealizedPnL.Sub(before)
	g.dailyPnL = g.dailyPnL.Add(delta)

	log.Debug().
		Str("symbol", symbol).
		Str("side", side.String()).
		Str("price", price.String()).
		Str("qty", qty.String()).
		Str("realizedPnLDelta", delta.String()).
		Str("dailyPnL", g.dailyPnL.String()).
		Msg("position updated")
}

// Position returns a copy of the current position for symbol (zero-valued if
// the symbol has never traded).
func (g *Gate) Position(symbol string) Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if pos, ok := g.positions[symbol]; ok {
		return *pos
	}
	return Position{Symbol: symbol}
}

// Positions returns a snapshot of every symbol's position.
func (g *Gate) Positions() []Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Position, 0, len(g.positions))
	for _, pos := range g.positions {
		out = append(out, *pos)
	}
	return out
}

// DailyPnL returns the current daily realized PnL aggregate.
func (g *Gate) DailyPnL() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dailyPnL
}

// ResetDailyPnL zeroes the daily aggregate at an explicit boundary (e.g. start
// of trading day). It does not touch per-symbol positions.
func (g *Gate) ResetDailyPnL() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = decimal.Zero
	log.Info().Msg("daily pnl reset")
}

// Exposure returns the sum of quantity*averagePrice across every symbol's
// position — the notional value currently committed.
func (g *Gate) Exposure() decimal.Decimal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range g.positions {
		total = total.Add(pos.Quantity.Mul(pos.AveragePrice))
	}
	return total
}

// CircuitBreaker reports whether the daily loss limit is currently breached.
// It is advisory: callers should stop submitting, but this core does not
// forcibly close positions.
func (g *Gate) CircuitBreaker() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dailyPnL.LessThan(g.limits.MaxDailyLoss.Neg())
}
