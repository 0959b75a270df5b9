package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a single order as tracked by the matching core. Price and Quantity
// are immutable after creation; only Filled and Status mutate as the order is
// matched, partially filled, filled, or cancelled.
type Order struct {
	ID            uuid.UUID       // Globally unique order id
	Symbol        string          // Opaque trading symbol key
	Side          Side            // Buy or Sell
	Type          OrderType       // Limit, Market, ...
	Price         decimal.Decimal // Limit price; ignored for Market orders
	Quantity      decimal.Decimal // Total quantity requested
	Filled        decimal.Decimal // Quantity executed so far
	Status        OrderStatus     // Current lifecycle state
	Timestamp     time.Time       // Submission timestamp
	ExchTimestamp time.Time       // Time the order entered the book/match pipeline
	ClientTag     *string         // Optional caller-supplied tag, not interpreted by the core
}

// NewOrder builds an order in Pending status, ready for risk check and submission.
func NewOrder(symbol string, side Side, orderType OrderType, price, quantity decimal.Decimal) Order {
	return Order{
		ID:        uuid.New(),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Price:     price,
		Quantity:  quantity,
		Filled:    decimal.Zero,
		Status:    Pending,
		Timestamp: time.Now().UTC(),
	}
}

// Remaining returns the unfilled quantity. Invariant: Remaining >= 0.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// IsFullyFilled reports whether the order has no remaining quantity.
func (o Order) IsFullyFilled() bool {
	return o.Filled.GreaterThanOrEqual(o.Quantity)
}

func (o Order) String() string {
	tag := ""
	if o.ClientTag != nil {
		tag = *o.ClientTag
	}
	return fmt.Sprintf(
		`ID:            %s
Symbol:        %s
Side:          %s
Type:          %s
Price:         %s
Quantity:      %s (Filled: %s)
Status:        %s
Timestamp:     %s
ExchTimestamp: %s
ClientTag:     %s`,
		o.ID,
		o.Symbol,
		o.Side,
		o.Type,
		o.Price.String(),
		o.Quantity.String(), o.Filled.String(),
		o.Status,
		o.Timestamp.Format(time.RFC3339Nano),
		o.ExchTimestamp.Format(time.RFC3339Nano),
		tag,
	)
}
