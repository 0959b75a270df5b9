package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade records a single matching event between two orders. Invariant: the two
// referenced orders have opposite sides and the same symbol; Price equals the
// resting (passive) order's limit price at the moment of match; Quantity is the
// min of the two orders' remaining quantity at that moment.
type Trade struct {
	ID          uuid.UUID
	Symbol      string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	Timestamp   time.Time
}

// NewTrade stamps a trade with a fresh id and the current time.
func NewTrade(symbol string, price, quantity decimal.Decimal, buyOrderID, sellOrderID uuid.UUID) Trade {
	return Trade{
		ID:          uuid.New(),
		Symbol:      symbol,
		Price:       price,
		Quantity:    quantity,
		BuyOrderID:  buyOrderID,
		SellOrderID: sellOrderID,
		Timestamp:   time.Now().UTC(),
	}
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:          %s
Symbol:      %s
Price:       %s
Quantity:    %s
BuyOrderID:  %s
SellOrderID: %s
Timestamp:   %s`,
		t.ID, t.Symbol, t.Price.String(), t.Quantity.String(),
		t.BuyOrderID, t.SellOrderID,
		t.Timestamp.Format(time.RFC3339Nano),
	)
}
