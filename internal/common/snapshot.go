package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderBookLevel is a single top-of-book price level: a price and the summed
// remaining quantity of every order resting at that price.
type OrderBookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Snapshot is a read-only, point-in-time view of a single symbol's book,
// truncated to the requested depth on each side. Bids are in descending price
// order, asks in ascending price order (market convention).
type Snapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}
