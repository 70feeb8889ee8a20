package events

import "time"

// Category enumerates the data categories distributed inside the core. Each
// (category, account) pair gets its own channel.
type Category string

const (
	CategoryOrders    Category = "orders"
	CategoryBalance   Category = "balance"
	CategoryPositions Category = "positions"
	CategoryTrades    Category = "trades"
	CategoryTicker    Category = "ticker"
	CategoryOrderBook Category = "order_book"
)

// Event is what consumers receive. Sequence increases by one per publish on
// a channel, letting consumers detect gaps; Payload is an immutable snapshot.
type Event struct {
	Category Category
	Account  string
	Sequence uint64
	Time     time.Time
	Payload  any
}
