package order

import (
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// Status tracks the order lifecycle:
// PENDING_CREATION -> OPEN <-> PARTIALLY_FILLED -> FILLED | CANCELED | REJECTED | EXPIRED.
type Status string

const (
	StatusPendingCreation Status = "PENDING_CREATION"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// IsTerminal reports whether the status can never change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// fromReported maps an adapter-reported status into the lifecycle.
func fromReported(s common.OrderStatus) Status {
	switch s {
	case common.StatusNew:
		return StatusOpen
	case common.StatusPartial:
		return StatusPartiallyFilled
	case common.StatusFilled:
		return StatusFilled
	case common.StatusCanceled:
		return StatusCanceled
	case common.StatusRejected:
		return StatusRejected
	case common.StatusExpired:
		return StatusExpired
	default:
		return StatusOpen
	}
}

// Request captures a local order intent before it gets a correlation id.
type Request struct {
	Symbol      string
	Side        common.Side
	Type        common.OrderType
	Qty         float64
	Price       float64
	StopPrice   float64
	TimeInForce common.TimeInForce
	ParentID    string // optional chained-order parent (correlation id)
	GroupID     string // optional group membership
}

// Trade is the fill delta published on the trades channel.
type Trade struct {
	CorrelationID string
	ExchangeID    string
	Symbol        string
	Side          common.Side
	Qty           float64
	Price         float64
	Time          time.Time
}
