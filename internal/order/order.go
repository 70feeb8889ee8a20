package order

import (
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// Order is one order's state. The manager owns every Order exclusively;
// consumers only ever see value copies published on the orders channel.
type Order struct {
	CorrelationID   string // locally generated, always present
	ExchangeID      string // empty until the venue acknowledges
	Symbol          string
	Side            common.Side
	Type            common.OrderType
	Price           float64
	StopPrice       float64
	Qty             float64
	FilledQty       float64
	AvgPrice        float64
	TimeInForce     common.TimeInForce
	Status          Status
	ParentID        string
	GroupID         string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// lastReportAt orders exchange reports among themselves; local creation
	// time is deliberately not used, the venue clock may lag ours.
	lastReportAt time.Time
}

// IsFullyFilled reports whether the requested quantity is completely filled.
func (o *Order) IsFullyFilled() bool {
	return o.FilledQty >= o.Qty
}

// RemainingQty returns the unfilled quantity.
func (o *Order) RemainingQty() float64 {
	return o.Qty - o.FilledQty
}

// LockedAmount returns the amount this order reserves while open: quote
// notional for buys, base quantity for sells. Terminal orders reserve nothing.
func (o *Order) LockedAmount() float64 {
	if o.Status.IsTerminal() {
		return 0
	}
	remaining := o.RemainingQty()
	if remaining <= 0 {
		return 0
	}
	if o.Side == common.SideBuy {
		return remaining * o.Price
	}
	return remaining
}

// applyUpdate merges a raw update into the order under the reconciliation
// rules: stale timestamps are dropped, fills never decrease, terminal states
// never re-open. It returns the fill delta and whether anything changed; an
// exact duplicate of an already-applied update changes nothing.
func (o *Order) applyUpdate(u common.OrderUpdate) (fillDelta float64, changed bool) {
	if o.Status.IsTerminal() {
		return 0, false
	}
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if ts.Before(o.lastReportAt) {
		return 0, false
	}

	prev := *o

	if u.ExchangeOrderID != "" && o.ExchangeID == "" {
		o.ExchangeID = u.ExchangeOrderID
	}

	// Fills are monotonic: take the larger of current and reported, capped
	// at the requested quantity.
	filled := o.FilledQty
	if u.FilledQty > filled {
		filled = u.FilledQty
	}
	if filled > o.Qty {
		filled = o.Qty
	}
	fillDelta = filled - o.FilledQty
	o.FilledQty = filled

	if u.AvgPrice > 0 {
		o.AvgPrice = u.AvgPrice
	} else if fillDelta > 0 && u.Price > 0 && o.AvgPrice == 0 {
		o.AvgPrice = u.Price
	}

	reported := fromReported(u.Status)
	switch {
	case reported.IsTerminal():
		o.Status = reported
		if reported == StatusFilled {
			fillDelta += o.Qty - o.FilledQty
			o.FilledQty = o.Qty
		}
	case o.IsFullyFilled():
		o.Status = StatusFilled
	case o.FilledQty > 0:
		o.Status = StatusPartiallyFilled
	default:
		o.Status = StatusOpen
	}

	changed = o.Status != prev.Status ||
		o.FilledQty != prev.FilledQty ||
		o.AvgPrice != prev.AvgPrice ||
		o.ExchangeID != prev.ExchangeID
	if changed {
		o.UpdatedAt = ts
		o.lastReportAt = ts
	}
	return fillDelta, changed
}
