package db

import "time"

// Order is one archived order row.
type Order struct {
	CorrelationID string
	ExchangeID    string
	Account       string
	Symbol        string
	Side          string
	Type          string
	Price         float64
	Qty           float64
	FilledQty     float64
	AvgPrice      float64
	Status        string
	GroupID       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Trade is one archived fill row.
type Trade struct {
	CorrelationID string
	ExchangeID    string
	Account       string
	Symbol        string
	Side          string
	Price         float64
	Qty           float64
	CreatedAt     time.Time
}

// PortfolioSync is one audit row of an authoritative balance reconciliation.
type PortfolioSync struct {
	Account   string
	Converged bool
	Attempts  int
	CreatedAt time.Time
}
