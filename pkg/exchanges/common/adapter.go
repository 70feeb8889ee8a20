package common

import (
	"context"
	"errors"
)

var (
	// ErrRejectedByExchange means the venue refused a well-formed request.
	ErrRejectedByExchange = errors.New("rejected by exchange")
	// ErrNotFound means the venue does not know the referenced order.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyTerminal means the order can no longer be acted on.
	ErrAlreadyTerminal = errors.New("order already terminal")
	// ErrUnreachable means a connectivity failure; callers retry with backoff.
	ErrUnreachable = errors.New("adapter unreachable")
)

// FeedHandler receives push-feed events from an adapter. Implementations must
// be safe for concurrent use; adapters may deliver from multiple readers.
type FeedHandler interface {
	OnOrderUpdate(u OrderUpdate)
	OnBalanceSnapshot(s BalanceSnapshot)
}

// Adapter abstracts one venue's wire protocol. The core depends only on this
// interface; each venue implements it under pkg/exchanges/<venue>.
type Adapter interface {
	// PollOrders returns the venue's current view of the account's orders.
	PollOrders(ctx context.Context) ([]OrderUpdate, error)
	// PollBalances returns the authoritative balance snapshot.
	PollBalances(ctx context.Context) (BalanceSnapshot, error)
	// SubmitOrder sends a new order and returns the venue ack.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// CancelOrder requests cancellation of an order by exchange id.
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	// Stream blocks delivering push-feed events to h until ctx is cancelled
	// or the connection fails.
	Stream(ctx context.Context, h FeedHandler) error
}
