package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

var (
	ErrInvalidRequest  = errors.New("invalid order request")
	ErrNotFound        = errors.New("order not found")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrUnknownGroup    = errors.New("order group not found")
)

// CancelFunc is invoked for group siblings that must be cancelled. The
// callback runs inside the triggering ingestion step; implementations that
// talk to the venue must hand the network call to their own goroutine.
type CancelFunc func(o Order)

// Archiver persists terminal orders and fills for history beyond the
// in-memory retention window. A nil Archiver disables persistence.
type Archiver interface {
	ArchiveOrder(ctx context.Context, o Order) error
	ArchiveTrade(ctx context.Context, t Trade) error
}

// Manager is the single authoritative ingestion point for order updates of
// one account, whatever their source: local intent, REST polls or push-feed
// events. Every accepted transition publishes an immutable snapshot on the
// orders channel.
type Manager struct {
	account  string
	orders   *events.Channel
	trades   *events.Channel
	archiver Archiver
	onCancel CancelFunc
	onDrop   func(reason string)

	maxClosed int

	mu         sync.Mutex
	byCorr     map[string]*entry
	byExchange map[string]*entry
	groups     map[string]*Group
	closed     []Order
}

// entry wraps one order with its own critical section so that concurrent
// ingests for different orders do not serialize on each other.
type entry struct {
	mu sync.Mutex
	o  *Order
}

// Config wires a Manager.
type Config struct {
	Account   string
	Orders    *events.Channel
	Trades    *events.Channel
	Archiver  Archiver
	OnCancel  CancelFunc
	OnDrop    func(reason string) // observes dropped updates; may be nil
	MaxClosed int                 // retained terminal orders; older ones are evicted
}

// NewManager creates an empty orders manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxClosed <= 0 {
		cfg.MaxClosed = 500
	}
	return &Manager{
		account:    cfg.Account,
		orders:     cfg.Orders,
		trades:     cfg.Trades,
		archiver:   cfg.Archiver,
		onCancel:   cfg.OnCancel,
		onDrop:     cfg.OnDrop,
		maxClosed:  cfg.MaxClosed,
		byCorr:     make(map[string]*entry),
		byExchange: make(map[string]*entry),
		groups:     make(map[string]*Group),
	}
}

// SetCancelFunc wires the sibling-cancel callback after construction.
func (m *Manager) SetCancelFunc(fn CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCancel = fn
}

// Create allocates a correlation id and inserts the order in
// PENDING_CREATION. It returns immediately; exchange acknowledgment arrives
// later through Ingest or BindExchangeID.
func (m *Manager) Create(req Request) (Order, error) {
	if err := validate(req); err != nil {
		return Order{}, err
	}

	now := time.Now()
	o := &Order{
		CorrelationID: uuid.NewString(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Qty:           req.Qty,
		TimeInForce:   req.TimeInForce,
		Status:        StatusPendingCreation,
		ParentID:      req.ParentID,
		GroupID:       req.GroupID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	m.mu.Lock()
	if req.GroupID != "" {
		g, ok := m.groups[req.GroupID]
		if !ok {
			m.mu.Unlock()
			return Order{}, fmt.Errorf("%w: %s", ErrUnknownGroup, req.GroupID)
		}
		g.Members = append(g.Members, o.CorrelationID)
	}
	m.byCorr[o.CorrelationID] = &entry{o: o}
	m.mu.Unlock()

	snap := *o
	m.publish(snap)
	return snap, nil
}

func validate(req Request) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidRequest)
	}
	if req.Side != common.SideBuy && req.Side != common.SideSell {
		return fmt.Errorf("%w: bad side %q", ErrInvalidRequest, req.Side)
	}
	if req.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidRequest)
	}
	if req.Type != common.OrderTypeMarket && req.Price <= 0 {
		return fmt.Errorf("%w: price required for %s", ErrInvalidRequest, req.Type)
	}
	return nil
}

// BindExchangeID attaches the venue-assigned id to a locally created order
// after submission succeeds.
func (m *Manager) BindExchangeID(correlationID, exchangeID string) error {
	m.mu.Lock()
	e, ok := m.byCorr[correlationID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, correlationID)
	}
	m.byExchange[exchangeID] = e
	m.mu.Unlock()

	e.mu.Lock()
	if e.o.ExchangeID == "" {
		e.o.ExchangeID = exchangeID
	}
	e.mu.Unlock()
	return nil
}

// Ingest routes a raw update to the matching order's transition under that
// order's critical section. Updates for unknown but active orders are
// adopted; unattributable updates are logged and dropped.
func (m *Manager) Ingest(ctx context.Context, u common.OrderUpdate) {
	e := m.lookup(u)
	if e == nil {
		if u.Status.IsTerminal() || u.Status == common.StatusUnknown {
			log.Printf("orders(%s): dropping unattributable update exch_id=%q corr_id=%q status=%s",
				m.account, u.ExchangeOrderID, u.CorrelationID, u.Status)
			m.drop("unattributable")
			return
		}
		e = m.adopt(u)
		if e == nil {
			m.drop("anonymous")
			return
		}
	}

	// Snapshot and publish stay under the entry lock: a later update to the
	// same order cannot reach the channel before an earlier one. Channel
	// consumers never call back into this manager, so the lock is safe to
	// hold across delivery.
	e.mu.Lock()
	fillDelta, changed := e.o.applyUpdate(u)
	snap := *e.o
	var fill *Trade
	if changed {
		m.publish(snap)
		if fillDelta > 0 {
			t := newTrade(snap, fillDelta, u)
			if m.trades != nil {
				m.trades.Publish(t)
			}
			fill = &t
		}
	}
	e.mu.Unlock()

	if !changed {
		m.drop("stale_or_duplicate")
		return
	}

	if fill != nil && m.archiver != nil {
		if err := m.archiver.ArchiveTrade(ctx, *fill); err != nil {
			log.Printf("orders(%s): archive trade: %v", m.account, err)
		}
	}
	if snap.Status.IsTerminal() {
		m.retire(ctx, snap)
		m.evaluateGroup(snap)
	}
}

// lookup finds the entry by exchange id first, then by correlation id. An
// update matching a pending correlation id binds the exchange id instead of
// creating a duplicate order.
func (m *Manager) lookup(u common.OrderUpdate) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ExchangeOrderID != "" {
		if e, ok := m.byExchange[u.ExchangeOrderID]; ok {
			return e
		}
	}
	if u.CorrelationID != "" {
		if e, ok := m.byCorr[u.CorrelationID]; ok {
			if u.ExchangeOrderID != "" {
				m.byExchange[u.ExchangeOrderID] = e
			}
			return e
		}
	}
	return nil
}

// adopt creates an order for an active update the manager has never seen,
// covering orders placed outside this process.
func (m *Manager) adopt(u common.OrderUpdate) *entry {
	if u.ExchangeOrderID == "" {
		log.Printf("orders(%s): dropping anonymous update for %s", m.account, u.Symbol)
		return nil
	}

	now := time.Now()
	o := &Order{
		CorrelationID: uuid.NewString(),
		Symbol:        u.Symbol,
		Side:          u.Side,
		Type:          u.Type,
		Price:         u.Price,
		Qty:           u.Qty,
		Status:        StatusPendingCreation,
		CreatedAt:     now,
	}
	e := &entry{o: o}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byExchange[u.ExchangeOrderID]; ok {
		// Lost the race with a concurrent adopt.
		return existing
	}
	m.byCorr[o.CorrelationID] = e
	m.byExchange[u.ExchangeOrderID] = e
	log.Printf("orders(%s): adopted external order %s %s %s", m.account, u.ExchangeOrderID, u.Side, u.Symbol)
	return e
}

// Get returns a snapshot by exchange or correlation id. It never blocks on
// in-flight ingests for other orders.
func (m *Manager) Get(id string) (Order, bool) {
	m.mu.Lock()
	e, ok := m.byExchange[id]
	if !ok {
		e, ok = m.byCorr[id]
	}
	m.mu.Unlock()
	if !ok {
		return Order{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.o, true
}

// CancelRequest marks the intent to cancel. State only changes once the
// venue confirms through a later update.
func (m *Manager) CancelRequest(id string) (Order, error) {
	m.mu.Lock()
	e, ok := m.byExchange[id]
	if !ok {
		e, ok = m.byCorr[id]
	}
	m.mu.Unlock()
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.o.Status.IsTerminal() {
		return *e.o, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, e.o.Status)
	}
	e.o.CancelRequested = true
	return *e.o, nil
}

// ListOpen returns snapshots of all non-terminal orders.
func (m *Manager) ListOpen() []Order {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.byCorr))
	for _, e := range m.byCorr {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]Order, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.o.Status.IsTerminal() {
			out = append(out, *e.o)
		}
		e.mu.Unlock()
	}
	return out
}

// ListClosed returns the retained terminal orders, newest last.
func (m *Manager) ListClosed() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, len(m.closed))
	copy(out, m.closed)
	return out
}

func (m *Manager) drop(reason string) {
	if m.onDrop != nil {
		m.onDrop(reason)
	}
}

func (m *Manager) publish(snap Order) {
	if m.orders != nil {
		m.orders.Publish(snap)
	}
}

func newTrade(snap Order, delta float64, u common.OrderUpdate) Trade {
	price := u.Price
	if price == 0 {
		price = snap.AvgPrice
	}
	return Trade{
		CorrelationID: snap.CorrelationID,
		ExchangeID:    snap.ExchangeID,
		Symbol:        snap.Symbol,
		Side:          snap.Side,
		Qty:           delta,
		Price:         price,
		Time:          snap.UpdatedAt,
	}
}

// retire moves a terminal order into the bounded closed ring. The order
// stays readable through Get until evicted; persisted history outlives it.
func (m *Manager) retire(ctx context.Context, snap Order) {
	m.mu.Lock()
	m.closed = append(m.closed, snap)
	for len(m.closed) > m.maxClosed {
		evicted := m.closed[0]
		m.closed = m.closed[1:]
		delete(m.byCorr, evicted.CorrelationID)
		if evicted.ExchangeID != "" {
			delete(m.byExchange, evicted.ExchangeID)
		}
	}
	m.mu.Unlock()

	if m.archiver != nil {
		if err := m.archiver.ArchiveOrder(ctx, snap); err != nil {
			log.Printf("orders(%s): archive order: %v", m.account, err)
		}
	}
}
