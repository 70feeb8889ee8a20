package portfolio

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/order"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// ErrOutOfSync means the derived and authoritative balances still diverge
// after the bounded reconciliation attempts. The account keeps running with
// the flag raised until a later authoritative push converges.
var ErrOutOfSync = errors.New("portfolio out of sync")

// Asset is one asset's balance split. Total == Available + Locked always.
type Asset struct {
	Asset     string
	Available float64
	Locked    float64
	Total     float64
}

// Position is the net exposure on one symbol, derived from fills.
type Position struct {
	Symbol   string
	Qty      float64
	AvgPrice float64
}

// Snapshot is the immutable portfolio view published on the balance channel.
type Snapshot struct {
	Account   string
	Assets    map[string]Asset
	OutOfSync bool
	SyncedAt  time.Time
}

// Auditor records authoritative sync outcomes for later inspection. A nil
// Auditor disables the audit trail.
type Auditor interface {
	RecordSync(ctx context.Context, account string, converged bool, attempts int) error
}

// Manager owns the balances and positions of one account. Order transitions
// adjust the locked/available split optimistically; authoritative exchange
// pushes overwrite totals and trigger a recompute of locked from open orders.
type Manager struct {
	account    string
	balanceCh  *events.Channel
	positionCh *events.Channel
	openOrders func() []order.Order
	auditor    Auditor
	tolerance  float64
	maxRetries int

	mu        sync.Mutex
	assets    map[string]Asset
	reserved  map[string]reservation // correlation id -> optimistic reservation
	positions map[string]Position
	outOfSync bool
	syncedAt  time.Time
}

type reservation struct {
	asset  string
	amount float64
}

// Config wires a Manager.
type Config struct {
	Account    string
	Balance    *events.Channel
	Positions  *events.Channel
	OpenOrders func() []order.Order
	Auditor    Auditor
	Tolerance  float64 // divergence tolerance; default 1e-8
	MaxRetries int     // reconciliation attempts per sync cycle; default 3
}

// NewManager creates an empty portfolio manager.
func NewManager(cfg Config) *Manager {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Manager{
		account:    cfg.Account,
		balanceCh:  cfg.Balance,
		positionCh: cfg.Positions,
		openOrders: cfg.OpenOrders,
		auditor:    cfg.Auditor,
		tolerance:  cfg.Tolerance,
		maxRetries: cfg.MaxRetries,
		assets:     make(map[string]Asset),
		reserved:   make(map[string]reservation),
		positions:  make(map[string]Position),
	}
}

// Attach subscribes the manager to the account's orders and trades channels.
func (m *Manager) Attach(orders, trades *events.Channel) {
	orders.Subscribe(func(ev events.Event) {
		if o, ok := ev.Payload.(order.Order); ok {
			m.onOrder(o)
		}
	})
	trades.Subscribe(func(ev events.Event) {
		if t, ok := ev.Payload.(order.Trade); ok {
			m.onTrade(t)
		}
	})
}

// onOrder keeps the optimistic reservation for the order in step with its
// remaining open quantity. Only the available/locked split moves here;
// totals move on fills (onTrade) or authoritative pushes.
func (m *Manager) onOrder(o order.Order) {
	base, quote := splitSymbol(o.Symbol)
	asset := quote
	if o.Side == common.SideSell {
		asset = base
	}

	m.mu.Lock()
	prev := m.reserved[o.CorrelationID]
	want := o.LockedAmount()
	if want == 0 {
		delete(m.reserved, o.CorrelationID)
	} else {
		m.reserved[o.CorrelationID] = reservation{asset: asset, amount: want}
	}
	delta := want - prev.amount
	if delta != 0 {
		m.adjustLockLocked(asset, delta)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if delta != 0 {
		m.publishBalance(snap)
	}
}

// adjustLockLocked moves amount between available and locked of one asset.
// Optimistic moves may briefly want more than is available; they are clamped
// and corrected by the next authoritative push.
func (m *Manager) adjustLockLocked(asset string, amount float64) {
	a := m.assets[asset]
	a.Asset = asset
	a.Locked += amount
	a.Available -= amount
	if a.Locked < 0 {
		a.Locked = 0
	}
	if a.Available < 0 {
		log.Printf("portfolio(%s): optimistic lock drove %s available below zero, clamping", m.account, asset)
		a.Available = 0
	}
	a.Total = a.Available + a.Locked
	m.assets[asset] = a
}

// onTrade settles a fill: the spent asset leaves the account, the bought
// asset arrives, and the position for the symbol is updated.
func (m *Manager) onTrade(t order.Trade) {
	base, quote := splitSymbol(t.Symbol)
	notional := t.Qty * t.Price

	m.mu.Lock()
	if t.Side == common.SideBuy {
		m.creditLocked(base, t.Qty)
		m.debitLocked(quote, notional)
	} else {
		m.creditLocked(quote, notional)
		m.debitLocked(base, t.Qty)
	}
	pos := m.applyFillLocked(t)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.publishBalance(snap)
	if m.positionCh != nil {
		m.positionCh.Publish(pos)
	}
}

func (m *Manager) creditLocked(asset string, amount float64) {
	a := m.assets[asset]
	a.Asset = asset
	a.Available += amount
	a.Total = a.Available + a.Locked
	m.assets[asset] = a
}

func (m *Manager) debitLocked(asset string, amount float64) {
	a := m.assets[asset]
	a.Asset = asset
	a.Available -= amount
	if a.Available < 0 {
		a.Available = 0
	}
	a.Total = a.Available + a.Locked
	m.assets[asset] = a
}

// applyFillLocked nets the fill into the symbol position, averaging price on
// the accumulating side.
func (m *Manager) applyFillLocked(t order.Trade) Position {
	p := m.positions[t.Symbol]
	p.Symbol = t.Symbol
	switch t.Side {
	case common.SideBuy:
		newQty := p.Qty + t.Qty
		if newQty != 0 {
			p.AvgPrice = (p.AvgPrice*p.Qty + t.Price*t.Qty) / newQty
		} else {
			p.AvgPrice = 0
		}
		p.Qty = newQty
	case common.SideSell:
		p.Qty -= t.Qty
		if p.Qty == 0 {
			p.AvgPrice = 0
		}
	}
	m.positions[t.Symbol] = p
	return p
}

// syncRetryDelay gives in-flight order transitions time to land before the
// open-order set is re-read for the next reconciliation attempt.
const syncRetryDelay = 50 * time.Millisecond

// ApplyAuthoritative merges an exchange balance push. The push overwrites
// totals; locked is recomputed from currently-open orders, discarding the
// optimistic adjustments. Divergence is retried a bounded number of times
// (orders may transition mid-sync) before the account is flagged OUT_OF_SYNC.
func (m *Manager) ApplyAuthoritative(ctx context.Context, snap common.BalanceSnapshot) error {
	var (
		assets    map[string]Asset
		converged bool
		attempts  int
	)
	for attempts = 1; attempts <= m.maxRetries; attempts++ {
		assets, converged = reconcile(snap, m.deriveLocked(), m.tolerance)
		if converged || attempts == m.maxRetries {
			break
		}
		select {
		case <-time.After(syncRetryDelay):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	m.mu.Lock()
	m.assets = assets
	m.rebuildReservationsLocked()
	m.outOfSync = !converged
	m.syncedAt = snap.Timestamp
	if m.syncedAt.IsZero() {
		m.syncedAt = time.Now()
	}
	out := m.snapshotLocked()
	m.mu.Unlock()

	if m.auditor != nil {
		if err := m.auditor.RecordSync(ctx, m.account, converged, attempts); err != nil {
			log.Printf("portfolio(%s): record sync: %v", m.account, err)
		}
	}
	m.publishBalance(out)

	if !converged {
		log.Printf("portfolio(%s): authoritative sync diverged after %d attempts", m.account, attempts)
		return ErrOutOfSync
	}
	return nil
}

// deriveLocked sums the reserved amounts of currently-open orders per asset.
func (m *Manager) deriveLocked() map[string]float64 {
	locked := make(map[string]float64)
	if m.openOrders == nil {
		return locked
	}
	for _, o := range m.openOrders() {
		amount := o.LockedAmount()
		if amount <= 0 {
			continue
		}
		base, quote := splitSymbol(o.Symbol)
		if o.Side == common.SideSell {
			locked[base] += amount
		} else {
			locked[quote] += amount
		}
	}
	return locked
}

// rebuildReservationsLocked re-seeds per-order reservations from open orders
// so later optimistic deltas start from the authoritative baseline.
func (m *Manager) rebuildReservationsLocked() {
	m.reserved = make(map[string]reservation)
	if m.openOrders == nil {
		return
	}
	for _, o := range m.openOrders() {
		amount := o.LockedAmount()
		if amount <= 0 {
			continue
		}
		base, quote := splitSymbol(o.Symbol)
		asset := quote
		if o.Side == common.SideSell {
			asset = base
		}
		m.reserved[o.CorrelationID] = reservation{asset: asset, amount: amount}
	}
}

// OutOfSync reports whether the last authoritative sync diverged.
func (m *Manager) OutOfSync() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outOfSync
}

// Portfolio returns the current full snapshot, usable by consumers to
// recover from a missed sequence gap.
func (m *Manager) Portfolio() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Asset returns one asset's balance split.
func (m *Manager) Asset(asset string) Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assets[asset]
}

// Positions returns all current positions.
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

func (m *Manager) snapshotLocked() Snapshot {
	assets := make(map[string]Asset, len(m.assets))
	for k, v := range m.assets {
		assets[k] = v
	}
	return Snapshot{
		Account:   m.account,
		Assets:    assets,
		OutOfSync: m.outOfSync,
		SyncedAt:  m.syncedAt,
	}
}

func (m *Manager) publishBalance(snap Snapshot) {
	if m.balanceCh != nil {
		m.balanceCh.Publish(snap)
	}
}
