// Package exchange hosts the per-account composition root: it wires one
// venue adapter to the account's orders manager, portfolio manager and
// channel set, and drives the polling and push-feed loops.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/monitor"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/order"
	"github.com/Danijel-Enoch/OctoBot-Trading/internal/portfolio"
	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

var (
	// ErrInitialization means the initial reconciliation pull failed after
	// the bounded attempts. Fatal for this account only.
	ErrInitialization = errors.New("exchange manager initialization failed")
	// ErrShutdownTimeout means in-flight work did not drain before the
	// shutdown deadline and teardown was forced.
	ErrShutdownTimeout = errors.New("shutdown timed out, teardown forced")
)

// Config carries the per-account knobs.
type Config struct {
	Account         string
	PollInterval    time.Duration // REST reconciliation cadence
	RequestTimeout  time.Duration // per adapter call
	InitAttempts    int           // bounded attempts for the initial pull
	ShutdownTimeout time.Duration // wait for in-flight ingests on shutdown
	MaxClosed       int           // retained terminal orders
	SyncTolerance   float64
	MaxSyncRetries  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(account string) Config {
	return Config{
		Account:         account,
		PollInterval:    5 * time.Second,
		RequestTimeout:  10 * time.Second,
		InitAttempts:    3,
		ShutdownTimeout: 5 * time.Second,
		MaxClosed:       500,
		SyncTolerance:   1e-8,
		MaxSyncRetries:  3,
	}
}

// Manager owns everything one account needs: the adapter connection, the
// orders and portfolio managers, and the account's channels in the registry.
// Accounts never share state; operations on one account never block another.
type Manager struct {
	cfg      Config
	adapter  common.Adapter
	registry *events.Registry
	metrics  *monitor.Metrics

	Orders    *order.Manager
	Portfolio *portfolio.Manager

	mu          sync.Mutex
	degraded    bool
	initialized bool
	stopCancel  context.CancelFunc

	wg sync.WaitGroup
}

// NewManager wires the account's managers and channels. Initialize must be
// called before the manager is ready to serve.
func NewManager(cfg Config, adapter common.Adapter, registry *events.Registry, archiver order.Archiver, auditor portfolio.Auditor, metrics *monitor.Metrics) *Manager {
	m := &Manager{
		cfg:      cfg,
		adapter:  adapter,
		registry: registry,
		metrics:  metrics,
	}

	ordersCh := registry.Get(events.CategoryOrders, cfg.Account)
	tradesCh := registry.Get(events.CategoryTrades, cfg.Account)
	balanceCh := registry.Get(events.CategoryBalance, cfg.Account)
	positionsCh := registry.Get(events.CategoryPositions, cfg.Account)

	m.Orders = order.NewManager(order.Config{
		Account:   cfg.Account,
		Orders:    ordersCh,
		Trades:    tradesCh,
		Archiver:  archiver,
		MaxClosed: cfg.MaxClosed,
		OnCancel:  m.cancelSibling,
		OnDrop:    m.countDrop,
	})
	m.Portfolio = portfolio.NewManager(portfolio.Config{
		Account:    cfg.Account,
		Balance:    balanceCh,
		Positions:  positionsCh,
		OpenOrders: m.Orders.ListOpen,
		Auditor:    auditor,
		Tolerance:  cfg.SyncTolerance,
		MaxRetries: cfg.MaxSyncRetries,
	})
	m.Portfolio.Attach(ordersCh, tradesCh)

	if metrics != nil {
		for _, ch := range []*events.Channel{ordersCh, tradesCh, balanceCh, positionsCh} {
			category := string(ch.Category())
			ch.Subscribe(func(events.Event) {
				metrics.EventsPublished.WithLabelValues(cfg.Account, category).Inc()
			})
		}
	}
	return m
}

func (m *Manager) countDrop(reason string) {
	if m.metrics != nil {
		m.metrics.UpdatesDropped.WithLabelValues(m.cfg.Account, reason).Inc()
	}
}

// Account returns the account this manager serves.
func (m *Manager) Account() string { return m.cfg.Account }

// Initialize performs the initial full reconciliation pull (orders then
// balances) before declaring readiness, then starts the polling and
// push-feed loops. A pull that cannot complete within the bounded attempts
// fails the account with ErrInitialization; other accounts are unaffected.
func (m *Manager) Initialize(ctx context.Context) error {
	attempts := m.cfg.InitAttempts
	if attempts <= 0 {
		attempts = 3
	}

	backoff := common.Backoff{Base: time.Second, Max: 10 * time.Second}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = m.pullOnce(ctx); lastErr == nil {
			break
		}
		log.Printf("exchange(%s): initial pull attempt %d/%d failed: %v", m.cfg.Account, i+1, attempts, lastErr)
		select {
		case <-time.After(backoff.Next()):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrInitialization, ctx.Err())
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrInitialization, attempts, lastErr)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.stopCancel = cancel
	m.initialized = true
	m.mu.Unlock()

	m.wg.Add(2)
	go m.pollLoop(loopCtx)
	go m.feedLoop(loopCtx)
	log.Printf("exchange(%s): initialized", m.cfg.Account)
	return nil
}

// pullOnce reconciles orders and balances from REST in one pass.
func (m *Manager) pullOnce(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	updates, err := m.adapter.PollOrders(callCtx)
	if err != nil {
		m.countAdapterError("poll_orders")
		return err
	}
	for _, u := range updates {
		m.ingest(ctx, u)
	}

	snap, err := m.adapter.PollBalances(callCtx)
	if err != nil {
		m.countAdapterError("poll_balances")
		return err
	}
	m.applyBalances(ctx, snap)
	return nil
}

func (m *Manager) ingest(ctx context.Context, u common.OrderUpdate) {
	start := time.Now()
	m.Orders.Ingest(ctx, u)
	if m.metrics != nil {
		m.metrics.UpdatesIngested.WithLabelValues(m.cfg.Account).Inc()
		m.metrics.IngestDuration.Observe(time.Since(start).Seconds())
		m.metrics.OrdersOpen.WithLabelValues(m.cfg.Account).Set(float64(len(m.Orders.ListOpen())))
	}
}

func (m *Manager) applyBalances(ctx context.Context, snap common.BalanceSnapshot) {
	err := m.Portfolio.ApplyAuthoritative(ctx, snap)
	if m.metrics != nil {
		v := 0.0
		if errors.Is(err, portfolio.ErrOutOfSync) {
			v = 1
		}
		m.metrics.OutOfSync.WithLabelValues(m.cfg.Account).Set(v)
	}
}

// pollLoop drives periodic REST reconciliation, backing off while the
// adapter is unreachable.
func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	backoff := common.Backoff{Base: m.cfg.PollInterval, Max: time.Minute}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.pullOnce(ctx); err != nil {
				m.setDegraded(true)
				delay := backoff.Next()
				log.Printf("exchange(%s): poll failed, next attempt in %s: %v", m.cfg.Account, delay, err)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
				continue
			}
			backoff.Reset()
			m.setDegraded(false)
		}
	}
}

// feedLoop keeps the push feed connected, reconnecting with bounded backoff.
func (m *Manager) feedLoop(ctx context.Context) {
	defer m.wg.Done()

	backoff := common.Backoff{Base: time.Second, Max: 30 * time.Second}
	for {
		err := m.adapter.Stream(ctx, feedHandler{m: m})
		if ctx.Err() != nil {
			return
		}
		m.setDegraded(true)
		m.countAdapterError("stream")
		delay := backoff.Next()
		log.Printf("exchange(%s): push feed dropped, reconnecting in %s: %v", m.cfg.Account, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// feedHandler adapts push-feed callbacks onto the managers. Deliveries run
// on the feed reader's goroutine; ingestion is the same critical section the
// poll path uses, so both sources serialize per order.
type feedHandler struct{ m *Manager }

func (h feedHandler) OnOrderUpdate(u common.OrderUpdate) {
	h.m.setDegraded(false)
	h.m.ingest(context.Background(), u)
}

func (h feedHandler) OnBalanceSnapshot(s common.BalanceSnapshot) {
	h.m.setDegraded(false)
	h.m.applyBalances(context.Background(), s)
}

// SubmitOrder validates and registers the intent locally, then submits it to
// the venue. Venue rejection surfaces to the caller and drives the local
// order to REJECTED.
func (m *Manager) SubmitOrder(ctx context.Context, req order.Request) (order.Order, error) {
	o, err := m.Orders.Create(req)
	if err != nil {
		return order.Order{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	res, err := m.adapter.SubmitOrder(callCtx, common.OrderRequest{
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Qty:         req.Qty,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		TimeInForce: req.TimeInForce,
		ClientID:    o.CorrelationID,
	})
	if err != nil {
		m.countAdapterError("submit_order")
		m.ingest(ctx, common.OrderUpdate{
			CorrelationID: o.CorrelationID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Status:        common.StatusRejected,
			Timestamp:     time.Now(),
		})
		return order.Order{}, fmt.Errorf("submit %s: %w", req.Symbol, err)
	}

	if err := m.Orders.BindExchangeID(o.CorrelationID, res.ExchangeOrderID); err != nil {
		log.Printf("exchange(%s): bind %s -> %s: %v", m.cfg.Account, o.CorrelationID, res.ExchangeOrderID, err)
	}
	m.ingest(ctx, common.OrderUpdate{
		ExchangeOrderID: res.ExchangeOrderID,
		CorrelationID:   o.CorrelationID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Status:          res.Status,
		Price:           req.Price,
		Qty:             req.Qty,
		Timestamp:       time.Now(),
	})

	out, _ := m.Orders.Get(o.CorrelationID)
	return out, nil
}

// CancelOrder records the cancel intent and forwards it to the venue. Local
// state only changes once the venue confirms through an update.
func (m *Manager) CancelOrder(ctx context.Context, id string) error {
	snap, err := m.Orders.CancelRequest(id)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()
	if err := m.adapter.CancelOrder(callCtx, snap.Symbol, snap.ExchangeID); err != nil {
		m.countAdapterError("cancel_order")
		return fmt.Errorf("cancel %s: %w", id, err)
	}
	return nil
}

// cancelSibling runs inside the group evaluation of a triggering ingest; the
// venue call moves to its own goroutine so ingestion never blocks on I/O.
func (m *Manager) cancelSibling(o order.Order) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		defer cancel()
		if err := m.adapter.CancelOrder(ctx, o.Symbol, o.ExchangeID); err != nil {
			m.countAdapterError("cancel_order")
			log.Printf("exchange(%s): group cancel %s: %v", m.cfg.Account, o.CorrelationID, err)
		}
	}()
}

// Degraded reports whether the adapter is currently unreachable.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

func (m *Manager) setDegraded(v bool) {
	m.mu.Lock()
	changed := m.degraded != v
	m.degraded = v
	m.mu.Unlock()

	if changed && m.metrics != nil {
		g := 0.0
		if v {
			g = 1
		}
		m.metrics.Degraded.WithLabelValues(m.cfg.Account).Set(g)
	}
	if changed && v {
		log.Printf("exchange(%s): connectivity degraded", m.cfg.Account)
	}
}

// Shutdown cancels the loops, waits (bounded) for in-flight work, then tears
// down the account's channels. Teardown happens on every exit path; a drain
// timeout is reported, not swallowed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.stopCancel
	m.stopCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	defer m.registry.Teardown(m.cfg.Account)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timeout := m.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
		log.Printf("exchange(%s): shut down", m.cfg.Account)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: %s", ErrShutdownTimeout, m.cfg.Account)
	case <-ctx.Done():
		// The caller gave up before the drain deadline; not a drain timeout.
		return fmt.Errorf("shutdown of %s interrupted: %w", m.cfg.Account, ctx.Err())
	}
}

func (m *Manager) countAdapterError(op string) {
	if m.metrics != nil {
		m.metrics.AdapterErrors.WithLabelValues(m.cfg.Account, op).Inc()
	}
}
