package db

import (
	"context"
	"fmt"
)

// UpsertOrder stores or refreshes an archived order row.
func (d *Database) UpsertOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (correlation_id, exchange_id, account, symbol, side, type,
		                    price, qty, filled_qty, avg_price, status, group_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO UPDATE SET
			exchange_id = excluded.exchange_id,
			filled_qty = excluded.filled_qty,
			avg_price = excluded.avg_price,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, o.CorrelationID, o.ExchangeID, o.Account, o.Symbol, o.Side, o.Type,
		o.Price, o.Qty, o.FilledQty, o.AvgPrice, o.Status, o.GroupID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

// ListOrders returns archived orders for an account, newest first.
func (d *Database) ListOrders(ctx context.Context, account string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT correlation_id, COALESCE(exchange_id, ''), account, symbol, side, type,
		       price, qty, filled_qty, avg_price, status, COALESCE(group_id, ''), created_at, updated_at
		FROM orders
		WHERE account = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.CorrelationID, &o.ExchangeID, &o.Account, &o.Symbol, &o.Side, &o.Type,
			&o.Price, &o.Qty, &o.FilledQty, &o.AvgPrice, &o.Status, &o.GroupID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// InsertTrade stores one fill row.
func (d *Database) InsertTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (correlation_id, exchange_id, account, symbol, side, price, qty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.CorrelationID, t.ExchangeID, t.Account, t.Symbol, t.Side, t.Price, t.Qty, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// ListTrades returns archived fills for an account, newest first.
func (d *Database) ListTrades(ctx context.Context, account string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT correlation_id, COALESCE(exchange_id, ''), account, symbol, side, price, qty, created_at
		FROM trades
		WHERE account = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.CorrelationID, &t.ExchangeID, &t.Account, &t.Symbol, &t.Side, &t.Price, &t.Qty, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertPortfolioSync records one authoritative reconciliation outcome.
func (d *Database) InsertPortfolioSync(ctx context.Context, s PortfolioSync) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO portfolio_syncs (account, converged, attempts)
		VALUES (?, ?, ?)
	`, s.Account, s.Converged, s.Attempts)
	if err != nil {
		return fmt.Errorf("insert portfolio sync: %w", err)
	}
	return nil
}
