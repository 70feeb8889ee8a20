package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestUpsertOrderInsertsAndUpdates(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	o := Order{
		CorrelationID: "corr-1",
		ExchangeID:    "ex-1",
		Account:       "acct",
		Symbol:        "BTC/USDT",
		Side:          "BUY",
		Type:          "LIMIT",
		Price:         100,
		Qty:           10,
		FilledQty:     2,
		Status:        "PARTIALLY_FILLED",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := d.UpsertOrder(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	o.FilledQty = 10
	o.Status = "FILLED"
	o.UpdatedAt = now.Add(time.Second)
	if err := d.UpsertOrder(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}

	orders, err := d.ListOrders(ctx, "acct", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d rows, want 1 (upsert duplicated)", len(orders))
	}
	if orders[0].Status != "FILLED" || orders[0].FilledQty != 10 {
		t.Errorf("row = %+v, want FILLED/10", orders[0])
	}
}

func TestListOrdersScopedToAccount(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, acct := range []string{"a", "a", "b"} {
		err := d.UpsertOrder(ctx, Order{
			CorrelationID: string(rune('x' + i)),
			Account:       acct,
			Symbol:        "BTC/USDT",
			Side:          "BUY",
			Type:          "LIMIT",
			Price:         100,
			Qty:           1,
			Status:        "CANCELED",
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	orders, err := d.ListOrders(ctx, "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Errorf("account a has %d rows, want 2", len(orders))
	}
}

func TestTrades(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	err := d.InsertTrade(ctx, Trade{
		CorrelationID: "corr-1",
		ExchangeID:    "ex-1",
		Account:       "acct",
		Symbol:        "BTC/USDT",
		Side:          "BUY",
		Price:         100,
		Qty:           2,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert trade: %v", err)
	}

	trades, err := d.ListTrades(ctx, "acct", 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Qty != 2 {
		t.Errorf("trades = %+v", trades)
	}
}

func TestInsertPortfolioSync(t *testing.T) {
	d := newTestDB(t)
	err := d.InsertPortfolioSync(context.Background(), PortfolioSync{
		Account:   "acct",
		Converged: false,
		Attempts:  3,
	})
	if err != nil {
		t.Fatalf("insert sync: %v", err)
	}
}
