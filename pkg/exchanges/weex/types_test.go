package weex

import (
	"errors"
	"testing"
	"time"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want common.OrderStatus
	}{
		{"init", common.StatusNew},
		{"new", common.StatusNew},
		{"partial_fill", common.StatusPartial},
		{"partially_filled", common.StatusPartial},
		{"full_fill", common.StatusFilled},
		{"filled", common.StatusFilled},
		{"cancelled", common.StatusCanceled},
		{"canceled", common.StatusCanceled},
		{"rejected", common.StatusRejected},
		{"expired", common.StatusExpired},
		{"???", common.StatusUnknown},
	}
	for _, tt := range tests {
		if got := mapStatus(tt.raw); got != tt.want {
			t.Errorf("mapStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestSymbolConversion(t *testing.T) {
	if got := toWeexSymbol("BTC/USDT"); got != "BTCUSDT_SPBL" {
		t.Errorf("toWeexSymbol = %q, want BTCUSDT_SPBL", got)
	}
	if got := toWeexSymbol("BTCUSDT_SPBL"); got != "BTCUSDT_SPBL" {
		t.Errorf("toWeexSymbol double-suffixed: %q", got)
	}
	if got := fromWeexSymbol("BTCUSDT_SPBL"); got != "BTCUSDT" {
		t.Errorf("fromWeexSymbol = %q, want BTCUSDT", got)
	}
}

func TestOrderRowTranslation(t *testing.T) {
	row := orderRow{
		OrderID:       "123",
		ClientOrderID: "corr-1",
		Symbol:        "BTCUSDT_SPBL",
		Side:          "buy",
		OrderType:     "limit",
		Price:         "50000.5",
		Quantity:      "2",
		FillQuantity:  "0.5",
		AvgPrice:      "50001",
		Status:        "partial_fill",
		CTime:         "1767366000000",
		UTime:         "1767366060000",
	}
	u := row.toUpdate()

	if u.ExchangeOrderID != "123" || u.CorrelationID != "corr-1" {
		t.Errorf("ids = %q/%q", u.ExchangeOrderID, u.CorrelationID)
	}
	if u.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", u.Symbol)
	}
	if u.Side != common.SideBuy || u.Type != common.OrderTypeLimit {
		t.Errorf("side/type = %s/%s", u.Side, u.Type)
	}
	if u.Status != common.StatusPartial {
		t.Errorf("status = %s, want PARTIALLY_FILLED", u.Status)
	}
	if u.Price != 50000.5 || u.Qty != 2 || u.FilledQty != 0.5 || u.AvgPrice != 50001 {
		t.Errorf("numbers: price=%v qty=%v filled=%v avg=%v", u.Price, u.Qty, u.FilledQty, u.AvgPrice)
	}
	if want := time.UnixMilli(1767366060000); !u.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", u.Timestamp, want)
	}

	// Without an update time the creation time stands in.
	row.UTime = ""
	if want := time.UnixMilli(1767366000000); !row.toUpdate().Timestamp.Equal(want) {
		t.Error("missing uTime did not fall back to cTime")
	}
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"FAILED_ORDER_NOT_FOUND", common.ErrNotFound},
		{"Order does not exist", common.ErrNotFound},
		{"Order is already filled", common.ErrAlreadyTerminal},
		{"Order is already cancelled", common.ErrAlreadyTerminal},
		{"Insufficient balance", common.ErrRejectedByExchange},
		{"some new failure", common.ErrRejectedByExchange},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if err := classifyAPIError("40001", tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("classifyAPIError(%q) = %v, want %v", tt.msg, err, tt.want)
			}
		})
	}
}
