package weex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:     "key",
		APISecret:  "secret",
		Passphrase: "phrase",
		RESTBase:   srv.URL,
	})
}

func TestDoSignedSetsAuthHeaders(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"ACCESS-KEY", "ACCESS-SIGN", "ACCESS-TIMESTAMP", "ACCESS-PASSPHRASE"} {
			if r.Header.Get(h) == "" {
				t.Errorf("missing header %s", h)
			}
		}
		if r.Header.Get("ACCESS-KEY") != "key" {
			t.Errorf("ACCESS-KEY = %q", r.Header.Get("ACCESS-KEY"))
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":[]}`))
	})

	if _, err := c.PollBalances(context.Background()); err != nil {
		t.Fatalf("PollBalances: %v", err)
	}
}

func TestSubmitOrderSendsClientOrderID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"orderId":"42","clientOrderId":"corr-1"}}`))
	})

	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTC/USDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Qty:      1,
		Price:    100,
		ClientID: "corr-1",
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if res.ExchangeOrderID != "42" || res.ClientID != "corr-1" {
		t.Errorf("result = %+v", res)
	}
	if res.Status != common.StatusNew {
		t.Errorf("status = %s, want NEW", res.Status)
	}
}

func TestVenueErrorsMapToSentinels(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"40768","msg":"Order does not exist"}`))
	})

	err := c.CancelOrder(context.Background(), "BTC/USDT", "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestServerErrorsAreUnreachable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.PollOrders(context.Background())
	if !errors.Is(err, common.ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestPollBalancesDerivesTotals(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[{"coin":"usdt","available":"70","frozen":"30"}]}`))
	})

	snap, err := c.PollBalances(context.Background())
	if err != nil {
		t.Fatalf("PollBalances: %v", err)
	}
	if len(snap.Balances) != 1 {
		t.Fatalf("got %d balances, want 1", len(snap.Balances))
	}
	b := snap.Balances[0]
	if b.Asset != "USDT" || b.Available != 70 || b.Total != 100 {
		t.Errorf("balance = %+v, want USDT available=70 total=100", b)
	}
}
