package weex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

const (
	defaultRESTBase = "https://api-spot.weex.com"
	defaultWSBase   = "wss://ws-spot.weex.com/v2/ws/private"
)

// Config carries the credentials and endpoints for one WEEX spot account.
type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	RESTBase   string // defaults to the production spot REST host
	WSBase     string // defaults to the production private WS host
}

// Client implements common.Adapter against the WEEX spot API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a WEEX spot adapter. Private endpoints are limited to
// 10 requests per second per the venue's published limits.
func NewClient(cfg Config) *Client {
	if cfg.RESTBase == "" {
		cfg.RESTBase = defaultRESTBase
	}
	if cfg.WSBase == "" {
		cfg.WSBase = defaultWSBase
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// sign produces the ACCESS-SIGN header value: base64(HMAC-SHA256(secret,
// timestamp + method + path + body)).
func (c *Client) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) doSigned(ctx context.Context, method, path string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RESTBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("ACCESS-SIGN", c.sign(timestamp, method, path, string(body)))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", c.cfg.Passphrase)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", common.ErrUnreachable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: http %d", common.ErrUnreachable, resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != "" && envelope.Code != "00000" {
		return classifyAPIError(envelope.Code, envelope.Msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// classifyAPIError maps venue error messages onto the shared sentinels so the
// core can react uniformly across adapters.
func classifyAPIError(code, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "FAILED_ORDER_NOT_FOUND"),
		strings.Contains(lower, "order does not exist"),
		strings.Contains(lower, "order not found"):
		return fmt.Errorf("%w: %s %s", common.ErrNotFound, code, msg)
	case strings.Contains(lower, "already filled"),
		strings.Contains(lower, "already cancelled"),
		strings.Contains(lower, "already canceled"),
		strings.Contains(lower, "cannot be cancelled"):
		return fmt.Errorf("%w: %s %s", common.ErrAlreadyTerminal, code, msg)
	default:
		return fmt.Errorf("%w: %s %s", common.ErrRejectedByExchange, code, msg)
	}
}

// PollOrders fetches the account's open orders.
func (c *Client) PollOrders(ctx context.Context) ([]common.OrderUpdate, error) {
	var rows []orderRow
	if err := c.doSigned(ctx, http.MethodPost, "/api/spot/v1/trade/open-orders", map[string]string{}, &rows); err != nil {
		return nil, err
	}
	updates := make([]common.OrderUpdate, 0, len(rows))
	for _, r := range rows {
		updates = append(updates, r.toUpdate())
	}
	return updates, nil
}

// PollBalances fetches the authoritative asset snapshot.
func (c *Client) PollBalances(ctx context.Context) (common.BalanceSnapshot, error) {
	var rows []assetRow
	if err := c.doSigned(ctx, http.MethodGet, "/api/spot/v1/account/assets", nil, &rows); err != nil {
		return common.BalanceSnapshot{}, err
	}
	snap := common.BalanceSnapshot{Timestamp: time.Now()}
	for _, r := range rows {
		available := toFloat(r.Available)
		snap.Balances = append(snap.Balances, common.AssetBalance{
			Asset:     strings.ToUpper(r.Coin),
			Available: available,
			Total:     available + toFloat(r.Frozen),
		})
	}
	return snap, nil
}

// SubmitOrder places a new spot order, passing the client order id through so
// the ack and the push feed can be correlated.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	body := map[string]string{
		"symbol":        toWeexSymbol(req.Symbol),
		"side":          strings.ToLower(string(req.Side)),
		"orderType":     strings.ToLower(string(req.Type)),
		"quantity":      formatFloat(req.Qty),
		"clientOrderId": req.ClientID,
	}
	if req.Type != common.OrderTypeMarket {
		body["price"] = formatFloat(req.Price)
	}
	if req.TimeInForce != "" {
		body["force"] = strings.ToLower(string(req.TimeInForce))
	}

	var ack struct {
		OrderID       string `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
	}
	if err := c.doSigned(ctx, http.MethodPost, "/api/spot/v1/trade/orders", body, &ack); err != nil {
		return common.OrderResult{}, err
	}
	return common.OrderResult{
		ExchangeOrderID: ack.OrderID,
		Status:          common.StatusNew,
		ClientID:        ack.ClientOrderID,
	}, nil
}

// CancelOrder requests cancellation of an order by exchange id.
func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	body := map[string]string{
		"symbol":  toWeexSymbol(symbol),
		"orderId": exchangeOrderID,
	}
	return c.doSigned(ctx, http.MethodPost, "/api/spot/v1/trade/cancel-order", body, nil)
}
