package weex

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Danijel-Enoch/OctoBot-Trading/pkg/exchanges/common"
)

// Private feed channels pushed by the venue.
const (
	channelAccount = "account"
	channelOrders  = "orders"
	channelFill    = "fill"
)

type wsMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Time    string          `json:"time,omitempty"`
	Code    string          `json:"code,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type wsLogin struct {
	Event      string `json:"event"`
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// Stream connects to the private websocket, authenticates, subscribes to the
// account, orders and fill channels, and delivers translated events to h. It
// blocks until ctx is cancelled or the connection drops; the caller owns
// reconnection.
func (c *Client) Stream(ctx context.Context, h common.FeedHandler) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSBase, nil)
	if err != nil {
		return fmt.Errorf("%w: dial ws: %v", common.ErrUnreachable, err)
	}
	defer conn.Close()

	// Close the socket when ctx ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := c.login(conn); err != nil {
		return err
	}
	for _, ch := range []string{channelAccount, channelOrders, channelFill} {
		if err := conn.WriteJSON(wsMessage{Event: "subscribe", Channel: ch}); err != nil {
			return fmt.Errorf("%w: subscribe %s: %v", common.ErrUnreachable, ch, err)
		}
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: read ws: %v", common.ErrUnreachable, err)
		}

		switch msg.Event {
		case "ping":
			// The server expects its own time echoed back.
			if err := conn.WriteJSON(wsMessage{Event: "pong", Time: msg.Time}); err != nil {
				return fmt.Errorf("%w: pong: %v", common.ErrUnreachable, err)
			}
		case "login", "subscribe":
			if msg.Code != "" && msg.Code != "0" && msg.Code != "00000" {
				return fmt.Errorf("%w: %s failed: %s %s", common.ErrRejectedByExchange, msg.Event, msg.Code, msg.Msg)
			}
		case "error":
			return fmt.Errorf("%w: ws error: %s %s", common.ErrRejectedByExchange, msg.Code, msg.Msg)
		case "payload":
			c.dispatch(msg, h)
		}
	}
}

func (c *Client) login(conn *websocket.Conn) error {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	login := wsLogin{
		Event:      "login",
		APIKey:     c.cfg.APIKey,
		Passphrase: c.cfg.Passphrase,
		Timestamp:  timestamp,
		Sign:       c.sign(timestamp, "GET", "/user/verify", ""),
	}
	if err := conn.WriteJSON(login); err != nil {
		return fmt.Errorf("%w: ws login: %v", common.ErrUnreachable, err)
	}
	return nil
}

func (c *Client) dispatch(msg wsMessage, h common.FeedHandler) {
	switch msg.Channel {
	case channelOrders, channelFill:
		var rows []orderRow
		if err := json.Unmarshal(msg.Data, &rows); err != nil {
			log.Printf("[WEEX] drop malformed %s payload: %v", msg.Channel, err)
			return
		}
		for _, r := range rows {
			h.OnOrderUpdate(r.toUpdate())
		}
	case channelAccount:
		var rows []assetRow
		if err := json.Unmarshal(msg.Data, &rows); err != nil {
			log.Printf("[WEEX] drop malformed account payload: %v", err)
			return
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
		h.OnBalanceSnapshot(snap)
	}
}
