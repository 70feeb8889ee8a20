package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wireEvent is the JSON frame sent to websocket clients. The payload keeps
// its channel sequence number so clients can detect gaps and re-pull a full
// snapshot over REST.
type wireEvent struct {
	Category string `json:"category"`
	Account  string `json:"account"`
	Sequence uint64 `json:"sequence"`
	Payload  any    `json:"payload"`
}

// websocket streams an account's events to the client. Channel delivery must
// never block on a slow socket, so events are handed off through a buffered
// queue and dropped (with a gap visible in the sequence numbers) when the
// client cannot keep up.
func (s *Server) websocket(c *gin.Context) {
	account := c.Param("account")
	if _, ok := s.Managers[account]; !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_ACCOUNT",
			"error": "no such account",
		})
		return
	}
	categories := parseCategories(c.Query("categories"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	queue := make(chan wireEvent, 100)
	var subs []events.Subscription
	for _, cat := range categories {
		ch := s.Registry.Get(cat, account)
		subs = append(subs, ch.Subscribe(func(ev events.Event) {
			select {
			case queue <- wireEvent{
				Category: string(ev.Category),
				Account:  ev.Account,
				Sequence: ev.Sequence,
				Payload:  ev.Payload,
			}:
			default:
				log.Printf("ws(%s): slow client, dropping %s event %d", account, ev.Category, ev.Sequence)
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	// Reader goroutine only watches for the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-queue:
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}

func parseCategories(raw string) []events.Category {
	if raw == "" {
		return []events.Category{
			events.CategoryOrders,
			events.CategoryTrades,
			events.CategoryBalance,
			events.CategoryPositions,
		}
	}
	var out []events.Category
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, events.Category(part))
		}
	}
	return out
}
