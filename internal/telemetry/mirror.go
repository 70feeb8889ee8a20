// Package telemetry mirrors account events onto Redis pub/sub so external
// dashboards can follow the core without attaching in-process consumers.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/Danijel-Enoch/OctoBot-Trading/internal/events"
)

// Mirror republishes in-process events to Redis. A nil client disables the
// mirror entirely; the core never depends on Redis being up.
type Mirror struct {
	client *redis.Client
	queue  chan mirrored
	cancel context.CancelFunc
}

type mirrored struct {
	channel string
	body    []byte
}

// wireFrame is the JSON shape published to Redis subscribers.
type wireFrame struct {
	Category string `json:"category"`
	Account  string `json:"account"`
	Sequence uint64 `json:"sequence"`
	Payload  any    `json:"payload"`
}

// NewMirror connects the mirror pump. Returns nil when client is nil.
func NewMirror(client *redis.Client) *Mirror {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		client: client,
		queue:  make(chan mirrored, 256),
		cancel: cancel,
	}
	go m.pump(ctx)
	return m
}

// Attach subscribes the mirror to every category channel of one account.
// Safe to call on a nil Mirror.
func (m *Mirror) Attach(registry *events.Registry, account string) {
	if m == nil {
		return
	}
	for _, cat := range []events.Category{
		events.CategoryOrders,
		events.CategoryTrades,
		events.CategoryBalance,
		events.CategoryPositions,
	} {
		ch := registry.Get(cat, account)
		ch.Subscribe(m.consume)
	}
}

// consume runs on the publisher's goroutine: serialize, hand off, never block.
func (m *Mirror) consume(ev events.Event) {
	body, err := json.Marshal(wireFrame{
		Category: string(ev.Category),
		Account:  ev.Account,
		Sequence: ev.Sequence,
		Payload:  ev.Payload,
	})
	if err != nil {
		log.Printf("telemetry: marshal %s event: %v", ev.Category, err)
		return
	}
	select {
	case m.queue <- mirrored{channel: redisChannel(ev.Account, ev.Category), body: body}:
	default:
		log.Printf("telemetry: queue full, dropping %s/%s event %d", ev.Account, ev.Category, ev.Sequence)
	}
}

func (m *Mirror) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			if err := m.client.Publish(ctx, ev.channel, ev.body).Err(); err != nil {
				log.Printf("telemetry: publish %s: %v", ev.channel, err)
			}
		}
	}
}

// Close stops the pump. Safe on nil.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.cancel()
}

func redisChannel(account string, category events.Category) string {
	return fmt.Sprintf("trading:%s:%s", account, category)
}
