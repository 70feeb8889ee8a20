package events

import (
	"log"
	"sync"
	"time"
)

// Consumer handles one delivered event. It runs on the publisher's goroutine
// and must not block; blocking work belongs on the consumer's own goroutine.
type Consumer func(Event)

// Channel is an ordered in-process delivery path for one (category, account)
// pair. Publishing is synchronous: every consumer subscribed at publish time
// sees the event, in subscription order, tagged with an increasing sequence
// number. Concurrent publishers serialize on the channel, so a consumer
// observes sequence numbers in strictly increasing order. There is no replay;
// late subscribers miss earlier events.
type Channel struct {
	category Category
	account  string

	// pubMu is held across sequence assignment AND delivery so that no
	// publisher can overtake another between the two. Consumers must not
	// block and must not publish back into the same channel.
	pubMu sync.Mutex

	mu     sync.Mutex
	seq    uint64
	nextID int
	subs   []subscriber
	closed bool
}

type subscriber struct {
	id int
	fn Consumer
}

// Subscription identifies one registered consumer.
type Subscription struct {
	ch *Channel
	id int
}

// NewChannel creates an empty channel for the given category and account.
func NewChannel(category Category, account string) *Channel {
	return &Channel{category: category, account: account}
}

// Category returns the channel's data category.
func (c *Channel) Category() Category { return c.category }

// Account returns the account scope of the channel.
func (c *Channel) Account() string { return c.account }

// Subscribe registers a consumer and returns a handle for unsubscribing.
func (c *Channel) Subscribe(fn Consumer) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if !c.closed {
		c.subs = append(c.subs, subscriber{id: id, fn: fn})
	}
	return Subscription{ch: c, id: id}
}

// Unsubscribe removes the consumer. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.ch == nil {
		return
	}
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	for i, sub := range s.ch.subs {
		if sub.id == s.id {
			s.ch.subs = append(s.ch.subs[:i], s.ch.subs[i+1:]...)
			break
		}
	}
}

// Publish delivers payload to every current subscriber in subscription order.
// A panicking consumer is logged and skipped; it cannot block or fail
// delivery to the rest, and the assigned sequence number stands.
func (c *Channel) Publish(payload any) uint64 {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.seq++
	ev := Event{
		Category: c.category,
		Account:  c.account,
		Sequence: c.seq,
		Time:     time.Now(),
		Payload:  payload,
	}
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		c.deliver(sub, ev)
	}
	return ev.Sequence
}

func (c *Channel) deliver(sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: consumer %d on %s/%s panicked: %v", sub.id, c.account, c.category, r)
		}
	}()
	sub.fn(ev)
}

// Sequence returns the sequence number of the last published event.
func (c *Channel) Sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Close drops all subscribers and rejects further publishes.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = nil
}
