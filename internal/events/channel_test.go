package events

import (
	"sync"
	"testing"
)

func TestPublishOrderingAndSequence(t *testing.T) {
	ch := NewChannel(CategoryOrders, "acct")

	var got []int
	ch.Subscribe(func(ev Event) {
		got = append(got, ev.Payload.(int))
	})

	for i := 1; i <= 5; i++ {
		seq := ch.Publish(i)
		if seq != uint64(i) {
			t.Fatalf("publish %d: sequence = %d, want %d", i, seq, i)
		}
	}

	if len(got) != 5 {
		t.Fatalf("delivered %d events, want 5", len(got))
	}
	for i, v := range got {
		if v != i+1 {
			t.Errorf("event %d = %d, want %d", i, v, i+1)
		}
	}
	if ch.Sequence() != 5 {
		t.Errorf("Sequence() = %d, want 5", ch.Sequence())
	}
}

func TestSubscriptionOrderPreserved(t *testing.T) {
	ch := NewChannel(CategoryTrades, "acct")

	var order []string
	ch.Subscribe(func(Event) { order = append(order, "first") })
	ch.Subscribe(func(Event) { order = append(order, "second") })
	ch.Subscribe(func(Event) { order = append(order, "third") })

	ch.Publish("x")

	want := []string{"first", "second", "third"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("delivery order %v, want %v", order, want)
		}
	}
}

func TestPanickingConsumerIsIsolated(t *testing.T) {
	ch := NewChannel(CategoryOrders, "acct")

	var survivors int
	ch.Subscribe(func(Event) { survivors++ })
	ch.Subscribe(func(Event) { panic("boom") })
	ch.Subscribe(func(Event) { survivors++ })

	seq := ch.Publish("x")
	if seq != 1 {
		t.Errorf("sequence = %d, want 1 despite the panic", seq)
	}
	if survivors != 2 {
		t.Errorf("survivors = %d, want 2", survivors)
	}

	// The channel still works afterwards.
	ch.Publish("y")
	if survivors != 4 {
		t.Errorf("survivors after second publish = %d, want 4", survivors)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ch := NewChannel(CategoryBalance, "acct")

	var n int
	sub := ch.Subscribe(func(Event) { n++ })
	ch.Publish(1)
	sub.Unsubscribe()
	sub.Unsubscribe() // safe to repeat
	ch.Publish(2)

	if n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	ch := NewChannel(CategoryOrders, "acct")
	ch.Publish("early")

	var got []Event
	ch.Subscribe(func(ev Event) { got = append(got, ev) })
	ch.Publish("late")

	if len(got) != 1 {
		t.Fatalf("late subscriber saw %d events, want 1", len(got))
	}
	if got[0].Payload != "late" || got[0].Sequence != 2 {
		t.Errorf("got payload=%v seq=%d, want late/2", got[0].Payload, got[0].Sequence)
	}
}

func TestClosedChannelRejectsPublish(t *testing.T) {
	ch := NewChannel(CategoryOrders, "acct")
	var n int
	ch.Subscribe(func(Event) { n++ })

	ch.Close()
	if seq := ch.Publish("x"); seq != 0 {
		t.Errorf("publish after close returned %d, want 0", seq)
	}
	if n != 0 {
		t.Errorf("consumer ran %d times after close, want 0", n)
	}
	if sub := ch.Subscribe(func(Event) {}); sub.ch == nil {
		t.Error("subscribe after close should still return a handle")
	}
}

func TestConcurrentPublishersDeliverInSequenceOrder(t *testing.T) {
	ch := NewChannel(CategoryOrders, "acct")

	// Delivery runs on the publisher's goroutine; the channel must not let
	// one publisher overtake another between sequencing and delivery.
	var observed []uint64
	ch.Subscribe(func(ev Event) {
		observed = append(observed, ev.Sequence)
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ch.Publish(j)
			}
		}()
	}
	wg.Wait()

	if len(observed) != 16*200 {
		t.Fatalf("observed %d events, want %d", len(observed), 16*200)
	}
	for i := 1; i < len(observed); i++ {
		if observed[i] <= observed[i-1] {
			t.Fatalf("sequence inversion at position %d: %d after %d", i, observed[i], observed[i-1])
		}
	}
}

func TestConcurrentPublishersAssignUniqueSequences(t *testing.T) {
	ch := NewChannel(CategoryOrders, "acct")

	seen := make(map[uint64]bool)
	var mu sync.Mutex
	ch.Subscribe(func(ev Event) {
		mu.Lock()
		seen[ev.Sequence] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ch.Publish(j)
			}
		}()
	}
	wg.Wait()

	if len(seen) != 200 {
		t.Errorf("saw %d unique sequences, want 200", len(seen))
	}
	if ch.Sequence() != 200 {
		t.Errorf("final sequence = %d, want 200", ch.Sequence())
	}
}
