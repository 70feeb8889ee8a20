package common

import (
	"testing"
	"time"
)

func TestBackoffDoublesUntilMax(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 5 * time.Second}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("after Reset, Next() = %v, want 1s", got)
	}
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	if got := b.Next(); got != time.Second {
		t.Errorf("zero-value Next() = %v, want 1s", got)
	}
}
