package common

import "time"

// Backoff computes bounded exponential retry delays.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

// Next returns the delay before the next retry, doubling until Max.
func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = time.Minute
	}
	d := base << b.attempt
	if d >= max || d <= 0 {
		return max
	}
	b.attempt++
	return d
}

// Reset restarts the sequence after a successful call.
func (b *Backoff) Reset() {
	b.attempt = 0
}
