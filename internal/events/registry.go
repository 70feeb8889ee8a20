package events

import "sync"

// Registry is the process-wide table of channels keyed by (category, account).
// Channels are created on first access and torn down when the owning account
// shuts down. Channels are never shared across accounts.
type Registry struct {
	mu       sync.RWMutex
	channels map[registryKey]*Channel
}

type registryKey struct {
	category Category
	account  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[registryKey]*Channel)}
}

// Get returns the channel for (category, account), creating it lazily.
func (r *Registry) Get(category Category, account string) *Channel {
	key := registryKey{category: category, account: account}

	r.mu.RLock()
	ch, ok := r.channels[key]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[key]; ok {
		return ch
	}
	ch = NewChannel(category, account)
	r.channels[key] = ch
	return ch
}

// Teardown closes and removes every channel belonging to account.
func (r *Registry) Teardown(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, ch := range r.channels {
		if key.account == account {
			ch.Close()
			delete(r.channels, key)
		}
	}
}

// Accounts returns the distinct accounts that currently own channels.
func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for key := range r.channels {
		if _, ok := seen[key.account]; !ok {
			seen[key.account] = struct{}{}
			out = append(out, key.account)
		}
	}
	return out
}
