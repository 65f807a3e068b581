package session

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"memberdir/internal/middleware"
)

// EventKind names a session transition.
type EventKind string

const (
	SignedIn       EventKind = "signed_in"
	SignedOut      EventKind = "signed_out"
	TokenRefreshed EventKind = "token_refreshed"
)

// Event is delivered to every subscriber when a session changes.
type Event struct {
	Kind    EventKind `json:"kind"`
	Session *Session  `json:"session"`
}

// Broker is the single subscription point for session changes.
type Broker struct {
	mu   sync.RWMutex
	subs map[uint64]func(Event)
	next uint64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]func(Event))}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is safe to call more than once.
func (b *Broker) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber on the caller's goroutine, in
// subscription order. A panicking subscriber is logged and skipped.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	ids := slices.Sorted(maps.Keys(b.subs))
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = b.subs[id]
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn, e)
	}
}

// Len returns the number of subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("session subscriber panicked",
				slog.String("kind", string(e.Kind)),
				slog.Any("panic", r))
		}
	}()
	fn(e)
}
