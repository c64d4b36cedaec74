// Package feed carries "this owner's ledger changed" notifications from the
// write path to every live subscription of that owner.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	applog "expensetracker/internal/log"
)

// ErrClosed is returned by a Hub that has been shut down.
var ErrClosed = errors.New("feed closed")

// Publisher announces that an owner's ledger changed.
type Publisher interface {
	Publish(ctx context.Context, ownerID string) error
}

// Subscriber hands out notification channels. Notifications coalesce: a
// channel holds at most one pending signal and a reader that wakes up late
// sees one signal however many changes happened meanwhile. The channel is
// closed when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, func(), error)
}

// Broker is both ends of the feed.
type Broker interface {
	Publisher
	Subscriber
}

type subscription struct {
	ch   chan struct{}
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is the in-process Broker.
type Hub struct {
	mu     sync.Mutex
	owners map[string]map[*subscription]struct{}
	closed bool
}

var _ Broker = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{owners: make(map[string]map[*subscription]struct{})}
}

// Subscribe registers a listener for ownerID. The returned func ends the
// subscription; so does cancelling ctx.
func (h *Hub) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, func(), error) {
	sub := &subscription{ch: make(chan struct{}, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrClosed
	}
	set, ok := h.owners[ownerID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.owners[ownerID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { h.remove(ownerID, sub) })
	cancel := func() {
		stop()
		h.remove(ownerID, sub)
	}

	slog.DebugContext(ctx, "Feed subscription opened",
		applog.FieldComponent, applog.ComponentFeed,
		applog.FieldOwnerID, ownerID)

	return sub.ch, cancel, nil
}

func (h *Hub) remove(ownerID string, sub *subscription) {
	h.mu.Lock()
	if set, ok := h.owners[ownerID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.owners, ownerID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish signals every subscriber of ownerID without blocking.
func (h *Hub) Publish(_ context.Context, ownerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for sub := range h.owners[ownerID] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Disconnect ends every subscription of ownerID and reports how many there were.
func (h *Hub) Disconnect(ownerID string) int {
	h.mu.Lock()
	set := h.owners[ownerID]
	delete(h.owners, ownerID)
	h.mu.Unlock()

	for sub := range set {
		sub.close()
	}
	return len(set)
}

// Subscribers reports the number of live subscriptions for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.owners[ownerID])
}

// Close ends all subscriptions. Later calls to Publish and Subscribe fail.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	owners := h.owners
	h.owners = make(map[string]map[*subscription]struct{})
	h.mu.Unlock()

	for _, set := range owners {
		for sub := range set {
			sub.close()
		}
	}
}

// Disconnector is implemented by brokers that can drop every subscription
// of one owner.
type Disconnector interface {
	Disconnect(ownerID string) int
}

var _ Disconnector = (*Hub)(nil)
