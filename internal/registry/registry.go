/*
Package registry tracks live subscribers (dashboards, stream clients) and fans
console events out to them.

Every subscriber owns one buffered mailbox. Publish calls are serialized, so a
subscriber always observes events in publish order. Delivery to one subscriber
is bounded by the registry's delivery timeout: a subscriber that is closed, or
whose mailbox stays full for that long, is dropped from the registry and never
retried.
*/
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
	"github.com/gyaneshwarpardhi/switchrelay/internal/metrics"
)

// ErrTooManySubscribers is returned by Subscribe when the configured cap is reached.
var ErrTooManySubscribers = errors.New("registry: too many subscribers")

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("registry: closed")

const (
	DefaultMailboxSize     = 64
	DefaultDeliveryTimeout = 250 * time.Millisecond
)

// Registry is the set of currently connected subscribers.
type Registry struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	closed bool

	// pubMu serializes Publish so per-subscriber order matches call order.
	// It is never held together with mu during I/O.
	pubMu sync.Mutex

	mailboxSize     int
	deliveryTimeout time.Duration
	maxSubscribers  int
}

// Option configures a Registry.
type Option func(*Registry)

// WithMailboxSize sets the per-subscriber buffer length.
func WithMailboxSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.mailboxSize = n
		}
	}
}

// WithDeliveryTimeout bounds how long Publish waits on a single full mailbox.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.deliveryTimeout = d
		}
	}
}

// WithMaxSubscribers caps membership. Zero means unlimited.
func WithMaxSubscribers(n int) Option {
	return func(r *Registry) {
		if n >= 0 {
			r.maxSubscribers = n
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		subs:            make(map[uuid.UUID]*Subscription),
		mailboxSize:     DefaultMailboxSize,
		deliveryTimeout: DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a new subscriber. The caller must Unsubscribe when its
// connection ends.
func (r *Registry) Subscribe(opts ...SubscribeOption) (*Subscription, error) {
	s := newSubscription(r.mailboxSize)
	for _, opt := range opts {
		opt(s)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.maxSubscribers > 0 && len(r.subs) >= r.maxSubscribers {
		return nil, ErrTooManySubscribers
	}
	r.subs[s.id] = s
	metrics.Subscribers.Set(float64(len(r.subs)))
	return s, nil
}

// Unsubscribe removes id and closes its Done channel. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id uuid.UUID) {
	r.mu.Lock()
	s, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
		metrics.Subscribers.Set(float64(len(r.subs)))
	}
	r.mu.Unlock()

	if ok {
		s.close()
	}
}

// Publish delivers ev to every subscriber whose filter accepts it and returns
// how many accepted it. Unreachable subscribers are removed. All stalled
// subscribers share one delivery timeout, so a publish never takes much
// longer than that however many of them there are.
func (r *Registry) Publish(ev event.ConsoleEvent) int {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	deadline := time.Now().Add(r.deliveryTimeout)
	delivered := 0
	for _, s := range r.snapshot() {
		if !s.accepts(ev) {
			continue
		}
		if s.deliver(ev, deadline) {
			delivered++
			metrics.Deliveries.WithLabelValues("ok").Inc()
			continue
		}
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		r.Unsubscribe(s.id)
	}
	return delivered
}

func (r *Registry) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close unsubscribes everyone and rejects further subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[uuid.UUID]*Subscription)
	metrics.Subscribers.Set(0)
	r.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
