package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/switchrelay/internal/condition"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// Subscription is one live consumer's handle.
type Subscription struct {
	id        uuid.UUID
	createdAt time.Time
	transport string
	remote    string
	filter    condition.Expr

	mailbox   chan event.ConsoleEvent
	done      chan struct{}
	closeOnce sync.Once
}

// SubscribeOption configures a Subscription before it is registered.
type SubscribeOption func(*Subscription)

// WithFilter only delivers events for which expr evaluates true.
func WithFilter(expr condition.Expr) SubscribeOption {
	return func(s *Subscription) { s.filter = expr }
}

// WithTransport records how the subscriber is connected ("sse", "ws", "poll") and from where.
func WithTransport(name, remote string) SubscribeOption {
	return func(s *Subscription) {
		s.transport = name
		s.remote = remote
	}
}

func newSubscription(size int) *Subscription {
	return &Subscription{
		id:        uuid.New(),
		createdAt: time.Now(),
		mailbox:   make(chan event.ConsoleEvent, size),
		done:      make(chan struct{}),
	}
}

func (s *Subscription) ID() uuid.UUID        { return s.id }
func (s *Subscription) Transport() string    { return s.transport }
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }

// Events yields delivered events in publish order. It is never closed;
// select on Done to learn about removal.
func (s *Subscription) Events() <-chan event.ConsoleEvent { return s.mailbox }

// Done is closed once the subscription has been removed from the registry.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) accepts(ev event.ConsoleEvent) bool {
	if s.filter == nil {
		return true
	}
	ok, err := condition.Match(s.filter, ev)
	if err != nil {
		slog.Debug("subscriber filter error", "subscriber", s.id, "err", err)
		return false
	}
	return ok
}

// deliver tries a non-blocking send first, then waits until deadline at most.
func (s *Subscription) deliver(ev event.ConsoleEvent, deadline time.Time) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.mailbox <- ev:
		return true
	default:
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case s.mailbox <- ev:
		return true
	case <-s.done:
		return false
	case <-t.C:
		return false
	}
}
