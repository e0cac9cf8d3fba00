// Package relay owns the event history and the live subscriber registry and
// is the single entry point the HTTP layer uses to ingest, query, and clear
// console events.
package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/switchrelay/internal/catalog"
	"github.com/gyaneshwarpardhi/switchrelay/internal/engine"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
	"github.com/gyaneshwarpardhi/switchrelay/internal/metrics"
	"github.com/gyaneshwarpardhi/switchrelay/internal/registry"
	"github.com/gyaneshwarpardhi/switchrelay/internal/store"
)

// Result describes an accepted event.
type Result struct {
	Event           event.ConsoleEvent
	ClientsNotified int
	Clients         int
	Evicted         bool
}

type Service struct {
	store    *store.Store
	registry *registry.Registry
	engine   *engine.Engine

	catalog     atomic.Pointer[catalog.Catalog]
	maskSerials atomic.Bool

	// ingestMu makes append+publish one step, so history order equals delivery order.
	ingestMu sync.Mutex

	now     func() time.Time
	started time.Time
}

type Option func(*Service)

// WithEngine runs outbound hooks for every accepted event.
func WithEngine(e *engine.Engine) Option {
	return func(s *Service) { s.engine = e }
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) { s.catalog.Store(c) }
}

func WithSerialMasking(on bool) Option {
	return func(s *Service) { s.maskSerials.Store(on) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New wires a service around st and reg. Serial masking is on by default.
func New(st *store.Store, reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		store:    st,
		registry: reg,
		now:      time.Now,
	}
	s.maskSerials.Store(true)
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	return s
}

// Ingest validates p, records it, and publishes it to live subscribers.
// Invalid payloads return *event.ValidationError and change nothing.
func (s *Service) Ingest(p event.Payload) (Result, error) {
	ev, err := p.Validate()
	if err != nil {
		metrics.EventsRejected.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	ev.ID = uuid.NewString()
	ev.ReceivedAt = s.now().UTC()

	s.ingestMu.Lock()
	evicted := s.store.Append(ev)
	notified := s.registry.Publish(ev)
	s.ingestMu.Unlock()

	metrics.EventsReceived.WithLabelValues(string(ev.Action)).Inc()
	if evicted {
		metrics.EventsEvicted.Inc()
	}
	if s.engine != nil {
		s.engine.Submit(ev)
	}

	return Result{
		Event:           ev,
		ClientsNotified: notified,
		Clients:         s.registry.Count(),
		Evicted:         evicted,
	}, nil
}

// History returns up to limit stored events, newest first, in their outbound form.
// limit <= 0 returns everything retained.
func (s *Service) History(limit int) []event.ConsoleEvent {
	evs := s.store.Recent(limit)
	for i := range evs {
		evs[i] = s.View(evs[i])
	}
	return evs
}

// Clear empties the history. Subscribers are untouched.
func (s *Service) Clear() {
	s.store.Clear()
	metrics.HistoryCleared.Inc()
}

func (s *Service) Subscribe(opts ...registry.SubscribeOption) (*registry.Subscription, error) {
	return s.registry.Subscribe(opts...)
}

func (s *Service) Unsubscribe(sub *registry.Subscription) {
	s.registry.Unsubscribe(sub.ID())
}

func (s *Service) Clients() int  { return s.registry.Count() }
func (s *Service) Capacity() int { return s.store.Cap() }

// View applies outbound redaction to ev.
func (s *Service) View(ev event.ConsoleEvent) event.ConsoleEvent {
	if s.maskSerials.Load() {
		return ev.Masked()
	}
	return ev
}

// Notification builds the push projection for ev, including box art when known.
func (s *Service) Notification(ev event.ConsoleEvent) event.Notification {
	return event.NewNotification(ev, s.Image(ev.TitleID, ev.TitleName), s.maskSerials.Load())
}

// Image looks a title up in the current catalog.
func (s *Service) Image(titleID, titleName string) string {
	return s.catalog.Load().Image(titleID, titleName)
}

// SetCatalog swaps the title catalog (used on reload).
func (s *Service) SetCatalog(c *catalog.Catalog) { s.catalog.Store(c) }

func (s *Service) Catalog() *catalog.Catalog { return s.catalog.Load() }

func (s *Service) SetSerialMasking(on bool) { s.maskSerials.Store(on) }

func (s *Service) Engine() *engine.Engine { return s.engine }

// Stats is a point-in-time summary of relay state.
type Stats struct {
	Uptime        time.Duration
	Stored        int
	Capacity      int
	ReceivedTotal uint64
	Clients       int
}

func (s *Service) Stats() Stats {
	return Stats{
		Uptime:        s.now().Sub(s.started),
		Stored:        s.store.Len(),
		Capacity:      s.store.Cap(),
		ReceivedTotal: s.store.Total(),
		Clients:       s.registry.Count(),
	}
}

// Now exposes the service clock to handlers.
func (s *Service) Now() time.Time { return s.now() }
