// Package forward implements the "forward" hook action: it re-posts the
// original webhook payload to another relay, typically an HTTPS endpoint
// that the console itself cannot reach.
package forward

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/gyaneshwarpardhi/switchrelay/internal/action"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

const (
	Type = "forward"

	DefaultTimeout   = 10 * time.Second
	defaultUserAgent = "switchrelay-forward/1.0"
)

// Action posts events to params.url. Each action ID gets its own circuit
// breaker so one dead target does not slow the others.
type Action struct {
	client *resty.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	trips    uint32
	cooldown time.Duration
}

type Option func(*Action)

// WithBreaker sets how many consecutive failures open a breaker and how long it stays open.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(a *Action) {
		a.trips = failures
		a.cooldown = cooldown
	}
}

// New creates the executor. A nil client gets a default resty client.
func New(client *resty.Client, opts ...Option) *Action {
	if client == nil {
		client = resty.New()
	}
	client.SetHeader("User-Agent", defaultUserAgent)
	a := &Action{
		client:   client,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		trips:    5,
		cooldown: 30 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Action) Type() string { return Type }

func (a *Action) Validate(params map[string]interface{}) error {
	if _, err := action.URLParam(params, "url"); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	if _, err := action.HeadersParam(params, "headers"); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	if _, err := action.DurationMsParam(params, "timeout_ms", DefaultTimeout); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	return nil
}

func (a *Action) Execute(ctx context.Context, actionID string, params map[string]interface{}, ev event.ConsoleEvent) (*action.Result, error) {
	target, err := action.URLParam(params, "url")
	if err != nil {
		return action.Failed(actionID, Type, err), err
	}
	headers, _ := action.HeadersParam(params, "headers")
	timeout, _ := action.DurationMsParam(params, "timeout_ms", DefaultTimeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := a.breaker(actionID).Execute(func() (interface{}, error) {
		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Relay-Event-ID", ev.ID).
			SetHeaders(headers).
			SetBody(ev.Payload()).
			Post(target)
		if err != nil {
			return nil, err
		}
		// Only server-side failures count against the breaker.
		if resp.StatusCode() >= 500 {
			return resp, fmt.Errorf("upstream returned %d", resp.StatusCode())
		}
		return resp, nil
	})
	if err != nil {
		res := action.Failed(actionID, Type, fmt.Errorf("forward to %s: %w", target, err))
		if resp, ok := out.(*resty.Response); ok && resp != nil {
			res.StatusCode = resp.StatusCode()
		}
		return res, err
	}

	resp := out.(*resty.Response)
	res := &action.Result{
		ActionID:   actionID,
		Type:       Type,
		StatusCode: resp.StatusCode(),
		Success:    !resp.IsError(),
		Message:    fmt.Sprintf("forwarded to %s: %s", target, resp.Status()),
	}
	return res, nil
}

func (a *Action) breaker(actionID string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := a.breakers[actionID]; ok {
		return cb
	}
	trips := a.trips
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        actionID,
		MaxRequests: 1,
		Timeout:     a.cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("forward breaker state changed", "action_id", name, "from", from.String(), "to", to.String())
		},
	})
	a.breakers[actionID] = cb
	return cb
}
