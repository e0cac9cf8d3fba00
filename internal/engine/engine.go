// Package engine runs outbound hooks for accepted console events on a
// bounded worker pool, off the ingress request path.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/switchrelay/internal/action"
	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
	"github.com/gyaneshwarpardhi/switchrelay/internal/hooks"
	"github.com/gyaneshwarpardhi/switchrelay/internal/metrics"
)

// EventResult is the outcome of running hooks for one event.
type EventResult struct {
	EventID         string           `json:"event_id"`
	DurationMs      int64            `json:"duration_ms"`
	HooksMatched    []string         `json:"hooks_matched"`
	ActionsExecuted []*action.Result `json:"actions_executed"`
	Error           string           `json:"error,omitempty"`
}

type Engine struct {
	graph    atomic.Pointer[hooks.Graph]
	registry *action.Registry
	pool     *workerPool[*hookWork]
	conf     config.EngineConf
}

type hookWork struct {
	ev      event.ConsoleEvent
	resultC chan *EventResult
}

// New starts the worker pool. ctx bounds running actions; cancelling it stops
// the workers and abandons whatever is still queued, so callers that want
// queued hooks to run should call Shutdown before cancelling.
func New(ctx context.Context, g *hooks.Graph, reg *action.Registry, conf config.EngineConf) *Engine {
	if conf.ActionTimeoutMs <= 0 {
		conf.ActionTimeoutMs = 10000
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = 1
	}
	e := &Engine{registry: reg, conf: conf}
	if g == nil {
		g = hooks.NewGraph()
	}
	e.graph.Store(g)

	e.pool = newWorkerPool(ctx, conf.HookWorkers, conf.QueueDepth, func(ctx context.Context, w *hookWork) {
		res := e.process(ctx, w.ev)
		if w.resultC != nil {
			w.resultC <- res
		}
		metrics.HookQueueUtilization.Set(e.QueueUtilization())
	})
	return e
}

// SwapGraph atomically replaces the hook graph (used on reload).
func (e *Engine) SwapGraph(g *hooks.Graph) {
	e.graph.Store(g)
}

func (e *Engine) Graph() *hooks.Graph { return e.graph.Load() }

func (e *Engine) Registry() *action.Registry { return e.registry }

// Submit enqueues ev for background processing. Returns false if the queue is full.
func (e *Engine) Submit(ev event.ConsoleEvent) bool {
	if !e.pool.Submit(&hookWork{ev: ev}) {
		metrics.HooksDropped.Inc()
		return false
	}
	metrics.HooksQueued.Inc()
	metrics.HookQueueUtilization.Set(e.QueueUtilization())
	return true
}

// ProcessSync runs hooks for ev through the pool and waits for the result.
func (e *Engine) ProcessSync(ctx context.Context, ev event.ConsoleEvent) (*EventResult, error) {
	resultC := make(chan *EventResult, 1)
	if !e.pool.Submit(&hookWork{ev: ev, resultC: resultC}) {
		metrics.HooksDropped.Inc()
		return nil, fmt.Errorf("hook queue full (capacity %d)", e.pool.QueueCap())
	}
	metrics.HooksQueued.Inc()

	select {
	case res := <-resultC:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DryRun reports which hooks and actions would fire for ev without running them.
func (e *Engine) DryRun(ev event.ConsoleEvent) ([]hooks.Match, []string, error) {
	return hooks.Evaluate(e.graph.Load(), ev)
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) process(ctx context.Context, ev event.ConsoleEvent) *EventResult {
	start := time.Now()
	matches, hooksMatched, evalErr := hooks.Evaluate(e.graph.Load(), ev)

	result := &EventResult{
		EventID:         ev.ID,
		HooksMatched:    hooksMatched,
		ActionsExecuted: make([]*action.Result, 0, len(matches)),
	}
	if evalErr != nil {
		result.Error = evalErr.Error()
		slog.Warn("hook evaluation error", "event_id", ev.ID, "err", evalErr)
	}

	for _, m := range matches {
		result.ActionsExecuted = append(result.ActionsExecuted, e.runAction(ctx, m, ev))
	}

	result.DurationMs = time.Since(start).Milliseconds()
	for _, h := range hooksMatched {
		metrics.HooksMatched.WithLabelValues(h).Inc()
	}
	if len(matches) > 0 {
		metrics.HookDuration.Observe(float64(result.DurationMs))
	}
	return result
}

func (e *Engine) runAction(ctx context.Context, m hooks.Match, ev event.ConsoleEvent) *action.Result {
	typ := m.Node.ActionType()
	exec, err := e.registry.Get(typ)
	if err != nil {
		metrics.ActionsExecuted.WithLabelValues(typ, "error").Inc()
		return action.Failed(m.Node.ID(), typ, err)
	}

	actx, cancel := context.WithTimeout(ctx, e.conf.ActionTimeout())
	defer cancel()

	res, err := exec.Execute(actx, m.Node.ID(), m.Node.Params(), ev)
	if res == nil {
		res = &action.Result{ActionID: m.Node.ID(), Type: typ}
		if err != nil {
			res.Message = err.Error()
		}
	}
	status := "success"
	if err != nil || !res.Success {
		status = "error"
		slog.Warn("hook action failed",
			"hook_id", m.HookID,
			"action_id", m.Node.ID(),
			"type", typ,
			"event_id", ev.ID,
			"message", res.Message,
		)
	} else {
		slog.Debug("hook action ok", "hook_id", m.HookID, "action_id", m.Node.ID(), "message", res.Message)
	}
	metrics.ActionsExecuted.WithLabelValues(typ, status).Inc()
	return res
}

// Shutdown stops accepting work and waits for queued hooks to finish,
// provided the context given to New is still live.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
