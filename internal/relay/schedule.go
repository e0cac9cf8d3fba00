package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ClearScheduler empties the history on a cron schedule, e.g. "0 4 * * *"
// to start each day with a clean dashboard.
type ClearScheduler struct {
	svc  *Service
	cron *cron.Cron

	mu    sync.Mutex
	spec  string
	entry cron.EntryID
}

func NewClearScheduler(svc *Service, opts ...cron.Option) *ClearScheduler {
	return &ClearScheduler{svc: svc, cron: cron.New(opts...)}
}

// Set replaces the schedule. An empty spec disables scheduled clears.
func (c *ClearScheduler) Set(spec string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if spec == c.spec {
		return nil
	}

	var id cron.EntryID
	if spec != "" {
		var err error
		id, err = c.cron.AddFunc(spec, func() {
			n := c.svc.store.Len()
			c.svc.Clear()
			slog.Info("history cleared on schedule", "events", n, "schedule", spec)
		})
		if err != nil {
			return fmt.Errorf("clear schedule %q: %w", spec, err)
		}
	}
	if c.entry != 0 {
		c.cron.Remove(c.entry)
	}
	c.spec, c.entry = spec, id
	return nil
}

// Next reports when the next clear will run; ok is false when none is scheduled.
func (c *ClearScheduler) Next() (time.Time, bool) {
	c.mu.Lock()
	id := c.entry
	c.mu.Unlock()
	if id == 0 {
		return time.Time{}, false
	}
	e := c.cron.Entry(id)
	return e.Next, !e.Next.IsZero()
}

func (c *ClearScheduler) Start() { c.cron.Start() }

// Stop halts the scheduler and returns a context done once a running clear finishes.
func (c *ClearScheduler) Stop() context.Context { return c.cron.Stop() }
