package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/gyaneshwarpardhi/switchrelay/internal/condition"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// ErrInvalid marks a config that was rejected; a reload keeps the previous one.
var ErrInvalid = errors.New("invalid config")

// Validate checks the config for:
//   - Sane relay and engine limits
//   - A parseable history clear schedule
//   - Duplicate IDs across hooks, conditions, and actions
//   - Hook actions restricted to Launch/Exit
//   - Condition expressions that fail to parse
func Validate(cfg *Config) error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if cfg.Version == "" {
		add("version is required")
	}
	if cfg.Relay.HistoryCapacity < 1 {
		add("relay.history_capacity must be >= 1")
	}
	if cfg.Relay.StatusLimit < 1 {
		add("relay.status_limit must be >= 1")
	}
	if cfg.Relay.SubscriberBuffer < 1 {
		add("relay.subscriber_buffer must be >= 1")
	}
	if cfg.Relay.DeliveryTimeoutMs < 1 {
		add("relay.delivery_timeout_ms must be >= 1")
	}
	if cfg.Relay.MaxSubscribers < 0 {
		add("relay.max_subscribers must be >= 0")
	}
	if cfg.Relay.HeartbeatIntervalMs < 1 {
		add("relay.heartbeat_interval_ms must be >= 1")
	}
	if cfg.Relay.PollTimeoutMs < 1 {
		add("relay.poll_timeout_ms must be >= 1")
	}
	if cfg.Relay.ClearSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Relay.ClearSchedule); err != nil {
			add("relay.clear_schedule: %v", err)
		}
	}
	if cfg.Engine.HookWorkers < 1 {
		add("engine.hook_workers must be >= 1")
	}
	if cfg.Engine.QueueDepth < 1 {
		add("engine.queue_depth must be >= 1")
	}
	if cfg.Engine.ActionTimeoutMs < 1 {
		add("engine.action_timeout_ms must be >= 1")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		add("server.max_body_bytes must be >= 1")
	}
	if cfg.Server.ReadTimeoutMs < 0 || cfg.Server.WriteTimeoutMs < 0 || cfg.Server.IdleTimeoutMs < 0 {
		add("server timeouts must be >= 0")
	}

	for i, t := range cfg.Catalog.Titles {
		if t.TitleID == "" && t.Name == "" {
			add("catalog.titles[%d]: one of title_id or name is required", i)
		}
	}

	ids := make(map[string]string) // id → location
	for i, h := range cfg.Hooks {
		if h.ID == "" {
			add("hooks[%d]: id is required", i)
			continue
		}
		loc := fmt.Sprintf("hook %s", h.ID)
		claimID(ids, h.ID, loc, &errs)
		if len(h.Actions) == 0 {
			add("hook %s: actions must not be empty", h.ID)
		}
		for _, a := range h.Actions {
			if !event.Action(a).Valid() {
				add("hook %s: unknown action %q (want %s or %s)", h.ID, a, event.ActionLaunch, event.ActionExit)
			}
		}
		validateNodeRefs(h.Children, loc, ids, &errs)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}

func claimID(ids map[string]string, id, loc string, errs *[]string) {
	if prev, ok := ids[id]; ok {
		*errs = append(*errs, fmt.Sprintf("duplicate id %q (first seen at %s, again at %s)", id, prev, loc))
		return
	}
	ids[id] = loc
}

func validateNodeRefs(refs []NodeRef, parent string, ids map[string]string, errs *[]string) {
	for j, ref := range refs {
		switch {
		case ref.Condition != nil && ref.Action != nil:
			*errs = append(*errs, fmt.Sprintf("%s.children[%d]: only one of condition/action may be set", parent, j))
		case ref.Condition == nil && ref.Action == nil:
			*errs = append(*errs, fmt.Sprintf("%s.children[%d]: one of condition/action must be set", parent, j))
		case ref.Condition != nil:
			c := ref.Condition
			if c.ID == "" {
				*errs = append(*errs, fmt.Sprintf("%s.children[%d].condition: id is required", parent, j))
				continue
			}
			loc := fmt.Sprintf("condition %s", c.ID)
			claimID(ids, c.ID, loc, errs)
			if c.Expression == "" {
				*errs = append(*errs, fmt.Sprintf("condition %s: expression is required", c.ID))
			} else if _, err := condition.Parse(c.Expression); err != nil {
				*errs = append(*errs, fmt.Sprintf("condition %s: %v", c.ID, err))
			}
			validateNodeRefs(c.Children, loc, ids, errs)
		default:
			a := ref.Action
			if a.ID == "" {
				*errs = append(*errs, fmt.Sprintf("%s.children[%d].action: id is required", parent, j))
				continue
			}
			claimID(ids, a.ID, fmt.Sprintf("action %s", a.ID), errs)
			if a.Type == "" {
				*errs = append(*errs, fmt.Sprintf("action %s: type is required", a.ID))
			}
		}
	}
}
