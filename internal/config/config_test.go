package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const sampleYAML = `
version: v1
server:
  addr: ":9090"
relay:
  history_capacity: 50
  mask_serials: false
catalog:
  titles:
    - title_id: "0100152000022000"
      name: "Mario Kart 8 Deluxe"
      image: "https://img.example/mk8.png"
hooks:
  - id: hk_bridge
    enabled: true
    actions: [Launch, Exit]
    children:
      - condition:
          id: cond_party
          expression: 'controller_count >= 2'
          children:
            - action:
                id: act_forward
                type: forward
                params:
                  url: "https://example.invalid/api/switch-webhook"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader_AppliesDefaults(t *testing.T) {
	l, err := NewLoader(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Config()

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Relay.HistoryCapacity != 50 {
		t.Errorf("history_capacity = %d, want 50", cfg.Relay.HistoryCapacity)
	}
	if cfg.Relay.StatusLimit != 10 || cfg.Relay.DeliveryTimeoutMs != 250 {
		t.Errorf("relay defaults not applied: %+v", cfg.Relay)
	}
	if cfg.Relay.MaskSerialsEnabled() {
		t.Error("mask_serials: false should disable masking")
	}
	if cfg.Engine.HookWorkers != 4 || cfg.Engine.QueueDepth != 1000 {
		t.Errorf("engine defaults not applied: %+v", cfg.Engine)
	}
	if len(cfg.Hooks) != 1 || cfg.Hooks[0].Children[0].Condition == nil {
		t.Fatalf("hooks not parsed: %+v", cfg.Hooks)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Relay.HistoryCapacity != 100 {
		t.Errorf("default history_capacity = %d, want 100", cfg.Relay.HistoryCapacity)
	}
	if !cfg.Relay.MaskSerialsEnabled() {
		t.Error("serial masking should default to on")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	l, err := NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader(\"\"): %v", err)
	}
	if l.Config().Server.Addr != ":8080" {
		t.Errorf("empty path should use defaults, got addr %q", l.Config().Server.Addr)
	}
	if _, err := l.Watch(); err == nil {
		t.Error("Watch without a file should fail")
	}
}

func TestNewLoader_Errors(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewLoader(writeConfig(t, "version: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := Default()
	cfg.Relay.MaxSubscribers = -1
	cfg.Relay.ClearSchedule = "every tuesday"
	cfg.Relay.HeartbeatIntervalMs = -1
	cfg.Relay.PollTimeoutMs = -5
	cfg.Engine.ActionTimeoutMs = -1
	cfg.Server.IdleTimeoutMs = -1
	cfg.Hooks = []Hook{
		{ID: "dup", Actions: []string{"Pause"}},
		{ID: "dup", Actions: []string{"Launch"}, Children: []NodeRef{
			{Condition: &ConditionDef{ID: "c1", Expression: `title_name ==`}},
			{Action: &ActionDef{ID: "a1"}},
			{},
		}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error should wrap ErrInvalid: %v", err)
	}
	for _, want := range []string{
		"relay.max_subscribers",
		"relay.clear_schedule",
		"relay.heartbeat_interval_ms",
		"relay.poll_timeout_ms",
		"engine.action_timeout_ms",
		"server timeouts",
		`unknown action "Pause"`,
		`duplicate id "dup"`,
		"condition c1",
		"action a1: type is required",
		"one of condition/action must be set",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestReload_InvokesCallbacks(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	var calls atomic.Int32
	l.OnChange(func(cfg *Config) {
		if cfg.Relay.HistoryCapacity == 75 {
			calls.Add(1)
		}
	})

	updated := strings.Replace(sampleYAML, "history_capacity: 50", "history_capacity: 75", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("callback calls = %d, want 1", calls.Load())
	}
	if l.Config().Relay.HistoryCapacity != 75 {
		t.Errorf("current config not swapped")
	}
}

func TestWatch_HotReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	changed := make(chan *Config, 4)
	l.OnChange(func(cfg *Config) { changed <- cfg })

	stop, err := l.Watch()
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	updated := strings.Replace(sampleYAML, `addr: ":9090"`, `addr: ":9191"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Server.Addr == ":9191" {
				return
			}
		case <-deadline:
			t.Fatalf("config not hot-reloaded; addr = %q", l.Config().Server.Addr)
		}
	}
}

func TestExampleConfigValidates(t *testing.T) {
	l, err := NewLoader(filepath.Join("..", "..", "configs", "relay.yaml"))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Config()
	if err := Validate(cfg); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if len(cfg.Catalog.Titles) != 5 || len(cfg.Hooks) != 2 {
		t.Errorf("catalog=%d hooks=%d", len(cfg.Catalog.Titles), len(cfg.Hooks))
	}
}

func TestReload_RejectedConfigKeepsCurrent(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	var calls atomic.Int32
	l.OnChange(func(*Config) { calls.Add(1) })

	cases := []struct {
		name string
		from string
		to   string
	}{
		{"negative body limit", `addr: ":9090"`, "addr: \":9090\"\n  max_body_bytes: -1"},
		{"negative heartbeat", "mask_serials: false", "mask_serials: false\n  heartbeat_interval_ms: -1"},
		{"negative poll timeout", "mask_serials: false", "mask_serials: false\n  poll_timeout_ms: -1"},
		{"unparseable yaml", "hooks:", "hooks: [unclosed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := strings.Replace(sampleYAML, tc.from, tc.to, 1)
			if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := l.Reload(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Reload error = %v, want ErrInvalid", err)
			}
			cfg := l.Config()
			if cfg.Server.MaxBodyBytes != 64<<10 || cfg.Relay.HeartbeatIntervalMs != 15000 || cfg.Relay.PollTimeoutMs != 30000 {
				t.Errorf("rejected config was swapped in: server=%+v relay=%+v", cfg.Server, cfg.Relay)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("OnChange fired %d times for rejected configs", calls.Load())
	}
}

func TestReload_CheckRejects(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	l.AddCheck(func(cfg *Config) error {
		if cfg.Relay.HistoryCapacity > 60 {
			return errors.New("history too large")
		}
		return nil
	})

	updated := strings.Replace(sampleYAML, "history_capacity: 50", "history_capacity: 75", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = l.Reload()
	if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), "history too large") {
		t.Fatalf("Reload error = %v", err)
	}
	if l.Config().Relay.HistoryCapacity != 50 {
		t.Errorf("history_capacity = %d, want previous 50", l.Config().Relay.HistoryCapacity)
	}
	if l.Path() != path {
		t.Errorf("Path = %q", l.Path())
	}
}
