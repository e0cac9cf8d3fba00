package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
// An empty path yields the built-in defaults and disables watching.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	checks   []func(*Config) error
	onChange []func(*Config)

	reloadMu sync.Mutex // one Reload at a time (watcher vs. API)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the watched file, or "" when running on defaults.
func (l *Loader) Path() string { return l.path }

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// AddCheck registers an extra acceptance test run by Reload after Validate,
// e.g. building the hook graph against the registered action types.
func (l *Loader) AddCheck(fn func(*Config) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks = append(l.checks, fn)
}

// OnChange registers a callback invoked whenever a reloaded config is accepted.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// The parent directory is watched so editors that replace the file are handled.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return nil, fmt.Errorf("config watcher: no config file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. The new config must
// pass Validate and every AddCheck; otherwise the current config is kept, no
// callback fires, and the error wraps ErrInvalid.
func (l *Loader) Reload() (*Config, error) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	l.mu.RLock()
	checks := make([]func(*Config) error, len(l.checks))
	copy(checks, l.checks)
	l.mu.RUnlock()
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}

	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalid, l.path, err)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "v1"
	}

	s := &cfg.Server
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.ReadTimeoutMs == 0 {
		s.ReadTimeoutMs = 10000
	}
	if s.IdleTimeoutMs == 0 {
		s.IdleTimeoutMs = 60000
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = 64 << 10
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"*"}
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}

	r := &cfg.Relay
	if r.HistoryCapacity == 0 {
		r.HistoryCapacity = 100
	}
	if r.StatusLimit == 0 {
		r.StatusLimit = 10
	}
	if r.SubscriberBuffer == 0 {
		r.SubscriberBuffer = 64
	}
	if r.DeliveryTimeoutMs == 0 {
		r.DeliveryTimeoutMs = 250
	}
	if r.HeartbeatIntervalMs == 0 {
		r.HeartbeatIntervalMs = 15000
	}
	if r.PollTimeoutMs == 0 {
		r.PollTimeoutMs = 30000
	}

	e := &cfg.Engine
	if e.HookWorkers == 0 {
		e.HookWorkers = 4
	}
	if e.QueueDepth == 0 {
		e.QueueDepth = 1000
	}
	if e.ActionTimeoutMs == 0 {
		e.ActionTimeoutMs = 10000
	}
}
