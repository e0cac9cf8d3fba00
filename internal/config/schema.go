package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version string      `yaml:"version"`
	Server  ServerConf  `yaml:"server"`
	Relay   RelayConf   `yaml:"relay"`
	Engine  EngineConf  `yaml:"engine"`
	Catalog CatalogConf `yaml:"catalog"`
	Hooks   []Hook      `yaml:"hooks"`
}

// ServerConf holds HTTP listener settings.
type ServerConf struct {
	Addr           string   `yaml:"addr"`
	ReadTimeoutMs  int      `yaml:"read_timeout_ms"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms"` // 0 keeps streams open indefinitely
	IdleTimeoutMs  int      `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
}

// RelayConf tunes history retention and live fan-out.
type RelayConf struct {
	HistoryCapacity     int    `yaml:"history_capacity"`
	StatusLimit         int    `yaml:"status_limit"`
	SubscriberBuffer    int    `yaml:"subscriber_buffer"`
	DeliveryTimeoutMs   int    `yaml:"delivery_timeout_ms"`
	MaxSubscribers      int    `yaml:"max_subscribers"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"`
	PollTimeoutMs       int    `yaml:"poll_timeout_ms"`
	MaskSerials         *bool  `yaml:"mask_serials"`
	ClearSchedule       string `yaml:"clear_schedule"` // cron spec; empty disables
}

// EngineConf holds outbound hook concurrency settings.
type EngineConf struct {
	HookWorkers     int `yaml:"hook_workers"`
	QueueDepth      int `yaml:"queue_depth"`
	ActionTimeoutMs int `yaml:"action_timeout_ms"`
}

// CatalogConf lists known titles used to decorate notifications.
type CatalogConf struct {
	Titles []Title `yaml:"titles"`
}

type Title struct {
	TitleID string `yaml:"title_id"`
	Name    string `yaml:"name"`
	Image   string `yaml:"image"`
}

// Hook is the root of an outbound rule tree. It passes when the event's
// action is listed in Actions and, if Serials is non-empty, its serial is listed too.
type Hook struct {
	ID          string    `yaml:"id" json:"id"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Enabled     bool      `yaml:"enabled" json:"enabled"`
	Actions     []string  `yaml:"actions" json:"actions"`
	Serials     []string  `yaml:"serials" json:"serials,omitempty"`
	Children    []NodeRef `yaml:"children" json:"children"`
}

// NodeRef is a discriminated union: exactly one of Condition or Action is set.
type NodeRef struct {
	Condition *ConditionDef `yaml:"condition,omitempty" json:"condition,omitempty"`
	Action    *ActionDef    `yaml:"action,omitempty" json:"action,omitempty"`
}

// ConditionDef holds an expression and nested children.
type ConditionDef struct {
	ID         string    `yaml:"id" json:"id"`
	Expression string    `yaml:"expression" json:"expression"`
	Children   []NodeRef `yaml:"children" json:"children,omitempty"`
}

// ActionDef is a leaf node naming an executor and its params.
type ActionDef struct {
	ID     string                 `yaml:"id" json:"id"`
	Type   string                 `yaml:"type" json:"type"`
	Params map[string]interface{} `yaml:"params" json:"params,omitempty"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (s ServerConf) ReadTimeout() time.Duration  { return ms(s.ReadTimeoutMs) }
func (s ServerConf) WriteTimeout() time.Duration { return ms(s.WriteTimeoutMs) }
func (s ServerConf) IdleTimeout() time.Duration  { return ms(s.IdleTimeoutMs) }

func (r RelayConf) DeliveryTimeout() time.Duration   { return ms(r.DeliveryTimeoutMs) }
func (r RelayConf) HeartbeatInterval() time.Duration { return ms(r.HeartbeatIntervalMs) }
func (r RelayConf) PollTimeout() time.Duration       { return ms(r.PollTimeoutMs) }

// MaskSerialsEnabled defaults to true when unset.
func (r RelayConf) MaskSerialsEnabled() bool {
	return r.MaskSerials == nil || *r.MaskSerials
}

func (e EngineConf) ActionTimeout() time.Duration { return ms(e.ActionTimeoutMs) }
