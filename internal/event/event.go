package event

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Action is the lifecycle transition a console reports.
type Action string

const (
	ActionLaunch Action = "Launch"
	ActionExit   Action = "Exit"
)

// Valid reports whether a is one of the known variants.
func (a Action) Valid() bool {
	return a == ActionLaunch || a == ActionExit
}

// ConsoleEvent is one stored Launch/Exit notification. It is never mutated after ingest.
type ConsoleEvent struct {
	ID              string    `json:"id"`
	Serial          string    `json:"serial"`
	HOSVersion      string    `json:"hos_version,omitempty"`
	AMSVersion      string    `json:"ams_version,omitempty"`
	Action          Action    `json:"action"`
	TitleID         string    `json:"title_id"`
	TitleVersion    string    `json:"title_version,omitempty"`
	TitleName       string    `json:"title_name"`
	ControllerCount int       `json:"controller_count"`
	ReceivedAt      time.Time `json:"received_at"`
}

// Payload is the inbound webhook body as sent by the console homebrew.
// Pointer fields distinguish "absent" from zero values.
type Payload struct {
	Serial          string   `json:"serial"`
	HOSVersion      string   `json:"hos_version"`
	AMSVersion      string   `json:"ams_version"`
	Action          string   `json:"action"`
	TitleID         string   `json:"title_id"`
	TitleVersion    string   `json:"title_version"`
	TitleName       string   `json:"title_name"`
	ControllerCount *float64 `json:"controller_count"`
}

// ValidationError is returned for payloads that must be rejected with a 4xx.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks p and converts it into a ConsoleEvent without ID or ReceivedAt.
func (p *Payload) Validate() (ConsoleEvent, error) {
	if strings.TrimSpace(p.Action) == "" {
		return ConsoleEvent{}, &ValidationError{Field: "action", Reason: "is required"}
	}
	act := Action(p.Action)
	if !act.Valid() {
		return ConsoleEvent{}, &ValidationError{
			Field:  "action",
			Reason: fmt.Sprintf("must be one of %s, %s (got %q)", ActionLaunch, ActionExit, p.Action),
		}
	}
	if strings.TrimSpace(p.TitleName) == "" {
		return ConsoleEvent{}, &ValidationError{Field: "title_name", Reason: "is required"}
	}

	return ConsoleEvent{
		Serial:          p.Serial,
		HOSVersion:      p.HOSVersion,
		AMSVersion:      p.AMSVersion,
		Action:          act,
		TitleID:         p.TitleID,
		TitleVersion:    p.TitleVersion,
		TitleName:       p.TitleName,
		ControllerCount: clampCount(p.ControllerCount),
	}, nil
}

func clampCount(v *float64) int {
	if v == nil || math.IsNaN(*v) || *v <= 0 {
		return 0
	}
	if *v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(*v)
}

// Fields returns the event as a flat map keyed by wire names. Used by the
// expression evaluator and by forwarders that replay the original body.
func (e ConsoleEvent) Fields() map[string]interface{} {
	return map[string]interface{}{
		"serial":           e.Serial,
		"hos_version":      e.HOSVersion,
		"ams_version":      e.AMSVersion,
		"action":           string(e.Action),
		"title_id":         e.TitleID,
		"title_version":    e.TitleVersion,
		"title_name":       e.TitleName,
		"controller_count": e.ControllerCount,
	}
}

// Payload rebuilds the wire body the console sent.
func (e ConsoleEvent) Payload() Payload {
	n := float64(e.ControllerCount)
	return Payload{
		Serial:          e.Serial,
		HOSVersion:      e.HOSVersion,
		AMSVersion:      e.AMSVersion,
		Action:          string(e.Action),
		TitleID:         e.TitleID,
		TitleVersion:    e.TitleVersion,
		TitleName:       e.TitleName,
		ControllerCount: &n,
	}
}
