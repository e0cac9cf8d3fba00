package action

import (
	"context"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// Result holds the outcome of executing a single action.
type Result struct {
	ActionID   string `json:"action_id"`
	Type       string `json:"type"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// Executor is the interface all action implementations must satisfy.
type Executor interface {
	// Type returns the string key this executor is registered under.
	Type() string
	// Execute runs the action for ev and returns a result.
	Execute(ctx context.Context, actionID string, params map[string]interface{}, ev event.ConsoleEvent) (*Result, error)
	// Validate checks params when the hook graph is built.
	Validate(params map[string]interface{}) error
}

// Failed builds an unsuccessful Result from err.
func Failed(actionID, actionType string, err error) *Result {
	return &Result{ActionID: actionID, Type: actionType, Message: err.Error()}
}
