package hooks

import (
	"github.com/gyaneshwarpardhi/switchrelay/internal/condition"
	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

type NodeType string

const (
	NodeTypeHook      NodeType = "hook"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
)

// Node is the common interface for all rule tree nodes.
type Node interface {
	ID() string
	Type() NodeType
	Evaluate(ctx *EvalContext) (bool, error)
}

// EvalContext carries per-event state through the traversal.
type EvalContext struct {
	Event    event.ConsoleEvent
	resolver *condition.EventResolver
	Errors   []error
}

func NewEvalContext(ev event.ConsoleEvent) *EvalContext {
	return &EvalContext{Event: ev, resolver: condition.ForEvent(ev)}
}

// Resolve implements condition.Resolver.
func (c *EvalContext) Resolve(path []string) (interface{}, bool) {
	return c.resolver.Resolve(path)
}

// HookNode is the root of a rule tree. It passes when the event's action is
// listed and, if serials were given, the console serial is listed too.
type HookNode struct {
	id          string
	description string
	actions     map[event.Action]struct{}
	serials     map[string]struct{}
}

func NewHookNode(id, description string, actions, serials []string) *HookNode {
	as := make(map[event.Action]struct{}, len(actions))
	for _, a := range actions {
		as[event.Action(a)] = struct{}{}
	}
	ss := make(map[string]struct{}, len(serials))
	for _, s := range serials {
		ss[s] = struct{}{}
	}
	return &HookNode{id: id, description: description, actions: as, serials: ss}
}

func (n *HookNode) ID() string          { return n.id }
func (n *HookNode) Type() NodeType      { return NodeTypeHook }
func (n *HookNode) Description() string { return n.description }

func (n *HookNode) Evaluate(ctx *EvalContext) (bool, error) {
	if _, ok := n.actions[ctx.Event.Action]; !ok {
		return false, nil
	}
	if len(n.serials) > 0 {
		if _, ok := n.serials[ctx.Event.Serial]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// ConditionNode holds a pre-compiled expression.
type ConditionNode struct {
	id   string
	expr condition.Expr
}

func NewConditionNode(id string, expr condition.Expr) *ConditionNode {
	return &ConditionNode{id: id, expr: expr}
}

func (n *ConditionNode) ID() string     { return n.id }
func (n *ConditionNode) Type() NodeType { return NodeTypeCondition }

func (n *ConditionNode) Evaluate(ctx *EvalContext) (bool, error) {
	return condition.Evaluate(n.expr, ctx)
}

// ActionNode is a leaf naming an executor type and its params.
// Evaluate always passes; running the action is the engine's job.
type ActionNode struct {
	id         string
	actionType string
	params     map[string]interface{}
}

func NewActionNode(id, actionType string, params map[string]interface{}) *ActionNode {
	return &ActionNode{id: id, actionType: actionType, params: params}
}

func (n *ActionNode) ID() string                     { return n.id }
func (n *ActionNode) Type() NodeType                 { return NodeTypeAction }
func (n *ActionNode) ActionType() string             { return n.actionType }
func (n *ActionNode) Params() map[string]interface{} { return n.params }

func (n *ActionNode) Evaluate(*EvalContext) (bool, error) { return true, nil }
