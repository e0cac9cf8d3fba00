package condition

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// Resolver supplies field values during evaluation.
type Resolver interface {
	Resolve(path []string) (interface{}, bool)
}

// Evaluate walks expr against r.
func Evaluate(expr Expr, r Resolver) (bool, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		left, err := Evaluate(e.Left, r)
		if err != nil {
			return false, err
		}
		switch e.Op {
		case "AND":
			if !left {
				return false, nil
			}
		case "OR":
			if left {
				return true, nil
			}
		default:
			return false, fmt.Errorf("unknown binary op %q", e.Op)
		}
		return Evaluate(e.Right, r)
	case *NotExpr:
		v, err := Evaluate(e.Expr, r)
		return !v, err
	case *ComparisonExpr:
		left, err := operandValue(e.Left, r)
		if err != nil {
			return false, err
		}
		right, err := operandValue(e.Right, r)
		if err != nil {
			return false, err
		}
		return compare(e, left, right)
	default:
		return false, fmt.Errorf("unknown expr type %T", expr)
	}
}

func operandValue(op Operand, r Resolver) (interface{}, error) {
	switch o := op.(type) {
	case *LiteralOperand:
		return o.Value, nil
	case *FieldOperand:
		v, ok := r.Resolve(o.Path)
		if !ok {
			return nil, fmt.Errorf("field %q not found", strings.Join(o.Path, "."))
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown operand type %T", op)
	}
}

// EventResolver resolves wire field names ("title_name", "event.serial") on a console event.
type EventResolver struct {
	fields map[string]interface{}
}

func ForEvent(ev event.ConsoleEvent) *EventResolver {
	return &EventResolver{fields: ev.Fields()}
}

func (r *EventResolver) Resolve(path []string) (interface{}, bool) {
	if len(path) == 2 && path[0] == "event" {
		path = path[1:]
	}
	if len(path) != 1 {
		return nil, false
	}
	v, ok := r.fields[path[0]]
	return v, ok
}

// Match is a convenience for evaluating expr against a single event.
func Match(expr Expr, ev event.ConsoleEvent) (bool, error) {
	return Evaluate(expr, ForEvent(ev))
}
