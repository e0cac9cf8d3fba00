package condition

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compare(c *ComparisonExpr, left, right interface{}) (bool, error) {
	switch c.Op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		return ordered(c.Op, left, right)
	case OpContains:
		ls, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("contains: left operand must be a string, got %T", left)
		}
		return strings.Contains(strings.ToLower(ls), strings.ToLower(fmt.Sprint(right))), nil
	case OpMatches:
		return matches(c.re, left, right)
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

// equal compares numbers by value and everything else by string form.
func equal(left, right interface{}) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	lb, lIsBool := left.(bool)
	rb, rIsBool := right.(bool)
	if lIsBool || rIsBool {
		return lIsBool && rIsBool && lb == rb
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

func ordered(op Operator, left, right interface{}) (bool, error) {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		return false, fmt.Errorf("operator %s requires numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case OpGt:
		return lf > rf, nil
	case OpGte:
		return lf >= rf, nil
	case OpLt:
		return lf < rf, nil
	default:
		return lf <= rf, nil
	}
}

func matches(re *regexp.Regexp, left, right interface{}) (bool, error) {
	ls, ok := left.(string)
	if !ok {
		return false, fmt.Errorf("matches: left operand must be a string, got %T", left)
	}
	if re == nil {
		// Pattern came from a field; compile on demand.
		pattern, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("matches: pattern must be a string, got %T", right)
		}
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return false, fmt.Errorf("matches: invalid regex %q: %w", pattern, err)
		}
	}
	return re.MatchString(ls), nil
}
