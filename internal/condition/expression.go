package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expr is a compiled boolean expression.
type Expr interface {
	exprNode()
}

// BinaryExpr is AND / OR.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

// NotExpr negates its operand.
type NotExpr struct {
	Expr Expr
}

// ComparisonExpr is <operand> <op> <operand>.
type ComparisonExpr struct {
	Left  Operand
	Op    Operator
	Right Operand

	// re is set when Op is OpMatches and Right is a string literal.
	re *regexp.Regexp
}

func (*BinaryExpr) exprNode()     {}
func (*NotExpr) exprNode()        {}
func (*ComparisonExpr) exprNode() {}

// Operand is a literal or a field reference.
type Operand interface {
	operandNode()
}

type LiteralOperand struct {
	Value interface{}
}

// FieldOperand refers to an event field, e.g. ["title_name"] or ["event", "serial"].
type FieldOperand struct {
	Path []string
}

func (*LiteralOperand) operandNode() {}
func (*FieldOperand) operandNode()   {}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.val, kw)
}

// Parse compiles src. Regex literals used with "matches" are compiled here,
// so evaluation never fails on a bad pattern.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.val, t.pos)
	}
	return e, nil
}

// MustParse is Parse for expressions known at compile time.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(fmt.Sprintf("condition: %q: %v", src, err))
	}
	return e
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.keyword("NOT") {
		p.next()
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected \")\" at position %d, got %q", t.pos, t.val)
		}
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}

	var op Operator
	switch t := p.peek(); {
	case t.kind == tokCmp:
		op = Operator(t.val)
	case p.keyword("contains"):
		op = OpContains
	case p.keyword("matches"):
		op = OpMatches
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", t.pos, t.val)
	}
	p.next()

	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	cmp := &ComparisonExpr{Left: left, Op: op, Right: right}

	if op == OpMatches {
		if lit, ok := right.(*LiteralOperand); ok {
			pattern, ok := lit.Value.(string)
			if !ok {
				return nil, fmt.Errorf("matches: pattern must be a string")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("matches: invalid regex %q: %w", pattern, err)
			}
			cmp.re = re
		}
	}
	return cmp, nil
}

func (p *parser) operand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &LiteralOperand{Value: t.val}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.val, t.pos)
		}
		return &LiteralOperand{Value: f}, nil
	case tokBool:
		return &LiteralOperand{Value: t.val == "true"}, nil
	case tokIdent:
		return &FieldOperand{Path: strings.Split(t.val, ".")}, nil
	default:
		if t.kind == tokEOF {
			return nil, fmt.Errorf("unexpected end of expression")
		}
		return nil, fmt.Errorf("expected operand at position %d, got %q", t.pos, t.val)
	}
}
