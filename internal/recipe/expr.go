package recipe

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// The expression language is deliberately a closed grammar: an integer
// literal, a field reference ("${maxeye}", "maxeye" or "if_eye[ieye]"), or a
// single comparison between two of those. Expressions are parsed when the
// recipe artifact is loaded and evaluated against the fields decoded so far;
// there is no general evaluation capability.

// ParseError reports a malformed expression in a recipe artifact.
type ParseError struct {
	Expr string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed expression %q: %s", e.Expr, e.Msg)
}

// SymbolError reports a reference that cannot be resolved against the decoded
// fields. It indicates a recipe/schema defect, not a corrupt file.
type SymbolError struct {
	Field string
	Msg   string
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Msg)
}

type exprNode interface {
	eval(ctx Record) (int64, error)
}

type litNode int64

func (n litNode) eval(Record) (int64, error) {
	return int64(n), nil
}

type refNode struct {
	name  string
	index string
}

func (n refNode) eval(ctx Record) (int64, error) {
	v, ok := ctx[n.name]
	if !ok {
		return 0, &SymbolError{Field: n.name, Msg: "not decoded yet"}
	}
	if n.index == "" {
		return toInt(n.name, v)
	}
	iv, ok := ctx[n.index]
	if !ok {
		return 0, &SymbolError{Field: n.index, Msg: "loop variable not in scope"}
	}
	i, err := toInt(n.index, iv)
	if err != nil {
		return 0, err
	}
	switch s := v.(type) {
	case []int64:
		if i < 0 || i >= int64(len(s)) {
			return 0, &SymbolError{Field: n.name, Msg: fmt.Sprintf("index %d out of range (%d elements)", i, len(s))}
		}
		return s[i], nil
	case []any:
		if i < 0 || i >= int64(len(s)) {
			return 0, &SymbolError{Field: n.name, Msg: fmt.Sprintf("index %d out of range (%d elements)", i, len(s))}
		}
		return toInt(n.name, s[i])
	default:
		return 0, &SymbolError{Field: n.name, Msg: fmt.Sprintf("value %T cannot be indexed", v)}
	}
}

func toInt(name string, v any) (int64, error) {
	if x, ok := v.(int64); ok {
		return x, nil
	}
	return 0, &SymbolError{Field: name, Msg: fmt.Sprintf("value %T is not an integer", v)}
}

type cmpNode struct {
	op  string
	lhs exprNode
	rhs exprNode
}

func (n cmpNode) eval(ctx Record) (int64, error) {
	l, err := n.lhs.eval(ctx)
	if err != nil {
		return 0, err
	}
	r, err := n.rhs.eval(ctx)
	if err != nil {
		return 0, err
	}
	var ok bool
	switch n.op {
	case "==":
		ok = l == r
	case "!=":
		ok = l != r
	case "<":
		ok = l < r
	case "<=":
		ok = l <= r
	case ">":
		ok = l > r
	case ">=":
		ok = l >= r
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

// Expr is a parsed expression. The zero value is invalid; build one with
// ParseExpr or Literal.
type Expr struct {
	src  string
	node exprNode
}

// Literal returns an expression that always evaluates to n.
func Literal(n int64) Expr {
	return Expr{src: strconv.FormatInt(n, 10), node: litNode(n)}
}

// MustParse parses src and panics on failure. For fixtures and tests.
func MustParse(src string) Expr {
	e, err := ParseExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e Expr) String() string {
	return e.src
}

// IsZero reports whether the expression was never initialized.
func (e Expr) IsZero() bool {
	return e.node == nil
}

// Eval evaluates the expression against the decoded fields.
func (e Expr) Eval(ctx Record) (int64, error) {
	if e.node == nil {
		return 0, &ParseError{Expr: e.src, Msg: "uninitialized expression"}
	}
	return e.node.eval(ctx)
}

// EvalBool treats any non-zero result as true.
func (e Expr) EvalBool(ctx Record) (bool, error) {
	v, err := e.Eval(ctx)
	return v != 0, err
}

// UnmarshalYAML accepts either an integer scalar or an expression string.
func (e *Expr) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return &ParseError{Expr: value.Value, Msg: "expected a scalar"}
	}
	parsed, err := ParseExpr(value.Value)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseExpr parses the closed expression grammar.
func ParseExpr(src string) (Expr, error) {
	p := &exprParser{src: src, pos: 0}
	p.skipSpace()
	lhs, err := p.operand()
	if err != nil {
		return Expr{}, err
	}
	p.skipSpace()
	if p.done() {
		return Expr{src: src, node: lhs}, nil
	}
	op, err := p.comparison()
	if err != nil {
		return Expr{}, err
	}
	p.skipSpace()
	rhs, err := p.operand()
	if err != nil {
		return Expr{}, err
	}
	p.skipSpace()
	if !p.done() {
		return Expr{}, &ParseError{Expr: src, Msg: fmt.Sprintf("unexpected trailing %q", p.rest())}
	}
	return Expr{src: src, node: cmpNode{op: op, lhs: lhs, rhs: rhs}}, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) done() bool {
	return p.pos >= len(p.src)
}

func (p *exprParser) rest() string {
	return p.src[p.pos:]
}

func (p *exprParser) skipSpace() {
	for !p.done() && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) operand() (exprNode, error) {
	if p.done() {
		return nil, &ParseError{Expr: p.src, Msg: "expected an operand"}
	}
	c := p.src[p.pos]
	switch {
	case strings.HasPrefix(p.rest(), "${"):
		end := strings.IndexByte(p.rest(), '}')
		if end < 0 {
			return nil, &ParseError{Expr: p.src, Msg: "unterminated ${...} reference"}
		}
		name := p.rest()[2:end]
		if !validIdent(name) {
			return nil, &ParseError{Expr: p.src, Msg: fmt.Sprintf("invalid field name %q", name)}
		}
		p.pos += end + 1
		return refNode{name: name}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		start := p.pos
		if c == '-' {
			p.pos++
		}
		for !p.done() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		n, err := strconv.ParseInt(p.src[start:p.pos], 10, 64)
		if err != nil {
			return nil, &ParseError{Expr: p.src, Msg: fmt.Sprintf("invalid integer %q", p.src[start:p.pos])}
		}
		return litNode(n), nil
	case identStart(c):
		name := p.ident()
		if p.done() || p.src[p.pos] != '[' {
			return refNode{name: name}, nil
		}
		p.pos++
		index := p.ident()
		if index == "" || p.done() || p.src[p.pos] != ']' {
			return nil, &ParseError{Expr: p.src, Msg: "malformed index reference"}
		}
		p.pos++
		return refNode{name: name, index: index}, nil
	default:
		return nil, &ParseError{Expr: p.src, Msg: fmt.Sprintf("unexpected %q", p.rest())}
	}
}

func (p *exprParser) comparison() (string, error) {
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if strings.HasPrefix(p.rest(), op) {
			p.pos += len(op)
			return op, nil
		}
	}
	return "", &ParseError{Expr: p.src, Msg: fmt.Sprintf("expected a comparison operator before %q", p.rest())}
}

func (p *exprParser) ident() string {
	start := p.pos
	if p.done() || !identStart(p.src[p.pos]) {
		return ""
	}
	p.pos++
	for !p.done() && identPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func identStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func identPart(c byte) bool {
	return identStart(c) || (c >= '0' && c <= '9')
}

func validIdent(s string) bool {
	if s == "" || !identStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !identPart(s[i]) {
			return false
		}
	}
	return true
}
