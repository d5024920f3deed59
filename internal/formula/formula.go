// Package formula evaluates the arithmetic formulas of auto placeholders.
//
// The grammar is deliberately small: numbers, {key} references to other
// placeholders, + - * /, unary minus and parentheses. Nothing else is
// accepted, so a formula can never run arbitrary code.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = "-" unary | primary
//	primary = number | "{" key "}" | "(" expr ")"
package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Limits on formula size. Parsing is recursive, so nesting must be bounded.
const (
	MaxLength = 256
	MaxDepth  = 32
)

var (
	ErrSyntax       = errors.New("formula syntax error")
	ErrMissingValue = errors.New("formula input has no value")
	ErrDivByZero    = errors.New("formula divides by zero")
)

// Expr is a parsed formula.
type Expr struct {
	root node
	keys []string
}

// Parse compiles src.
func Parse(src string) (*Expr, error) {
	if len(src) > MaxLength {
		return nil, fmt.Errorf("%w: formula longer than %d bytes", ErrSyntax, MaxLength)
	}
	p := &parser{src: src, seen: map[string]bool{}}
	p.skipSpace()
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return &Expr{root: root, keys: p.keys}, nil
}

// Keys returns the referenced placeholder keys in order of first use.
func (e *Expr) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Eval computes the formula. Every referenced key must be present in vars.
func (e *Expr) Eval(vars map[string]float64) (float64, error) {
	return e.root.eval(vars)
}

type node interface {
	eval(vars map[string]float64) (float64, error)
}

type number float64

func (n number) eval(map[string]float64) (float64, error) { return float64(n), nil }

type ref string

func (r ref) eval(vars map[string]float64) (float64, error) {
	v, ok := vars[string(r)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingValue, string(r))
	}
	return v, nil
}

type neg struct{ x node }

func (n neg) eval(vars map[string]float64) (float64, error) {
	v, err := n.x.eval(vars)
	return -v, err
}

type binary struct {
	op   byte
	l, r node
}

func (b binary) eval(vars map[string]float64) (float64, error) {
	l, err := b.l.eval(vars)
	if err != nil {
		return 0, err
	}
	r, err := b.r.eval(vars)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		if r == 0 {
			return 0, ErrDivByZero
		}
		return l / r, nil
	}
}

type parser struct {
	src   string
	pos   int
	depth int
	keys  []string
	seen  map[string]bool
}

// enter is called before every recursive descent; leave undoes it.
func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return p.errorf("nesting deeper than %d", MaxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return l, nil
		}
		p.pos++
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binary{op: op, l: l, r: r}
	}
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return l, nil
		}
		p.pos++
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binary{op: op, l: l, r: r}
	}
}

func (p *parser) unary() (node, error) {
	if p.peek() == '-' {
		p.pos++
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return neg{x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of formula")
	case c == '(':
		p.pos++
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, p.errorf("missing )")
		}
		p.pos++
		return x, nil
	case c == '{':
		end := strings.IndexByte(p.src[p.pos:], '}')
		if end < 0 {
			return nil, p.errorf("unterminated placeholder reference")
		}
		key := strings.TrimSpace(p.src[p.pos+1 : p.pos+end])
		if key == "" {
			return nil, p.errorf("empty placeholder reference")
		}
		p.pos += end + 1
		if !p.seen[key] {
			p.seen[key] = true
			p.keys = append(p.keys, key)
		}
		return ref(key), nil
	case c == '.' || (c >= '0' && c <= '9'):
		start := p.pos
		for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
			p.pos++
		}
		text := p.src[start:p.pos]
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.pos = start
			return nil, p.errorf("bad number %q", text)
		}
		return number(v), nil
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}
