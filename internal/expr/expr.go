// Package expr implements the restricted expression language used by
// calculation nodes of the dialogue graph.
//
// A step has the form "name = expression". Expressions support numbers,
// quoted strings, context variables, arithmetic, comparisons, parentheses
// and calls into an explicit function registry. There is no other name
// resolution and no side effects beyond the single assignment.
package expr

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/soldasur/advisor/internal/models"
)

// Func is a function callable from calculation steps.
type Func func(args []models.Value) (models.Value, error)

// Registry maps function names to implementations. Only registered
// functions can be called; anything else is an evaluation error.
type Registry map[string]Func

// EvalAssignment evaluates a "name = expression" step and writes the result
// into ctx. The context is only modified on success.
func EvalAssignment(step string, ctx models.Context, funcs Registry) error {
	name, rhs, err := splitAssignment(step)
	if err != nil {
		return err
	}
	val, err := EvalExpression(rhs, ctx, funcs)
	if err != nil {
		slog.Debug("expr.EvalAssignment failed", "step", step, "error", err)
		return fmt.Errorf("evaluating %q: %w", step, err)
	}
	ctx[name] = val
	return nil
}

// EvalExpression evaluates a single expression against the context.
func EvalExpression(input string, ctx models.Context, funcs Registry) (models.Value, error) {
	tokens, err := lex(normalize(input))
	if err != nil {
		return models.Value{}, err
	}
	p := &parser{tokens: tokens, ctx: ctx, funcs: funcs}
	val, err := p.parseComparison()
	if err != nil {
		return models.Value{}, err
	}
	if p.pos != len(p.tokens) {
		return models.Value{}, fmt.Errorf("unexpected token %q", p.tokens[p.pos].text)
	}
	return val, nil
}

func splitAssignment(step string) (name, rhs string, err error) {
	idx := strings.Index(step, "=")
	if idx <= 0 {
		return "", "", fmt.Errorf("step %q is not an assignment", step)
	}
	name = strings.TrimSpace(step[:idx])
	rhs = strings.TrimSpace(step[idx+1:])
	if name == "" || rhs == "" {
		return "", "", fmt.Errorf("step %q is not an assignment", step)
	}
	for _, r := range name {
		if !isIdentRune(r) {
			return "", "", fmt.Errorf("step %q assigns to invalid name %q", step, name)
		}
	}
	return name, rhs, nil
}

// normalize strips the context['var'] indexing sugar that legacy knowledge
// bases use, leaving a bare variable name.
func normalize(input string) string {
	input = strings.ReplaceAll(input, "context['", "")
	input = strings.ReplaceAll(input, "']", "")
	return input
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")"})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ","})
			i++
		case r == '+' || r == '-' || r == '*' || r == '/':
			tokens = append(tokens, token{kind: tokOp, text: string(r)})
			i++
		case r == '<' || r == '>' || r == '=' || r == '!':
			op := string(r)
			if i+1 < len(runes) && runes[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("unexpected %q in expression", op)
			}
			tokens = append(tokens, token{kind: tokOp, text: op})
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j == len(runes) {
				return nil, fmt.Errorf("unterminated string starting at %q", string(runes[i:]))
			}
			tokens = append(tokens, token{kind: tokString, text: string(runes[i+1 : j])})
			i = j + 1
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			num, err := strconv.ParseFloat(string(runes[i:j]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q: %w", string(runes[i:j]), err)
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[i:j]), num: num})
			i = j
		case isIdentRune(r):
			j := i
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(r))
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
	ctx    models.Context
	funcs  Registry
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseComparison() (models.Value, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return models.Value{}, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp {
			return left, nil
		}
		switch t.text {
		case "<", "<=", ">", ">=", "==", "!=":
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseAdditive()
		if err != nil {
			return models.Value{}, err
		}
		left, err = compare(t.text, left, right)
		if err != nil {
			return models.Value{}, err
		}
	}
}

func (p *parser) parseAdditive() (models.Value, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return models.Value{}, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicative()
		if err != nil {
			return models.Value{}, err
		}
		left, err = arithmetic(t.text, left, right)
		if err != nil {
			return models.Value{}, err
		}
	}
}

func (p *parser) parseMultiplicative() (models.Value, error) {
	left, err := p.parseUnary()
	if err != nil {
		return models.Value{}, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return models.Value{}, err
		}
		left, err = arithmetic(t.text, left, right)
		if err != nil {
			return models.Value{}, err
		}
	}
}

func (p *parser) parseUnary() (models.Value, error) {
	t, ok := p.peek()
	if ok && t.kind == tokOp && t.text == "-" {
		p.pos++
		val, err := p.parseUnary()
		if err != nil {
			return models.Value{}, err
		}
		n, isNum := val.Number()
		if !isNum {
			return models.Value{}, fmt.Errorf("unary minus on non-number")
		}
		return models.NumberValue(-n), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (models.Value, error) {
	t, ok := p.peek()
	if !ok {
		return models.Value{}, fmt.Errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokNumber:
		p.pos++
		return models.NumberValue(t.num), nil
	case tokString:
		p.pos++
		return models.StringValue(t.text), nil
	case tokLParen:
		p.pos++
		val, err := p.parseComparison()
		if err != nil {
			return models.Value{}, err
		}
		if t, ok := p.peek(); !ok || t.kind != tokRParen {
			return models.Value{}, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	case tokIdent:
		p.pos++
		if next, ok := p.peek(); ok && next.kind == tokLParen {
			return p.parseCall(t.text)
		}
		val, ok := p.ctx[t.text]
		if !ok {
			return models.Value{}, fmt.Errorf("unknown variable %q", t.text)
		}
		return val, nil
	default:
		return models.Value{}, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parseCall(name string) (models.Value, error) {
	fn, ok := p.funcs[name]
	if !ok {
		return models.Value{}, fmt.Errorf("unknown function %q", name)
	}
	p.pos++ // consume "("
	var args []models.Value
	if t, ok := p.peek(); ok && t.kind == tokRParen {
		p.pos++
		return fn(args)
	}
	for {
		arg, err := p.parseComparison()
		if err != nil {
			return models.Value{}, err
		}
		args = append(args, arg)
		t, ok := p.peek()
		if !ok {
			return models.Value{}, fmt.Errorf("unterminated call to %q", name)
		}
		switch t.kind {
		case tokComma:
			p.pos++
		case tokRParen:
			p.pos++
			result, err := fn(args)
			if err != nil {
				return models.Value{}, fmt.Errorf("%s: %w", name, err)
			}
			return result, nil
		default:
			return models.Value{}, fmt.Errorf("unexpected token %q in call to %q", t.text, name)
		}
	}
}

func arithmetic(op string, left, right models.Value) (models.Value, error) {
	l, lok := left.Number()
	r, rok := right.Number()
	if !lok || !rok {
		return models.Value{}, fmt.Errorf("operator %q requires numbers", op)
	}
	switch op {
	case "+":
		return models.NumberValue(l + r), nil
	case "-":
		return models.NumberValue(l - r), nil
	case "*":
		return models.NumberValue(l * r), nil
	case "/":
		if r == 0 {
			return models.Value{}, fmt.Errorf("division by zero")
		}
		return models.NumberValue(l / r), nil
	}
	return models.Value{}, fmt.Errorf("unknown operator %q", op)
}

func compare(op string, left, right models.Value) (models.Value, error) {
	boolVal := func(b bool) models.Value {
		if b {
			return models.NumberValue(1)
		}
		return models.NumberValue(0)
	}
	if ls, lok := left.Text(); lok {
		rs, rok := right.Text()
		if !rok {
			return models.Value{}, fmt.Errorf("operator %q compares mixed types", op)
		}
		switch op {
		case "==":
			return boolVal(ls == rs), nil
		case "!=":
			return boolVal(ls != rs), nil
		}
		return models.Value{}, fmt.Errorf("operator %q not defined for strings", op)
	}
	l, lok := left.Number()
	r, rok := right.Number()
	if !lok || !rok {
		return models.Value{}, fmt.Errorf("operator %q requires numbers or strings", op)
	}
	switch op {
	case "<":
		return boolVal(l < r), nil
	case "<=":
		return boolVal(l <= r), nil
	case ">":
		return boolVal(l > r), nil
	case ">=":
		return boolVal(l >= r), nil
	case "==":
		return boolVal(l == r), nil
	case "!=":
		return boolVal(l != r), nil
	}
	return models.Value{}, fmt.Errorf("unknown operator %q", op)
}
