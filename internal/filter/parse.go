package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/cohortmatch/internal/cohort"
)

// ParseError reports a syntax error with its byte offset in the source.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter expression at offset %d: %s", e.Offset, e.Message)
}

// Parse parses an eligibility expression into an AST.
// An empty or all-whitespace source is an error: callers represent
// "no extra condition" by not calling Parse at all.
func Parse(src string) (Expr, error) {
	p := &parser{src: src}
	p.next()

	if p.tok.kind == tokEOF {
		return nil, &ParseError{Offset: 0, Message: "empty expression"}
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.tok.kind != tokEOF {
		return nil, &ParseError{Offset: p.tok.offset, Message: fmt.Sprintf("unexpected %q", p.tok.text)}
	}

	return expr, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent            // bare identifier or dotted field reference
	tokString           // quoted string literal
	tokNumber           // integer or float literal
	tokOp               // comparison operator
	tokLParen
	tokRParen
)

type token struct {
	kind   tokenKind
	text   string
	offset int
}

type parser struct {
	src string
	pos int
	tok token
}

// next advances to the next token.
func (p *parser) next() {
	// Skip whitespace
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}

	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, offset: start}
		return
	}

	c := p.src[p.pos]
	switch {
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "(", offset: start}

	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")", offset: start}

	case c == '\'' || c == '"':
		quote := c
		p.pos++
		for p.pos < len(p.src) && p.src[p.pos] != quote {
			p.pos++
		}
		if p.pos >= len(p.src) {
			// Unterminated string surfaces as a parse error at use site
			p.tok = token{kind: tokEOF, text: "unterminated string", offset: start}
			return
		}
		text := p.src[start+1 : p.pos]
		p.pos++ // closing quote
		p.tok = token{kind: tokString, text: text, offset: start}

	case strings.ContainsRune("=!<>", rune(c)):
		op := string(c)
		p.pos++
		if p.pos < len(p.src) && p.src[p.pos] == '=' {
			op += "="
			p.pos++
		}
		p.tok = token{kind: tokOp, text: op, offset: start}

	case c == '-' || c >= '0' && c <= '9':
		p.pos++
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
			p.pos++
		}
		p.tok = token{kind: tokNumber, text: p.src[start:p.pos], offset: start}

	case isIdentStart(rune(c)):
		p.pos++
		for p.pos < len(p.src) && isIdentPart(rune(p.src[p.pos])) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.src[start:p.pos], offset: start}

	default:
		p.tok = token{kind: tokEOF, text: fmt.Sprintf("invalid character %q", c), offset: start}
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

// isKeyword reports whether the current token is the given keyword.
// Case-insensitive: both "AND" and "and" are accepted.
func (p *parser) isKeyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

// parseOr parses: andExpr (OR andExpr)*
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	var exprs []Expr
	for p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if exprs == nil {
			exprs = []Expr{left}
		}
		exprs = append(exprs, right)
	}

	if exprs == nil {
		return left, nil
	}
	return Or{Exprs: exprs}, nil
}

// parseAnd parses: unary (AND unary)*
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	var exprs []Expr
	for p.isKeyword("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if exprs == nil {
			exprs = []Expr{left}
		}
		exprs = append(exprs, right)
	}

	if exprs == nil {
		return left, nil
	}
	return And{Exprs: exprs}, nil
}

// parseUnary parses: NOT unary | primary
func (p *parser) parseUnary() (Expr, error) {
	if p.isKeyword("not") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Expr: inner}, nil
	}
	return p.parsePrimary()
}

// parsePrimary parses: '(' orExpr ')' | comparison
func (p *parser) parsePrimary() (Expr, error) {
	if p.tok.kind == tokLParen {
		open := p.tok.offset
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, &ParseError{Offset: open, Message: "unclosed parenthesis"}
		}
		p.next()
		return inner, nil
	}

	return p.parseComparison()
}

// parseComparison parses: operand op operand
func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.tok.kind != tokOp {
		return nil, &ParseError{Offset: p.tok.offset, Message: fmt.Sprintf("expected comparison operator, got %q", p.tok.text)}
	}

	op, err := parseOp(p.tok)
	if err != nil {
		return nil, err
	}
	p.next()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	return Compare{Left: left, Op: op, Right: right}, nil
}

func parseOp(t token) (Op, error) {
	switch t.text {
	case "==", "=":
		// Single "=" accepted for parity with the R-style condition
		// strings users paste in from study protocols.
		return OpEq, nil
	case "!=":
		return OpNe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	default:
		return "", &ParseError{Offset: t.offset, Message: fmt.Sprintf("unsupported operator %q", t.text)}
	}
}

// parseOperand parses a field reference or a literal.
func (p *parser) parseOperand() (Operand, error) {
	t := p.tok

	switch t.kind {
	case tokString:
		p.next()
		return Literal{Value: cohort.NewString(t.text)}, nil

	case tokNumber:
		p.next()
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, &ParseError{Offset: t.offset, Message: fmt.Sprintf("invalid number %q", t.text)}
			}
			return Literal{Value: cohort.Float(f)}, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, &ParseError{Offset: t.offset, Message: fmt.Sprintf("invalid number %q", t.text)}
		}
		return Literal{Value: cohort.Int(n)}, nil

	case tokIdent:
		switch {
		case strings.EqualFold(t.text, "true"):
			p.next()
			return Literal{Value: cohort.Bool(true)}, nil
		case strings.EqualFold(t.text, "false"):
			p.next()
			return Literal{Value: cohort.Bool(false)}, nil
		case strings.EqualFold(t.text, "null"), strings.EqualFold(t.text, "na"):
			p.next()
			return Literal{Value: cohort.Null{}}, nil
		}
		return p.parseFieldRef(t)

	default:
		return nil, &ParseError{Offset: t.offset, Message: fmt.Sprintf("expected operand, got %q", t.text)}
	}
}

// parseFieldRef parses "case.<col>" or "control.<col>".
// A bare column name without a subject prefix is rejected: requiring the
// prefix keeps which record a condition reads explicit.
func (p *parser) parseFieldRef(t token) (Operand, error) {
	subject, name, found := strings.Cut(t.text, ".")
	if !found {
		return nil, &ParseError{Offset: t.offset, Message: fmt.Sprintf("field %q must be prefixed with case. or control.", t.text)}
	}
	if name == "" || strings.Contains(name, ".") {
		return nil, &ParseError{Offset: t.offset, Message: fmt.Sprintf("invalid field reference %q", t.text)}
	}

	var subj Subject
	switch strings.ToLower(subject) {
	case "case":
		subj = SubjectCase
	case "control":
		subj = SubjectControl
	default:
		return nil, &ParseError{Offset: t.offset, Message: fmt.Sprintf("unknown subject %q (want case or control)", subject)}
	}

	p.next()
	return FieldRef{Subject: subj, Name: name}, nil
}
