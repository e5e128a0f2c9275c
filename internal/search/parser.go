package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrMalformed is returned for unbalanced parentheses or dangling operators.
	ErrMalformed = errors.New("malformed search")
	// ErrUnknownTerm is returned for a term the compiler does not understand.
	ErrUnknownTerm = errors.New("unknown search term")
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokOpen
	tokClose
	tokNeg
	tokOr
	tokAnd
)

type token struct {
	kind tokenKind
	text string
}

type state int

const (
	seeking state = iota
	readingWord
	readingQuoted
)

// tokenize splits a query into words, parentheses and operators. Double quotes
// group words that contain spaces.
func tokenize(query string) ([]token, error) {
	var tokens []token
	var current strings.Builder
	currentState := seeking

	finishWord := func() {
		if current.Len() > 0 {
			word := current.String()
			switch strings.ToLower(word) {
			case "or":
				tokens = append(tokens, token{kind: tokOr})
			case "and":
				tokens = append(tokens, token{kind: tokAnd})
			default:
				tokens = append(tokens, token{kind: tokWord, text: word})
			}
			current.Reset()
		}
		currentState = seeking
	}

	for _, r := range query {
		switch currentState {
		case readingQuoted:
			if r == '"' {
				currentState = readingWord
				continue
			}
			current.WriteRune(r)
		case seeking:
			switch {
			case unicode.IsSpace(r):
			case r == '(':
				tokens = append(tokens, token{kind: tokOpen})
			case r == ')':
				tokens = append(tokens, token{kind: tokClose})
			case r == '-':
				tokens = append(tokens, token{kind: tokNeg})
			case r == '"':
				currentState = readingQuoted
			default:
				currentState = readingWord
				current.WriteRune(r)
			}
		case readingWord:
			switch {
			case unicode.IsSpace(r):
				finishWord()
			case r == '(' || r == ')':
				finishWord()
				kind := tokOpen
				if r == ')' {
					kind = tokClose
				}
				tokens = append(tokens, token{kind: kind})
			case r == '"':
				currentState = readingQuoted
			default:
				current.WriteRune(r)
			}
		}
	}

	if currentState == readingQuoted {
		return nil, fmt.Errorf("%w: unterminated quote", ErrMalformed)
	}
	finishWord()

	return tokens, nil
}

// parser turns tokens into a SQL condition by recursive descent:
//
//	expr  := and ("or" and)*
//	and   := unary ("and"? unary)*
//	unary := "-" unary | "(" expr ")" | term
type parser struct {
	tokens []token
	pos    int
	env    Env
	args   []any
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseExpr() (string, error) {
	left, err := p.parseAnd()
	if err != nil {
		return "", err
	}
	parts := []string{left}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOr {
			break
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return "", err
		}
		parts = append(parts, right)
	}
	if len(parts) == 1 {
		return left, nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (p *parser) parseAnd() (string, error) {
	var parts []string
	for {
		tok, ok := p.peek()
		if !ok || tok.kind == tokOr || tok.kind == tokClose {
			break
		}
		if tok.kind == tokAnd {
			if len(parts) == 0 {
				return "", fmt.Errorf("%w: 'and' without left operand", ErrMalformed)
			}
			p.pos++
			continue
		}
		cond, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: empty expression", ErrMalformed)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

func (p *parser) parseUnary() (string, error) {
	tok, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("%w: unexpected end", ErrMalformed)
	}
	p.pos++
	switch tok.kind {
	case tokNeg:
		inner, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		return "NOT " + inner, nil
	case tokOpen:
		inner, err := p.parseExpr()
		if err != nil {
			return "", err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokClose {
			return "", fmt.Errorf("%w: missing ')'", ErrMalformed)
		}
		p.pos++
		return "(" + inner + ")", nil
	case tokWord:
		return p.term(tok.text)
	default:
		return "", fmt.Errorf("%w: unexpected token", ErrMalformed)
	}
}

// compile turns a query into a SQL condition over cards c, notes n and decks d.
// An empty query matches every card.
func compile(query string, env Env) (string, []any, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return "", nil, err
	}
	if len(tokens) == 0 {
		return "1 = 1", nil, nil
	}
	p := &parser{tokens: tokens, env: env}
	cond, err := p.parseExpr()
	if err != nil {
		return "", nil, err
	}
	if p.pos != len(p.tokens) {
		return "", nil, fmt.Errorf("%w: unbalanced ')'", ErrMalformed)
	}
	return cond, p.args, nil
}
