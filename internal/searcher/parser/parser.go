// Package parser turns boolean query strings into expression trees.
//
// Grammar, lowest precedence first:
//
//	expr    = and { OR and }
//	and     = unary { [AND] unary }
//	unary   = NOT unary | primary
//	primary = WORD | "(" expr ")"
//
// Operator keywords are matched case-insensitively before normalization.
// Every other word goes through the tokenizer; a word that yields several
// terms becomes an implicit AND of them, and adjacent operands without an
// operator are also joined by AND.
package parser

import (
	"fmt"
	"strings"

	"github.com/daqol/information-retrieval/internal/indexer/tokenizer"
	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

// Node is a boolean expression.
type Node interface {
	String() string
	node()
}

// Term matches documents containing the normalized term. An empty Term
// comes from a word that normalizes to nothing and matches no document.
type Term struct {
	Value string
	Word  string
}

type Not struct {
	Operand Node
}

type And struct {
	Operands []Node
}

type Or struct {
	Operands []Node
}

func (Term) node() {}
func (Not) node() {}
func (And) node() {}
func (Or) node() {}

func (t Term) String() string {
	if t.Value == "" {
		return fmt.Sprintf("<%s>", t.Word)
	}
	return t.Value
}

func (n Not) String() string { return "NOT " + n.Operand.String() }

func (a And) String() string { return join(a.Operands, " AND ") }

func (o Or) String() string { return join(o.Operands, " OR ") }

func join(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Terms lists the distinct non-empty terms referenced by n, in order of
// first appearance.
func Terms(n Node) []string {
	var out []string
	seen := map[string]struct{}{}
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Term:
			if _, ok := seen[v.Value]; !ok && v.Value != "" {
				seen[v.Value] = struct{}{}
				out = append(out, v.Value)
			}
		case Not:
			walk(v.Operand)
		case And:
			for _, o := range v.Operands {
				walk(o)
			}
		case Or:
			for _, o := range v.Operands {
				walk(o)
			}
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// Parse builds the expression tree of query. A blank query yields a nil
// Node and no error. Malformed input yields *errors.ParseError.
func Parse(query string) (Node, error) {
	toks := lex(query)
	if len(toks) == 0 {
		return nil, nil
	}
	p := &parser{query: query, toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		t := p.peek()
		if t.kind == tokRParen {
			return nil, p.errorf(t.pos, "unbalanced ')'")
		}
		return nil, p.errorf(t.pos, "unexpected %q", t.text)
	}
	return n, nil
}

type parser struct {
	query string
	toks  []token
	i     int
}

func (p *parser) done() bool { return p.i >= len(p.toks) }

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	p.i++
	return t
}

func (p *parser) at(k kind) bool { return !p.done() && p.peek().kind == k }

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &apperrors.ParseError{Query: p.query, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []Node{first}
	for p.at(tokOr) {
		p.next()
		n, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, n)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return flatten(Or{Operands: operands}), nil
}

func (p *parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	operands := []Node{first}
	for {
		if p.at(tokAnd) {
			p.next()
		} else if !p.at(tokWord) && !p.at(tokNot) && !p.at(tokLParen) {
			break
		}
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, n)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return flatten(And{Operands: operands}), nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.at(tokNot) {
		p.next()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Operand: n}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if p.done() {
		return nil, p.errorf(len(p.query), "missing operand at end of query")
	}
	t := p.next()
	switch t.kind {
	case tokWord:
		return wordNode(t.text), nil
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.at(tokRParen) {
			return nil, p.errorf(t.pos, "unbalanced '('")
		}
		p.next()
		return n, nil
	case tokRParen:
		return nil, p.errorf(t.pos, "missing operand before ')'")
	default:
		return nil, p.errorf(t.pos, "missing operand before %s", strings.ToUpper(t.text))
	}
}

func wordNode(word string) Node {
	terms := tokenizer.Normalize(word)
	switch len(terms) {
	case 0:
		return Term{Word: word}
	case 1:
		return Term{Value: terms[0], Word: word}
	}
	operands := make([]Node, len(terms))
	for i, term := range terms {
		operands[i] = Term{Value: term, Word: word}
	}
	return And{Operands: operands}
}

// flatten merges nested operands of the same operator into their parent.
func flatten(n Node) Node {
	switch v := n.(type) {
	case And:
		var out []Node
		for _, o := range v.Operands {
			if inner, ok := o.(And); ok {
				out = append(out, inner.Operands...)
			} else {
				out = append(out, o)
			}
		}
		return And{Operands: out}
	case Or:
		var out []Node
		for _, o := range v.Operands {
			if inner, ok := o.(Or); ok {
				out = append(out, inner.Operands...)
			} else {
				out = append(out, o)
			}
		}
		return Or{Operands: out}
	}
	return n
}
