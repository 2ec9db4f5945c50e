package parser

import (
	"strings"
	"unicode"
)

type kind int

const (
	tokWord kind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind kind
	text string
	pos  int
}

// lex splits query on whitespace and parentheses. Words equal to and, or,
// not (any case) become operators.
func lex(query string) []token {
	var toks []token
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := query[start:end]
		k := tokWord
		switch strings.ToLower(word) {
		case "and":
			k = tokAnd
		case "or":
			k = tokOr
		case "not":
			k = tokNot
		}
		toks = append(toks, token{kind: k, text: word, pos: start})
		start = -1
	}
	for i, r := range query {
		switch {
		case r == '(' || r == ')':
			flush(i)
			k := tokLParen
			if r == ')' {
				k = tokRParen
			}
			toks = append(toks, token{kind: k, text: string(r), pos: i})
		case unicode.IsSpace(r):
			flush(i)
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(query))
	return toks
}
