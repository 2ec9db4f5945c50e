package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

func TestParsePrecedence(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"cat", "cat"},
		{"cat AND dog", "(cat AND dog)"},
		{"cat or dog and bird", "(cat OR (dog AND bird))"},
		{"NOT cat AND dog", "(NOT cat AND dog)"},
		{"NOT (cat OR dog)", "NOT (cat OR dog)"},
		{"(cat OR dog) AND bird", "((cat OR dog) AND bird)"},
		{"cat AND dog AND bird", "(cat AND dog AND bird)"},
		{"cat OR dog OR bird", "(cat OR dog OR bird)"},
		{"NOT NOT cat", "NOT NOT cat"},
		{"cats dogs", "(cat AND dog)"},
		{"cat NOT dog", "(cat AND NOT dog)"},
		{"e.mail OR fax", "((e AND mail) OR fax)"},
		{"the AND cat", "(<the> AND cat)"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			n, err := Parse(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, n.String())
		})
	}
}

func TestParseBlankQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		n, err := Parse(q)
		assert.NoError(t, err)
		assert.Nil(t, n)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		query string
		pos   int
	}{
		{"cat AND", 7},
		{"AND cat", 0},
		{"cat OR OR dog", 7},
		{"(cat OR dog", 0},
		{"cat OR dog)", 10},
		{"()", 1},
		{"NOT", 3},
		{"cat AND (", 9},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			_, err := Parse(tc.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrParse)
			var pe *apperrors.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.pos, pe.Pos)
		})
	}
}

func TestTerms(t *testing.T) {
	n, err := Parse("(cats OR dog) AND NOT cat AND the")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, Terms(n))
	assert.Nil(t, Terms(nil))
}

func TestLexPositions(t *testing.T) {
	toks := lex("(a Or b)")
	require.Len(t, toks, 5)
	assert.Equal(t, token{kind: tokLParen, text: "(", pos: 0}, toks[0])
	assert.Equal(t, token{kind: tokOr, text: "Or", pos: 3}, toks[2])
	assert.Equal(t, token{kind: tokRParen, text: ")", pos: 7}, toks[4])
}
