package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripsLinksAndPunctuation(t *testing.T) {
	got := Normalize("Visit https://example.com/page?x=1 for Running dogs!")
	assert.Equal(t, []string{"visit", "run", "dog"}, got)
}

func TestNormalizeKeepsBooleanKeywords(t *testing.T) {
	got := Normalize("cats AND dogs OR NOT birds")
	assert.Equal(t, []string{"cat", "and", "dog", "or", "not", "bird"}, got)
}

func TestNormalizeDropsStopWords(t *testing.T) {
	assert.Empty(t, Normalize("the of the"))
	assert.Empty(t, Normalize("The, a; an."))
}

func TestNormalizeKeepsHyphenAndUnderscore(t *testing.T) {
	got := Normalize("state-of-the-art snake_case")
	assert.Equal(t, []string{"state-of-the-art", "snake_cas"}, got)
}

func TestNormalizeNeverEmitsEmptyTerms(t *testing.T) {
	for _, term := range Normalize("  ...  !!! \n\t ,,, ") {
		assert.NotEmpty(t, term)
	}
	assert.Empty(t, Normalize(""))
}

func TestTermsIsRestartable(t *testing.T) {
	seq := Terms("searching engines")
	var first, second []string
	for term := range seq {
		first = append(first, term)
	}
	for term := range seq {
		second = append(second, term)
	}
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"search", "engin"}, first)
}

func TestCount(t *testing.T) {
	counts := Count("Dog dogs DOG cat")
	assert.Equal(t, map[string]int{"dog": 3, "cat": 1}, counts)
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.False(t, IsStopWord("and"))
	assert.False(t, IsStopWord("or"))
	assert.False(t, IsStopWord("not"))
}
