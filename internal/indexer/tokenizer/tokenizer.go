// Package tokenizer turns raw text into index terms. It strips URLs and
// punctuation, lower-cases, removes English stop-words (keeping the boolean
// keywords "and", "or" and "not") and applies the Porter2 stemmer.
package tokenizer

import (
	"iter"
	"regexp"
	"strings"

	"github.com/kljensen/snowball/english"
)

var (
	linkPattern     = regexp.MustCompile(`https?\S+`)
	nonWordPattern  = regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`)
	stopWordsSource = `i me my myself we our ours ourselves you your yours yourself
yourselves he him his himself she her hers herself it its itself they them
their theirs themselves what which who whom this that these those am is are
was were be been being have has had having do does did doing a an the but if
because as until while of at by for with about against between into through
during before after above below to from up down in out on off over under
again further then once here there when where why how all any both each few
more most other some such no nor only own same so than too very s t can will
just don should now`
)

var stopWords = func() map[string]struct{} {
	words := strings.Fields(stopWordsSource)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// IsStopWord reports whether the lower-cased word is dropped during
// normalization.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Terms yields the normalized terms of text in order. The sequence can be
// ranged over more than once.
func Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		cleaned := linkPattern.ReplaceAllString(text, " ")
		cleaned = nonWordPattern.ReplaceAllString(cleaned, " ")
		for _, word := range strings.Fields(cleaned) {
			word = strings.ToLower(word)
			if IsStopWord(word) {
				continue
			}
			term := english.Stem(word, false)
			if term == "" {
				continue
			}
			if !yield(term) {
				return
			}
		}
	}
}

// Normalize returns every term of text as a slice.
func Normalize(text string) []string {
	terms := make([]string, 0, len(text)/6)
	for term := range Terms(text) {
		terms = append(terms, term)
	}
	return terms
}

// Count returns the frequency of each term of text.
func Count(text string) map[string]int {
	counts := make(map[string]int)
	for term := range Terms(text) {
		counts[term]++
	}
	return counts
}
