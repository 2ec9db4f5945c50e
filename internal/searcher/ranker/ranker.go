// Package ranker scores documents against a free-text query with damped
// tf-idf weights normalized by document length (cosine similarity without
// the query-side norm).
package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/daqol/information-retrieval/internal/indexer/index"
)

type ScoredDoc struct {
	Location string  `json:"location"`
	Score    float64 `json:"score"`
}

// Options controls vector search. Above <= 0 disables the score floor and
// Top < 0 returns every match.
type Options struct {
	Above float64 `json:"above"`
	Top   int     `json:"top"`
}

func DefaultOptions() Options {
	return Options{Above: 0.2, Top: -1}
}

// Source is the read side of the collection needed for scoring.
type Source interface {
	DocumentsForTerm(ctx context.Context, term string) (map[string]int, error)
	NormOf(ctx context.Context, doc string) (float64, error)
	TotalDocumentCount(ctx context.Context) (int, error)
}

// QueryWeights counts how often each term occurs in the query.
func QueryWeights(terms []string) map[string]int {
	weights := make(map[string]int, len(terms))
	for _, t := range terms {
		weights[t]++
	}
	return weights
}

// IDF is ln(1 + N/n). A term no document contains has no weight.
func IDF(totalDocs, docFreq int) float64 {
	if docFreq <= 0 || totalDocs <= 0 {
		return 0
	}
	return math.Log(1 + float64(totalDocs)/float64(docFreq))
}

// Score returns every document sharing at least one term with the query and
// scoring at least above, in no particular order.
func Score(ctx context.Context, src Source, terms []string, above float64) ([]ScoredDoc, error) {
	weights := QueryWeights(terms)
	if len(weights) == 0 {
		return []ScoredDoc{}, nil
	}
	total, err := src.TotalDocumentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	// fixed term order keeps floating point sums reproducible
	distinct := make([]string, 0, len(weights))
	for t := range weights {
		distinct = append(distinct, t)
	}
	sort.Strings(distinct)

	scores := make(map[string]float64)
	for _, term := range distinct {
		docs, err := src.DocumentsForTerm(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("postings of %q: %w", term, err)
		}
		idf := IDF(total, len(docs))
		if idf == 0 {
			continue
		}
		q := float64(weights[term])
		for doc, f := range docs {
			scores[doc] += q * index.TermWeight(f) * idf
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for doc, s := range scores {
		norm, err := src.NormOf(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("scoring %s: %w", doc, err)
		}
		if norm == 0 {
			continue
		}
		s /= norm
		if above > 0 && s < above {
			continue
		}
		result = append(result, ScoredDoc{Location: doc, Score: s})
	}
	return result, nil
}
