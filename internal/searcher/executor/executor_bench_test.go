package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/daqol/information-retrieval/internal/searcher/ranker"
)

var benchTerms = []string{"cat", "dog", "bird", "fish", "hors", "mous", "wolf", "bear"}

// benchCorpus spreads benchTerms over docs documents with a fixed seed.
func benchCorpus(docs int) *memSource {
	r := rand.New(rand.NewPCG(1, 2))
	src := &memSource{postings: map[string]map[string]int{}, norms: map[string]float64{}}
	for i := range docs {
		doc := fmt.Sprintf("https://example.com/%06d", i)
		src.norms[doc] = 1 + r.Float64()*4
		for _, term := range benchTerms {
			if r.IntN(3) == 0 {
				if src.postings[term] == nil {
					src.postings[term] = map[string]int{}
				}
				src.postings[term][doc] = 1 + r.IntN(5)
			}
		}
	}
	return src
}

func BenchmarkBoolean(b *testing.B) {
	e := New(benchCorpus(10000), nil, time.Minute)
	ctx := context.Background()
	for _, q := range []string{"cat", "cat AND dog", "(cat OR bird) AND NOT fish", "NOT wolf"} {
		b.Run(q, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := e.Boolean(ctx, q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkVector(b *testing.B) {
	e := New(benchCorpus(10000), nil, time.Minute)
	ctx := context.Background()
	for _, top := range []int{10, 100, -1} {
		b.Run(fmt.Sprintf("top_%d", top), func(b *testing.B) {
			b.ReportAllocs()
			opts := ranker.Options{Above: 0, Top: top}
			for b.Loop() {
				if _, err := e.Vector(ctx, "cats dogs birds", opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
