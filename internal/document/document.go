// Package document models the units the engine indexes. A document is
// identified by its location, can be fetched and read as text, and caches
// its term counts and norm after the first tokenization.
package document

import (
	"context"
	"io"
	"sync"

	"github.com/daqol/information-retrieval/internal/indexer/index"
	"github.com/daqol/information-retrieval/internal/indexer/tokenizer"
)

// Document is implemented by *LocalDocument and *RemoteDocument only.
type Document interface {
	// Location is the canonical identity. For remote documents it becomes
	// the post-redirect URL once fetched.
	Location() string
	// Fetch opens the raw content.
	Fetch(ctx context.Context) (io.ReadCloser, error)
	// Read returns the textual content. ok is false when the document has no
	// text to offer, which is not an error.
	Read(ctx context.Context) (text string, ok bool, err error)
	// Tokenize returns term counts, computing them and the norm on the first
	// successful call. The returned map must not be modified.
	Tokenize(ctx context.Context) (map[string]int, error)
	// Norm is the vector length; zero until Tokenize has succeeded.
	Norm() float64

	sealed()
}

// terms is the compute-once cache shared by both variants. A failed read is
// not cached so the caller may try again.
type terms struct {
	mu     sync.Mutex
	counts map[string]int
	norm   float64
	done   bool
}

func (t *terms) tokenize(ctx context.Context, read func(context.Context) (string, bool, error)) (map[string]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.counts, nil
	}
	text, ok, err := read(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	if ok {
		counts = tokenizer.Count(text)
	}
	t.counts = counts
	t.norm = index.Norm(counts)
	t.done = true
	return t.counts, nil
}

func (t *terms) Norm() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.norm
}
