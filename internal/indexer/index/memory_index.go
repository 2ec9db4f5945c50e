package index

import (
	"sort"
	"sync"
)

// MemoryIndex holds the resident part of the collection: postings per term
// and the norm of every resident document.
type MemoryIndex struct {
	mu    sync.RWMutex
	index map[string]map[string]int
	norms map[string]float64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[string]int),
		norms: make(map[string]float64),
	}
}

// AddDocument inserts all postings and the norm of doc at once. It returns
// false without changes if doc is already resident.
func (m *MemoryIndex) AddDocument(doc string, counts map[string]int, norm float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.norms[doc]; exists {
		return false
	}
	for term, freq := range counts {
		if freq <= 0 {
			continue
		}
		docs, exists := m.index[term]
		if !exists {
			docs = make(map[string]int)
			m.index[term] = docs
		}
		docs[doc] = freq
	}
	m.norms[doc] = norm
	return true
}

func (m *MemoryIndex) Contains(doc string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.norms[doc]
	return ok
}

// Search returns a copy of the resident postings of term keyed by document.
func (m *MemoryIndex) Search(term string) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.index[term]
	out := make(map[string]int, len(docs))
	for doc, freq := range docs {
		out[doc] = freq
	}
	return out
}

func (m *MemoryIndex) Norm(doc string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.norms[doc]
	return n, ok
}

// Documents returns the resident document identifiers.
func (m *MemoryIndex) Documents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]string, 0, len(m.norms))
	for doc := range m.norms {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// Snapshot copies the resident state, ordered by term then document.
func (m *MemoryIndex) Snapshot() ([]TermEntry, []DocNorm) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for doc, freq := range docs {
			postings = append(postings, Posting{Term: term, Doc: doc, Frequency: freq})
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].Doc < postings[j].Doc
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	norms := make([]DocNorm, 0, len(m.norms))
	for doc, n := range m.norms {
		norms = append(norms, DocNorm{Doc: doc, Norm: n})
	}
	sort.Slice(norms, func(i, j int) bool {
		return norms[i].Doc < norms[j].Doc
	})
	return entries, norms
}

// TermCount is the number of distinct resident terms.
func (m *MemoryIndex) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.norms)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]int)
	m.norms = make(map[string]float64)
}

// Flatten turns term entries into a single posting list.
func Flatten(entries []TermEntry) PostingList {
	n := 0
	for _, e := range entries {
		n += len(e.Postings)
	}
	out := make(PostingList, 0, n)
	for _, e := range entries {
		out = append(out, e.Postings...)
	}
	return out
}
