package merger

import (
	"container/heap"
	"sort"

	"github.com/daqol/information-retrieval/internal/searcher/ranker"
)

// TopK orders docs by descending score, breaking ties by ascending
// location. A negative k returns all of them; otherwise at most k are kept
// using a bounded min-heap. docs is not modified.
func TopK(docs []ranker.ScoredDoc, k int) []ranker.ScoredDoc {
	if k < 0 {
		result := make([]ranker.ScoredDoc, len(docs))
		copy(result, docs)
		sort.Slice(result, func(i, j int) bool {
			return ahead(result[i], result[j])
		})
		return result
	}
	if k == 0 {
		return []ranker.ScoredDoc{}
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, doc := range docs {
		if h.Len() < k {
			heap.Push(h, doc)
			continue
		}
		if ahead(doc, (*h)[0]) {
			(*h)[0] = doc
			heap.Fix(h, 0)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// ahead reports whether a ranks before b.
func ahead(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Location < b.Location
}

// scoredDocHeap keeps the weakest document at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ahead(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
