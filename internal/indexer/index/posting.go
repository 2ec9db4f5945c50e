package index

import "math"

// Posting records that Doc contains Term Frequency times.
type Posting struct {
	Term      string
	Doc       string
	Frequency int
}

type PostingList []Posting

// TermEntry groups the postings of one term, ordered by document.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocNorm is the vector length of a document under the tf weighting.
type DocNorm struct {
	Doc  string
	Norm float64
}

// TermWeight is the damped term frequency: 1 for a single occurrence,
// 1 + ln(f) otherwise.
func TermWeight(f int) float64 {
	if f <= 1 {
		return 1
	}
	return 1 + math.Log(float64(f))
}

// Norm computes sqrt(sum of squared term weights) over counts.
func Norm(counts map[string]int) float64 {
	var sum float64
	for _, f := range counts {
		w := TermWeight(f)
		sum += w * w
	}
	return math.Sqrt(sum)
}
