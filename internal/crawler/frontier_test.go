package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "http://x.org/p", Canonicalize("http://x.org/p?x=1#y"))
	assert.Equal(t, "http://x.org/p", Canonicalize("http://x.org/p#y?x=1"))
	assert.Equal(t, "http://x.org/p", Canonicalize("http://x.org/p"))
}

func TestFrontierDeduplicatesVariants(t *testing.T) {
	f := NewFrontier()
	assert.True(t, f.Add("http://x.org/p"))
	assert.False(t, f.Add("http://x.org/p?x=1"))
	assert.False(t, f.Add("http://x.org/p#frag"))
	assert.True(t, f.Add("http://x.org/q"))
	assert.Equal(t, []string{"http://x.org/p", "http://x.org/q"}, f.Unvisited())
}

func TestFrontierBadIsPermanent(t *testing.T) {
	f := NewFrontier()
	f.Add("http://x.org/p")
	f.MarkBad("http://x.org/p?retry=1")
	f.MarkVisited("http://x.org/p")
	assert.False(t, f.Add("http://x.org/p"))

	s, ok := f.State("http://x.org/p")
	assert.True(t, ok)
	assert.Equal(t, Bad, s)
	assert.Empty(t, f.Unvisited())

	f.Add("http://x.org/q")
	f.MarkVisited("http://x.org/q")
	unvisited, visited, bad := f.Counts()
	assert.Equal(t, 0, unvisited)
	assert.Equal(t, 1, visited)
	assert.Equal(t, 1, bad)
	assert.Equal(t, "bad", Bad.String())
}
