package crawler

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

type State int

const (
	Unvisited State = iota
	Visited
	Bad
)

func (s State) String() string {
	switch s {
	case Visited:
		return "visited"
	case Bad:
		return "bad"
	default:
		return "unvisited"
	}
}

// Canonicalize drops the query string and fragment of link. Links that
// differ only there are the same page to the crawler.
func Canonicalize(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}

// Resolve makes href absolute against base and canonicalizes it. Only
// http and https targets are kept.
func Resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return Canonicalize(abs.String()), true
}

// Frontier tracks the state of every canonical link discovered. A link
// marked bad stays bad.
type Frontier struct {
	mu     sync.Mutex
	states map[string]State
}

func NewFrontier() *Frontier {
	return &Frontier{states: make(map[string]State)}
}

// Add records link as unvisited and reports whether it was new.
func (f *Frontier) Add(link string) bool {
	link = Canonicalize(link)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, known := f.states[link]; known {
		return false
	}
	f.states[link] = Unvisited
	return true
}

func (f *Frontier) MarkVisited(link string) {
	f.set(link, Visited)
}

func (f *Frontier) MarkBad(link string) {
	f.set(link, Bad)
}

func (f *Frontier) set(link string, s State) {
	link = Canonicalize(link)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states[link] == Bad {
		return
	}
	f.states[link] = s
}

// State returns the state of link and whether it is known at all.
func (f *Frontier) State(link string) (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[Canonicalize(link)]
	return s, ok
}

// Unvisited returns a sorted snapshot of the links still to fetch.
func (f *Frontier) Unvisited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for link, s := range f.states {
		if s == Unvisited {
			out = append(out, link)
		}
	}
	sort.Strings(out)
	return out
}

func (f *Frontier) Counts() (unvisited, visited, bad int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.states {
		switch s {
		case Unvisited:
			unvisited++
		case Visited:
			visited++
		case Bad:
			bad++
		}
	}
	return unvisited, visited, bad
}
