package analytics

import "time"

type EventType string

const (
	EventPageVisited  EventType = "page_visited"
	EventPageNonHTML  EventType = "page_non_html"
	EventPageFailed   EventType = "page_failed"
	EventCrawlDone    EventType = "crawl_finished"
	EventIndexDoc     EventType = "index_document"
	EventSearch       EventType = "search"
	EventSearchFailed EventType = "search_failed"
)

// CrawlEvent reports one crawler or indexing step. RunID ties together the
// events of one crawl.
type CrawlEvent struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	URL       string    `json:"url,omitempty"`
	FinalURL  string    `json:"final_url,omitempty"`
	Depth     int       `json:"depth"`
	Links     int       `json:"links,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Model     string    `json:"model"`
	TotalHits int       `json:"total_hits"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
