package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventIndexDoc   EventType = "index_document"
	EventZeroResult EventType = "zero_result"
	EventFacetCount EventType = "facet_count"
)

type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Terms      []string  `json:"terms"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	ShardCount int       `json:"shard_count"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// FacetEvent is a snapshot of a registry.ValueCountMatchSpy's tallies
// after one query, published through the same pipeline as SearchEvent
// rather than a bespoke facet-reporting path.
type FacetEvent struct {
	Type      EventType      `json:"type"`
	SpyName   string         `json:"spy_name"`
	Query     string         `json:"query"`
	Counts    map[string]int `json:"counts"`
	Timestamp time.Time      `json:"timestamp"`
}

type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	ShardID    int       `json:"shard_id"`
	TokenCount int       `json:"token_count"`
	SizeBytes  int       `json:"size_bytes"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
