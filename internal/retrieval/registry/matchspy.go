package registry

import (
	"sync"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
)

// ValueCountMatchSpy is xapian-core's canonical match spy adapted to
// this engine's per-document metadata: instead of tallying a stored
// value slot, it tallies whichever bucket a caller-supplied function
// derives from a matched document's length and unique-term count (a
// length decile, a "short/medium/long" split, and so on), without
// influencing ranking. Safe for concurrent Observe calls from the
// matcher goroutine and concurrent Counts/Total reads from a reporting
// goroutine.
type ValueCountMatchSpy struct {
	name   string
	bucket func(doclen uint64, uniqueTerms uint32) string

	mu     sync.Mutex
	counts map[string]int
	total  int
}

// NewValueCountMatchSpy builds a spy registered under name, bucketing
// each observed document with bucket.
func NewValueCountMatchSpy(name string, bucket func(doclen uint64, uniqueTerms uint32) string) *ValueCountMatchSpy {
	return &ValueCountMatchSpy{name: name, bucket: bucket, counts: make(map[string]int)}
}

func (s *ValueCountMatchSpy) Name() string { return s.name }

// Observe implements MatchSpy.
func (s *ValueCountMatchSpy) Observe(did postings.DocID, doclen uint64, uniqueTerms uint32) {
	key := s.bucket(doclen, uniqueTerms)
	s.mu.Lock()
	s.counts[key]++
	s.total++
	s.mu.Unlock()
}

// Counts returns a snapshot of the current per-bucket tallies.
func (s *ValueCountMatchSpy) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of documents observed since the last Reset.
func (s *ValueCountMatchSpy) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Reset clears all tallies, for a caller that reuses one spy instance
// across queries rather than registering a fresh one each time.
func (s *ValueCountMatchSpy) Reset() {
	s.mu.Lock()
	s.counts = make(map[string]int)
	s.total = 0
	s.mu.Unlock()
}

// DocLengthDecileBucket buckets a document by which tenth of [0, maxLen]
// its length falls into, the classic xapian-core ValueCountMatchSpy use
// case of bucketing a stored numeric value slot.
func DocLengthDecileBucket(maxLen uint64) func(doclen uint64, uniqueTerms uint32) string {
	if maxLen == 0 {
		maxLen = 1
	}
	return func(doclen uint64, _ uint32) string {
		decile := int(doclen * 10 / maxLen)
		if decile > 9 {
			decile = 9
		}
		return decileLabel(decile)
	}
}

func decileLabel(decile int) string {
	labels := [10]string{"0-10%", "10-20%", "20-30%", "30-40%", "40-50%", "50-60%", "60-70%", "70-80%", "80-90%", "90-100%"}
	return labels[decile]
}
