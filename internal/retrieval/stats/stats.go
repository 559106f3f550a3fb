// Package stats collects the corpus and per-term statistics that
// weighting schemes need to compute and bound their scores. A scheme
// declares the subset it requires via Flags; only requested statistics
// are guaranteed populated by the time a query starts.
package stats

// Flags is a bitmask of corpus statistics a weighting scheme may request
// via Scheme.NeedStat. Consulting a statistic whose flag was not
// requested is safe and returns the type's zero value.
type Flags uint32

const (
	AverageLength Flags = 1 << iota
	DocLength
	DocLengthMin
	DocLengthMax
	CollectionSize
	CollectionFreq
	WDF
	WDFMax
	WQF
	UniqueTerms
	RelevanceSetSize
	RelevanceFreq
	TermFreq
	CollFreq
)

// Has reports whether all bits in want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// TermStats holds the statistics gathered for a single query term across
// the shards the query touches.
type TermStats struct {
	Term          string
	CollFreq      uint64 // sum of wdf across all postings for this term
	TermFreq      uint64 // number of documents containing this term
	RelFreq       uint64 // termfreq restricted to the relevance set
	WDFUpperBound uint32 // maximum wdf any leaf can emit for this term
	WDFDocMax     uint32 // maximum per-document wdf ceiling seen in stats
}

// CollectionStats holds corpus-wide statistics shared by every term in a
// query against one shard (or the merged view across shards).
type CollectionStats struct {
	CollectionSize    uint64
	TotalLength       uint64
	DocLenMin         uint64
	DocLenMax         uint64
	WDFMin            uint32
	WDFMax            uint32
	UniqueTermsMin    uint32
	UniqueTermsMax    uint32
	RelevanceSetSize  uint64
	averageLengthMemo float64
	averageLengthSet  bool
}

// AverageLength returns TotalLength / CollectionSize, memoised, or 0 if
// the collection is empty.
func (c *CollectionStats) AverageLength() float64 {
	if c.averageLengthSet {
		return c.averageLengthMemo
	}
	if c.CollectionSize == 0 {
		return 0
	}
	c.averageLengthMemo = float64(c.TotalLength) / float64(c.CollectionSize)
	c.averageLengthSet = true
	return c.averageLengthMemo
}

// Stats bundles the collection-wide view with the per-term statistics
// requested for one query. It is filled in by the matcher before the
// first call to any scheme's Init.
type Stats struct {
	Collection CollectionStats
	Terms      map[string]TermStats
}

// NewStats returns an empty Stats ready for population.
func NewStats() *Stats {
	return &Stats{Terms: make(map[string]TermStats)}
}

// Term returns the statistics recorded for term, or the zero value if
// none were recorded (an unenabled or unqueried statistic).
func (s *Stats) Term(term string) TermStats {
	if s == nil {
		return TermStats{}
	}
	return s.Terms[term]
}

// Merge combines statistics from another shard's view of the same
// query into s, summing counters and taking min/max of extrema. Both
// arguments must carry the same set of term keys for a meaningful
// merge; missing terms in either side are treated as absent.
func Merge(shards ...*Stats) *Stats {
	out := NewStats()
	first := true
	for _, sh := range shards {
		if sh == nil {
			continue
		}
		out.Collection.CollectionSize += sh.Collection.CollectionSize
		out.Collection.TotalLength += sh.Collection.TotalLength
		out.Collection.RelevanceSetSize += sh.Collection.RelevanceSetSize
		if first {
			out.Collection.DocLenMin = sh.Collection.DocLenMin
			out.Collection.DocLenMax = sh.Collection.DocLenMax
			out.Collection.WDFMin = sh.Collection.WDFMin
			out.Collection.WDFMax = sh.Collection.WDFMax
			out.Collection.UniqueTermsMin = sh.Collection.UniqueTermsMin
			out.Collection.UniqueTermsMax = sh.Collection.UniqueTermsMax
			first = false
		} else {
			out.Collection.DocLenMin = minU64(out.Collection.DocLenMin, sh.Collection.DocLenMin)
			out.Collection.DocLenMax = maxU64(out.Collection.DocLenMax, sh.Collection.DocLenMax)
			out.Collection.WDFMin = minU32(out.Collection.WDFMin, sh.Collection.WDFMin)
			out.Collection.WDFMax = maxU32(out.Collection.WDFMax, sh.Collection.WDFMax)
			out.Collection.UniqueTermsMin = minU32(out.Collection.UniqueTermsMin, sh.Collection.UniqueTermsMin)
			out.Collection.UniqueTermsMax = maxU32(out.Collection.UniqueTermsMax, sh.Collection.UniqueTermsMax)
		}
		for term, ts := range sh.Terms {
			acc, ok := out.Terms[term]
			if !ok {
				acc = TermStats{Term: term}
			}
			acc.CollFreq += ts.CollFreq
			acc.TermFreq += ts.TermFreq
			acc.RelFreq += ts.RelFreq
			if ts.WDFUpperBound > acc.WDFUpperBound {
				acc.WDFUpperBound = ts.WDFUpperBound
			}
			if ts.WDFDocMax > acc.WDFDocMax {
				acc.WDFDocMax = ts.WDFDocMax
			}
			out.Terms[term] = acc
		}
	}
	return out
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
