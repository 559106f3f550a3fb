// Package matcher implements the top-K matching loop: a bounded
// min-heap of candidates driven by a w_min floor, periodic maxweight
// recalculation for early termination, and cooperative cancellation.
package matcher

import (
	"container/heap"
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"
	"github.com/searchplatform/retrieval-engine/pkg/logger"
)

// recalcEvery is how many emitted candidates pass between unconditional
// recalc_maxweight calls.
const recalcEvery = 16

// DocMeta is the per-document metadata the matcher fetches once per
// candidate to complete a scheme's scoring inputs beyond what the
// posting itself carries.
type DocMeta struct {
	DocLength   uint64
	UniqueTerms uint32
}

// MetaLookup fetches DocMeta for a docid, e.g. from the shard's document
// table. It is the matcher's only synchronous I/O beyond the iterator
// tree itself.
type MetaLookup func(did postings.DocID) (DocMeta, bool)

// Candidate is one scored, ranked result.
type Candidate struct {
	DocID postings.DocID
	Score float64
}

// candidateHeap is a bounded min-heap over Candidate, ordered so the
// weakest survivor sits at the root and is the first evicted when a
// stronger candidate arrives.
type candidateHeap []Candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	// Ties broken by descending docid at the heap root so the ascending
	// tie-break in the final sort (lower docid wins) is honoured: when
	// two candidates tie on score, we would rather evict the higher
	// docid first.
	return h[i].DocID > h[j].DocID
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(Candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Extra is the scheme's query-independent contribution, evaluated once
// per candidate document alongside the iterator tree's own weight.
type Extra interface {
	GetSumExtra(doclen uint64, uniqueTerms uint32) float64
}

// MetricsSink receives the outcome of one Run call. Implementations must
// be safe to call from the goroutine that invoked Run; the matcher never
// calls a sink concurrently with itself.
type MetricsSink interface {
	ObserveTermination(reason string)
	ObserveHeapSize(n int)
}

type metricsSinkKey struct{}

// WithMetricsSink attaches sink to ctx so Run reports its termination
// reason (exhausted/pruned/cancelled) and final heap size without
// threading an extra parameter through every caller between the
// executor and the matcher. Absent a sink, Run is a no-op on this front.
func WithMetricsSink(ctx context.Context, sink MetricsSink) context.Context {
	return context.WithValue(ctx, metricsSinkKey{}, sink)
}

func sinkFromContext(ctx context.Context) MetricsSink {
	if s, ok := ctx.Value(metricsSinkKey{}).(MetricsSink); ok {
		return s
	}
	return noopSink{}
}

type noopSink struct{}

func (noopSink) ObserveTermination(string) {}
func (noopSink) ObserveHeapSize(int)       {}

// Run drives root to completion (or exhaustion of the candidate space),
// returning the top k results sorted by score descending, docid
// ascending. It is safe to call at most once per iterator tree: leaves
// are not safe to share between concurrent matchers.
//
// traceID is generated fresh for each call and returned alongside the
// results so callers can correlate one matcher's activity across logs
// without threading a request-scoped identifier through every layer.
func Run(ctx context.Context, root postings.Iterator, extra Extra, meta MetaLookup, k int) ([]Candidate, string, error) {
	traceID := uuid.NewString()
	log := logger.FromContext(ctx).With("trace_id", traceID, "component", "matcher")
	sink := sinkFromContext(ctx)

	h := &candidateHeap{}
	heap.Init(h)
	var emitted int
	termination := "exhausted"

	for {
		select {
		case <-ctx.Done():
			sink.ObserveTermination("cancelled")
			return nil, traceID, apperrors.New(apperrors.ErrCancelled, apperrors.StatusClientClosedRequest, "matcher cancelled")
		default:
		}

		wMin := currentWMin(*h, k)

		if emitted%recalcEvery == 0 {
			maxWeight := root.RecalcMaxWeight()
			if len(*h) == k && k > 0 && maxWeight <= wMin {
				termination = "pruned"
				break
			}
		}

		if root.AtEnd() {
			break
		}

		did := root.DocID()
		docMeta, ok := meta(did)
		if !ok {
			if err := root.Next(wMin); err != nil {
				return nil, traceID, err
			}
			continue
		}

		score := root.GetWeight() + extra.GetSumExtra(docMeta.DocLength, docMeta.UniqueTerms)
		emitted++

		if k <= 0 || len(*h) < k {
			heap.Push(h, Candidate{DocID: did, Score: score})
		} else if score > wMin {
			heap.Pop(h)
			heap.Push(h, Candidate{DocID: did, Score: score})
		}

		if err := root.Next(wMin); err != nil {
			return nil, traceID, err
		}
	}

	results := make([]Candidate, len(*h))
	copy(results, *h)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	sink.ObserveTermination(termination)
	sink.ObserveHeapSize(len(results))
	log.Debug("matcher run complete", "emitted", emitted, "returned", len(results), "termination", termination)
	return results, traceID, nil
}

// currentWMin returns the heap's floor score once it holds k entries,
// or 0 (no pruning) otherwise.
func currentWMin(h candidateHeap, k int) float64 {
	if k > 0 && len(h) == k {
		return h[0].Score
	}
	return 0
}
