package matcher

import (
	"context"
	"math/rand"
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/query"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
)

// fakeLeaf is a minimal postings.Iterator over an ascending docid list
// scored by wdf, used to drive the matcher without kvstore or a real
// weighting scheme.
type fakeLeaf struct {
	docs []postings.DocID
	wdfs []uint32
	idx  int
	max  float64
}

func newFakeLeaf(docs []postings.DocID, wdfs []uint32) *fakeLeaf {
	var max float64
	for _, w := range wdfs {
		if float64(w) > max {
			max = float64(w)
		}
	}
	return &fakeLeaf{docs: docs, wdfs: wdfs, max: max}
}

func (f *fakeLeaf) AtEnd() bool { return f.idx >= len(f.docs) }
func (f *fakeLeaf) DocID() postings.DocID {
	if f.AtEnd() {
		return 0
	}
	return f.docs[f.idx]
}
func (f *fakeLeaf) WDF() uint32 {
	if f.AtEnd() {
		return 0
	}
	return f.wdfs[f.idx]
}
func (f *fakeLeaf) DocLength() uint64             { return 100 }
func (f *fakeLeaf) UniqueTerms() uint32           { return 10 }
func (f *fakeLeaf) WDFDocMax() uint32             { return 1 }
func (f *fakeLeaf) TermFreq() uint64              { return uint64(len(f.docs)) }
func (f *fakeLeaf) EstimateTermFreqs(*stats.Stats) {}
func (f *fakeLeaf) Next(float64) error {
	if !f.AtEnd() {
		f.idx++
	}
	return nil
}
func (f *fakeLeaf) SkipTo(did postings.DocID, _ float64) error {
	for !f.AtEnd() && f.docs[f.idx] < did {
		f.idx++
	}
	return nil
}
func (f *fakeLeaf) Check(did postings.DocID, _ float64) (bool, bool) {
	for !f.AtEnd() && f.docs[f.idx] < did {
		f.idx++
	}
	return !f.AtEnd() && f.docs[f.idx] == did, true
}
func (f *fakeLeaf) RecalcMaxWeight() float64 { return f.max }
func (f *fakeLeaf) MaxWeight() float64       { return f.max }
func (f *fakeLeaf) GetWeight() float64 {
	if f.AtEnd() {
		return 0
	}
	return float64(f.wdfs[f.idx])
}
func (f *fakeLeaf) GatherPositionLists(out map[postings.DocID][][]uint32) {}
func (f *fakeLeaf) CountMatchingSubqs() int                                { return 1 }
func (f *fakeLeaf) Description() string                                   { return "fakeLeaf" }

type zeroExtra struct{}

func (zeroExtra) GetSumExtra(uint64, uint32) float64 { return 0 }

func flatMeta(did postings.DocID) (DocMeta, bool) {
	return DocMeta{DocLength: 100, UniqueTerms: 10}, true
}

func TestRunUnboundedReturnsAllInScoreOrder(t *testing.T) {
	// S3-flavoured: a single term list, unbounded K, must come back sorted
	// by score descending, docid ascending on ties.
	leaf := newFakeLeaf(
		[]postings.DocID{1, 2, 3, 4},
		[]uint32{5, 5, 9, 1},
	)
	results, traceID, err := Run(context.Background(), leaf, zeroExtra{}, flatMeta, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if traceID == "" {
		t.Fatal("expected a non-empty trace id")
	}
	wantOrder := []postings.DocID{3, 1, 2, 4}
	if len(results) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(results), len(wantOrder))
	}
	for i, d := range wantOrder {
		if results[i].DocID != d {
			t.Fatalf("position %d: got docid %v, want %v (%+v)", i, results[i].DocID, d, results)
		}
	}
}

func TestRunTopKMatchesBruteForceTopK(t *testing.T) {
	// Property 4: pruned (K=3) matches the top 3 of an unpruned (K=0) run.
	docs := []postings.DocID{1, 2, 3, 4, 5, 6, 7, 8}
	wdfs := []uint32{3, 7, 1, 9, 2, 8, 4, 6}

	full, _, err := Run(context.Background(), newFakeLeaf(docs, wdfs), zeroExtra{}, flatMeta, 0)
	if err != nil {
		t.Fatalf("Run(full): %v", err)
	}
	top3, _, err := Run(context.Background(), newFakeLeaf(docs, wdfs), zeroExtra{}, flatMeta, 3)
	if err != nil {
		t.Fatalf("Run(k=3): %v", err)
	}
	if len(top3) != 3 {
		t.Fatalf("expected 3 results, got %d", len(top3))
	}
	for i := 0; i < 3; i++ {
		if top3[i] != full[i] {
			t.Fatalf("top3[%d] = %+v, want %+v", i, top3[i], full[i])
		}
	}
}

func TestRunOrCombinatorScenario(t *testing.T) {
	// S5-flavoured at small scale: OR of several terms, top-K compared
	// against brute-force scoring over the union.
	rng := rand.New(rand.NewSource(7))
	const nDocs = 200
	const nTerms = 4
	const k = 10

	type occurrence struct {
		doc postings.DocID
		wdf uint32
	}
	brute := make(map[postings.DocID]float64)
	leaves := make([]postings.Iterator, nTerms)
	for t := 0; t < nTerms; t++ {
		var occ []occurrence
		for d := postings.DocID(1); d <= nDocs; d++ {
			if rng.Intn(4) == 0 {
				wdf := uint32(rng.Intn(10) + 1)
				occ = append(occ, occurrence{doc: d, wdf: wdf})
				brute[d] += float64(wdf)
			}
		}
		docs := make([]postings.DocID, len(occ))
		wdfs := make([]uint32, len(occ))
		for i, o := range occ {
			docs[i] = o.doc
			wdfs[i] = o.wdf
		}
		leaves[t] = newFakeLeaf(docs, wdfs)
	}

	root := query.NewOr(leaves...)
	results, _, err := Run(context.Background(), root, zeroExtra{}, flatMeta, k)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != k {
		t.Fatalf("expected %d results, got %d", k, len(results))
	}

	type scored struct {
		doc   postings.DocID
		score float64
	}
	var all []scored
	for d, s := range brute {
		all = append(all, scored{doc: d, score: s})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].score > all[i].score || (all[j].score == all[i].score && all[j].doc < all[i].doc) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	for i := 0; i < k; i++ {
		if results[i].DocID != all[i].doc {
			t.Fatalf("position %d: got docid %v score %v, want docid %v score %v",
				i, results[i].DocID, results[i].Score, all[i].doc, all[i].score)
		}
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	leaf := newFakeLeaf([]postings.DocID{1, 2, 3}, []uint32{1, 2, 3})
	_, _, err := Run(ctx, leaf, zeroExtra{}, flatMeta, 0)
	if err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
}

func TestRunSkipsDocsMissingFromMetaLookup(t *testing.T) {
	leaf := newFakeLeaf([]postings.DocID{1, 2, 3}, []uint32{5, 5, 5})
	missing := func(did postings.DocID) (DocMeta, bool) {
		return DocMeta{}, did != 2
	}
	results, _, err := Run(context.Background(), leaf, zeroExtra{}, missing, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (doc 2 skipped), got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if r.DocID == 2 {
			t.Fatal("doc 2 should have been skipped by the meta lookup")
		}
	}
}

type recordingSink struct {
	terminations []string
	heapSizes    []int
}

func (s *recordingSink) ObserveTermination(reason string) { s.terminations = append(s.terminations, reason) }
func (s *recordingSink) ObserveHeapSize(n int)             { s.heapSizes = append(s.heapSizes, n) }

func TestRunReportsExhaustedTerminationToSink(t *testing.T) {
	sink := &recordingSink{}
	ctx := WithMetricsSink(context.Background(), sink)
	leaf := newFakeLeaf([]postings.DocID{1, 2, 3}, []uint32{5, 5, 5})
	if _, _, err := Run(ctx, leaf, zeroExtra{}, flatMeta, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.terminations) != 1 || sink.terminations[0] != "exhausted" {
		t.Fatalf("expected a single 'exhausted' termination, got %+v", sink.terminations)
	}
	if len(sink.heapSizes) != 1 || sink.heapSizes[0] != 3 {
		t.Fatalf("expected heap size 3 reported, got %+v", sink.heapSizes)
	}
}

func TestRunReportsCancelledTerminationToSink(t *testing.T) {
	sink := &recordingSink{}
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := WithMetricsSink(cancelledCtx, sink)
	leaf := newFakeLeaf([]postings.DocID{1, 2, 3}, []uint32{1, 2, 3})
	if _, _, err := Run(ctx, leaf, zeroExtra{}, flatMeta, 0); err == nil {
		t.Fatal("expected an error from an already-cancelled context")
	}
	if len(sink.terminations) != 1 || sink.terminations[0] != "cancelled" {
		t.Fatalf("expected a single 'cancelled' termination, got %+v", sink.terminations)
	}
}

func TestRunWithoutSinkDoesNotPanic(t *testing.T) {
	leaf := newFakeLeaf([]postings.DocID{1, 2}, []uint32{1, 2})
	if _, _, err := Run(context.Background(), leaf, zeroExtra{}, flatMeta, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunUsesRealSchemeExtra(t *testing.T) {
	// Integration-flavoured: a real BM25 scheme via a postings.Leaf,
	// confirming GetSumExtra is added exactly once per document by the
	// matcher rather than accumulated inside GetWeight.
	list := []postings.Posting{
		{Doc: 1, WDF: 2, DocLength: 100, UniqueTerms: 10, WDFDocMax: 2},
		{Doc: 2, WDF: 6, DocLength: 100, UniqueTerms: 10, WDFDocMax: 6},
	}
	scheme := weight.NewBM25()
	collection := stats.CollectionStats{CollectionSize: 50, TotalLength: 5000, DocLenMin: 50, DocLenMax: 200}
	scheme.Init(collection, stats.TermStats{TermFreq: 2, WDFUpperBound: 6}, 1.0)
	leaf := postings.NewLeaf("term", list, scheme, 2)

	results, _, err := Run(context.Background(), leaf, scheme, flatMeta, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// doc 2 has strictly higher wdf so must outrank doc 1.
	if results[0].DocID != 2 {
		t.Fatalf("expected doc 2 to rank first, got %+v", results)
	}
	for _, r := range results {
		if r.Score <= 0 {
			t.Fatalf("expected a positive BM25 score, got %v for doc %v", r.Score, r.DocID)
		}
	}
}
