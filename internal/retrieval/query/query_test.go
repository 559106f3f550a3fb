package query

import (
	"reflect"
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// fakeIter is a minimal postings.Iterator over a fixed, ascending docid
// list, used to exercise combinator logic independently of the kvstore
// and weight packages.
type fakeIter struct {
	docs  []postings.DocID
	wdfs  []uint32
	idx   int
	maxW  float64
}

func newFakeIter(docs []postings.DocID, weight float64) *fakeIter {
	wdfs := make([]uint32, len(docs))
	for i := range wdfs {
		wdfs[i] = 1
	}
	return &fakeIter{docs: docs, wdfs: wdfs, maxW: weight}
}

func (f *fakeIter) AtEnd() bool { return f.idx >= len(f.docs) }
func (f *fakeIter) DocID() postings.DocID {
	if f.AtEnd() {
		return 0
	}
	return f.docs[f.idx]
}
func (f *fakeIter) WDF() uint32 {
	if f.AtEnd() {
		return 0
	}
	return f.wdfs[f.idx]
}
func (f *fakeIter) DocLength() uint64             { return 100 }
func (f *fakeIter) UniqueTerms() uint32           { return 10 }
func (f *fakeIter) WDFDocMax() uint32             { return 1 }
func (f *fakeIter) TermFreq() uint64              { return uint64(len(f.docs)) }
func (f *fakeIter) EstimateTermFreqs(*stats.Stats) {}
func (f *fakeIter) Next(float64) error {
	if !f.AtEnd() {
		f.idx++
	}
	return nil
}
func (f *fakeIter) SkipTo(did postings.DocID, _ float64) error {
	for !f.AtEnd() && f.docs[f.idx] < did {
		f.idx++
	}
	return nil
}
func (f *fakeIter) Check(did postings.DocID, _ float64) (bool, bool) {
	if err := f.SkipTo(did, 0); err != nil {
		return false, false
	}
	return !f.AtEnd() && f.docs[f.idx] == did, true
}
func (f *fakeIter) RecalcMaxWeight() float64 { return f.maxW }
func (f *fakeIter) MaxWeight() float64       { return f.maxW }
func (f *fakeIter) GetWeight() float64 {
	if f.AtEnd() {
		return 0
	}
	return f.maxW
}
func (f *fakeIter) GatherPositionLists(out map[postings.DocID][][]uint32) {
	if f.AtEnd() {
		return
	}
	out[f.docs[f.idx]] = append(out[f.docs[f.idx]], []uint32{1})
}
func (f *fakeIter) CountMatchingSubqs() int { return 1 }
func (f *fakeIter) Description() string     { return "fake" }

func drain(it postings.Iterator) []postings.DocID {
	var out []postings.DocID
	for !it.AtEnd() {
		out = append(out, it.DocID())
		it.Next(0)
	}
	return out
}

func TestAndTwoTermsIntersection(t *testing.T) {
	// S3: A in {1,3,5,7}, B in {3,4,5,8} -> intersection {3,5}.
	a := newFakeIter([]postings.DocID{1, 3, 5, 7}, 2.0)
	b := newFakeIter([]postings.DocID{3, 4, 5, 8}, 1.5)
	and := NewAnd(0, a, b)
	got := drain(and)
	want := []postings.DocID{3, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAndTwoTermsSumsWeights(t *testing.T) {
	a := newFakeIter([]postings.DocID{3, 5}, 2.0)
	b := newFakeIter([]postings.DocID{3, 5}, 1.5)
	and := NewAnd(0, a, b)
	if and.AtEnd() {
		t.Fatal("expected initial docid 3")
	}
	if got := and.GetWeight(); got != 3.5 {
		t.Fatalf("expected combined weight 3.5, got %v", got)
	}
	if got := and.MaxWeight(); got != 3.5 {
		t.Fatalf("expected maxweight 3.5, got %v", got)
	}
}

func TestAndTermFreqUsesIndependenceAssumptionProduct(t *testing.T) {
	// S3: two terms with termfreq 200 and 50 out of a 1000-document
	// collection independently co-occurring in an estimated
	// 200/1000 * 50/1000 * 1000 = 10 documents.
	a := newFakeIter([]postings.DocID{1, 2, 3}, 1.0)
	b := newFakeIter([]postings.DocID{1, 2, 3}, 1.0)
	a.docs = make([]postings.DocID, 200)
	b.docs = make([]postings.DocID, 50)
	and := NewAnd(1000, a, b)
	if got, want := and.TermFreq(), uint64(10); got != want {
		t.Fatalf("expected product-formula termfreq %d, got %d", want, got)
	}
}

func TestAndTermFreqFallsBackWithoutCollectionSize(t *testing.T) {
	a := newFakeIter([]postings.DocID{1, 2, 3}, 1.0)
	b := newFakeIter([]postings.DocID{1, 2}, 1.0)
	and := NewAnd(0, a, b)
	if got, want := and.TermFreq(), uint64(2); got != want {
		t.Fatalf("expected fallback to most selective child's termfreq %d, got %d", want, got)
	}
}

func TestAndNotExcludesRightSide(t *testing.T) {
	// S4: left {1,2,3,4,5}, right {2,4} -> {1,3,5}.
	left := newFakeIter([]postings.DocID{1, 2, 3, 4, 5}, 1.0)
	right := newFakeIter([]postings.DocID{2, 4}, 100.0)
	an := NewAndNot(left, right)
	got := drain(an)
	want := []postings.DocID{1, 3, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAndNotMaxWeightIgnoresRight(t *testing.T) {
	left := newFakeIter([]postings.DocID{1, 2, 3}, 1.0)
	right := newFakeIter([]postings.DocID{2}, 100.0)
	an := NewAndNot(left, right)
	if got := an.MaxWeight(); got != 1.0 {
		t.Fatalf("expected maxweight 1.0 (left only), got %v", got)
	}
}

func TestOrEmitsUnionInAscendingOrder(t *testing.T) {
	a := newFakeIter([]postings.DocID{1, 4, 8}, 1.0)
	b := newFakeIter([]postings.DocID{2, 4, 9}, 1.0)
	or := NewOr(a, b)
	got := drain(or)
	want := []postings.DocID{1, 2, 4, 8, 9}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestOrSumsWeightOfAgreeingChildren(t *testing.T) {
	a := newFakeIter([]postings.DocID{4}, 2.0)
	b := newFakeIter([]postings.DocID{4}, 3.0)
	or := NewOr(a, b)
	if or.AtEnd() || or.DocID() != 4 {
		t.Fatalf("expected docid 4, got at_end=%v docid=%v", or.AtEnd(), or.DocID())
	}
	if got := or.GetWeight(); got != 5.0 {
		t.Fatalf("expected combined weight 5.0, got %v", got)
	}
	if got := or.MaxWeight(); got != 5.0 {
		t.Fatalf("expected maxweight 5.0, got %v", got)
	}
}

func TestOrSkipToDropsExhaustedChildren(t *testing.T) {
	a := newFakeIter([]postings.DocID{1, 2}, 1.0)
	b := newFakeIter([]postings.DocID{1, 9}, 1.0)
	or := NewOr(a, b)
	if err := or.SkipTo(5, 0); err != nil {
		t.Fatalf("SkipTo: %v", err)
	}
	if or.AtEnd() || or.DocID() != 9 {
		t.Fatalf("expected docid 9 after skip_to(5), got at_end=%v docid=%v", or.AtEnd(), or.DocID())
	}
}

func TestPhraseRequiresContiguousIncreasingPositions(t *testing.T) {
	if !phraseMatches([][]uint32{{5}, {6}, {7}}) {
		t.Fatal("expected contiguous run 5,6,7 to match")
	}
	if phraseMatches([][]uint32{{5}, {7}, {8}}) {
		t.Fatal("expected gap at position 6 to not match")
	}
	if !phraseMatches([][]uint32{{5, 20}, {6, 21}}) {
		t.Fatal("expected a valid choice among multiple occurrences to match")
	}
}

func TestNearRequiresBoundedGap(t *testing.T) {
	if !nearMatches([][]uint32{{10}, {13}}, 5) {
		t.Fatal("expected gap of 3 within maxGap 5 to match")
	}
	if nearMatches([][]uint32{{10}, {30}}, 5) {
		t.Fatal("expected gap of 20 beyond maxGap 5 to not match")
	}
}

func TestAndKInfinityMatchesUnprunedTopK(t *testing.T) {
	// Property 4's spirit at the combinator level: an AND over the same
	// children yields the same emitted set regardless of the w_min
	// threshold passed to Next, since these fakeIters ignore w_min.
	a1 := newFakeIter([]postings.DocID{1, 3, 5, 7, 9}, 1.0)
	b1 := newFakeIter([]postings.DocID{3, 5, 9}, 1.0)
	unpruned := drain(NewAnd(0, a1, b1))

	a2 := newFakeIter([]postings.DocID{1, 3, 5, 7, 9}, 1.0)
	b2 := newFakeIter([]postings.DocID{3, 5, 9}, 1.0)
	and2 := NewAnd(0, a2, b2)
	var pruned []postings.DocID
	for !and2.AtEnd() {
		pruned = append(pruned, and2.DocID())
		and2.Next(1000.0)
	}
	if !reflect.DeepEqual(unpruned, pruned) {
		t.Fatalf("pruned run %v differs from unpruned run %v", pruned, unpruned)
	}
}
