package stats

import "testing"

func TestFlagsHas(t *testing.T) {
	f := AverageLength | DocLength | WDFMax
	if !f.Has(AverageLength) {
		t.Fatal("expected AverageLength to be set")
	}
	if !f.Has(DocLength | WDFMax) {
		t.Fatal("expected combined flags to be set")
	}
	if f.Has(CollectionSize) {
		t.Fatal("did not expect CollectionSize to be set")
	}
}

func TestCollectionStatsAverageLength(t *testing.T) {
	c := CollectionStats{CollectionSize: 0}
	if got := c.AverageLength(); got != 0 {
		t.Fatalf("expected 0 average length for empty collection, got %v", got)
	}
	c = CollectionStats{CollectionSize: 4, TotalLength: 100}
	if got := c.AverageLength(); got != 25 {
		t.Fatalf("expected average length 25, got %v", got)
	}
	// memoisation shouldn't change the answer on repeat calls.
	if got := c.AverageLength(); got != 25 {
		t.Fatalf("expected memoised average length 25, got %v", got)
	}
}

func TestMergeSumsAndBoundsExtrema(t *testing.T) {
	a := NewStats()
	a.Collection = CollectionStats{
		CollectionSize: 10, TotalLength: 1000,
		DocLenMin: 5, DocLenMax: 200,
		WDFMin: 0, WDFMax: 12,
		UniqueTermsMin: 3, UniqueTermsMax: 40,
	}
	a.Terms["gopher"] = TermStats{Term: "gopher", CollFreq: 20, TermFreq: 5, WDFUpperBound: 8}

	b := NewStats()
	b.Collection = CollectionStats{
		CollectionSize: 6, TotalLength: 300,
		DocLenMin: 2, DocLenMax: 90,
		WDFMin: 1, WDFMax: 20,
		UniqueTermsMin: 1, UniqueTermsMax: 15,
	}
	b.Terms["gopher"] = TermStats{Term: "gopher", CollFreq: 9, TermFreq: 3, WDFUpperBound: 15}

	merged := Merge(a, b)
	if merged.Collection.CollectionSize != 16 {
		t.Fatalf("expected summed collection size 16, got %d", merged.Collection.CollectionSize)
	}
	if merged.Collection.TotalLength != 1300 {
		t.Fatalf("expected summed total length 1300, got %d", merged.Collection.TotalLength)
	}
	if merged.Collection.DocLenMin != 2 || merged.Collection.DocLenMax != 200 {
		t.Fatalf("expected doclen bounds [2,200], got [%d,%d]", merged.Collection.DocLenMin, merged.Collection.DocLenMax)
	}
	if merged.Collection.WDFMax != 20 {
		t.Fatalf("expected wdf max 20, got %d", merged.Collection.WDFMax)
	}
	ts := merged.Term("gopher")
	if ts.CollFreq != 29 || ts.TermFreq != 8 {
		t.Fatalf("expected merged term stats collfreq=29 termfreq=8, got %+v", ts)
	}
	if ts.WDFUpperBound != 15 {
		t.Fatalf("expected merged wdf upper bound 15, got %d", ts.WDFUpperBound)
	}
}

func TestTermOnNilStats(t *testing.T) {
	var s *Stats
	if got := s.Term("anything"); got != (TermStats{}) {
		t.Fatalf("expected zero value from nil Stats, got %+v", got)
	}
}
