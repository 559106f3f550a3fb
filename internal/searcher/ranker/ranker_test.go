package ranker

import (
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/matcher"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
)

func TestTranslateResolvesAndDropsMissing(t *testing.T) {
	candidates := []matcher.Candidate{
		{DocID: 1, Score: 3.5},
		{DocID: 2, Score: 2.1},
		{DocID: 3, Score: 1.0},
	}
	names := map[postings.DocID]string{1: "doc-a", 3: "doc-c"}
	resolve := func(id postings.DocID) (string, bool) {
		s, ok := names[id]
		return s, ok
	}

	got := Translate(candidates, resolve)
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved docs, got %d: %+v", len(got), got)
	}
	if got[0].DocID != "doc-a" || got[0].Score != 3.5 {
		t.Fatalf("unexpected first result: %+v", got[0])
	}
	if got[1].DocID != "doc-c" || got[1].Score != 1.0 {
		t.Fatalf("unexpected second result: %+v", got[1])
	}
}

func TestTranslateEmptyInput(t *testing.T) {
	got := Translate(nil, func(postings.DocID) (string, bool) { return "", true })
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
