package indexer

import (
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	"github.com/searchplatform/retrieval-engine/pkg/config"
)

func testConfigs(t *testing.T) (config.IndexerConfig, config.RetrievalConfig) {
	t.Helper()
	return config.IndexerConfig{
			DataDir:        t.TempDir(),
			SegmentMaxSize: 1 << 20,
			FlushInterval:  0,
		}, config.RetrievalConfig{
			Scheme:                 "bm25",
			KVStoreRestartInterval: 4,
			KVStoreIndexType:       "dense",
			RecalcEvery:            16,
		}
}

func TestIndexDocumentAssignsStableDenseIDs(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	meta1, err := e.IndexDocument("doc-a", "gopher tutorial", "learn go programming")
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if meta1.DocLength == 0 {
		t.Fatalf("expected non-zero doc length")
	}
	id1 := e.assignDocID("doc-a")
	if _, err := e.IndexDocument("doc-a", "gopher tutorial", "learn go programming"); err != nil {
		t.Fatalf("re-indexing doc-a: %v", err)
	}
	id1Again := e.assignDocID("doc-a")
	if id1 != id1Again {
		t.Fatalf("expected stable dense id across re-index, got %d then %d", id1, id1Again)
	}

	ext, ok := e.ExternalID(id1)
	if !ok || ext != "doc-a" {
		t.Fatalf("expected ExternalID to resolve back to doc-a, got %q ok=%v", ext, ok)
	}
}

func TestOpenTermIteratorMergesMemoryAndSegments(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	idxCfg.SegmentMaxSize = 1 // force an immediate flush after the first doc
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.IndexDocument("doc-1", "distributed search", "search engine core"); err != nil {
		t.Fatalf("indexing doc-1: %v", err)
	}
	if _, err := e.IndexDocument("doc-2", "distributed systems", "consensus and search"); err != nil {
		t.Fatalf("indexing doc-2: %v", err)
	}

	scheme := weight.NewBM25()
	it, docFreq, err := e.OpenTermIterator("search", scheme)
	if err != nil {
		t.Fatalf("OpenTermIterator: %v", err)
	}
	if it == nil {
		t.Fatalf("expected a non-nil iterator for term present in both docs")
	}
	if docFreq != 2 {
		t.Fatalf("expected docFreq 2 across memory+segment sources, got %d", docFreq)
	}

	var seen int
	for !it.AtEnd() {
		seen++
		if err := it.Next(0); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if seen != 2 {
		t.Fatalf("expected to visit 2 documents, saw %d", seen)
	}
}

func TestOpenTermIteratorMissingTermReturnsNil(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.IndexDocument("doc-1", "hello", "world"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	it, docFreq, err := e.OpenTermIterator("absent", weight.NewBM25())
	if err != nil {
		t.Fatalf("OpenTermIterator: %v", err)
	}
	if it != nil || docFreq != 0 {
		t.Fatalf("expected nil iterator and 0 docFreq for absent term, got it=%v docFreq=%d", it, docFreq)
	}
}

func TestReloadSegmentsPicksUpFlushedFiles(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.IndexDocument("doc-1", "term", "body text"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reader, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("second NewEngine: %v", err)
	}
	defer reader.Close()
	if n := reader.ReloadSegments(); n != 0 {
		t.Fatalf("expected 0 newly loaded segments (already picked up at construction), got %d", n)
	}
}

func TestReopenRejectsNonWritableSource(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	readOnly := &Engine{writable: false}
	if err := e.Reopen(readOnly); err == nil {
		t.Fatalf("expected Reopen to reject a non-writable source")
	}
}

func TestDocIDMappingSurvivesRestart(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := e.IndexDocument("doc-a", "gopher tutorial", "learn go programming"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	id := e.assignDocID("doc-a")
	length, uniqueTerms, ok := e.DocMeta(id)
	if !ok {
		t.Fatalf("expected doc meta for doc-a before flush")
	}
	wantTotalDocs := e.GetTotalDocs()

	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	restarted, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("second NewEngine: %v", err)
	}
	defer restarted.Close()

	ext, ok := restarted.ExternalID(id)
	if !ok || ext != "doc-a" {
		t.Fatalf("expected restarted engine to resolve dense id %d back to doc-a, got %q ok=%v", id, ext, ok)
	}
	gotLength, gotUniqueTerms, ok := restarted.DocMeta(id)
	if !ok || gotLength != length || gotUniqueTerms != uniqueTerms {
		t.Fatalf("expected doc meta to survive restart, got length=%d uniqueTerms=%d ok=%v, want length=%d uniqueTerms=%d",
			gotLength, gotUniqueTerms, ok, length, uniqueTerms)
	}
	if got := restarted.GetTotalDocs(); got != wantTotalDocs {
		t.Fatalf("expected total docs %d to survive restart, got %d", wantTotalDocs, got)
	}

	// A second document indexed after restart must not collide with the
	// dense id recovered from the snapshot.
	if _, err := restarted.IndexDocument("doc-b", "second document", "more text"); err != nil {
		t.Fatalf("IndexDocument after restart: %v", err)
	}
	idB := restarted.assignDocID("doc-b")
	if idB == id {
		t.Fatalf("expected a fresh dense id for doc-b, got a collision with doc-a's id %d", id)
	}
}

func TestIndexDocumentRedindexDoesNotInflateCollectionStats(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.IndexDocument("doc-a", "gopher tutorial", "learn go programming"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if got := e.GetTotalDocs(); got != 1 {
		t.Fatalf("expected 1 doc after first index, got %d", got)
	}
	if _, err := e.IndexDocument("doc-a", "gopher tutorial", "learn go programming"); err != nil {
		t.Fatalf("re-indexing doc-a: %v", err)
	}
	if got := e.GetTotalDocs(); got != 1 {
		t.Fatalf("expected total docs to stay 1 across re-index of the same document, got %d", got)
	}
}

func TestRawTermPostingsMergesMemoryAndSegments(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	idxCfg.SegmentMaxSize = 1 // force an immediate flush after the first doc
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if _, err := e.IndexDocument("doc-1", "distributed search", "search engine core"); err != nil {
		t.Fatalf("indexing doc-1: %v", err)
	}
	if _, err := e.IndexDocument("doc-2", "distributed systems", "consensus and search"); err != nil {
		t.Fatalf("indexing doc-2: %v", err)
	}

	list, termFreq, err := e.RawTermPostings("search")
	if err != nil {
		t.Fatalf("RawTermPostings: %v", err)
	}
	if termFreq != 2 || len(list) != 2 {
		t.Fatalf("expected 2 raw postings for a term in both docs, got termFreq=%d len=%d", termFreq, len(list))
	}

	if list, _, err := e.RawTermPostings("nowhere"); err != nil || list != nil {
		t.Fatalf("expected nil postings for an absent term, got list=%v err=%v", list, err)
	}
}

func TestIndexDocumentRejectedOnReadOnlyHandle(t *testing.T) {
	idxCfg, retCfg := testConfigs(t)
	e, err := NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	e.writable = false

	if _, err := e.IndexDocument("doc-1", "t", "b"); err == nil {
		t.Fatalf("expected IndexDocument to fail on a read-only handle")
	}
}
