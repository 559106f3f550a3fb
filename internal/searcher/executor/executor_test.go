package executor

import (
	"context"
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/indexer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/registry"
	"github.com/searchplatform/retrieval-engine/internal/searcher/parser"
	"github.com/searchplatform/retrieval-engine/pkg/config"
)

func newTestEngine(t *testing.T) *indexer.Engine {
	t.Helper()
	idxCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	retCfg := config.RetrievalConfig{Scheme: "bm25", KVStoreRestartInterval: 4, KVStoreIndexType: "dense"}
	e, err := indexer.NewEngine(idxCfg, retCfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExecuteReturnsEmptyForBlankQuery(t *testing.T) {
	e := newTestEngine(t)
	ex := New(e, registry.New(), "bm25")
	res, err := ex.Execute(context.Background(), parser.Parse(""), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 0 {
		t.Fatalf("expected no results for a blank query, got %+v", res.Results)
	}
}

func TestExecuteANDRequiresAllTerms(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.IndexDocument("both", "distributed search", "search and distributed systems"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if _, err := e.IndexDocument("only-search", "search", "just search, nothing else"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	ex := New(e, registry.New(), "bm25")
	res, err := ex.Execute(context.Background(), parser.Parse("distributed AND search"), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].DocID != "both" {
		t.Fatalf("expected only 'both' to match AND query, got %+v", res.Results)
	}
}

func TestExecuteORUnionsTerms(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.IndexDocument("doc-a", "gopher", "channels and goroutines"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if _, err := e.IndexDocument("doc-b", "rustacean", "ownership and borrowing"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	ex := New(e, registry.New(), "bm25")
	res, err := ex.Execute(context.Background(), parser.Parse("gopher OR rustacean"), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected both docs to match OR query, got %+v", res.Results)
	}
}

func TestExecuteExcludesNotTerms(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.IndexDocument("wanted", "search engine", "core retrieval"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if _, err := e.IndexDocument("unwanted", "search engine deprecated", "legacy retrieval"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	ex := New(e, registry.New(), "bm25")
	res, err := ex.Execute(context.Background(), parser.Parse("search NOT deprecated"), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].DocID != "wanted" {
		t.Fatalf("expected only 'wanted' to survive the NOT exclusion, got %+v", res.Results)
	}
}

func TestExecuteHonoursSchemeSelector(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.IndexDocument("doc-1", "climate change", "global warming policy"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	ex := New(e, registry.New(), "bm25")
	res, err := ex.Execute(context.Background(), parser.Parse("scheme:pl2 climate"), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected one result under an explicit scheme override, got %+v", res.Results)
	}
}

func TestExecuteUnknownSchemeErrors(t *testing.T) {
	e := newTestEngine(t)
	ex := New(e, registry.New(), "bm25")
	_, err := ex.Execute(context.Background(), parser.Parse("scheme:does-not-exist term"), 10)
	if err == nil {
		t.Fatalf("expected an error for an unregistered scheme name")
	}
}

func TestExecuteWithFacetSpyObservesEveryCandidate(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.IndexDocument("doc-a", "gopher tutorial", "channels and goroutines"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if _, err := e.IndexDocument("doc-b", "gopher advanced", "generics and goroutines and more text padding"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	spy := registry.NewValueCountMatchSpy("test-facet", registry.DocLengthDecileBucket(20))
	ex := New(e, registry.New(), "bm25").WithFacetSpy(spy, nil)
	res, err := ex.Execute(context.Background(), parser.Parse("gopher"), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 matches, got %+v", res.Results)
	}
	if spy.Total() != 2 {
		t.Fatalf("expected the facet spy to observe both matched candidates, got %d", spy.Total())
	}
}
