package executor

import (
	"context"
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/indexer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/registry"
	"github.com/searchplatform/retrieval-engine/internal/searcher/parser"
	"github.com/searchplatform/retrieval-engine/pkg/config"
)

func newShardedEngines(t *testing.T, n int) map[int]*indexer.Engine {
	t.Helper()
	engines := make(map[int]*indexer.Engine, n)
	for i := 0; i < n; i++ {
		idxCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
		retCfg := config.RetrievalConfig{Scheme: "bm25", KVStoreRestartInterval: 4, KVStoreIndexType: "dense"}
		e, err := indexer.NewEngine(idxCfg, retCfg)
		if err != nil {
			t.Fatalf("NewEngine: %v", err)
		}
		t.Cleanup(func() { e.Close() })
		engines[i] = e
	}
	return engines
}

func TestShardedExecuteMergesAcrossShards(t *testing.T) {
	engines := newShardedEngines(t, 2)
	if _, err := engines[0].IndexDocument("shard0-doc", "search platform", "search analytics engine"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if _, err := engines[1].IndexDocument("shard1-doc", "search platform", "search ranking engine"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	se := NewSharded(engines, registry.New(), "bm25")
	res, err := se.Execute(context.Background(), parser.Parse("search"), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected results merged from both shards, got %+v", res.Results)
	}

	seen := map[string]bool{}
	for _, r := range res.Results {
		seen[r.DocID] = true
	}
	if !seen["shard0-doc"] || !seen["shard1-doc"] {
		t.Fatalf("expected both shard docs present, got %+v", res.Results)
	}
}

func TestShardedExecuteRespectsLimit(t *testing.T) {
	engines := newShardedEngines(t, 2)
	if _, err := engines[0].IndexDocument("doc-a", "platform", "search platform engine"); err != nil {
		t.Fatalf("indexing: %v", err)
	}
	if _, err := engines[1].IndexDocument("doc-b", "platform", "search platform engine two"); err != nil {
		t.Fatalf("indexing: %v", err)
	}

	se := NewSharded(engines, registry.New(), "bm25")
	res, err := se.Execute(context.Background(), parser.Parse("platform"), 1)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected limit of 1 result, got %+v", res.Results)
	}
}

func TestShardedExecuteEmptyQueryReturnsNoResults(t *testing.T) {
	engines := newShardedEngines(t, 2)
	se := NewSharded(engines, registry.New(), "bm25")
	res, err := se.Execute(context.Background(), parser.Parse(""), 10)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Results) != 0 {
		t.Fatalf("expected no results for a blank query, got %+v", res.Results)
	}
}
