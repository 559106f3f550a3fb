package shard

import (
	"path/filepath"
	"testing"

	"github.com/searchplatform/retrieval-engine/pkg/config"
	"github.com/searchplatform/retrieval-engine/pkg/grpc"
)

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Scheme:                 "bm25",
		KVStoreRestartInterval: 4,
		KVStoreIndexType:       "dense",
		RecalcEvery:            16,
	}
}

func TestNewRouterCreatesOneEnginePerShard(t *testing.T) {
	baseCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 3)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close()

	if r.NumShards() != 3 {
		t.Fatalf("expected 3 shards, got %d", r.NumShards())
	}
	engines := r.GetAllEngines()
	if len(engines) != 3 {
		t.Fatalf("expected 3 engines, got %d", len(engines))
	}
	for i := 0; i < 3; i++ {
		if _, ok := engines[i]; !ok {
			t.Fatalf("missing engine for shard %d", i)
		}
	}
}

func TestRouteReturnsErrorForUnknownShard(t *testing.T) {
	baseCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 2)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close()

	if _, err := r.Route(99); err == nil {
		t.Fatalf("expected an error for an out-of-range shard ID")
	}
}

func TestFlushAllSucceedsAcrossAllShards(t *testing.T) {
	baseCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 2)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close()

	for i := 0; i < 2; i++ {
		engine, err := r.Route(i)
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if _, err := engine.IndexDocument("doc", "term", "body"); err != nil {
			t.Fatalf("IndexDocument: %v", err)
		}
	}
	if err := r.FlushAll(); err != nil {
		t.Fatalf("expected FlushAll to succeed across healthy shards, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	baseCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 2)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("expected first Close to succeed, got %v", err)
	}
	// A second Close on already-closed engines must not panic.
	if err := r.Close(); err != nil {
		t.Fatalf("expected second Close to also succeed, got %v", err)
	}
}

func TestReloadAllCountsNewlyFlushedSegments(t *testing.T) {
	baseCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 1)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close()

	engine, err := r.Route(0)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if _, err := engine.IndexDocument("doc", "term", "body"); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if err := r.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	// The engine that produced the segment already holds it open, so a
	// same-process reload reports zero newly discovered segments.
	if n := r.ReloadAll(); n != 0 {
		t.Fatalf("expected 0 newly discovered segments in-process, got %d", n)
	}
}

func TestRegisterPostingServiceRegistersSearchMethod(t *testing.T) {
	baseCfg := config.IndexerConfig{DataDir: t.TempDir(), SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 1)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close()

	s := grpc.NewServer()
	r.RegisterPostingService(s)
	if s.MethodCount() != 1 {
		t.Fatalf("expected exactly one registered rpc method, got %d", s.MethodCount())
	}
}

func TestShardDataDirsAreIsolated(t *testing.T) {
	base := t.TempDir()
	baseCfg := config.IndexerConfig{DataDir: base, SegmentMaxSize: 1 << 20, FlushInterval: 0}
	r, err := NewRouter(baseCfg, testRetrievalConfig(), 2)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close()

	want0 := filepath.Join(base, "shard-0")
	want1 := filepath.Join(base, "shard-1")
	if want0 == want1 {
		t.Fatalf("expected distinct shard data dirs")
	}
}
