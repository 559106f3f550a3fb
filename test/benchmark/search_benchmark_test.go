package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/searchplatform/retrieval-engine/internal/indexer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/matcher"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/registry"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	"github.com/searchplatform/retrieval-engine/internal/searcher/executor"
	"github.com/searchplatform/retrieval-engine/internal/searcher/parser"
	"github.com/searchplatform/retrieval-engine/pkg/config"
)

// BenchmarkQueryParse measures query parsing latency for queries of varying
// complexity.
func BenchmarkQueryParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "distributed systems"},
		{"boolean_and", "search AND analytics AND platform"},
		{"boolean_or", "indexing OR caching OR ranking"},
		{"with_not", "distributed NOT monolithic"},
		{"complex", "search AND ranking OR analytics NOT deprecated"},
		{"long", "distributed search analytics platform indexing query processing ranking caching sharding"},
		{"scheme_selected", "scheme:pl2 distributed search analytics"},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				plan := parser.Parse(q.query)
				_ = plan
			}
		})
	}
}

// BenchmarkMatcherRun measures the matcher's top-K heap maintenance for
// different posting-list sizes and weighting schemes.
func BenchmarkMatcherRun(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	schemes := []weight.Scheme{weight.NewBM25(), weight.NewPL2(), weight.NewDirichlet()}
	for _, numDocs := range sizes {
		for _, scheme := range schemes {
			b.Run(fmt.Sprintf("docs_%d/%s", numDocs, scheme.Name()), func(b *testing.B) {
				list := make([]postings.Posting, numDocs)
				for i := 0; i < numDocs; i++ {
					list[i] = postings.Posting{
						Doc: postings.DocID(i + 1), WDF: uint32((i % 10) + 1),
						DocLength: uint64(100 + (i % 50)), UniqueTerms: 20, WDFDocMax: 5,
					}
				}
				meta := func(did postings.DocID) (matcher.DocMeta, bool) {
					idx := int(did) - 1
					if idx < 0 || idx >= numDocs {
						return matcher.DocMeta{}, false
					}
					return matcher.DocMeta{DocLength: list[idx].DocLength, UniqueTerms: list[idx].UniqueTerms}, true
				}

				b.ReportAllocs()
				b.ResetTimer()
				collection := stats.CollectionStats{CollectionSize: uint64(numDocs * 10), TotalLength: uint64(numDocs * 10 * 120)}
				termStats := stats.TermStats{Term: "search", TermFreq: uint64(numDocs), CollFreq: uint64(numDocs * 3), WDFUpperBound: 10}
				for i := 0; i < b.N; i++ {
					s := scheme.Clone()
					s.Init(collection, termStats, 1.0)
					leaf := postings.NewLeaf("search", list, s, uint64(numDocs))
					results, _, err := matcher.Run(context.Background(), leaf, s, meta, 10)
					if err != nil {
						b.Fatal(err)
					}
					_ = results
				}
			})
		}
	}
}

func benchRetrieval() config.RetrievalConfig {
	return config.RetrievalConfig{
		Scheme:                 "bm25",
		KVStoreRestartInterval: 16,
		KVStoreIndexType:       "dense",
		RecalcEvery:            16,
	}
}

// BenchmarkShardedExecutor exercises the sharded query executor with varying
// shard counts.
func BenchmarkShardedExecutor(b *testing.B) {
	shardCounts := []int{1, 4, 8}
	for _, numShards := range shardCounts {
		b.Run(fmt.Sprintf("shards_%d", numShards), func(b *testing.B) {
			engines := make(map[int]*indexer.Engine)
			for s := 0; s < numShards; s++ {
				cfg := config.IndexerConfig{
					DataDir:        b.TempDir(),
					SegmentMaxSize: 100 * 1024 * 1024,
					FlushInterval:  0,
				}
				engine, err := indexer.NewEngine(cfg, benchRetrieval())
				if err != nil {
					b.Fatal(err)
				}
				defer engine.Close()

				for d := 0; d < 1000; d++ {
					docID := fmt.Sprintf("shard%d-doc%d", s, d)
					engine.IndexDocument(docID, "distributed search",
						"search analytics platform with distributed indexing and query ranking")
				}
				engines[s] = engine
			}

			reg := registry.New()
			exec := executor.NewSharded(engines, reg, "bm25")
			plan := parser.Parse("distributed search")

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := exec.Execute(context.Background(), plan, 10)
				if err != nil {
					b.Fatal(err)
				}
				_ = result
			}
		})
	}
}

// BenchmarkShardedExecutorParallel measures concurrent sharded search
// throughput across 8 shards.
func BenchmarkShardedExecutorParallel(b *testing.B) {
	engines := make(map[int]*indexer.Engine)
	for s := 0; s < 8; s++ {
		cfg := config.IndexerConfig{
			DataDir:        b.TempDir(),
			SegmentMaxSize: 100 * 1024 * 1024,
			FlushInterval:  0,
		}
		engine, err := indexer.NewEngine(cfg, benchRetrieval())
		if err != nil {
			b.Fatal(err)
		}
		defer engine.Close()

		for d := 0; d < 1000; d++ {
			docID := fmt.Sprintf("shard%d-doc%d", s, d)
			engine.IndexDocument(docID, "distributed search analytics",
				"platform with distributed search indexing query processing and ranking engine")
		}
		engines[s] = engine
	}

	reg := registry.New()
	exec := executor.NewSharded(engines, reg, "bm25")
	plan := parser.Parse("distributed search")

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			result, err := exec.Execute(context.Background(), plan, 10)
			if err != nil {
				b.Fatal(err)
			}
			_ = result
		}
	})
}
