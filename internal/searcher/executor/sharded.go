package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/searchplatform/retrieval-engine/internal/analytics"
	"github.com/searchplatform/retrieval-engine/internal/indexer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/registry"
	"github.com/searchplatform/retrieval-engine/internal/searcher/parser"
	"github.com/searchplatform/retrieval-engine/internal/searcher/ranker"
	"github.com/searchplatform/retrieval-engine/pkg/metrics"
)

// ShardedExecutor fans a query out to one Executor per shard, each
// scoring and translating its own docids independently, then merges the
// per-shard top-K sets by score. This is the same shape a coordinator
// would use to merge a remote shard's already-resolved hits — it does
// not need a shared dense docid space across shards, since each
// Executor already resolves back to the caller's own document id
// before returning.
type ShardedExecutor struct {
	executors map[int]*Executor
	logger    *slog.Logger
}

func NewSharded(engines map[int]*indexer.Engine, reg *registry.Registry, defaultScheme string) *ShardedExecutor {
	executors := make(map[int]*Executor, len(engines))
	for id, eng := range engines {
		executors[id] = New(eng, reg, defaultScheme)
	}
	return &ShardedExecutor{
		executors: executors,
		logger:    slog.Default().With("component", "sharded-executor"),
	}
}

// WithMetrics attaches m to every per-shard Executor.
func (se *ShardedExecutor) WithMetrics(m *metrics.Metrics) *ShardedExecutor {
	for _, ex := range se.executors {
		ex.WithMetrics(m)
	}
	return se
}

// WithFacetSpy attaches the same facet spy and collector to every
// per-shard Executor, so a shared ValueCountMatchSpy accumulates tallies
// across all shards (Observe is safe for concurrent use). Each shard's
// own Execute still publishes its own FacetEvent snapshot, so the
// analytics stream sees one event per shard per query rather than one
// merged event; a consumer summing SpyName-keyed events over a short
// window recovers the query-wide facet distribution.
func (se *ShardedExecutor) WithFacetSpy(spy *registry.ValueCountMatchSpy, collector *analytics.Collector) *ShardedExecutor {
	for _, ex := range se.executors {
		ex.WithFacetSpy(spy, collector)
	}
	return se
}

func (se *ShardedExecutor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if len(plan.Terms) == 0 {
		return &SearchResult{Query: plan.RawQuery, Results: []ranker.ScoredDoc{}}, nil
	}

	type shardOutcome struct {
		shardID int
		res     *SearchResult
		err     error
	}
	outcomes := make(chan shardOutcome, len(se.executors))
	var wg sync.WaitGroup
	for shardID, ex := range se.executors {
		wg.Add(1)
		go func(sid int, e *Executor) {
			defer wg.Done()
			res, err := e.Execute(ctx, plan, limit)
			outcomes <- shardOutcome{shardID: sid, res: res, err: err}
		}(shardID, ex)
	}
	wg.Wait()
	close(outcomes)

	var merged []ranker.ScoredDoc
	termStats := make(map[string]int)
	var fanErr *multierror.Error
	var succeeded int
	for oc := range outcomes {
		if oc.err != nil {
			fanErr = multierror.Append(fanErr, fmt.Errorf("shard %d: %w", oc.shardID, oc.err))
			se.logger.Error("shard query failed", "shard_id", oc.shardID, "error", oc.err)
			continue
		}
		succeeded++
		merged = append(merged, oc.res.Results...)
		for term, count := range oc.res.TermStats {
			termStats[term] += count
		}
	}
	if succeeded == 0 && len(se.executors) > 0 {
		return nil, fmt.Errorf("all %d shards failed: %w", len(se.executors), fanErr.ErrorOrNil())
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].DocID < merged[j].DocID
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	se.logger.Info("sharded query executed",
		"query", plan.RawQuery,
		"shards_queried", succeeded,
		"results", len(merged),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(merged),
		Results:   merged,
		TermStats: termStats,
	}, nil
}
