// Package shard provides hash-based shard routing for index engines. Each
// shard owns an independent indexer.Engine instance backed by its own data
// directory, and the Router dispatches documents by shard ID.
package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/searchplatform/retrieval-engine/internal/indexer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/pkg/config"
	"github.com/searchplatform/retrieval-engine/pkg/grpc"
)

// Router maps shard IDs to dedicated indexer.Engine instances.
type Router struct {
	engines     map[int]*indexer.Engine
	mu          sync.RWMutex
	baseCfg     config.IndexerConfig
	retrieval   config.RetrievalConfig
	numShards   int
	logger      *slog.Logger
}

// NewRouter creates numShards engines, each in its own sub-directory under
// baseCfg.DataDir, all sharing the same retrieval configuration.
func NewRouter(baseCfg config.IndexerConfig, retrieval config.RetrievalConfig, numShards int) (*Router, error) {
	r := &Router{
		engines:   make(map[int]*indexer.Engine, numShards),
		baseCfg:   baseCfg,
		retrieval: retrieval,
		numShards: numShards,
		logger:    slog.Default().With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		shardCfg := baseCfg
		shardCfg.DataDir = filepath.Join(baseCfg.DataDir, fmt.Sprintf("shard-%d", i))
		engine, err := indexer.NewEngine(shardCfg, retrieval)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines[i] = engine
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[shardID]
	if !ok {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return engine, nil
}

// GetAllEngines returns a snapshot map of all shard engines.
func (r *Router) GetAllEngines() map[int]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[int]*indexer.Engine, len(r.engines))
	for id, engine := range r.engines {
		result[id] = engine
	}
	return result
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// FlushAll flushes every shard engine to disk, continuing past a
// per-shard failure and returning every error it collected.
func (r *Router) FlushAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result *multierror.Error
	for id, engine := range r.engines {
		if err := engine.Flush(); err != nil {
			r.logger.Error("flush failed", "shard_id", id, "error", err)
			result = multierror.Append(result, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}

// ReloadAll tells every shard engine to re-scan for newly flushed segments.
// Returns the total number of new segments loaded across all shards.
func (r *Router) ReloadAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, engine := range r.engines {
		total += engine.ReloadSegments()
	}
	return total
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

// RegisterPostingService exposes every shard this Router owns as
// "PostingService.Search" on s, keyed by the ShardID field of the
// request: the server side of postings.FetchRemoteLeaf, letting another
// process's query.Or root treat one of these shards' postings as just
// another postings.Iterator.
func (r *Router) RegisterPostingService(s *grpc.Server) {
	s.Register("PostingService.Search", func(ctx context.Context, req json.RawMessage) (any, error) {
		var request postings.RemoteShardSearchRequest
		if err := json.Unmarshal(req, &request); err != nil {
			return nil, fmt.Errorf("decoding PostingService.Search request: %w", err)
		}
		engine, err := r.Route(request.ShardID)
		if err != nil {
			return nil, err
		}
		list, termFreq, err := engine.RawTermPostings(request.Term)
		if err != nil {
			return nil, err
		}
		resp := postings.RemoteShardSearchResponse{TermFreq: termFreq, Postings: make([]postings.RemotePosting, len(list))}
		for i, p := range list {
			resp.Postings[i] = postings.RemotePosting{
				Doc: uint64(p.Doc), WDF: p.WDF, DocLength: p.DocLength,
				UniqueTerms: p.UniqueTerms, WDFDocMax: p.WDFDocMax, Positions: p.Positions,
			}
		}
		return &resp, nil
	})
}

// closeAll closes every shard engine, collecting every error encountered.
func (r *Router) closeAll() error {
	var result *multierror.Error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			result = multierror.Append(result, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}
