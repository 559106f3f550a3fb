package postings

import (
	"context"
	"fmt"
	"sync"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	"github.com/searchplatform/retrieval-engine/pkg/grpc"
	"github.com/searchplatform/retrieval-engine/pkg/resilience"
)

// RemoteShardSearchRequest is the wire payload sent to a remote shard's
// "PostingService.Search" RPC method, dispatched over the hand-rolled
// JSON-over-TCP client in pkg/grpc.
type RemoteShardSearchRequest struct {
	ShardID int    `json:"shard_id"`
	Term    string `json:"term"`
}

// RemoteShardSearchResponse is the corresponding reply: the term's
// full posting list plus its exact document frequency, encoded as plain
// JSON structs rather than the compact binary blob the local kvstore
// stores it as, since this crosses a service boundary.
type RemoteShardSearchResponse struct {
	Postings []RemotePosting `json:"postings"`
	TermFreq uint64          `json:"term_freq"`
}

// RemotePosting mirrors Posting with JSON-friendly field names.
type RemotePosting struct {
	Doc         uint64   `json:"doc"`
	WDF         uint32   `json:"wdf"`
	DocLength   uint64   `json:"doc_length"`
	UniqueTerms uint32   `json:"unique_terms"`
	WDFDocMax   uint32   `json:"wdf_doc_max"`
	Positions   []uint32 `json:"positions"`
}

// RemoteLeaf is a Leaf whose posting list was fetched from another
// shard over pkg/grpc instead of decoded from a local kvstore.Table. It
// composes into the same iterator trees as a local Leaf: sharded
// queries never need to know which kind of leaf they hold.
type RemoteLeaf struct {
	*Leaf
}

// remoteBreakers holds one CircuitBreaker per shard address: a slow or
// dead remote shard trips its own breaker without affecting fetches
// against the other shards a coordinator talks to.
var remoteBreakers sync.Map // shardAddr -> *resilience.CircuitBreaker

func breakerFor(shardAddr string) *resilience.CircuitBreaker {
	if cb, ok := remoteBreakers.Load(shardAddr); ok {
		return cb.(*resilience.CircuitBreaker)
	}
	cb, _ := remoteBreakers.LoadOrStore(shardAddr, resilience.NewCircuitBreaker(
		fmt.Sprintf("remote-shard:%s", shardAddr),
		resilience.CircuitBreakerConfig{},
	))
	return cb.(*resilience.CircuitBreaker)
}

// FetchRemoteLeaf dials shardAddr (or reuses client if non-nil), calls
// PostingService.Search for term against shardID, and returns a
// RemoteLeaf scored by scheme. The caller owns client's lifetime;
// passing nil dials a fresh, short-lived connection for this one call.
//
// The call is wrapped in a per-shard-address circuit breaker (so a
// stuck shard fails fast for later terms instead of blocking every
// query on its dial timeout) and a bounded exponential-backoff retry
// (so one dropped packet on an otherwise healthy shard does not fail
// the whole query).
func FetchRemoteLeaf(ctx context.Context, client *grpc.Client, shardAddr string, shardID int, term string, scheme weight.Scheme) (*RemoteLeaf, bool, error) {
	var resp RemoteShardSearchResponse
	var found bool

	cb := breakerFor(shardAddr)
	err := cb.Execute(func() error {
		return resilience.Retry(ctx, fmt.Sprintf("posting-service.search:%s", term), resilience.RetryConfig{MaxAttempts: 3}, func() error {
			c := client
			if c == nil {
				dialed, err := grpc.Dial(shardAddr)
				if err != nil {
					return err
				}
				defer dialed.Close()
				c = dialed
			}
			resp = RemoteShardSearchResponse{}
			if err := c.Call("PostingService.Search", &RemoteShardSearchRequest{ShardID: shardID, Term: term}, &resp); err != nil {
				return err
			}
			found = len(resp.Postings) > 0
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	list := make([]Posting, len(resp.Postings))
	for i, p := range resp.Postings {
		list[i] = Posting{
			Doc: DocID(p.Doc), WDF: p.WDF, DocLength: p.DocLength,
			UniqueTerms: p.UniqueTerms, WDFDocMax: p.WDFDocMax, Positions: p.Positions,
		}
	}
	return &RemoteLeaf{Leaf: NewLeaf(term, list, scheme, resp.TermFreq)}, true, nil
}
