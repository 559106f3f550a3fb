package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/searchplatform/retrieval-engine/internal/analytics"
	"github.com/searchplatform/retrieval-engine/internal/indexer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/matcher"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/query"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/registry"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	"github.com/searchplatform/retrieval-engine/internal/searcher/parser"
	"github.com/searchplatform/retrieval-engine/internal/searcher/ranker"
	"github.com/searchplatform/retrieval-engine/pkg/metrics"
	"github.com/searchplatform/retrieval-engine/pkg/tracing"
)

// matcherSink adapts pkg/metrics's Prometheus collectors to
// matcher.MetricsSink, so the matcher can report its termination reason
// and final heap size without importing pkg/metrics itself.
type matcherSink struct {
	m *metrics.Metrics
}

func (s matcherSink) ObserveTermination(reason string) {
	if s.m == nil {
		return
	}
	s.m.MatcherCandidatesTotal.WithLabelValues(reason).Inc()
}

func (s matcherSink) ObserveHeapSize(n int) {
	if s.m == nil {
		return
	}
	s.m.MatcherHeapSize.Observe(float64(n))
}

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
	TraceID   string             `json:"trace_id"`
}

// Executor plans a QueryPlan into a postings.Iterator tree over one
// engine's terms and drives it through the matcher.
type Executor struct {
	engine        *indexer.Engine
	registry      *registry.Registry
	defaultScheme string
	metrics       *metrics.Metrics
	facetSpy      *registry.ValueCountMatchSpy
	collector     *analytics.Collector
	logger        *slog.Logger
}

func New(engine *indexer.Engine, reg *registry.Registry, defaultScheme string) *Executor {
	if reg == nil {
		reg = registry.New()
	}
	if defaultScheme == "" {
		defaultScheme = "bm25"
	}
	return &Executor{
		engine:        engine,
		registry:      reg,
		defaultScheme: defaultScheme,
		logger:        slog.Default().With("component", "query-executor"),
	}
}

// WithMetrics attaches Prometheus collectors the matcher reports its
// per-run termination reason and heap size to. Optional: an Executor
// with no metrics attached runs identically, just unobserved.
func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithFacetSpy attaches a ValueCountMatchSpy that observes every
// candidate a query matches and, if collector is non-nil, publishes a
// snapshot of the spy's tallies through the analytics collector's
// existing event pipeline after each run rather than a bespoke
// facet-reporting path.
func (e *Executor) WithFacetSpy(spy *registry.ValueCountMatchSpy, collector *analytics.Collector) *Executor {
	e.facetSpy = spy
	e.collector = collector
	return e
}

func (e *Executor) resolveScheme(plan *parser.QueryPlan) (weight.Scheme, error) {
	name := plan.SchemeName
	if name == "" {
		name = e.defaultScheme
	}
	proto, ok := e.registry.Schemes.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown weighting scheme %q", name)
	}
	if plan.SchemeParams == "" {
		return proto, nil
	}
	configured, err := proto.Unserialise([]byte(plan.SchemeParams))
	if err != nil {
		return nil, fmt.Errorf("applying scheme params for %q: %w", name, err)
	}
	return configured, nil
}

// Execute builds the query's postings.Iterator tree (AND/OR conjunction
// over plan.Terms, wrapped in AndNot for every ExcludeTerms member),
// runs the matcher and translates the result back to external doc ids.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "executor.execute", "")
	span.SetAttr("query", plan.RawQuery)
	defer func() {
		span.End()
		span.Log()
	}()

	if len(plan.Terms) == 0 {
		return &SearchResult{Query: plan.RawQuery, Results: []ranker.ScoredDoc{}}, nil
	}
	scheme, err := e.resolveScheme(plan)
	if err != nil {
		return nil, err
	}

	termStats := make(map[string]int)
	var children []postings.Iterator
	for _, term := range plan.Terms {
		it, docFreq, err := e.engine.OpenTermIterator(term, scheme)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term, err)
		}
		if it == nil {
			continue
		}
		termStats[term] = int(docFreq)
		children = append(children, it)
	}
	if len(children) == 0 {
		return &SearchResult{Query: plan.RawQuery, Results: []ranker.ScoredDoc{}, TermStats: termStats}, nil
	}

	var root postings.Iterator
	switch plan.Type {
	case parser.QueryOR:
		root = query.NewOr(children...)
	default:
		root = query.NewAnd(e.engine.CollectionStats().CollectionSize, children...)
	}

	for _, term := range plan.ExcludeTerms {
		it, _, err := e.engine.OpenTermIterator(term, scheme)
		if err != nil {
			e.logger.Error("searching exclude term failed", "term", term, "error", err)
			continue
		}
		if it == nil {
			continue
		}
		root = query.NewAndNot(root, it)
	}

	meta := func(did postings.DocID) (matcher.DocMeta, bool) {
		length, uniqueTerms, ok := e.engine.DocMeta(did)
		if !ok {
			return matcher.DocMeta{}, false
		}
		return matcher.DocMeta{DocLength: length, UniqueTerms: uniqueTerms}, true
	}

	ctx = matcher.WithMetricsSink(ctx, matcherSink{m: e.metrics})
	candidates, traceID, err := matcher.Run(ctx, root, scheme, meta, limit)
	if err != nil {
		return nil, err
	}
	span.TraceID = traceID
	span.SetAttr("candidates", len(candidates))
	resolved := ranker.Translate(candidates, e.engine.ExternalID)

	if e.facetSpy != nil {
		for _, c := range candidates {
			if m, ok := meta(c.DocID); ok {
				e.facetSpy.Observe(c.DocID, m.DocLength, m.UniqueTerms)
			}
		}
		if e.collector != nil {
			e.collector.Track(analytics.FacetEvent{
				Type:      analytics.EventFacetCount,
				SpyName:   e.facetSpy.Name(),
				Query:     plan.RawQuery,
				Counts:    e.facetSpy.Counts(),
				Timestamp: time.Now().UTC(),
			})
		}
	}

	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", len(candidates),
		"results", len(resolved),
		"trace_id", traceID,
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(resolved),
		Results:   resolved,
		TermStats: termStats,
		TraceID:   traceID,
	}, nil
}
