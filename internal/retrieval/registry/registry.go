// Package registry implements the name→prototype lookup the retrieval
// core uses for every user-extensible category: weighting schemes,
// posting sources, match spies, key makers, and lat-long metrics.
// Registering a prototype either clones it (schemes, key makers,
// metrics — value-like, cheap to duplicate) or shares a reference to it
// (posting sources, match spies — often wrap live external state such
// as an open cursor or an accumulating counter), following the
// reference-counted vs. plain-value split each category needs.
package registry

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"
)

// PostingSource is a pluggable, non-term posting stream (e.g. a
// value-slot walk over an external ranking signal) that can stand in
// wherever a postings.Iterator is required.
type PostingSource interface {
	Name() string
	Clone() PostingSource
	Open() (postings.Iterator, error)
}

// MatchSpy observes every document the matcher visits without
// affecting ranking, accumulating some caller-defined aggregate (facet
// counts, geo clustering, sampling) over the course of one query.
// Spies are reference-counted: registering shares the caller's live
// instance rather than cloning it, since the point of a spy is usually
// to be read back after the query completes.
type MatchSpy interface {
	Name() string
	Observe(did postings.DocID, doclen uint64, uniqueTerms uint32)
}

// KeyMaker derives a sort key from a document's stored value slots, for
// secondary/tertiary ordering the ranking score alone does not express.
type KeyMaker interface {
	Name() string
	Clone() KeyMaker
	MakeKey(doclen uint64, uniqueTerms uint32) string
}

// Metric computes a scalar distance between two coordinates, the
// pluggable core of a lat-long value range or a nearest-match match
// spy.
type Metric interface {
	Name() string
	Clone() Metric
	Distance(lat1, lon1, lat2, lon2 float64) float64
}

// referenceCounted reports whether a category shares the registered
// object rather than cloning it at registration time.
type referenceCounted bool

const (
	sharedReference referenceCounted = true
	clonedValue     referenceCounted = false
)

// category is one name→prototype map. It is generic over the concrete
// interface type so every category (schemes, sources, spies, key
// makers, metrics) shares one implementation of the empty-name
// rejection, replace-and-drop-on-duplicate, and singleflight-guarded
// first-registration rules that apply uniformly across all five.
type category[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	cloneOf func(T) T
	kind    referenceCounted
	group   singleflight.Group
}

func newCategory[T any](cloneOf func(T) T, kind referenceCounted) *category[T] {
	return &category[T]{entries: make(map[string]T), cloneOf: cloneOf, kind: kind}
}

// Register installs obj under name, cloning it first unless the
// category is reference-counted. A duplicate name replaces (and drops)
// the prior entry. An empty name is rejected.
func (c *category[T]) Register(name string, obj T) error {
	if name == "" {
		return apperrors.New(apperrors.ErrInvalidArgument, 400, "registry: cannot register an empty name")
	}
	// singleflight collapses concurrent first-registrations of the same
	// name (e.g. several shard-router goroutines registering the same
	// built-in scheme at startup) into one winner; the losers simply
	// observe the winner's already-installed entry.
	_, err, _ := c.group.Do(name, func() (any, error) {
		stored := obj
		if c.kind == clonedValue {
			stored = c.cloneOf(obj)
		}
		c.mu.Lock()
		c.entries[name] = stored
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// Lookup returns the entry registered under name. ok is false if name
// was never registered, expressed idiomatically as Go's ordinary
// comma-ok pattern rather than a null-sentinel return.
func (c *category[T]) Lookup(name string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[name]
	return v, ok
}

// Names returns every registered name, in no particular order.
func (c *category[T]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	return out
}

// Unregister drops name if present. Needed by tests that want a clean
// category between cases without constructing a whole new Registry.
func (c *category[T]) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Registry bundles all five categories, pre-populated with the
// built-in schemes on construction.
type Registry struct {
	Schemes        *category[weight.Scheme]
	PostingSources *category[PostingSource]
	MatchSpies     *category[MatchSpy]
	KeyMakers      *category[KeyMaker]
	Metrics        *category[Metric]
}

// DefaultDocLengthSpyName is the name a fresh Registry's default
// ValueCountMatchSpy is registered under.
const DefaultDocLengthSpyName = "doc_length_decile"

// defaultDocLengthMax is the document length a fresh registry's default
// decile spy scales its buckets to, absent any corpus-specific figure a
// caller could supply. Callers whose documents run longer or shorter
// than this should register their own spy under a different name, or
// Unregister and replace this one.
const defaultDocLengthMax = 4096

// New returns a fresh Registry pre-populated with every built-in
// weighting scheme, plus one default entry in each of the other
// categories: a ValueCountMatchSpy bucketing by document-length decile,
// registered under DefaultDocLengthSpyName. PostingSources, KeyMakers
// and Metrics start empty — this engine ships no non-term posting
// source, no secondary sort key, and no lat-long distance function, so
// there is no built-in prototype to register for them; callers add
// their own the same way they would add a custom scheme.
func New() *Registry {
	r := &Registry{
		Schemes:        newCategory(func(s weight.Scheme) weight.Scheme { return s.Clone() }, clonedValue),
		PostingSources: newCategory(func(s PostingSource) PostingSource { return s.Clone() }, sharedReference),
		MatchSpies:     newCategory(func(s MatchSpy) MatchSpy { return s }, sharedReference),
		KeyMakers:      newCategory(func(k KeyMaker) KeyMaker { return k.Clone() }, clonedValue),
		Metrics:        newCategory(func(m Metric) Metric { return m.Clone() }, clonedValue),
	}
	for _, s := range weight.BuiltinSchemes() {
		// Built-in registration is infallible: names are compile-time
		// constants, never empty.
		_ = r.Schemes.Register(s.Name(), s)
	}
	defaultSpy := NewValueCountMatchSpy(DefaultDocLengthSpyName, DocLengthDecileBucket(defaultDocLengthMax))
	_ = r.MatchSpies.Register(defaultSpy.Name(), defaultSpy)
	return r
}
