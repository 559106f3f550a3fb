// Package weight implements the pluggable weighting-scheme layer: the
// DFR, BM25, TF-IDF, LM and boolean/coordination families of ranking
// functions used by the matcher (internal/retrieval/matcher) to score
// and to bound the score of any document a posting-list iterator can
// still produce.
//
// Every scheme is a stateful, per-query clone: Clone() first, then
// Init() with the corpus statistics for the term the clone scores, then
// repeated GetSumPart/GetSumExtra calls as the matcher advances the
// posting lists. GetMaxPart/GetMaxExtra must hold as upper bounds for
// every input the live posting lists can present after Init — the
// matcher's pruning correctness (spec property 2, 4) depends on it.
package weight

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// Scheme is the capability record every weighting scheme implements.
// There is deliberately no shared base class: the set of operations is
// fixed by the retrieval core, and user-defined schemes register a
// prototype satisfying this interface with internal/retrieval/registry.
type Scheme interface {
	// Name returns the scheme's registered, stable identity.
	Name() string

	// Clone returns a fresh, uninitialised copy for one query.
	Clone() Scheme

	// Serialise encodes the scheme's parameters (not its computed
	// state) as a portable byte sequence.
	Serialise() []byte

	// Unserialise decodes parameters produced by Serialise into a new
	// Scheme instance. Trailing bytes are a serialisation error.
	Unserialise(data []byte) (Scheme, error)

	// NeedStat reports which corpus statistics this scheme reads.
	NeedStat() stats.Flags

	// Init prepares the clone to score postings for one term of one
	// query. factor == 0 requests only the query-independent part;
	// wqf is the term's within-query frequency and factor is otherwise
	// outerFactor * wqf.
	Init(collection stats.CollectionStats, term stats.TermStats, factor float64)

	// GetSumPart returns this term's contribution to one document's
	// score.
	GetSumPart(wdf uint32, doclen uint64, uniqueTerms uint32, wdfDocMax uint32) float64

	// GetMaxPart bounds every value GetSumPart can return after Init.
	GetMaxPart() float64

	// GetSumExtra returns the query-independent contribution to one
	// document's score (constant per document, not per term).
	GetSumExtra(doclen uint64, uniqueTerms uint32) float64

	// GetMaxExtra bounds every value GetSumExtra can return.
	GetMaxExtra() float64

	// CreateFromParameters parses a whitespace/comma separated list of
	// floating point parameters (positional, declaration order) into a
	// fresh Scheme. An empty string yields scheme defaults.
	CreateFromParameters(text string) (Scheme, error)
}

// BuiltinSchemes returns one fresh, default-parameter instance of every
// weighting scheme this package implements, in no particular order.
// internal/retrieval/registry uses this to pre-populate a fresh
// Registry's scheme category.
func BuiltinSchemes() []Scheme {
	return []Scheme{
		NewBM25(), NewBM25Plus(), NewTFIDF(), NewBoolean(), NewCoord(),
		NewPL2(), NewPL2Plus(), NewBB2(), NewInL2(), NewIfB2(), NewIneB2(), NewDLH(), NewDPH(),
		NewJelinekMercer(), NewDirichlet(), NewAbsoluteDiscount(), NewTwoStage(),
	}
}

// clamp implements the "any negative raw score is clamped to zero at
// the boundary" contract point shared by every scheme.
func clamp(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	return x
}

// paramSpec is the ordered, named parameter list of one scheme family,
// shared between Serialise/Unserialise/CreateFromParameters so every
// scheme in the file gets the same contract for free.
type paramSpec struct {
	schemeName string
	names      []string
	defaults   []float64
}

func (s paramSpec) fresh() []float64 {
	out := make([]float64, len(s.defaults))
	copy(out, s.defaults)
	return out
}

func (s paramSpec) parse(text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return s.fresh(), nil
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) != len(s.names) {
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, 400,
			"scheme %s: expected %d parameter(s), got %d", s.schemeName, len(s.names), len(fields))
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidArgument, 400,
				"scheme %s: parameter %d (%s) is not a number: %q", s.schemeName, i, s.names[i], f)
		}
		out[i] = v
	}
	return out, nil
}

func (s paramSpec) serialise(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func (s paramSpec) unserialise(data []byte) ([]float64, error) {
	want := 8 * len(s.names)
	if len(data) != want {
		return nil, apperrors.Newf(apperrors.ErrSerialisation, 422,
			"scheme %s: expected %d bytes, got %d", s.schemeName, want, len(data))
	}
	out := make([]float64, len(s.names))
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}

// serialisationErr reports a fixed-width parameter payload of the wrong
// length, for the zero-parameter schemes that skip paramSpec entirely.
func serialisationErr(schemeName string, want, got int) error {
	return apperrors.Newf(apperrors.ErrSerialisation, 422,
		"scheme %s: expected %d bytes, got %d", schemeName, want, got)
}

// invalidParamErr reports a CreateFromParameters call against a scheme
// that takes no parameters.
func invalidParamErr(schemeName, reason string) error {
	return apperrors.Newf(apperrors.ErrInvalidArgument, 400, "scheme %s: %s", schemeName, reason)
}

// goldenSectionMax finds max(eval) over [lo, hi] by golden-section
// search on the continuous relaxation of eval's argument, which
// converges geometrically toward the interior maximum of any unimodal
// (rises-then-falls, or purely monotonic as a degenerate case) function
// regardless of where in the range that maximum falls. This is what a
// fixed-step grid cannot promise: a peak narrower than the grid's
// spacing is simply never sampled. Endpoints are always checked too, so
// a purely monotonic eval is bounded exactly.
func goldenSectionMax(eval func(float64) float64, lo, hi float64, iters int) float64 {
	if hi <= lo {
		return eval(lo)
	}
	const phi = 0.6180339887498949
	x1, x2 := hi-phi*(hi-lo), lo+phi*(hi-lo)
	f1, f2 := eval(x1), eval(x2)
	for i := 0; i < iters && hi-lo > 1e-9*(1+hi-lo); i++ {
		if f1 < f2 {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + phi*(hi-lo)
			f2 = eval(x2)
		} else {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - phi*(hi-lo)
			f1 = eval(x1)
		}
	}
	best := math.Max(f1, f2)
	if v := eval(lo); v > best {
		best = v
	}
	if v := eval(hi); v > best {
		best = v
	}
	return best
}

func snapWDF(x float64, upper uint32) uint32 {
	if x < 0 {
		x = 0
	}
	if x > float64(upper) {
		x = float64(upper)
	}
	return uint32(math.Round(x))
}

func snapDoclen(x float64, lower, upper uint64) uint64 {
	if x < float64(lower) {
		x = float64(lower)
	}
	if x > float64(upper) {
		x = float64(upper)
	}
	return uint64(math.Round(x))
}

// gridMaximise bounds a two-variable score function over the achievable
// (wdf, doclen) range with a small relative safety margin on top.
//
// This stands in for a closed-form derivation (as PL2+ gets, by hand)
// for schemes whose bound would otherwise need a family of
// derivative-sign arguments per scheme. The wdf axis is searched with
// goldenSectionMax, which is sound for the unimodal-in-wdf shape every
// scheme here has at a fixed doclen (BB2's wn*log2(k/(wn+1)) genuinely
// peaks in the interior; the rest are monotonic, a limit case
// golden-section still bounds exactly). The doclen axis couples into
// DLH and DPH's raw score in a way that doesn't reduce to a single
// normalised variable, so it isn't assumed unimodal: it gets both a
// golden-section pass and a set of anchor samples spanning
// [doclenLower, doclenUpper], and the maximum over wdf is recomputed at
// every one of them.
func gridMaximise(f func(wdf uint32, doclen uint64) float64, wdfUpper uint32, doclenLower, doclenUpper uint64) float64 {
	if doclenLower == 0 {
		doclenLower = 1
	}
	if doclenUpper < doclenLower {
		doclenUpper = doclenLower
	}

	maxOverWDF := func(doclen uint64) float64 {
		return goldenSectionMax(func(x float64) float64 {
			return f(snapWDF(x, wdfUpper), doclen)
		}, 0, float64(wdfUpper), 64)
	}

	best := 0.0
	const doclenAnchors = 32
	for i := 0; i <= doclenAnchors; i++ {
		frac := float64(i) / doclenAnchors
		doclen := doclenLower + uint64(frac*float64(doclenUpper-doclenLower))
		if v := maxOverWDF(doclen); v > best {
			best = v
		}
	}
	if v := goldenSectionMax(func(x float64) float64 {
		return maxOverWDF(snapDoclen(x, doclenLower, doclenUpper))
	}, float64(doclenLower), float64(doclenUpper), 48); v > best {
		best = v
	}
	return best * 1.0001
}
