// Package postings implements the posting-list iterator algebra's leaf
// nodes: decoding one term's posting stream out of a kvstore table and
// exposing it through the shared Iterator interface the combinators in
// internal/retrieval/query and the matcher in internal/retrieval/matcher
// both consume.
package postings

import (
	"encoding/binary"
	"sort"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/kvstore"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"
)

// DocID is the dense, positive, monotonically-assigned document
// identifier the retrieval core operates on; 0 is reserved to mean
// "past the end of every posting list".
type DocID uint64

// Posting is one (document, term-occurrence) record within a term's
// posting list.
type Posting struct {
	Doc         DocID
	WDF         uint32
	DocLength   uint64
	UniqueTerms uint32
	WDFDocMax   uint32
	Positions   []uint32
}

// EncodePostingList serialises a term's postings, sorted ascending by
// Doc, into the byte blob stored as one kvstore entry's tag. Deltas are
// varint-encoded, mirroring the entry-stream's own prefix-compression
// philosophy: consecutive docids are usually close together.
func EncodePostingList(list []Posting) []byte {
	buf := make([]byte, 0, len(list)*8)
	var varintBuf [binary.MaxVarintLen64]byte
	var prevDoc DocID
	for _, p := range list {
		n := binary.PutUvarint(varintBuf[:], uint64(p.Doc-prevDoc))
		buf = append(buf, varintBuf[:n]...)
		prevDoc = p.Doc

		n = binary.PutUvarint(varintBuf[:], uint64(p.WDF))
		buf = append(buf, varintBuf[:n]...)
		n = binary.PutUvarint(varintBuf[:], p.DocLength)
		buf = append(buf, varintBuf[:n]...)
		n = binary.PutUvarint(varintBuf[:], uint64(p.UniqueTerms))
		buf = append(buf, varintBuf[:n]...)
		n = binary.PutUvarint(varintBuf[:], uint64(p.WDFDocMax))
		buf = append(buf, varintBuf[:n]...)

		n = binary.PutUvarint(varintBuf[:], uint64(len(p.Positions)))
		buf = append(buf, varintBuf[:n]...)
		var prevPos uint32
		for _, pos := range p.Positions {
			n = binary.PutUvarint(varintBuf[:], uint64(pos-prevPos))
			buf = append(buf, varintBuf[:n]...)
			prevPos = pos
		}
	}
	return buf
}

// DecodePostingList is the inverse of EncodePostingList.
func DecodePostingList(data []byte) ([]Posting, error) {
	var out []Posting
	var prevDoc DocID
	pos := 0
	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return 0, apperrors.New(apperrors.ErrCorrupt, 500, "postings: malformed varint")
		}
		pos += n
		return v, nil
	}
	for pos < len(data) {
		delta, err := readUvarint()
		if err != nil {
			return nil, err
		}
		doc := prevDoc + DocID(delta)
		prevDoc = doc

		wdf, err := readUvarint()
		if err != nil {
			return nil, err
		}
		docLen, err := readUvarint()
		if err != nil {
			return nil, err
		}
		uniqueTerms, err := readUvarint()
		if err != nil {
			return nil, err
		}
		wdfDocMax, err := readUvarint()
		if err != nil {
			return nil, err
		}
		posCount, err := readUvarint()
		if err != nil {
			return nil, err
		}
		positions := make([]uint32, 0, posCount)
		var prevPos uint32
		for i := uint64(0); i < posCount; i++ {
			d, err := readUvarint()
			if err != nil {
				return nil, err
			}
			p := prevPos + uint32(d)
			positions = append(positions, p)
			prevPos = p
		}
		out = append(out, Posting{
			Doc: doc, WDF: uint32(wdf), DocLength: docLen,
			UniqueTerms: uint32(uniqueTerms), WDFDocMax: uint32(wdfDocMax), Positions: positions,
		})
	}
	return out, nil
}

// Iterator is the capability every posting-list node — leaf or
// combinator — implements. w_min is advisory throughout: passing 0
// means "no pruning", and any implementation may ignore it entirely
// without breaking correctness, only throughput.
type Iterator interface {
	AtEnd() bool
	DocID() DocID
	WDF() uint32
	DocLength() uint64
	UniqueTerms() uint32
	WDFDocMax() uint32
	TermFreq() uint64
	EstimateTermFreqs(s *stats.Stats)
	Next(wMin float64) error
	SkipTo(did DocID, wMin float64) error
	// Check is the non-positioning predicate variant of SkipTo: matched
	// reports whether did is present, valid reports whether the leaf
	// could answer without advancing (false means the caller must
	// replay this call as SkipTo).
	Check(did DocID, wMin float64) (matched bool, valid bool)
	RecalcMaxWeight() float64
	MaxWeight() float64
	GetWeight() float64
	GatherPositionLists(out map[DocID][][]uint32)
	CountMatchingSubqs() int
	Description() string
}

// Leaf wraps one term's decoded posting list plus the weighting-scheme
// clone assigned to score it. It is the retrieval core's only Iterator
// implementation that does not compose other iterators.
type Leaf struct {
	term     string
	postings []Posting
	idx      int // index of the current posting, or len(postings) at end.
	scheme   weight.Scheme
	maxPart  float64
	termFreq uint64
}

// NewLeaf builds a Leaf from an already-decoded, ascending-by-docid
// posting list. scheme must already have had Clone+Init called with
// this term's statistics.
func NewLeaf(term string, list []Posting, scheme weight.Scheme, termFreq uint64) *Leaf {
	return &Leaf{term: term, postings: list, scheme: scheme, maxPart: scheme.GetMaxPart(), termFreq: termFreq}
}

// OpenLeaf decodes the posting list stored under term in table and
// returns a ready Leaf. It is the on-disk analogue of NewLeaf.
func OpenLeaf(term string, table *kvstore.Table, scheme weight.Scheme, termFreq uint64) (*Leaf, bool, error) {
	c := kvstore.NewCursor(table)
	ok, err := c.Find([]byte(term), false)
	if err != nil {
		return nil, false, err
	}
	if !ok || string(c.CurrentKey()) != term {
		return nil, false, nil
	}
	list, err := DecodePostingList(c.CurrentTag())
	if err != nil {
		return nil, false, err
	}
	return NewLeaf(term, list, scheme, termFreq), true, nil
}

func (l *Leaf) AtEnd() bool { return l.idx >= len(l.postings) }

func (l *Leaf) current() Posting {
	if l.AtEnd() {
		return Posting{}
	}
	return l.postings[l.idx]
}

func (l *Leaf) DocID() DocID { return l.current().Doc }

// WDF returns the current posting's within-document frequency, which
// invariant 1 requires never to exceed the scheme's declared upper
// bound.
func (l *Leaf) WDF() uint32 { return l.current().WDF }

func (l *Leaf) DocLength() uint64 { return l.current().DocLength }

func (l *Leaf) UniqueTerms() uint32 { return l.current().UniqueTerms }

func (l *Leaf) WDFDocMax() uint32 { return l.current().WDFDocMax }

func (l *Leaf) TermFreq() uint64 { return l.termFreq }

// EstimateTermFreqs records this leaf's exact term statistics into s,
// since a leaf (unlike a combinator) always knows them precisely.
func (l *Leaf) EstimateTermFreqs(s *stats.Stats) {
	if s == nil {
		return
	}
	var wdfUpper uint32
	for _, p := range l.postings {
		if p.WDF > wdfUpper {
			wdfUpper = p.WDF
		}
	}
	s.Terms[l.term] = stats.TermStats{
		Term: l.term, TermFreq: l.termFreq,
		CollFreq: sumWDF(l.postings), WDFUpperBound: wdfUpper,
	}
}

func sumWDF(list []Posting) uint64 {
	var total uint64
	for _, p := range list {
		total += uint64(p.WDF)
	}
	return total
}

// Next advances to the following posting. wMin is honoured
// conservatively: this leaf never skips a document its own contribution
// could push above wMin, since GetWeight is monotonic in nothing this
// leaf can precompute cheaply without decoding ahead — so wMin is
// accepted for interface parity and otherwise ignored.
func (l *Leaf) Next(wMin float64) error {
	_ = wMin
	if !l.AtEnd() {
		l.idx++
	}
	return nil
}

// SkipTo advances to the first posting with DocID >= did.
func (l *Leaf) SkipTo(did DocID, wMin float64) error {
	_ = wMin
	if l.AtEnd() || l.current().Doc >= did {
		return nil
	}
	// Postings are sorted ascending, so binary search from the current
	// position; sequential scan for typical small skip distances would
	// also be correct but binary search stays sound for large ones.
	rest := l.postings[l.idx:]
	i := sort.Search(len(rest), func(i int) bool { return rest[i].Doc >= did })
	l.idx += i
	return nil
}

// Check answers whether did is present without necessarily leaving the
// leaf positioned there. This implementation always advances (a Leaf's
// SkipTo is O(log n) and cheap), so valid is always true.
func (l *Leaf) Check(did DocID, wMin float64) (matched bool, valid bool) {
	if err := l.SkipTo(did, wMin); err != nil {
		return false, false
	}
	return !l.AtEnd() && l.current().Doc == did, true
}

// RecalcMaxWeight re-derives this leaf's bound from its already-Init'd
// scheme. A leaf's bound never actually changes after construction —
// GetMaxPart is a property of the scheme's statistics, not of position —
// so this simply returns the cached value, but the call is safe at any
// time per the combinator contract.
func (l *Leaf) RecalcMaxWeight() float64 {
	return l.maxPart
}

func (l *Leaf) MaxWeight() float64 { return l.maxPart }

// MaxpartViolation is called whenever a scheme's GetSumPart exceeds the
// GetMaxPart upper bound it declared at Init time — a scheme bug that
// would let the matcher's w_min pruning drop a document it should have
// kept. Nil by default; cmd/searcher points it at a Prometheus counter
// when metrics are enabled, and tests install their own recorder.
var MaxpartViolation func(scheme string, got, max float64)

// GetWeight scores the current posting's per-term contribution only.
// The query-independent extra (document-length normalisation that does
// not depend on which terms matched) is added exactly once per
// document by the matcher, not per leaf — a tree with several
// agreeing leaves must not accumulate it once per leaf.
func (l *Leaf) GetWeight() float64 {
	p := l.current()
	got := l.scheme.GetSumPart(p.WDF, p.DocLength, p.UniqueTerms, p.WDFDocMax)
	if MaxpartViolation != nil && got > l.maxPart {
		MaxpartViolation(l.scheme.Name(), got, l.maxPart)
	}
	return got
}

func (l *Leaf) GatherPositionLists(out map[DocID][][]uint32) {
	if l.AtEnd() {
		return
	}
	p := l.current()
	out[p.Doc] = append(out[p.Doc], p.Positions)
}

func (l *Leaf) CountMatchingSubqs() int { return 1 }

func (l *Leaf) Description() string {
	return "Leaf(" + l.term + ")"
}
