// Package query implements the posting-list combinator algebra — AND,
// OR, AND_NOT, Phrase and Near — over the shared postings.Iterator
// interface. Every combinator is itself an Iterator, so trees compose
// to arbitrary depth.
package query

import (
	"math"
	"strings"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// And composes n children, emitting a docid only when every child is
// simultaneously positioned there.
type And struct {
	children       []postings.Iterator
	did            postings.DocID
	atEnd          bool
	maxW           float64
	collectionSize uint64
}

// NewAnd returns an And node over children, already positioned on the
// first agreeing docid if one exists — matching this codebase's
// iterator convention that a freshly-built node is positioned on its
// first candidate, with Next advancing past it to the following one.
// collectionSize is the corpus's document count, used only by TermFreq's
// independence-assumption estimate; pass 0 when no collection context is
// available (TermFreq then falls back to the most selective child).
func NewAnd(collectionSize uint64, children ...postings.Iterator) *And {
	a := &And{children: children, collectionSize: collectionSize}
	a.maxW = a.sumChildMax()
	if err := a.settle(0); err != nil {
		a.atEnd = true
	}
	return a
}

func (a *And) sumChildMax() float64 {
	var sum float64
	for _, c := range a.children {
		sum += c.MaxWeight()
	}
	return sum
}

// Next advances child 0 and then restarts the agreement loop: check
// every other child against the candidate docid; on disagreement or an
// invalid check, re-seek from child 0 and try again.
func (a *And) Next(wMin float64) error {
	if len(a.children) == 0 {
		a.atEnd = true
		return nil
	}
	if err := a.children[0].Next(wMin); err != nil {
		return err
	}
	return a.settle(wMin)
}

func (a *And) settle(wMin float64) error {
	for {
		if a.children[0].AtEnd() {
			a.atEnd = true
			return nil
		}
		d := a.children[0].DocID()
		agree := true
		for i := 1; i < len(a.children); i++ {
			matched, valid := a.children[i].Check(d, wMin)
			if !valid {
				if err := a.children[0].Next(wMin); err != nil {
					return err
				}
				agree = false
				break
			}
			if a.children[i].AtEnd() {
				a.atEnd = true
				return nil
			}
			if !matched {
				if a.children[i].DocID() != d {
					if err := a.children[0].SkipTo(a.children[i].DocID(), wMin); err != nil {
						return err
					}
				}
				agree = false
				break
			}
		}
		if agree {
			a.did = d
			return nil
		}
	}
}

func (a *And) SkipTo(did postings.DocID, wMin float64) error {
	if len(a.children) == 0 {
		a.atEnd = true
		return nil
	}
	if err := a.children[0].SkipTo(did, wMin); err != nil {
		return err
	}
	return a.settle(wMin)
}

func (a *And) Check(did postings.DocID, wMin float64) (matched bool, valid bool) {
	for _, c := range a.children {
		m, v := c.Check(did, wMin)
		if !v {
			return false, false
		}
		if !m {
			return false, true
		}
	}
	a.did = did
	return true, true
}

func (a *And) AtEnd() bool          { return a.atEnd }
func (a *And) DocID() postings.DocID { return a.did }

func (a *And) WDF() uint32 {
	if len(a.children) == 0 {
		return 0
	}
	return a.children[0].WDF()
}

func (a *And) DocLength() uint64 {
	if len(a.children) == 0 {
		return 0
	}
	return a.children[0].DocLength()
}

func (a *And) UniqueTerms() uint32 {
	if len(a.children) == 0 {
		return 0
	}
	return a.children[0].UniqueTerms()
}

func (a *And) WDFDocMax() uint32 {
	if len(a.children) == 0 {
		return 0
	}
	return a.children[0].WDFDocMax()
}

// TermFreq estimates the AND node's own result-set size under the
// independence assumption: product over children of
// child.termfreq/collection_size, scaled back up by collection_size.
// Without a collection_size to normalise against (collectionSize == 0,
// e.g. an And built with no corpus context), it falls back to the most
// selective child's raw termfreq as the closest available stand-in.
func (a *And) TermFreq() uint64 {
	if len(a.children) == 0 {
		return 0
	}
	if a.collectionSize == 0 {
		best := a.children[0].TermFreq()
		for _, c := range a.children[1:] {
			if tf := c.TermFreq(); tf < best {
				best = tf
			}
		}
		return best
	}
	n := float64(a.collectionSize)
	product := 1.0
	for _, c := range a.children {
		product *= float64(c.TermFreq()) / n
	}
	estimate := product * n
	if estimate < 0 || math.IsNaN(estimate) {
		return 0
	}
	return uint64(math.Round(estimate))
}

// EstimateTermFreqs delegates to every child so each leaf's own term
// entry lands in s; the AND node's own combined-frequency estimate is
// exposed through TermFreq rather than written into s, since it
// describes this node's result-set size rather than any single term's
// statistics.
func (a *And) EstimateTermFreqs(s *stats.Stats) {
	for _, c := range a.children {
		c.EstimateTermFreqs(s)
	}
}

func (a *And) RecalcMaxWeight() float64 {
	a.maxW = 0
	for _, c := range a.children {
		a.maxW += c.RecalcMaxWeight()
	}
	return a.maxW
}

func (a *And) MaxWeight() float64 { return a.maxW }

func (a *And) GetWeight() float64 {
	var sum float64
	for _, c := range a.children {
		sum += c.GetWeight()
	}
	return sum
}

func (a *And) GatherPositionLists(out map[postings.DocID][][]uint32) {
	for _, c := range a.children {
		c.GatherPositionLists(out)
	}
}

func (a *And) CountMatchingSubqs() int {
	var total int
	for _, c := range a.children {
		total += c.CountMatchingSubqs()
	}
	return total
}

func (a *And) Description() string {
	parts := make([]string, len(a.children))
	for i, c := range a.children {
		parts[i] = c.Description()
	}
	return "AND(" + strings.Join(parts, ", ") + ")"
}
