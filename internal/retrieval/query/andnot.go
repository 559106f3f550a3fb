package query

import (
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// AndNot emits every docid the left child produces that the right
// child (used purely as a filter) does not. The right child's weight
// never contributes to the score.
type AndNot struct {
	left, right postings.Iterator
}

// NewAndNot returns an AndNot node, positioned on left's first docid
// not excluded by right.
func NewAndNot(left, right postings.Iterator) *AndNot {
	n := &AndNot{left: left, right: right}
	n.settle(0)
	return n
}

// settle advances left past any docid right currently excludes, without
// moving left off a docid that already survives.
func (n *AndNot) settle(wMin float64) error {
	for !n.left.AtEnd() {
		d := n.left.DocID()
		if n.right.AtEnd() {
			return nil
		}
		if n.right.DocID() < d {
			if err := n.right.SkipTo(d, 0); err != nil {
				return err
			}
			continue
		}
		if n.right.DocID() == d {
			if err := n.left.Next(wMin); err != nil {
				return err
			}
			continue
		}
		return nil
	}
	return nil
}

func (n *AndNot) Next(wMin float64) error {
	if err := n.left.Next(wMin); err != nil {
		return err
	}
	return n.settle(wMin)
}

func (n *AndNot) SkipTo(did postings.DocID, wMin float64) error {
	if err := n.left.SkipTo(did, wMin); err != nil {
		return err
	}
	return n.settle(wMin)
}

func (n *AndNot) Check(did postings.DocID, wMin float64) (matched bool, valid bool) {
	lm, lv := n.left.Check(did, wMin)
	if !lv {
		return false, false
	}
	if !lm {
		return false, true
	}
	rm, rv := n.right.Check(did, wMin)
	if !rv {
		return false, false
	}
	return !rm, true
}

func (n *AndNot) AtEnd() bool           { return n.left.AtEnd() }
func (n *AndNot) DocID() postings.DocID { return n.left.DocID() }
func (n *AndNot) WDF() uint32           { return n.left.WDF() }
func (n *AndNot) DocLength() uint64     { return n.left.DocLength() }
func (n *AndNot) UniqueTerms() uint32   { return n.left.UniqueTerms() }
func (n *AndNot) WDFDocMax() uint32     { return n.left.WDFDocMax() }
func (n *AndNot) TermFreq() uint64      { return n.left.TermFreq() }

func (n *AndNot) EstimateTermFreqs(s *stats.Stats) {
	n.left.EstimateTermFreqs(s)
}

func (n *AndNot) RecalcMaxWeight() float64 {
	// Right side is a filter only: its weight never enters the score,
	// so the bound is the left child's alone.
	n.right.RecalcMaxWeight()
	return n.left.RecalcMaxWeight()
}

func (n *AndNot) MaxWeight() float64 { return n.left.MaxWeight() }
func (n *AndNot) GetWeight() float64 { return n.left.GetWeight() }

func (n *AndNot) GatherPositionLists(out map[postings.DocID][][]uint32) {
	n.left.GatherPositionLists(out)
}

func (n *AndNot) CountMatchingSubqs() int { return n.left.CountMatchingSubqs() }

func (n *AndNot) Description() string {
	return "AND_NOT(" + n.left.Description() + ", " + n.right.Description() + ")"
}
