package query

import (
	"container/heap"
	"strings"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// orHeap orders live children by ascending current docid so Or.Next can
// pop the minimum in O(log n).
type orHeap struct {
	children []postings.Iterator
}

func (h orHeap) Len() int { return len(h.children) }
func (h orHeap) Less(i, j int) bool {
	return h.children[i].DocID() < h.children[j].DocID()
}
func (h orHeap) Swap(i, j int) { h.children[i], h.children[j] = h.children[j], h.children[i] }
func (h *orHeap) Push(x any)   { h.children = append(h.children, x.(postings.Iterator)) }
func (h *orHeap) Pop() any {
	old := h.children
	n := len(old)
	item := old[n-1]
	h.children = old[:n-1]
	return item
}

// Or heap-orders its children by current docid and emits the minimum,
// advancing every child sitting on that minimum together so duplicate
// emissions never occur.
type Or struct {
	all   []postings.Iterator
	live  orHeap
	did   postings.DocID
	atEnd bool
	maxW  float64
}

// NewOr returns an Or node over children, positioned on the lowest
// current docid among them.
func NewOr(children ...postings.Iterator) *Or {
	o := &Or{all: children}
	o.maxW = o.sumChildMax()
	for _, c := range children {
		if !c.AtEnd() {
			o.live.children = append(o.live.children, c)
		}
	}
	heap.Init(&o.live)
	o.pullMin()
	return o
}

func (o *Or) sumChildMax() float64 {
	var sum float64
	for _, c := range o.all {
		sum += c.MaxWeight()
	}
	return sum
}

func (o *Or) pullMin() {
	if o.live.Len() == 0 {
		o.atEnd = true
		return
	}
	o.did = o.live.children[0].DocID()
	o.atEnd = false
}

// wMinFor computes the per-child pruning floor: child i only needs to
// reach wMin on its own once every other child's combined maxweight can
// no longer close the gap.
func (o *Or) wMinFor(child postings.Iterator, wMin float64) float64 {
	var othersMax float64
	for _, c := range o.all {
		if c != child {
			othersMax += c.MaxWeight()
		}
	}
	if othersMax < wMin {
		return wMin - othersMax
	}
	return 0
}

// Next advances every child currently sitting on the emitted minimum,
// then repositions the heap on the new minimum.
func (o *Or) Next(wMin float64) error {
	if o.live.Len() == 0 {
		o.atEnd = true
		return nil
	}
	cur := o.did
	for o.live.Len() > 0 && o.live.children[0].DocID() == cur {
		child := o.live.children[0]
		if err := child.Next(o.wMinFor(child, wMin)); err != nil {
			return err
		}
		if child.AtEnd() {
			heap.Pop(&o.live)
		} else {
			heap.Fix(&o.live, 0)
		}
	}
	o.pullMin()
	return nil
}

func (o *Or) SkipTo(did postings.DocID, wMin float64) error {
	for i := 0; i < o.live.Len(); {
		child := o.live.children[i]
		if child.DocID() < did {
			if err := child.SkipTo(did, o.wMinFor(child, wMin)); err != nil {
				return err
			}
			if child.AtEnd() {
				o.live.children[i] = o.live.children[o.live.Len()-1]
				o.live.children = o.live.children[:o.live.Len()-1]
				continue
			}
		}
		i++
	}
	heap.Init(&o.live)
	o.pullMin()
	return nil
}

func (o *Or) Check(did postings.DocID, wMin float64) (matched bool, valid bool) {
	for _, c := range o.all {
		m, v := c.Check(did, wMin)
		if v && m {
			o.did = did
			return true, true
		}
		if !v {
			return false, false
		}
	}
	return false, true
}

func (o *Or) AtEnd() bool           { return o.atEnd }
func (o *Or) DocID() postings.DocID { return o.did }

// currentChildren returns every child currently positioned on the
// emitted docid, i.e. the contributors to this document's score.
func (o *Or) currentChildren() []postings.Iterator {
	var out []postings.Iterator
	for _, c := range o.all {
		if !c.AtEnd() && c.DocID() == o.did {
			out = append(out, c)
		}
	}
	return out
}

func (o *Or) WDF() uint32 {
	cs := o.currentChildren()
	if len(cs) == 0 {
		return 0
	}
	return cs[0].WDF()
}

func (o *Or) DocLength() uint64 {
	cs := o.currentChildren()
	if len(cs) == 0 {
		return 0
	}
	return cs[0].DocLength()
}

func (o *Or) UniqueTerms() uint32 {
	cs := o.currentChildren()
	if len(cs) == 0 {
		return 0
	}
	return cs[0].UniqueTerms()
}

func (o *Or) WDFDocMax() uint32 {
	cs := o.currentChildren()
	if len(cs) == 0 {
		return 0
	}
	return cs[0].WDFDocMax()
}

func (o *Or) TermFreq() uint64 {
	var total uint64
	for _, c := range o.all {
		total += c.TermFreq()
	}
	return total
}

func (o *Or) EstimateTermFreqs(s *stats.Stats) {
	for _, c := range o.all {
		c.EstimateTermFreqs(s)
	}
}

func (o *Or) RecalcMaxWeight() float64 {
	o.maxW = 0
	for _, c := range o.all {
		o.maxW += c.RecalcMaxWeight()
	}
	return o.maxW
}

func (o *Or) MaxWeight() float64 { return o.maxW }

// GetWeight sums the contribution of every child currently agreeing on
// the emitted docid.
func (o *Or) GetWeight() float64 {
	var sum float64
	for _, c := range o.currentChildren() {
		sum += c.GetWeight()
	}
	return sum
}

func (o *Or) GatherPositionLists(out map[postings.DocID][][]uint32) {
	for _, c := range o.currentChildren() {
		c.GatherPositionLists(out)
	}
}

func (o *Or) CountMatchingSubqs() int {
	return len(o.currentChildren())
}

func (o *Or) Description() string {
	parts := make([]string, len(o.all))
	for i, c := range o.all {
		parts[i] = c.Description()
	}
	return "OR(" + strings.Join(parts, ", ") + ")"
}
