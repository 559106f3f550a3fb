package query

import (
	"sort"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
)

// positionalNode ANDs its children to synchronise docids, then filters
// to only the docids whose position lists satisfy a positional
// predicate (contiguous strictly-increasing for Phrase, bounded gap for
// Near). Scores come from the underlying AND, never multiplied by a
// positional bonus.
type positionalNode struct {
	and       *And
	predicate func(positions [][]uint32) bool
	label     string
}

// NewPhrase returns an iterator emitting only the docids where children's
// terms occur as a contiguous, strictly-increasing run of positions —
// i.e. as an exact phrase. collectionSize is threaded through to the
// underlying And node the same way it is for NewAnd; pass 0 with no
// corpus context available.
func NewPhrase(collectionSize uint64, children ...postings.Iterator) postings.Iterator {
	n := &positionalNode{and: NewAnd(collectionSize, children...), predicate: phraseMatches, label: "PHRASE"}
	n.advanceToMatch(0)
	return n
}

// NewNear returns an iterator emitting only the docids where children's
// terms occur within maxGap positions of each other, in any order.
func NewNear(collectionSize uint64, maxGap int, children ...postings.Iterator) postings.Iterator {
	n := &positionalNode{
		and:       NewAnd(collectionSize, children...),
		predicate: func(positions [][]uint32) bool { return nearMatches(positions, maxGap) },
		label:     "NEAR",
	}
	n.advanceToMatch(0)
	return n
}

func (n *positionalNode) currentPositions() [][]uint32 {
	out := make(map[postings.DocID][][]uint32)
	n.and.GatherPositionLists(out)
	return out[n.and.DocID()]
}

func (n *positionalNode) advanceToMatch(wMin float64) error {
	for !n.and.AtEnd() {
		if n.predicate(n.currentPositions()) {
			return nil
		}
		if err := n.and.Next(wMin); err != nil {
			return err
		}
	}
	return nil
}

func (n *positionalNode) Next(wMin float64) error {
	if err := n.and.Next(wMin); err != nil {
		return err
	}
	return n.advanceToMatch(wMin)
}

func (n *positionalNode) SkipTo(did postings.DocID, wMin float64) error {
	if err := n.and.SkipTo(did, wMin); err != nil {
		return err
	}
	return n.advanceToMatch(wMin)
}

func (n *positionalNode) Check(did postings.DocID, wMin float64) (matched bool, valid bool) {
	m, v := n.and.Check(did, wMin)
	if !v || !m {
		return false, v
	}
	return n.predicate(n.currentPositions()), true
}

func (n *positionalNode) AtEnd() bool                   { return n.and.AtEnd() }
func (n *positionalNode) DocID() postings.DocID         { return n.and.DocID() }
func (n *positionalNode) WDF() uint32                   { return n.and.WDF() }
func (n *positionalNode) DocLength() uint64             { return n.and.DocLength() }
func (n *positionalNode) UniqueTerms() uint32           { return n.and.UniqueTerms() }
func (n *positionalNode) WDFDocMax() uint32             { return n.and.WDFDocMax() }
func (n *positionalNode) TermFreq() uint64 { return n.and.TermFreq() }

func (n *positionalNode) EstimateTermFreqs(s *stats.Stats) {
	n.and.EstimateTermFreqs(s)
}

func (n *positionalNode) RecalcMaxWeight() float64 { return n.and.RecalcMaxWeight() }
func (n *positionalNode) MaxWeight() float64       { return n.and.MaxWeight() }
func (n *positionalNode) GetWeight() float64       { return n.and.GetWeight() }

func (n *positionalNode) GatherPositionLists(out map[postings.DocID][][]uint32) {
	n.and.GatherPositionLists(out)
}

func (n *positionalNode) CountMatchingSubqs() int { return n.and.CountMatchingSubqs() }

func (n *positionalNode) Description() string { return n.label + "(" + n.and.Description() + ")" }

// phraseMatches reports whether some choice of one position per term
// forms a contiguous, strictly-increasing run — i.e. the terms appear
// adjacent and in query order.
func phraseMatches(positions [][]uint32) bool {
	if len(positions) == 0 {
		return false
	}
	first := positions[0]
	for _, base := range first {
		if phraseMatchesFrom(base, positions[1:]) {
			return true
		}
	}
	return false
}

func phraseMatchesFrom(prev uint32, rest [][]uint32) bool {
	if len(rest) == 0 {
		return true
	}
	want := prev + 1
	idx := sort.Search(len(rest[0]), func(i int) bool { return rest[0][i] >= want })
	if idx >= len(rest[0]) || rest[0][idx] != want {
		return false
	}
	return phraseMatchesFrom(want, rest[1:])
}

// nearMatches reports whether every term list has some position within
// maxGap of a common window: the classic definition is that the terms'
// occurrences, taken together, span no more than maxGap positions.
func nearMatches(positions [][]uint32, maxGap int) bool {
	if len(positions) == 0 {
		return false
	}
	type occ struct {
		pos  uint32
		list int
	}
	var all []occ
	for i, list := range positions {
		for _, p := range list {
			all = append(all, occ{pos: p, list: i})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].pos < all[j].pos })

	n := len(positions)
	count := make([]int, n)
	distinct := 0
	left := 0
	for right := 0; right < len(all); right++ {
		if count[all[right].list] == 0 {
			distinct++
		}
		count[all[right].list]++
		for distinct == n {
			if int(all[right].pos-all[left].pos) <= maxGap {
				return true
			}
			count[all[left].list]--
			if count[all[left].list] == 0 {
				distinct--
			}
			left++
		}
	}
	return false
}
