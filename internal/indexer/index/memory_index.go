package index

import (
	"sort"
	"sync"

	"github.com/searchplatform/retrieval-engine/internal/indexer/tokenizer"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
)

// MemoryIndex is the write-behind in-memory segment: an accumulating
// term -> per-document posting map, flushed to an on-disk kvstore
// segment (internal/indexer/segment) once it grows past a configured
// size.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]map[postings.DocID]*postings.Posting
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[postings.DocID]*postings.Posting),
	}
}

// AddDocument tokenises title+body and records one posting per distinct
// term under docID, which the caller (indexer.Engine) has already
// assigned as this document's dense identifier. It returns the
// document's own metadata (length, unique term count, peak wdf) so the
// caller can retain it for the matcher's DocMetaProvider.
func (m *MemoryIndex) AddDocument(docID postings.DocID, title string, body string) DocMeta {
	fullText := title + " " + body
	tokens := tokenizer.Tokenize(fullText)

	perTerm := make(map[string][]uint32)
	for _, token := range tokens {
		perTerm[token.Term] = append(perTerm[token.Term], uint32(token.Position))
	}

	var uniqueTerms uint32
	var wdfDocMax uint32
	for _, positions := range perTerm {
		uniqueTerms++
		if wdf := uint32(len(positions)); wdf > wdfDocMax {
			wdfDocMax = wdf
		}
	}
	meta := DocMeta{DocLength: uint64(len(tokens)), UniqueTerms: uniqueTerms, WDFDocMax: wdfDocMax}

	m.mu.Lock()
	defer m.mu.Unlock()
	for term, positions := range perTerm {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[postings.DocID]*postings.Posting)
		}
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
		m.index[term][docID] = &postings.Posting{
			Doc: docID, WDF: uint32(len(positions)), DocLength: meta.DocLength,
			UniqueTerms: meta.UniqueTerms, WDFDocMax: meta.WDFDocMax, Positions: positions,
		}
		m.size += int64(len(term) + len(positions)*4 + 48)
	}
	m.docCount++
	return meta
}

// Search returns term's postings, sorted ascending by docid, ready to
// wrap in a Leaf.
func (m *MemoryIndex) Search(term string) []postings.Posting {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make([]postings.Posting, 0, len(docs))
	for _, p := range docs {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Doc < result[j].Doc })
	return result
}

// Snapshot returns every term's posting list, ready for the segment
// writer, sorted by term so the resulting kvstore table's entries are
// added in ascending key order as the builder requires.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		list := make([]postings.Posting, 0, len(docs))
		for _, p := range docs {
			list = append(list, *p)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Doc < list[j].Doc })
		entries = append(entries, TermEntry{Term: term, Postings: list})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Term < entries[j].Term })
	return entries
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[postings.DocID]*postings.Posting)
	m.docCount = 0
	m.size = 0
}
