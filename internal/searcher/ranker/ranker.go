// Package ranker translates the retrieval core's dense-docid match
// results into the caller-facing, externally-identified ScoredDoc shape
// the API layer serialises. The scoring itself lives in
// internal/retrieval/matcher and internal/retrieval/weight; this package
// no longer computes a score of its own.
package ranker

import (
	"github.com/searchplatform/retrieval-engine/internal/retrieval/matcher"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
)

// ScoredDoc is one ranked hit, using the caller's own document
// identifier rather than the retrieval core's internal dense docid.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Translate maps matcher candidates back to external document ids via
// resolve, dropping any candidate whose internal id no longer resolves
// (a document deleted between match and translation).
func Translate(candidates []matcher.Candidate, resolve func(postings.DocID) (string, bool)) []ScoredDoc {
	out := make([]ScoredDoc, 0, len(candidates))
	for _, c := range candidates {
		docID, ok := resolve(c.DocID)
		if !ok {
			continue
		}
		out = append(out, ScoredDoc{DocID: docID, Score: c.Score})
	}
	return out
}
