package index

import "github.com/searchplatform/retrieval-engine/internal/retrieval/postings"

// TermEntry is one term's complete posting list, ready to hand to the
// segment writer or to fold directly into a query-time Leaf.
type TermEntry struct {
	Term     string
	Postings []postings.Posting
}

// DocMeta is the per-document metadata computed once at index time and
// denormalised onto every posting the document contributes, mirroring
// what the matcher's DocMetaProvider needs per candidate (doclen,
// unique term count, and the document's single highest wdf).
type DocMeta struct {
	DocLength   uint64
	UniqueTerms uint32
	WDFDocMax   uint32
}
