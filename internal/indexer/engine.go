package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/searchplatform/retrieval-engine/internal/indexer/index"
	"github.com/searchplatform/retrieval-engine/internal/indexer/segment"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/kvstore"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/query"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/stats"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	"github.com/searchplatform/retrieval-engine/pkg/config"
	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"
)

// docIDMetaFile is the per-shard snapshot of the string-to-dense docid
// mapping and its retained metadata, written after every successful
// Flush. Without it, a restarted process would reopen the .spdx segments
// on disk (which already encode dense docids assigned by a previous
// process) with no way to translate those ids back to caller-facing
// document ids, and assignDocID would hand out ids colliding with ones
// already baked into old segments.
const docIDMetaFile = "docids.json"

// docIDMetaEntry is one document's durable row in docIDMetaFile.
type docIDMetaEntry struct {
	ExternalID  string `json:"external_id"`
	DocLength   uint64 `json:"doc_length"`
	UniqueTerms uint32 `json:"unique_terms"`
	WDFDocMax   uint32 `json:"wdf_doc_max"`
}

// docIDMetaSnapshot is the whole file: enough to rebuild docIDs, extIDs,
// docMeta, nextDocID, totalDocs and totalTerms exactly as they stood
// after the last successful Flush.
type docIDMetaSnapshot struct {
	NextDocID uint64                       `json:"next_doc_id"`
	Docs      map[string]docIDMetaEntry `json:"docs"` // keyed by dense docid, decimal string
}

// docMetaEntry is the retained per-document metadata an already-flushed
// or still-in-memory document contributes to the matcher's
// DocMetaProvider (internal/retrieval/matcher).
type docMetaEntry struct {
	length      uint64
	uniqueTerms uint32
	wdfDocMax   uint32
}

// Engine is one shard's write path (in-memory index + on-disk segments)
// and read path (a merged postings.Iterator per term, corpus
// statistics for the weighting layer). It owns the mutex-guarded
// pointer swap that keeps writes and reads from stepping on each
// other: reads copy the reader slice under readerMu, release the lock,
// then search without holding it.
type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer

	readerMu sync.RWMutex
	readers  []*segment.Reader

	cfg    config.IndexerConfig
	logger *slog.Logger

	docIDMu    sync.RWMutex
	docIDs     map[string]postings.DocID
	extIDs     map[postings.DocID]string
	nextDocID  postings.DocID
	docMeta    map[postings.DocID]docMetaEntry
	totalDocs  int64
	totalTerms int64

	writable bool
}

// parseIndexType maps pkg/config's RetrievalConfig.KVStoreIndexType string
// onto the kvstore.IndexType the Builder needs, defaulting to the dense
// first-byte index for an empty or unrecognised value.
func parseIndexType(name string) kvstore.IndexType {
	switch name {
	case "fixed-prefix":
		return kvstore.IndexFixedPrefix
	case "skiplist":
		return kvstore.IndexSkiplist
	default:
		return kvstore.IndexDenseFirstByte
	}
}

// NewEngine builds one shard's Engine from the indexer and retrieval
// config sections: indexerCfg controls flush thresholds and the data
// directory, retrievalCfg controls the on-disk kvstore layout new
// segments are built with.
func NewEngine(indexerCfg config.IndexerConfig, retrievalCfg config.RetrievalConfig) (*Engine, error) {
	if err := os.MkdirAll(indexerCfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	restartInterval := retrievalCfg.KVStoreRestartInterval
	if restartInterval <= 0 {
		restartInterval = kvstore.DefaultRestartInterval
	}
	e := &Engine{
		memIndex:  index.NewMemoryIndex(),
		writer:    segment.NewWriter(indexerCfg.DataDir, restartInterval, parseIndexType(retrievalCfg.KVStoreIndexType)),
		cfg:       indexerCfg,
		logger:    slog.Default().With("component", "indexer"),
		docIDs:    make(map[string]postings.DocID),
		extIDs:    make(map[postings.DocID]string),
		docMeta:   make(map[postings.DocID]docMetaEntry),
		nextDocID: 1, // 0 is reserved for "past the end of every posting list".
		writable:  true,
	}
	if err := e.loadDocIDMeta(); err != nil {
		return nil, fmt.Errorf("loading docid mapping: %w", err)
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// loadDocIDMeta restores docIDs/extIDs/docMeta/nextDocID/totalDocs from
// the last snapshot written by saveDocIDMeta, if any. A fresh data
// directory (or one predating this file) leaves the Engine's maps
// empty, exactly as before.
func (e *Engine) loadDocIDMeta() error {
	path := filepath.Join(e.cfg.DataDir, docIDMetaFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap docIDMetaSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding %s: %w", docIDMetaFile, err)
	}
	e.docIDMu.Lock()
	defer e.docIDMu.Unlock()
	for idStr, entry := range snap.Docs {
		var idVal uint64
		if _, err := fmt.Sscanf(idStr, "%d", &idVal); err != nil {
			continue
		}
		id := postings.DocID(idVal)
		e.docIDs[entry.ExternalID] = id
		e.extIDs[id] = entry.ExternalID
		e.docMeta[id] = docMetaEntry{length: entry.DocLength, uniqueTerms: entry.UniqueTerms, wdfDocMax: entry.WDFDocMax}
		e.totalDocs++
		e.totalTerms += int64(entry.DocLength)
	}
	if postings.DocID(snap.NextDocID) > e.nextDocID {
		e.nextDocID = postings.DocID(snap.NextDocID)
	}
	e.logger.Info("docid mapping recovered", "documents", len(snap.Docs), "next_doc_id", e.nextDocID)
	return nil
}

// saveDocIDMeta atomically overwrites the snapshot with the Engine's
// current docid mapping and metadata. Called after every successful
// Flush, since a flush is this Engine's existing durability boundary —
// tying the snapshot to it means a segment is never readable without
// its docid mapping also being on disk.
func (e *Engine) saveDocIDMeta() error {
	e.docIDMu.RLock()
	snap := docIDMetaSnapshot{
		NextDocID: uint64(e.nextDocID),
		Docs:      make(map[string]docIDMetaEntry, len(e.docIDs)),
	}
	for ext, id := range e.docIDs {
		m := e.docMeta[id]
		snap.Docs[fmt.Sprintf("%d", uint64(id))] = docIDMetaEntry{
			ExternalID:  ext,
			DocLength:   m.length,
			UniqueTerms: m.uniqueTerms,
			WDFDocMax:   m.wdfDocMax,
		}
	}
	e.docIDMu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", docIDMetaFile, err)
	}
	finalPath := filepath.Join(e.cfg.DataDir, docIDMetaFile)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", docIDMetaFile, err)
	}
	return os.Rename(tmpPath, finalPath)
}

// assignDocID returns docID's dense identifier, allocating one on first
// sight. Re-indexing an existing external ID reuses its identifier so a
// document update does not orphan its old postings under a stale id.
func (e *Engine) assignDocID(docID string) postings.DocID {
	e.docIDMu.Lock()
	defer e.docIDMu.Unlock()
	if id, ok := e.docIDs[docID]; ok {
		return id
	}
	id := e.nextDocID
	e.nextDocID++
	e.docIDs[docID] = id
	e.extIDs[id] = docID
	return id
}

func (e *Engine) externalID(id postings.DocID) (string, bool) {
	e.docIDMu.RLock()
	defer e.docIDMu.RUnlock()
	s, ok := e.extIDs[id]
	return s, ok
}

// IndexDocument tokenises and indexes one document, keyed by its
// caller-facing string id.
func (e *Engine) IndexDocument(docID string, title string, body string) (index.DocMeta, error) {
	if !e.writable {
		return index.DocMeta{}, apperrors.Newf(apperrors.ErrInvalidArgument, 400, "engine: cannot index into a read-only handle")
	}
	e.docIDMu.RLock()
	_, alreadyIndexed := e.docIDs[docID]
	e.docIDMu.RUnlock()

	id := e.assignDocID(docID)
	meta := e.memIndex.AddDocument(id, title, body)

	e.docIDMu.Lock()
	old, hadOldMeta := e.docMeta[id]
	e.docMeta[id] = docMetaEntry{length: meta.DocLength, uniqueTerms: meta.UniqueTerms, wdfDocMax: meta.WDFDocMax}
	if !alreadyIndexed {
		e.totalDocs++
	}
	e.totalTerms += int64(meta.DocLength)
	if hadOldMeta {
		e.totalTerms -= int64(old.length)
	}
	e.docIDMu.Unlock()

	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"token_count", meta.DocLength,
		"mem_size", e.memIndex.Size(),
	)
	if e.memIndex.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", e.memIndex.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return meta, fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return meta, nil
}

func (e *Engine) Flush() error {
	snapshot := e.memIndex.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}

	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.readerMu.Unlock()
	e.memIndex.Reset()
	if err := e.saveDocIDMeta(); err != nil {
		e.logger.Error("failed to persist docid mapping after flush", "error", err)
	}
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", len(e.readers),
	)
	return nil
}

// ReloadSegments rescans the data directory for segment files not yet
// held open by this Engine (e.g. flushed by a different process sharing
// the same directory) and opens readers for them. It returns the count
// of newly loaded segments.
func (e *Engine) ReloadSegments() int {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		e.logger.Error("reload: reading data directory failed", "error", err)
		return 0
	}
	e.readerMu.RLock()
	known := make(map[string]struct{}, len(e.readers))
	for _, r := range e.readers {
		known[r.Path()] = struct{}{}
	}
	e.readerMu.RUnlock()

	var loaded int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".spdx") {
			continue
		}
		path := filepath.Join(e.cfg.DataDir, entry.Name())
		if _, ok := known[path]; ok {
			continue
		}
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("reload: opening segment failed", "segment", entry.Name(), "error", err)
			continue
		}
		e.readerMu.Lock()
		e.readers = append(e.readers, reader)
		e.readerMu.Unlock()
		loaded++
	}
	return loaded
}

// OpenTermIterator builds a scored Leaf over every source (the live
// in-memory segment plus every flushed on-disk segment) that holds
// term, composed under a query.Or so a single term behaves like the
// union combinator it structurally is: the same docid can never appear
// in more than one source, since a document lives in exactly one place
// at a time, but Or's k-way merge is exactly the "ascending-docid
// merge of disjoint sources" this needs.
//
// protoScheme serves only as a prototype: each source gets its own
// Clone, Init'd with that source's own CollFreq/WDFUpperBound
// contribution and the corpus-wide CollectionStats. OpenTermIterator
// returns the composed iterator plus the term's total document
// frequency across all sources.
func (e *Engine) OpenTermIterator(term string, protoScheme weight.Scheme) (postings.Iterator, uint64, error) {
	collection := e.CollectionStats()

	var children []postings.Iterator
	var totalTermFreq uint64

	if list := e.memIndex.Search(term); len(list) > 0 {
		termStats := termStatsFor(term, list)
		totalTermFreq += termStats.TermFreq
		s := protoScheme.Clone()
		s.Init(collection, termStats, 1.0)
		children = append(children, postings.NewLeaf(term, list, s, termStats.TermFreq))
	}

	e.readerMu.RLock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()

	for _, r := range readers {
		tf, err := r.TermFreq(term)
		if err != nil {
			return nil, 0, err
		}
		if tf == 0 {
			continue
		}
		s := protoScheme.Clone()
		leaf, ok, err := r.OpenLeaf(term, s, tf)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		termStats := leafTermStats(term, leaf, tf)
		s.Init(collection, termStats, 1.0)
		// The leaf cached s's GetMaxPart before Init; reopen it now that
		// s carries this source's statistics.
		leaf, _, err = r.OpenLeaf(term, s, tf)
		if err != nil {
			return nil, 0, err
		}
		totalTermFreq += tf
		children = append(children, leaf)
	}

	switch len(children) {
	case 0:
		return nil, 0, nil
	case 1:
		return children[0], totalTermFreq, nil
	default:
		return query.NewOr(children...), totalTermFreq, nil
	}
}

// RawTermPostings drains term's merged posting stream — across the
// in-memory index and every open segment — into plain Posting records,
// for callers like the PostingService RPC handler that cannot serialise
// a live postings.Iterator across a process boundary. It reuses
// OpenTermIterator's existing Or-merge rather than re-implementing
// dedup across sources, scoring with a Boolean scheme since the weight
// itself is discarded.
func (e *Engine) RawTermPostings(term string) ([]postings.Posting, uint64, error) {
	it, termFreq, err := e.OpenTermIterator(term, weight.NewBoolean())
	if err != nil {
		return nil, 0, err
	}
	if it == nil {
		return nil, 0, nil
	}
	var out []postings.Posting
	for !it.AtEnd() {
		did := it.DocID()
		posLists := make(map[postings.DocID][][]uint32)
		it.GatherPositionLists(posLists)
		var positions []uint32
		if lists := posLists[did]; len(lists) > 0 {
			positions = lists[0]
		}
		out = append(out, postings.Posting{
			Doc: did, WDF: it.WDF(), DocLength: it.DocLength(),
			UniqueTerms: it.UniqueTerms(), WDFDocMax: it.WDFDocMax(), Positions: positions,
		})
		if err := it.Next(0); err != nil {
			return nil, 0, err
		}
	}
	return out, termFreq, nil
}

func termStatsFor(term string, list []postings.Posting) stats.TermStats {
	var collFreq uint64
	var wdfUpper uint32
	for _, p := range list {
		collFreq += uint64(p.WDF)
		if p.WDF > wdfUpper {
			wdfUpper = p.WDF
		}
	}
	return stats.TermStats{Term: term, TermFreq: uint64(len(list)), CollFreq: collFreq, WDFUpperBound: wdfUpper}
}

func leafTermStats(term string, leaf *postings.Leaf, termFreq uint64) stats.TermStats {
	s := &stats.Stats{Terms: make(map[string]stats.TermStats)}
	leaf.EstimateTermFreqs(s)
	ts := s.Terms[term]
	ts.TermFreq = termFreq
	return ts
}

// DocMeta returns the retained document length and unique-term count
// for an internal docid, plus whether the docid is known, satisfying
// matcher.MetaLookup once wrapped by the caller.
func (e *Engine) DocMeta(id postings.DocID) (uint64, uint32, bool) {
	e.docIDMu.RLock()
	defer e.docIDMu.RUnlock()
	m, ok := e.docMeta[id]
	if !ok {
		return 0, 0, false
	}
	return m.length, m.uniqueTerms, true
}

// ExternalID resolves a matcher-internal docid back to the caller's own
// document identifier.
func (e *Engine) ExternalID(id postings.DocID) (string, bool) {
	return e.externalID(id)
}

// CollectionStats reports the corpus-wide statistics every weighting
// scheme's Init reads. min/max doclen are exact: each call scans the
// retained metadata of every document.
func (e *Engine) CollectionStats() stats.CollectionStats {
	e.docIDMu.RLock()
	defer e.docIDMu.RUnlock()
	var minLen, maxLen uint64
	first := true
	for _, m := range e.docMeta {
		if first || m.length < minLen {
			minLen = m.length
		}
		if first || m.length > maxLen {
			maxLen = m.length
		}
		first = false
	}
	return stats.CollectionStats{
		CollectionSize: uint64(e.totalDocs),
		TotalLength:    uint64(e.totalTerms),
		DocLenMin:      minLen,
		DocLenMax:      maxLen,
	}
}

func (e *Engine) GetTotalDocs() int64 {
	e.docIDMu.RLock()
	defer e.docIDMu.RUnlock()
	return e.totalDocs
}

func (e *Engine) GetAvgDocLength() float64 {
	s := e.CollectionStats()
	return s.AverageLength()
}

// Reopen assigns other's segment readers into this Engine's writable
// handle; the in-memory index and document metadata are not copied. Assigning a read-only Engine (writable == false)
// into a writable handle is rejected with an invalid-argument error,
// adapted from Xapian's Database/WritableDatabase split to this
// single-type Engine.
func (e *Engine) Reopen(other *Engine) error {
	if !other.writable {
		return apperrors.Newf(apperrors.ErrInvalidArgument, 400, "engine: cannot reopen a writable handle from a read-only source")
	}
	other.readerMu.RLock()
	newReaders := make([]*segment.Reader, len(other.readers))
	copy(newReaders, other.readers)
	other.readerMu.RUnlock()

	e.readerMu.Lock()
	e.readers = newReaders
	e.readerMu.Unlock()
	return nil
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}

func (e *Engine) loadExistingSegments() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".spdx") {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)

	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}
