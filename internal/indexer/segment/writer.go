package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/searchplatform/retrieval-engine/internal/indexer/index"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/kvstore"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 40
	FooterSize    int    = 4
)

// SegmentHeader is the fixed-size header written at the start of every
// segment file. The postings dictionary itself is no longer a
// hand-rolled JSON offset table: it is a kvstore table, looked up
// through the same prefix-compressed cursor the rest of the retrieval
// core uses.
type SegmentHeader struct {
	Magic     uint32
	Version   uint32
	TermCount uint32
	DocCount  uint32
	CreatedAt int64
	KVSize    uint64
}

// Writer serialises TermEntry slices into new .spdx segment files.
type Writer struct {
	dataDir       string
	restartInterval int
	indexType     kvstore.IndexType
}

// NewWriter creates a Writer that writes segments into the given
// directory, using restartInterval and indexType for every kvstore
// table it builds (see pkg/config's RetrievalConfig).
func NewWriter(dataDir string, restartInterval int, indexType kvstore.IndexType) *Writer {
	if restartInterval <= 0 {
		restartInterval = kvstore.DefaultRestartInterval
	}
	return &Writer{dataDir: dataDir, restartInterval: restartInterval, indexType: indexType}
}

// Write atomically creates a new segment file containing the given term
// entries. It writes to a .tmp file first and renames on success.
func (w *Writer) Write(entries []index.TermEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d.spdx", time.Now().UnixNano())
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}

	b := kvstore.NewBuilder(w.indexType, w.restartInterval)
	docIDs := make(map[postings.DocID]struct{})
	for _, entry := range entries {
		b.Add([]byte(entry.Term), postings.EncodePostingList(entry.Postings))
		for _, p := range entry.Postings {
			docIDs[p.Doc] = struct{}{}
		}
	}
	kv := b.Build()

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(entries)),
		DocCount:  uint32(len(docIDs)),
		CreatedAt: time.Now().Unix(),
		KVSize:    uint64(len(kv)),
	}
	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], header.Magic)
	binary.LittleEndian.PutUint32(headerBytes[4:8], header.Version)
	binary.LittleEndian.PutUint32(headerBytes[8:12], header.TermCount)
	binary.LittleEndian.PutUint32(headerBytes[12:16], header.DocCount)
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(header.CreatedAt))
	binary.LittleEndian.PutUint64(headerBytes[24:32], header.KVSize)

	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(kv); err != nil {
		return "", fmt.Errorf("writing kvstore table: %w", err)
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(kv))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}
