package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/searchplatform/retrieval-engine/internal/retrieval/kvstore"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/postings"
	"github.com/searchplatform/retrieval-engine/internal/retrieval/weight"
	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"
)

// Reader opens one on-disk segment and exposes its postings through the
// retrieval core's kvstore.Table, the same cursor implementation query
// time uses for a live database.
type Reader struct {
	path  string
	file  *os.File
	table *kvstore.Table
	header SegmentHeader
}

// OpenReader mmaps nothing — it reads the whole kvstore blob into
// memory once, keeping the whole dictionary resident, now backed by a
// real prefix-compressed table instead of a JSON offset list.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:     magic,
		Version:   binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount: binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:  binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		KVSize:    binary.LittleEndian.Uint64(headerBytes[24:32]),
	}
	kv := make([]byte, header.KVSize)
	if _, err := f.ReadAt(kv, int64(HeaderSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading kvstore table: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, int64(HeaderSize)+int64(header.KVSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if got, want := binary.LittleEndian.Uint32(footer), crc32.ChecksumIEEE(kv); got != want {
		f.Close()
		return nil, apperrors.Newf(apperrors.ErrCorrupt, 500, "segment: checksum mismatch (got %x, want %x)", got, want)
	}
	table, err := kvstore.Open(kv)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening kvstore table: %w", err)
	}
	return &Reader{path: path, file: f, table: table, header: header}, nil
}

// Path returns the on-disk file this Reader was opened from, used by
// Engine.ReloadSegments to skip segments it already holds open.
func (r *Reader) Path() string {
	return r.path
}

// OpenLeaf decodes term's posting list from this segment, if present,
// into a scored Leaf ready to join a query.Or across every source that
// might hold the term.
func (r *Reader) OpenLeaf(term string, scheme weight.Scheme, termFreq uint64) (*postings.Leaf, bool, error) {
	return postings.OpenLeaf(term, r.table, scheme, termFreq)
}

// TermFreq returns the document frequency of term within this segment,
// or 0 if the term is absent, without constructing a scored Leaf.
func (r *Reader) TermFreq(term string) (uint64, error) {
	leaf, ok, err := postings.OpenLeaf(term, r.table, weight.NewBoolean(), 0)
	if err != nil || !ok {
		return 0, err
	}
	var n uint64
	for !leaf.AtEnd() {
		n++
		if err := leaf.Next(0); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (r *Reader) Terms() int {
	return int(r.header.TermCount)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}
