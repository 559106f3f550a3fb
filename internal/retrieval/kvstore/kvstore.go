// Package kvstore implements the honey-style prefix-compressed ordered
// key/value table used as the physical storage for postings and
// document metadata: a builder that writes a sorted stream of entries
// plus a root index, and a cursor that reads it back with rewind,
// forward/backward stepping and seek-by-key.
package kvstore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	apperrors "github.com/searchplatform/retrieval-engine/pkg/errors"
)

// IndexType selects the root index encoding a Builder writes. All three
// are readable by Cursor regardless of which one built the table.
type IndexType uint8

const (
	// IndexDenseFirstByte buckets entries by their key's first byte and
	// stores one jump-table offset per possible byte value in range.
	IndexDenseFirstByte IndexType = 0x00
	// IndexFixedPrefix stores a fixed-width, NUL-padded key prefix next
	// to each sampled entry's offset, searched by binary chop.
	IndexFixedPrefix IndexType = 0x01
	// IndexSkiplist stores a prefix-compressed run of sampled keys, each
	// carrying a varint offset into the entry stream.
	IndexSkiplist IndexType = 0x02
)

// DefaultRestartInterval is the number of entries between full-key
// "restart points" in the entry stream, and the sampling stride used
// when building any of the three root index encodings.
const DefaultRestartInterval = 16

// entry is one (key, value) pair as staged by a Builder before encoding.
type entry struct {
	key   []byte
	value []byte
}

// Builder accumulates entries in strictly ascending key order and emits
// one prefix-compressed table.
type Builder struct {
	entries         []entry
	restartInterval int
	indexType       IndexType
}

// NewBuilder returns a Builder that samples a restart/index point every
// restartInterval entries and writes a root index of the given type. A
// zero restartInterval uses DefaultRestartInterval.
func NewBuilder(indexType IndexType, restartInterval int) *Builder {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Builder{restartInterval: restartInterval, indexType: indexType}
}

// Add appends one entry. Keys must be added in strictly ascending order;
// Add does not itself enforce this, mirroring the honey builder's
// contract that callers are responsible for sort order.
func (b *Builder) Add(key, value []byte) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.entries = append(b.entries, entry{key: k, value: v})
}

// restartPoint records where a full key begins in the entry stream, for
// index construction.
type restartPoint struct {
	key    []byte
	offset int
}

// Build encodes the accumulated entries and index into one contiguous
// byte slice, the on-disk (or in-memory) table format.
func (b *Builder) Build() []byte {
	var buf bytes.Buffer
	var restarts []restartPoint
	var prevKey []byte

	for i, e := range b.entries {
		offset := buf.Len()
		isRestart := i%b.restartInterval == 0
		var reuse int
		if isRestart {
			reuse = 0
			restarts = append(restarts, restartPoint{key: append([]byte(nil), e.key...), offset: offset})
		} else {
			reuse = commonPrefixLen(prevKey, e.key)
			if reuse > 255 {
				reuse = 255
			}
		}
		suffix := e.key[reuse:]

		buf.WriteByte(byte(reuse))
		buf.WriteByte(byte(len(suffix)))
		buf.Write(suffix)

		sizeShifted := uint64(len(e.value)) << 1 // compressed bit always 0: values are stored raw.
		var varintBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(varintBuf[:], sizeShifted)
		buf.Write(varintBuf[:n])
		buf.Write(e.value)

		prevKey = e.key
	}

	entriesLen := buf.Len()
	indexOffset := buf.Len()
	b.writeIndex(&buf, restarts)

	// Footer: index type (1 byte), index offset (8 bytes), entries
	// length (8 bytes), root offset (8 bytes, the table's stored
	// pivot, written equal to the index offset). The footer has a fixed
	// length, so a reader locates it from the end of the byte slice.
	buf.WriteByte(byte(b.indexType))
	var footerNums [24]byte
	binary.LittleEndian.PutUint64(footerNums[0:8], uint64(indexOffset))
	binary.LittleEndian.PutUint64(footerNums[8:16], uint64(entriesLen))
	binary.LittleEndian.PutUint64(footerNums[16:24], uint64(indexOffset))
	buf.Write(footerNums[:])

	return buf.Bytes()
}

func (b *Builder) writeIndex(buf *bytes.Buffer, restarts []restartPoint) {
	switch b.indexType {
	case IndexDenseFirstByte:
		writeDenseFirstByteIndex(buf, restarts)
	case IndexFixedPrefix:
		writeFixedPrefixIndex(buf, restarts)
	default:
		writeSkiplistIndex(buf, restarts)
	}
}

const fixedPrefixWidth = 16

func writeFixedPrefixIndex(buf *bytes.Buffer, restarts []restartPoint) {
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(restarts)))
	buf.Write(countBuf[:])
	for _, r := range restarts {
		prefix := make([]byte, fixedPrefixWidth)
		copy(prefix, r.key)
		buf.Write(prefix)
		var offBuf [4]byte
		binary.LittleEndian.PutUint32(offBuf[:], uint32(r.offset))
		buf.Write(offBuf[:])
	}
}

func writeDenseFirstByteIndex(buf *bytes.Buffer, restarts []restartPoint) {
	if len(restarts) == 0 {
		var hdr [8]byte // base=0, rangeSize=0: decodeRestarts reads no jump-table entries.
		buf.Write(hdr[:])
		return
	}
	base := restarts[0].key[0]
	last := restarts[len(restarts)-1].key[0]
	rangeSize := int(last-base) + 1

	buckets := make([]int, rangeSize)
	for i := range buckets {
		buckets[i] = -1
	}
	for _, r := range restarts {
		idx := int(r.key[0] - base)
		if buckets[idx] == -1 {
			buckets[idx] = r.offset
		}
	}
	// jump_table[range+1]: entry i is the first restart offset for byte
	// base+i, or the nearest earlier populated bucket's offset if empty
	// (so a lookup for an absent leading byte starts scanning from a
	// point at or before its real location, never past it); the final
	// slot is a sentinel one past the end. buckets[0] is always
	// populated, since base is itself the first restart's own leading
	// byte.
	jumpTable := make([]int, rangeSize+1)
	next := buckets[0]
	for i := 0; i < rangeSize; i++ {
		if buckets[i] != -1 {
			next = buckets[i]
		}
		jumpTable[i] = next
	}
	jumpTable[rangeSize] = restarts[len(restarts)-1].offset

	var hdr [8]byte
	hdr[0] = base
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(rangeSize))
	buf.Write(hdr[:])
	for _, off := range jumpTable {
		var offBuf [4]byte
		binary.LittleEndian.PutUint32(offBuf[:], uint32(off))
		buf.Write(offBuf[:])
	}
}

func writeSkiplistIndex(buf *bytes.Buffer, restarts []restartPoint) {
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(restarts)))
	buf.Write(countBuf[:])
	var prevKey []byte
	for _, r := range restarts {
		reuse := commonPrefixLen(prevKey, r.key)
		if reuse > 255 {
			reuse = 255
		}
		suffix := r.key[reuse:]
		buf.WriteByte(byte(reuse))
		buf.WriteByte(byte(len(suffix)))
		buf.Write(suffix)
		var varintBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(varintBuf[:], uint64(r.offset))
		buf.Write(varintBuf[:n])
		prevKey = r.key
	}
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Table is a built, immutable, prefix-compressed key/value table ready
// to be opened by one or more independent Cursors.
type Table struct {
	data        []byte
	entriesLen  int
	indexOffset int
	indexType   IndexType
	restarts    []restartPoint // decoded lazily on first Find
}

// Open parses the footer of a table produced by Builder.Build and
// returns a Table ready for cursor traversal. It does not decode the
// entry stream eagerly.
func Open(data []byte) (*Table, error) {
	const footerLen = 1 + 24
	if len(data) < footerLen {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, 500, "kvstore: table too small (%d bytes)", len(data))
	}
	footer := data[len(data)-footerLen:]
	indexType := IndexType(footer[0])
	if indexType != IndexDenseFirstByte && indexType != IndexFixedPrefix && indexType != IndexSkiplist {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, 500, "kvstore: unknown index type 0x%02x", byte(indexType))
	}
	indexOffset := int(binary.LittleEndian.Uint64(footer[1:9]))
	entriesLen := int(binary.LittleEndian.Uint64(footer[9:17]))
	if indexOffset < 0 || indexOffset > len(data)-footerLen || entriesLen < 0 || entriesLen > indexOffset {
		return nil, apperrors.Newf(apperrors.ErrCorrupt, 500, "kvstore: impossible offsets in footer")
	}
	return &Table{data: data, entriesLen: entriesLen, indexOffset: indexOffset, indexType: indexType}, nil
}

// decodedEntry is one fully-reconstructed (key, valueRegion) pair, plus
// the byte offset immediately following it, used while scanning.
type decodedEntry struct {
	key       []byte
	valueOff  int
	valueLen  int
	nextOff   int
}

// decodeEntryAt reconstructs the entry starting at offset, given the
// full key of the entry immediately before it (nil if offset is a
// restart point or the very first entry).
func decodeEntryAt(data []byte, offset int, prevKey []byte) (decodedEntry, error) {
	if offset < 0 || offset+2 > len(data) {
		return decodedEntry{}, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: unexpected EOF reading entry header")
	}
	reuse := int(data[offset])
	suffixLen := int(data[offset+1])
	pos := offset + 2
	if pos+suffixLen > len(data) {
		return decodedEntry{}, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: unexpected EOF reading key suffix")
	}
	if reuse > len(prevKey) {
		return decodedEntry{}, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: reuse length exceeds previous key")
	}
	key := make([]byte, reuse+suffixLen)
	copy(key, prevKey[:reuse])
	copy(key[reuse:], data[pos:pos+suffixLen])
	pos += suffixLen

	sizeShifted, n := binary.Uvarint(data[pos:])
	if n <= 0 {
		return decodedEntry{}, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: malformed value-size varint")
	}
	pos += n
	valueLen := int(sizeShifted >> 1)
	if pos+valueLen > len(data) {
		return decodedEntry{}, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: unexpected EOF reading value")
	}
	return decodedEntry{key: key, valueOff: pos, valueLen: valueLen, nextOff: pos + valueLen}, nil
}

// decodeRestarts lazily materialises the root index into a plain slice
// of (key, offset) pairs regardless of on-disk encoding, so Find can
// binary-search it uniformly. Cached on the Table after first call.
func (t *Table) decodeRestarts() ([]restartPoint, error) {
	if t.restarts != nil {
		return t.restarts, nil
	}
	var out []restartPoint
	switch t.indexType {
	case IndexFixedPrefix:
		region := t.data[t.indexOffset:]
		if len(region) < 4 {
			return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated fixed-prefix index")
		}
		count := int(binary.LittleEndian.Uint32(region[0:4]))
		pos := 4
		recSize := fixedPrefixWidth + 4
		for i := 0; i < count; i++ {
			if pos+recSize > len(region) {
				return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated fixed-prefix record")
			}
			prefix := bytes.TrimRight(region[pos:pos+fixedPrefixWidth], "\x00")
			off := int(binary.LittleEndian.Uint32(region[pos+fixedPrefixWidth : pos+recSize]))
			out = append(out, restartPoint{key: append([]byte(nil), prefix...), offset: off})
			pos += recSize
		}
	case IndexSkiplist:
		region := t.data[t.indexOffset:]
		if len(region) < 4 {
			return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated skiplist index")
		}
		count := int(binary.LittleEndian.Uint32(region[0:4]))
		pos := 4
		var prevKey []byte
		for i := 0; i < count; i++ {
			if pos+2 > len(region) {
				return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated skiplist record")
			}
			reuse := int(region[pos])
			suffixLen := int(region[pos+1])
			pos += 2
			if pos+suffixLen > len(region) || reuse > len(prevKey) {
				return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated skiplist suffix")
			}
			key := make([]byte, reuse+suffixLen)
			copy(key, prevKey[:reuse])
			copy(key[reuse:], region[pos:pos+suffixLen])
			pos += suffixLen
			off, n := binary.Uvarint(region[pos:])
			if n <= 0 {
				return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: malformed skiplist offset varint")
			}
			pos += n
			out = append(out, restartPoint{key: key, offset: int(off)})
			prevKey = key
		}
	case IndexDenseFirstByte:
		region := t.data[t.indexOffset:]
		if len(region) < 8 {
			return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated dense index header")
		}
		base := region[0]
		rangeSize := int(binary.LittleEndian.Uint32(region[4:8]))
		pos := 8
		if rangeSize == 0 {
			t.restarts = nil
			return nil, nil
		}
		// The jump table is floor-filled (jumpTable[i] holds the nearest
		// populated bucket at-or-below byte base+i), so an offset change
		// at index i means bucket i is itself populated: base+i really
		// is the byte the reconstructed restart's own key starts with.
		var lastOff = -1
		for i := 0; i <= rangeSize; i++ {
			if pos+4 > len(region) {
				return nil, apperrors.New(apperrors.ErrCorrupt, 500, "kvstore: truncated dense jump table")
			}
			off := int(binary.LittleEndian.Uint32(region[pos : pos+4]))
			pos += 4
			if off != lastOff && i < rangeSize {
				out = append(out, restartPoint{key: []byte{base + byte(i)}, offset: off})
			}
			lastOff = off
		}
	default:
		return nil, apperrors.Newf(apperrors.ErrCorrupt, 500, "kvstore: unknown index type 0x%02x", byte(t.indexType))
	}
	t.restarts = out
	return out, nil
}

// Cursor is a stateful stream position over one Table. Cursors are not
// safe for concurrent use, but many independent Cursors may read the
// same Table concurrently.
type Cursor struct {
	table    *Table
	offset   int  // byte offset just past the current entry, where Next decodes from; 0 after Rewind.
	valid    bool // false before the first successful positioning call.
	curKey   []byte
	curValOff int
	curValLen int
}

// NewCursor returns a fresh, unpositioned Cursor over table.
func NewCursor(table *Table) *Cursor {
	return &Cursor{table: table, offset: 0}
}

// Rewind positions the cursor before the first entry; the following
// Next call lands on the first entry.
func (c *Cursor) Rewind() {
	c.offset = 0
	c.valid = false
	c.curKey = nil
}

// AtEnd reports whether the cursor has stepped past the last entry.
func (c *Cursor) AtEnd() bool {
	return !c.valid && c.offset >= c.table.entriesLen
}

// Next decodes the entry following the current position and returns
// true if one exists. On corruption it returns a *apperrors.AppError
// wrapping ErrCorrupt via the second return.
func (c *Cursor) Next() (bool, error) {
	if c.offset >= c.table.entriesLen {
		c.valid = false
		return false, nil
	}
	prevKey := c.curKey
	if !c.valid {
		prevKey = nil
	}
	d, err := decodeEntryAt(c.table.data, c.offset, prevKey)
	if err != nil {
		return false, err
	}
	c.curKey = d.key
	c.curValOff = d.valueOff
	c.curValLen = d.valueLen
	c.offset = d.nextOff
	c.valid = true
	return true, nil
}

// Prev repositions the cursor to the entry preceding the current one.
// General tables carry no backward links, so this is the documented
// O(N) fallback: re-scan from the start, remembering the last key seen
// strictly before the current position.
//
// TODO: thread the decoded restart offsets through so Prev can start
// its scan from the nearest restart point instead of position zero.
func (c *Cursor) Prev() (bool, error) {
	// c.offset is the end of the current entry; every entry before it
	// ends strictly earlier. An unpositioned cursor steps to the last entry.
	target := c.offset
	if !c.valid {
		target = c.table.entriesLen + 1
	}
	scan := NewCursor(c.table)
	var lastKey []byte
	var lastOff, lastValOff, lastValLen int
	found := false
	for scan.offset < c.table.entriesLen {
		startOffset := scan.offset
		ok, err := scan.Next()
		if err != nil {
			return false, err
		}
		if !ok || scan.offset >= target {
			break
		}
		lastKey = scan.curKey
		lastOff = startOffset
		lastValOff = scan.curValOff
		lastValLen = scan.curValLen
		found = true
	}
	if !found {
		c.Rewind()
		return false, nil
	}
	c.curKey = lastKey
	c.curValOff = lastValOff
	c.curValLen = lastValLen
	c.offset = lastOff
	// re-decode so offset ends up just past this entry, as after Next,
	// and a subsequent Next resumes with the following entry.
	d, err := decodeEntryAt(c.table.data, lastOff, prevKeyBefore(c.table, lastOff))
	if err != nil {
		return false, err
	}
	c.curKey = d.key
	c.curValOff = d.valueOff
	c.curValLen = d.valueLen
	c.offset = d.nextOff
	c.valid = true
	return true, nil
}

// prevKeyBefore reconstructs the key immediately preceding the entry at
// offset, by scanning from the start; used only by the O(N) Prev path.
func prevKeyBefore(t *Table, offset int) []byte {
	if offset == 0 {
		return nil
	}
	scan := NewCursor(t)
	var last []byte
	for scan.offset < offset {
		ok, err := scan.Next()
		if err != nil || !ok {
			break
		}
		last = scan.curKey
	}
	return last
}

// CurrentKey returns the key at the cursor's current position. It is
// only valid to call after a Next, Prev or Find that returned true.
func (c *Cursor) CurrentKey() []byte {
	if !c.valid {
		return nil
	}
	return c.curKey
}

// CurrentTag returns the raw value bytes at the cursor's current
// position, equivalent to ReadTag(true).
func (c *Cursor) CurrentTag() []byte {
	return c.ReadTag(true)
}

// ReadTag returns the value bytes at the current position. keepCompressed
// is accepted for interface parity with the honey cursor; this table
// format never stores a compressed representation, so both branches
// return the same raw bytes.
func (c *Cursor) ReadTag(keepCompressed bool) []byte {
	_ = keepCompressed
	if !c.valid {
		return nil
	}
	return c.table.data[c.curValOff : c.curValOff+c.curValLen]
}

// Find positions the cursor on key (if greaterThan is false and key is
// present), on the smallest key > key (if greaterThan is true), or on
// the smallest key >= key (if key is absent), returning whether the
// cursor is now positioned on a valid entry.
func (c *Cursor) Find(key []byte, greaterThan bool) (bool, error) {
	restarts, err := c.table.decodeRestarts()
	if err != nil {
		return false, err
	}

	startOffset := 0
	// Pick the nearest restart <= key; restarts are stored in ascending
	// key order by construction.
	lo, hi := 0, len(restarts)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(restarts[mid].key, key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	idx := lo - 1
	// Dense and fixed-prefix indexes keep only a leading slice of each
	// restart key. When that slice is a prefix of key, the full restart
	// key may sort after key, so step back to an earlier restart.
	for idx >= 0 && bytes.HasPrefix(key, restarts[idx].key) &&
		(c.table.indexType == IndexDenseFirstByte ||
			(c.table.indexType == IndexFixedPrefix && len(restarts[idx].key) == fixedPrefixWidth)) {
		idx--
	}
	if idx >= 0 {
		startOffset = restarts[idx].offset
	}

	// A restart point always stores its key with reuse == 0, so seeding
	// curKey with nil here is safe regardless of which restart we land
	// on or whether the index type gave us the full key at all.
	c.offset = startOffset
	c.curKey = nil
	c.valid = false

	for {
		ok, err := c.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		cmp := bytes.Compare(c.curKey, key)
		if cmp == 0 {
			if !greaterThan {
				return true, nil
			}
			continue
		}
		if cmp > 0 {
			return true, nil
		}
	}
}

// Description returns a short human-readable summary of the cursor's
// current position, used in diagnostic logging.
func (c *Cursor) Description() string {
	if !c.valid {
		return "kvstore.Cursor(unpositioned)"
	}
	return fmt.Sprintf("kvstore.Cursor(key=%q, offset=%d)", c.curKey, c.offset)
}
