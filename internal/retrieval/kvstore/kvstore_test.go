package kvstore

import (
	"bytes"
	"fmt"
	"sort"
	"testing"
)

func sampleData(n int) [][2][]byte {
	out := make([][2][]byte, 0, n)
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("term%05d", i))
		val := []byte(fmt.Sprintf("value-for-%d", i))
		out = append(out, [2][]byte{key, val})
	}
	return out
}

func buildTable(t *testing.T, indexType IndexType, restartInterval int, data [][2][]byte) *Table {
	t.Helper()
	b := NewBuilder(indexType, restartInterval)
	for _, kv := range data {
		b.Add(kv[0], kv[1])
	}
	tbl, err := Open(b.Build())
	if err != nil {
		t.Fatalf("Open failed for index type %d: %v", indexType, err)
	}
	return tbl
}

func TestCursorNextYieldsOriginalSequence(t *testing.T) {
	data := sampleData(200)
	for _, it := range []IndexType{IndexDenseFirstByte, IndexFixedPrefix, IndexSkiplist} {
		tbl := buildTable(t, it, 8, data)
		c := NewCursor(tbl)
		c.Rewind()
		for i, kv := range data {
			ok, err := c.Next()
			if err != nil {
				t.Fatalf("index type %d: unexpected error at entry %d: %v", it, i, err)
			}
			if !ok {
				t.Fatalf("index type %d: expected entry %d, got end of table", it, i)
			}
			if !bytes.Equal(c.CurrentKey(), kv[0]) {
				t.Fatalf("index type %d: entry %d key = %q, want %q", it, i, c.CurrentKey(), kv[0])
			}
			if !bytes.Equal(c.CurrentTag(), kv[1]) {
				t.Fatalf("index type %d: entry %d value = %q, want %q", it, i, c.CurrentTag(), kv[1])
			}
		}
		if ok, _ := c.Next(); ok {
			t.Fatalf("index type %d: expected end of table after last entry", it)
		}
	}
}

func TestFindExactAndGreaterThan(t *testing.T) {
	data := sampleData(150)
	for _, it := range []IndexType{IndexDenseFirstByte, IndexFixedPrefix, IndexSkiplist} {
		tbl := buildTable(t, it, 8, data)
		c := NewCursor(tbl)

		for _, i := range []int{0, 1, 37, 74, 149} {
			ok, err := c.Find(data[i][0], false)
			if err != nil {
				t.Fatalf("index type %d: Find(%q, false) error: %v", it, data[i][0], err)
			}
			if !ok {
				t.Fatalf("index type %d: Find(%q, false) expected true", it, data[i][0])
			}
			if !bytes.Equal(c.CurrentKey(), data[i][0]) {
				t.Fatalf("index type %d: Find(%q, false) landed on %q", it, data[i][0], c.CurrentKey())
			}
		}

		// A key that sorts strictly between term00036 and term00037.
		absent := []byte("term00036z")
		ok, err := c.Find(absent, true)
		if err != nil {
			t.Fatalf("index type %d: Find(absent, true) error: %v", it, err)
		}
		if !ok {
			t.Fatalf("index type %d: Find(absent, true) expected true", it)
		}
		if !bytes.Equal(c.CurrentKey(), data[37][0]) {
			t.Fatalf("index type %d: Find(absent, true) landed on %q, want %q", it, c.CurrentKey(), data[37][0])
		}
	}
}

// sparseByteData returns real-looking terms spanning several leading
// bytes with a very uneven distribution: a small run under 'a', a
// single key under 'b', a dense run under 'm', and a single trailing
// key under 'z'. Paired with a restart interval that doesn't divide the
// dense run evenly, this leaves both 'b' and 'z' with entries but no
// restart point of their own — the condition that broke the
// dense-first-byte index's jump table.
func sparseByteData() [][2][]byte {
	var out [][2][]byte
	add := func(key string) {
		out = append(out, [2][]byte{[]byte(key), []byte("value-for-" + key)})
	}
	for i := 1; i <= 5; i++ {
		add(fmt.Sprintf("apple%02d", i))
	}
	add("banana01")
	for i := 1; i <= 20; i++ {
		add(fmt.Sprintf("mango%02d", i))
	}
	add("zebra")
	return out
}

func TestFindDenseFirstByteHandlesUnrestartedLeadingBytes(t *testing.T) {
	data := sparseByteData()
	// restartInterval=7 does not divide the 20-entry "mango" run, and
	// neither "banana01" (a lone entry between the 'a' and 'm' runs)
	// nor "zebra" (a lone trailing entry after the last 'm' restart)
	// lands on a restart boundary.
	tbl := buildTable(t, IndexDenseFirstByte, 7, data)
	c := NewCursor(tbl)

	for _, key := range []string{"apple01", "apple04", "banana01", "mango01", "mango10", "mango20", "zebra"} {
		ok, err := c.Find([]byte(key), false)
		if err != nil {
			t.Fatalf("Find(%q, false) error: %v", key, err)
		}
		if !ok {
			t.Fatalf("Find(%q, false) expected true, got not-found", key)
		}
		if !bytes.Equal(c.CurrentKey(), []byte(key)) {
			t.Fatalf("Find(%q, false) landed on %q", key, c.CurrentKey())
		}
	}

	// A key absent from the table, sorting between "banana01" and
	// "mango01", should land on the next real key.
	ok, err := c.Find([]byte("cherry"), true)
	if err != nil {
		t.Fatalf("Find(cherry, true) error: %v", err)
	}
	if !ok || !bytes.Equal(c.CurrentKey(), []byte("mango01")) {
		t.Fatalf("Find(cherry, true) landed on %q, want mango01", c.CurrentKey())
	}
}

func TestFindBeyondLastKey(t *testing.T) {
	data := sampleData(20)
	tbl := buildTable(t, IndexFixedPrefix, 4, data)
	c := NewCursor(tbl)
	ok, err := c.Find([]byte("zzzzzzzz"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no key beyond the last, got %q", c.CurrentKey())
	}
}

func TestCrossIndexTypeEquivalence(t *testing.T) {
	data := sampleData(80)
	var reference [][2][]byte
	dense := buildTable(t, IndexDenseFirstByte, 5, data)
	c := NewCursor(dense)
	c.Rewind()
	for {
		ok, err := c.Next()
		if err != nil {
			t.Fatalf("dense scan error: %v", err)
		}
		if !ok {
			break
		}
		reference = append(reference, [2][]byte{append([]byte(nil), c.CurrentKey()...), append([]byte(nil), c.CurrentTag()...)})
	}

	for _, it := range []IndexType{IndexFixedPrefix, IndexSkiplist} {
		tbl := buildTable(t, it, 5, data)
		cc := NewCursor(tbl)
		cc.Rewind()
		var got [][2][]byte
		for {
			ok, err := cc.Next()
			if err != nil {
				t.Fatalf("index type %d scan error: %v", it, err)
			}
			if !ok {
				break
			}
			got = append(got, [2][]byte{append([]byte(nil), cc.CurrentKey()...), append([]byte(nil), cc.CurrentTag()...)})
		}
		if len(got) != len(reference) {
			t.Fatalf("index type %d: got %d entries, want %d", it, len(got), len(reference))
		}
		for i := range reference {
			if !bytes.Equal(got[i][0], reference[i][0]) || !bytes.Equal(got[i][1], reference[i][1]) {
				t.Fatalf("index type %d: entry %d = %q/%q, want %q/%q", it, i, got[i][0], got[i][1], reference[i][0], reference[i][1])
			}
		}
	}
}

func TestPrevWalksBackward(t *testing.T) {
	data := sampleData(30)
	tbl := buildTable(t, IndexFixedPrefix, 4, data)
	c := NewCursor(tbl)
	c.Rewind()
	for i := 0; i < 10; i++ {
		if ok, err := c.Next(); err != nil || !ok {
			t.Fatalf("Next() failed at %d: %v", i, err)
		}
	}
	// c is now positioned on data[9]; Prev should land on data[8].
	ok, err := c.Prev()
	if err != nil {
		t.Fatalf("Prev() error: %v", err)
	}
	if !ok {
		t.Fatal("Prev() expected true")
	}
	if !bytes.Equal(c.CurrentKey(), data[8][0]) {
		t.Fatalf("Prev() landed on %q, want %q", c.CurrentKey(), data[8][0])
	}
}

func TestOpenRejectsUnknownIndexType(t *testing.T) {
	b := NewBuilder(IndexFixedPrefix, 4)
	b.Add([]byte("a"), []byte("1"))
	data := b.Build()
	// Corrupt the index-type byte in the footer.
	data[len(data)-25] = 0x7F
	if _, err := Open(data); err == nil {
		t.Fatal("expected error for unknown index type")
	}
}

func TestOpenRejectsTruncatedTable(t *testing.T) {
	if _, err := Open([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for undersized table")
	}
}

func TestSortedInputSortAssumptionHolds(t *testing.T) {
	data := sampleData(40)
	if !sort.SliceIsSorted(data, func(i, j int) bool {
		return bytes.Compare(data[i][0], data[j][0]) < 0
	}) {
		t.Fatal("sampleData must be pre-sorted for these tests to be meaningful")
	}
}
