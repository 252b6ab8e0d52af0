package sbuf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rstorm/scancore/internal/pos0"
)

func TestGetU32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0xdeadbeef))
	binary.Write(&buf, binary.BigEndian, uint32(0x01020304))
	s := NewFromString(buf.String())

	got, err := s.GetU32(0, LittleEndian)
	if err != nil || got != 0xdeadbeef {
		t.Fatalf("GetU32 little = %x, %v", got, err)
	}
	got2, err := s.GetU32(4, BigEndian)
	if err != nil || got2 != 0x01020304 {
		t.Fatalf("GetU32 big = %x, %v", got2, err)
	}
}

func TestGetRangeError(t *testing.T) {
	s := NewFromString("ab")
	if _, err := s.GetU32(0, LittleEndian); err == nil {
		t.Fatalf("expected range error reading 4 bytes from a 2-byte buffer")
	}
	if _, err := s.GetU16(1, LittleEndian); err == nil {
		t.Fatalf("expected range error reading past end")
	}
	if _, err := s.GetU8(1); err != nil {
		t.Fatalf("GetU8(1) should succeed: %v", err)
	}
}

func TestAtOutOfRangeReturnsZero(t *testing.T) {
	s := NewFromString("ab")
	if s.At(5) != 0 {
		t.Errorf("expected 0 for out-of-range At")
	}
	if s.At(-1) != 0 {
		t.Errorf("expected 0 for negative At")
	}
}

func TestChildrenAccounting(t *testing.T) {
	root, err := New(pos0.Top, []byte("0123456789"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if root.Children() != 0 {
		t.Fatalf("new root should have 0 children")
	}

	child, err := root.Slice(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if root.Children() != 1 {
		t.Fatalf("expected 1 live child, got %d", root.Children())
	}
	if child.Children() != 1 {
		t.Fatalf("child should report the same shared count, got %d", child.Children())
	}

	grandchild, err := child.Slice(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if root.Children() != 2 {
		t.Fatalf("expected 2 live descendants, got %d", root.Children())
	}

	grandchild.Release()
	if root.Children() != 1 {
		t.Fatalf("expected 1 live descendant after grandchild release, got %d", root.Children())
	}

	child.Release()
	if root.Children() != 0 {
		t.Fatalf("expected 0 live descendants after all children released, got %d", root.Children())
	}
}

func TestSliceOffsetAndSize(t *testing.T) {
	root, err := New(pos0.New("1000-ZIP", 0), []byte("hello world"), 11)
	if err != nil {
		t.Fatal(err)
	}
	child, err := root.Slice(6, 100) // length clamps to remaining 5 bytes
	if err != nil {
		t.Fatal(err)
	}
	defer child.Release()
	if child.BufSize() != 5 {
		t.Errorf("expected clamped size 5, got %d", child.BufSize())
	}
	if string(child.Bytes()) != "world" {
		t.Errorf("expected 'world', got %q", child.Bytes())
	}
	if child.Pos0().Offset() != 6 {
		t.Errorf("expected offset 6, got %d", child.Pos0().Offset())
	}
}

func TestMarginBeyondPagesize(t *testing.T) {
	root, err := New(pos0.Top, []byte("AAAABBBB"), 4) // page=AAAA, margin=BBBB
	if err != nil {
		t.Fatal(err)
	}
	defer root.Release()

	child, err := root.Child(4) // off == pagesize
	if err != nil {
		t.Fatal(err)
	}
	defer child.Release()
	if child.PageSize() != 0 {
		t.Errorf("expected empty page past pagesize, got %d", child.PageSize())
	}
	if child.BufSize() != 4 {
		t.Errorf("expected margin still reachable, bufsize=%d", child.BufSize())
	}
}

func TestFindNgramSize(t *testing.T) {
	rep := bytes.Repeat([]byte{0x41}, 1024)
	s := NewFromString(string(rep))
	if got := s.FindNgramSize(64); got != 1 {
		t.Errorf("expected ngram size 1 for constant buffer, got %d", got)
	}

	notPeriodic := []byte("the quick brown fox jumps over the lazy dog, twice.")
	s2 := NewFromString(string(notPeriodic))
	if got := s2.FindNgramSize(4); got != 0 {
		t.Errorf("expected 0 for non-periodic buffer, got %d", got)
	}
}

func TestFindNgramSizeOddLength(t *testing.T) {
	// "ABABA" is 2-periodic even though its length isn't a multiple of 2:
	// the pre-filter must not false-negative on the trailing partial block.
	s := NewFromString("ABABA")
	if got := s.FindNgramSize(4); got != 2 {
		t.Errorf("expected ngram size 2 for %q, got %d", "ABABA", got)
	}
}

func TestHashMemoized(t *testing.T) {
	s := NewFromString("same content")
	h1 := s.Hash()
	h2 := s.Hash()
	if h1 != h2 {
		t.Errorf("hash should be memoized/stable: %q vs %q", h1, h2)
	}
	if h1 == "" {
		t.Errorf("expected non-empty hash")
	}
}

func TestGetLineStaysWithinPage(t *testing.T) {
	data := []byte("line one\nline two\nMARGIN")
	s, err := New(pos0.Top, data, len("line one\nline two\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Release()

	pos := 0
	start, length, ok := s.GetLine(&pos)
	if !ok || string(data[start:start+length]) != "line one" {
		t.Fatalf("expected 'line one', got %q ok=%v", data[start:start+length], ok)
	}
	start, length, ok = s.GetLine(&pos)
	if !ok || string(data[start:start+length]) != "line two" {
		t.Fatalf("expected 'line two', got %q ok=%v", data[start:start+length], ok)
	}
	_, _, ok = s.GetLine(&pos)
	if ok {
		t.Fatalf("GetLine should not find lines in the margin")
	}
}

func TestSubstrRangeError(t *testing.T) {
	s := NewFromString("abcdef")
	if _, err := s.Substr(3, 10); err == nil {
		t.Fatalf("expected range error")
	}
	b, err := s.Substr(1, 3)
	if err != nil || string(b) != "bcd" {
		t.Fatalf("Substr(1,3) = %q, %v", b, err)
	}
}

func TestReleaseWithLiveChildrenLeaksRatherThanPanics(t *testing.T) {
	root, err := New(pos0.Top, []byte("abcdef"), 6)
	if err != nil {
		t.Fatal(err)
	}
	child, err := root.Slice(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	root.Release() // should log and leak, not panic
	if root.Children() != 1 {
		t.Fatalf("expected leaked root to retain its child count")
	}
	child.Release()
}
