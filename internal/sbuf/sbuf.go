// Package sbuf implements the "safer buffer": a reference-counted,
// bounds-checked, zero-copy view over binary data. Every sbuf knows its
// forensic position (pos0), how much of it is authoritative "page" versus
// trailing "margin" kept only to complete boundary-crossing features, and
// how many live descendants still borrow its bytes.
package sbuf

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/rstorm/scancore/internal/pos0"
)

// ErrRange is returned by bounds-checked reads that would run past the
// end of the buffer.
var ErrRange = errors.New("sbuf: read past end of buffer")

// ErrBadView is returned when constructing a child view with parameters
// that don't fit inside the parent.
var ErrBadView = errors.New("sbuf: child view out of parent bounds")

// ByteOrder selects how multi-byte integers are decoded. Unlike a global
// package variable, it travels with each call so scanners reading the
// same sbuf in different byte orders never race.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Sbuf is an immutable view over a byte range. The zero value is not
// usable; construct with New, NewFromString, or a parent's Slice/Child.
type Sbuf struct {
	position pos0.Pos0
	data     []byte // data[0:bufsize] is readable; data[0:pagesize] is the page
	bufsize  int
	pagesize int

	parent *Sbuf

	// children is shared by the whole descendant chain rooted at the
	// first non-parented Sbuf: every Slice/Child increments it, every
	// Release decrements it. This uses one shared counter for a whole descendant chain rather
	// than giving each view its own independent counter.
	children *atomic.Int64

	hashOnce sync.Once
	hashVal  string
	hashFunc func([]byte) string

	closer func() error // runs on Release of the root, iff set
}

// Option configures a root Sbuf at construction time.
type Option func(*Sbuf)

// WithCloser attaches a release action run when the root buffer is
// released with no live children — the Go analogue of the
// owns-mapping/owns-allocation/owns-fd dispose flags in the source
// design: unmap, free, or close, depending on how the bytes were
// obtained.
func WithCloser(f func() error) Option {
	return func(s *Sbuf) { s.closer = f }
}

// WithHashFunc overrides the content-hash algorithm used by Hash. The
// default, used when this option is not given, is SHA-1 (see hash.go).
func WithHashFunc(f func([]byte) string) Option {
	return func(s *Sbuf) { s.hashFunc = f }
}

// New constructs a root buffer over data, positioned at p. pagesize
// must be <= len(data).
func New(p pos0.Pos0, data []byte, pagesize int, opts ...Option) (*Sbuf, error) {
	if pagesize > len(data) {
		return nil, fmt.Errorf("sbuf: pagesize %d exceeds bufsize %d: %w", pagesize, len(data), ErrBadView)
	}
	s := &Sbuf{
		position: p,
		data:     data,
		bufsize:  len(data),
		pagesize: pagesize,
		children: new(atomic.Int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromString wraps a Go string as a root buffer with no margin, for
// use in tests. The whole string is page.
func NewFromString(s string) *Sbuf {
	b := []byte(s)
	return &Sbuf{
		position: pos0.Top,
		data:     b,
		bufsize:  len(b),
		pagesize: len(b),
		children: new(atomic.Int64),
	}
}

// Pos0 returns this view's position.
func (s *Sbuf) Pos0() pos0.Pos0 { return s.position }

// BufSize returns the total view length, page plus margin.
func (s *Sbuf) BufSize() int { return s.bufsize }

// PageSize returns the authoritative portion's length.
func (s *Sbuf) PageSize() int { return s.pagesize }

// Depth is a convenience forward of Pos0().Depth().
func (s *Sbuf) Depth() int { return s.position.Depth() }

// Children returns the number of live descendant views sharing this
// buffer's bytes, transitively. All views in one descendant chain report
// the same count, since they share one counter.
func (s *Sbuf) Children() int64 { return s.children.Load() }

// Slice returns a child view [off, off+length) clamped to this buffer's
// remaining bytes, positioned at this buffer's pos0 shifted by off.
// Returns ErrBadView if off is itself out of range; length is clamped
// rather than erroring, matching the source's "(offset, len) clamping
// len to parent.bufsize - offset" contract.
func (s *Sbuf) Slice(off, length int) (*Sbuf, error) {
	if off < 0 || off > s.bufsize {
		return nil, fmt.Errorf("sbuf: offset %d out of [0,%d]: %w", off, s.bufsize, ErrBadView)
	}
	remaining := s.bufsize - off
	if length < 0 || length > remaining {
		length = remaining
	}

	newPage := 0
	if off < s.pagesize {
		newPage = s.pagesize - off
		if newPage > length {
			newPage = length
		}
	}

	child := &Sbuf{
		position: s.position.Shift(int64(off)),
		data:     s.data[off : off+length],
		bufsize:  length,
		pagesize: newPage,
		parent:   s,
		children: s.children,
		hashFunc: s.hashFunc,
	}
	s.children.Add(1)
	return child, nil
}

// Child returns a view from off to the end of this buffer — the "(parent,
// offset)" construction mode in the source. If off >= pagesize the page
// becomes empty but the margin bytes past it remain reachable.
func (s *Sbuf) Child(off int) (*Sbuf, error) {
	return s.Slice(off, s.bufsize-off)
}

// Carve returns a detached root view: same bytes as Slice would produce,
// but starting a new forensic path stage, as when a scanner carves out
// an embedded object (e.g. a ZIP member). The new root still contributes
// to the parent's live-children count for the duration given to
// Release, because the underlying bytes are still borrowed.
func (s *Sbuf) Carve(stage string, off, length int) (*Sbuf, error) {
	if off < 0 || off > s.bufsize {
		return nil, fmt.Errorf("sbuf: offset %d out of [0,%d]: %w", off, s.bufsize, ErrBadView)
	}
	remaining := s.bufsize - off
	if length < 0 || length > remaining {
		length = remaining
	}
	child := &Sbuf{
		position: s.position.Push(stage),
		data:     s.data[off : off+length],
		bufsize:  length,
		pagesize: length,
		parent:   s,
		children: s.children,
		hashFunc: s.hashFunc,
	}
	s.children.Add(1)
	return child, nil
}

// Release drops this view. Releasing the root with live children logs an
// error and leaks rather than double-freeing — matching the source's
// "a buffer with children > 0 logs an error and leaks" destruction-order
// rule; this represents a scanner bug (a leaked child view) and is never
// silently corrected.
func (s *Sbuf) Release() {
	if s.parent == nil {
		if n := s.children.Load(); n > 0 {
			log.Printf("sbuf: release of %s with %d live children, leaking", s.position, n)
			return
		}
		if s.closer != nil {
			if err := s.closer(); err != nil {
				log.Printf("sbuf: close %s: %v", s.position, err)
			}
		}
		return
	}
	s.children.Add(-1)
}

// At returns the byte at i, or 0 if i is out of range — an explicit
// design choice carried over from the source: convenient for scanners
// doing speculative look-ahead without per-byte bounds checks.
func (s *Sbuf) At(i int) byte {
	if i < 0 || i >= s.bufsize {
		return 0
	}
	return s.data[i]
}

// Bytes returns the raw bytes of this view, page plus margin. Callers
// must not mutate the returned slice.
func (s *Sbuf) Bytes() []byte { return s.data }

// PageBytes returns only the authoritative page portion.
func (s *Sbuf) PageBytes() []byte { return s.data[:s.pagesize] }

// Substr returns a copy of bufsize bytes [off, off+length), failing with
// ErrRange if out of range (unlike Slice, which clamps).
func (s *Sbuf) Substr(off, length int) ([]byte, error) {
	if off < 0 || length < 0 || off+length > s.bufsize {
		return nil, fmt.Errorf("substr [%d,%d) in buffer of size %d: %w", off, off+length, s.bufsize, ErrRange)
	}
	out := make([]byte, length)
	copy(out, s.data[off:off+length])
	return out, nil
}

// IsConstant reports whether all length bytes starting at off equal b.
func (s *Sbuf) IsConstant(off, length int, b byte) bool {
	if off < 0 || length < 0 || off+length > s.bufsize {
		return false
	}
	for _, c := range s.data[off : off+length] {
		if c != b {
			return false
		}
	}
	return true
}

// Find returns the index of the first occurrence of b at or after start,
// or -1 if not found.
func (s *Sbuf) Find(b byte, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= s.bufsize {
		return -1
	}
	for i := start; i < s.bufsize; i++ {
		if s.data[i] == b {
			return i
		}
	}
	return -1
}

// FindBytes returns the index of the first occurrence of needle at or
// after start, or -1 if not found.
func (s *Sbuf) FindBytes(needle []byte, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= s.bufsize || len(needle) == 0 {
		return -1
	}
	for i := start; i+len(needle) <= s.bufsize; i++ {
		if string(s.data[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

// GetLine advances pos to the next newline-delimited line found within
// the page (not the margin), returning the line's start offset, its
// length (excluding the terminating '\n'), and whether a line was found.
// The start of a line is defined by a preceding '\n' or pos == 0.
func (s *Sbuf) GetLine(pos *int) (start, length int, ok bool) {
	if *pos < 0 || *pos >= s.pagesize {
		return 0, 0, false
	}
	start = *pos
	nl := -1
	for i := start; i < s.pagesize; i++ {
		if s.data[i] == '\n' {
			nl = i
			break
		}
	}
	if nl == -1 {
		*pos = s.pagesize
		return start, s.pagesize - start, true
	}
	length = nl - start
	*pos = nl + 1
	return start, length, true
}

// ReadStruct decodes binary.Read(out, order) from bytes [off, off+size)
// where size is out's encoded size. It is the safe equivalent of the
// source's get_struct_ptr<T>, which returned a pointer-or-null within
// bounds; here an error plays that role.
func (s *Sbuf) ReadStruct(off int, order ByteOrder, out interface{}) error {
	size := structSize(out)
	if off < 0 || size < 0 || off+size > s.bufsize {
		return ErrRange
	}
	return binaryRead(s.data[off:off+size], goByteOrder(order), out)
}
