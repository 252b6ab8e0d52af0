package sbuf

import (
	"fmt"
	"io"
	"os"
)

// WriteTo dumps length bytes starting at loc to w.
func (s *Sbuf) WriteTo(w io.Writer, loc, length int) (int64, error) {
	if loc < 0 || length < 0 || loc+length > s.bufsize {
		return 0, ErrRange
	}
	n, err := w.Write(s.data[loc : loc+length])
	return int64(n), err
}

// WriteFile dumps length bytes starting at loc to a new file at path,
// truncating any existing content. Matches the source's "paths throw on
// error" contract by returning a wrapped error.
func (s *Sbuf) WriteFile(path string, loc, length int) error {
	if loc < 0 || length < 0 || loc+length > s.bufsize {
		return ErrRange
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("sbuf: create %q: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(s.data[loc : loc+length]); err != nil {
		return fmt.Errorf("sbuf: write %q: %w", path, err)
	}
	return nil
}
