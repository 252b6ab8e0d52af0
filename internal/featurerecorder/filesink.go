package featurerecorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rstorm/scancore/internal/histogram"
)

// fileSink is the default recorder backend: one append-only
// "name.txt" feature file per recorder, each line "pos0<TAB>feature"
// or "pos0<TAB>feature<TAB>context". Durability follows the same
// create-fsync-directory idiom used elsewhere in this codebase for
// making a freshly created file survive a crash; the feature file
// itself is append-only so there is no atomic-rename step: Flush and
// Shutdown fsync it in place.
type fileSink struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	path   string
	outdir string
	name   string
}

func newFileSink(outdir, name string) (*fileSink, error) {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return nil, fmt.Errorf("filesink: mkdir %s: %w", outdir, err)
	}
	path := filepath.Join(outdir, name+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filesink: create %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("filesink: sync %s: %w", path, err)
	}
	dfd, err := os.Open(outdir)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("filesink: open dir %s: %w", outdir, err)
	}
	defer dfd.Close()
	if err := dfd.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("filesink: sync dir %s: %w", outdir, err)
	}
	return &fileSink{f: f, w: bufio.NewWriter(f), path: path, outdir: outdir, name: name}, nil
}

func (fs *fileSink) WriteRecord(pos0Str, feature, context string, noContext bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var err error
	if noContext {
		_, err = fmt.Fprintf(fs.w, "%s\t%s\n", pos0Str, feature)
	} else {
		_, err = fmt.Fprintf(fs.w, "%s\t%s\t%s\n", pos0Str, feature, context)
	}
	if err != nil {
		return fmt.Errorf("filesink %s: write: %w", fs.path, err)
	}
	return nil
}

// WriteHistogram materializes h to its own "{name}_{histogram}.txt"
// file alongside the recorder's feature file — the file-backend
// strategy for the shutdown-time histograms_generate() step.
func (fs *fileSink) WriteHistogram(name string, h *histogram.Histogram) error {
	path := filepath.Join(fs.outdir, fs.name+"_"+name+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("filesink: create histogram %s: %w", path, err)
	}
	defer f.Close()
	if err := h.Generate(f); err != nil {
		return fmt.Errorf("filesink: write histogram %s: %w", path, err)
	}
	return nil
}

func (fs *fileSink) Flush() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.w.Flush(); err != nil {
		return fmt.Errorf("filesink %s: flush: %w", fs.path, err)
	}
	return fs.f.Sync()
}

func (fs *fileSink) Shutdown() error {
	if err := fs.Flush(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.f.Close()
}

// nullSink discards every record: the NO_OUTDIR backend for recorders
// created on a set with no output directory configured. Histograms
// still accumulate in memory even though nothing reaches disk.
type nullSink struct{}

func newNullSink() *nullSink { return &nullSink{} }

func (nullSink) WriteRecord(pos0Str, feature, context string, noContext bool) error { return nil }
func (nullSink) WriteHistogram(name string, h *histogram.Histogram) error           { return nil }
func (nullSink) Flush() error                                                       { return nil }
func (nullSink) Shutdown() error                                                    { return nil }

// chtimes stamps a carved file's mtime to reflect source metadata
// (e.g. an embedded file's original timestamp) rather than the time of
// carving.
func chtimes(path string, mtime time.Time) error {
	return os.Chtimes(path, mtime, mtime)
}
