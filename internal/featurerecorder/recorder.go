// Package featurerecorder implements the Feature Recorder (C5) and
// Feature Recorder Set (C6): named sinks for discovered features, with
// quoting, stop-list routing, histogram attachment, and at-most-once
// carving.
package featurerecorder

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rstorm/scancore/internal/histogram"
	"github.com/rstorm/scancore/internal/pos0"
	"github.com/rstorm/scancore/internal/sbuf"
)

// CarveMode selects whether and when a recorder carves bytes out to a
// standalone artifact file.
type CarveMode int

const (
	CarveNone CarveMode = iota
	CarveEncoded
	CarveAll
)

// Def is a recorder's fixed definition, set at PHASE_INIT.
type Def struct {
	Name                string
	MaxFeatureSize      int
	MaxContextSize      int
	ContextWindow       int
	NoQuote             bool
	XML                 bool
	NoContext           bool
	NoStoplist          bool
	CarveMode           CarveMode
	DoNotCarveEncoding  string
}

// DefaultDef returns a Def with the documented conservative defaults:
// 1KB features, 16-byte context window, carving off.
func DefaultDef(name string) Def {
	return Def{
		Name:           name,
		MaxFeatureSize: 1024,
		MaxContextSize: 1024 + 128,
		ContextWindow:  16,
		CarveMode:      CarveNone,
	}
}

// sink is the common backend contract shared by the file and SQL
// variants (the SQL-backend variant): durable by Flush/Shutdown,
// agnostic to how the caller assembled pos0/feature/context. noContext
// is threaded through explicitly (rather than inferred from an empty
// context string) so a recorder whose Def.NoContext is false still
// emits its trailing context field even when that field happens to be
// empty — the feature-file format's "no_context omits the second tab
// and context" rule is a property of the Def, not of the bytes.
type sink interface {
	WriteRecord(pos0Str, feature, context string, noContext bool) error
	WriteHistogram(name string, h *histogram.Histogram) error
	Flush() error
	Shutdown() error
}

// Recorder is one named feature sink (C5).
type Recorder struct {
	name string
	def  Def
	set  *Set
	sink sink

	hmu        sync.Mutex
	histograms map[string]*histogram.Histogram
	wroteFirst atomic.Bool

	featuresWritten atomic.Int64
	carvedFileCount atomic.Int64

	carveCache *shardedSet
}

func newRecorder(set *Set, def Def, sk sink) *Recorder {
	return &Recorder{
		name:       def.Name,
		def:        def,
		set:        set,
		sink:       sk,
		histograms: make(map[string]*histogram.Histogram),
		carveCache: newShardedSet(),
	}
}

// Name returns the recorder's name.
func (r *Recorder) Name() string { return r.name }

// FeaturesWritten returns the number of features successfully emitted.
func (r *Recorder) FeaturesWritten() int64 { return r.featuresWritten.Load() }

// CarvedFileCount returns the number of carved files created (cache hits
// do not count).
func (r *Recorder) CarvedFileCount() int64 { return r.carvedFileCount.Load() }

// HistogramAdd attaches a histogram to this recorder. Forbidden once the
// recorder has written its first feature, once a recorder has begun writing features.
func (r *Recorder) HistogramAdd(def histogram.Def) error {
	if r.wroteFirst.Load() {
		return fmt.Errorf("featurerecorder: histogram %q added to %q after first write", def.Name, r.name)
	}
	h, err := histogram.New(def)
	if err != nil {
		return err
	}
	r.hmu.Lock()
	r.histograms[def.Name] = h
	r.hmu.Unlock()
	return nil
}

// Write is the canonical write pipeline (quote, size-clamp, stop-list,
// histogram, sink, in that order). feature and context are raw, unquoted
// bytes straight from the input. There is no separate "recorder set
// disabled" gate here: NO_OUTDIR mode disables output by binding every
// recorder to a nullSink at creation (CreateFeatureRecorder), so a
// disabled set's Write calls already run the full pipeline (histograms
// still accumulate) and simply discard the record at the sink.
func (r *Recorder) Write(p pos0.Pos0, feature, context []byte) error {
	if r.set.Pedantic() {
		if len(feature) > r.def.MaxFeatureSize || (!r.def.NoContext && len(context) > r.def.MaxContextSize) {
			panic(fmt.Sprintf("featurerecorder %q: pedantic: feature/context exceeds max size", r.name))
		}
		if containsForbiddenWhitespace(string(feature)) || containsForbiddenWhitespace(string(context)) {
			panic(fmt.Sprintf("featurerecorder %q: pedantic: feature or context contains raw tab/newline/CR", r.name))
		}
	}

	mode := quoteModeFor(r.def)
	quotedFeature := Quote(feature, mode)
	quotedContext := ""
	if !r.def.NoContext {
		quotedContext = Quote(context, mode)
	}

	if len(quotedFeature) > r.def.MaxFeatureSize {
		quotedFeature = quotedFeature[:r.def.MaxFeatureSize]
	}
	if !r.def.NoContext && len(quotedContext) > r.def.MaxContextSize {
		quotedContext = quotedContext[:r.def.MaxContextSize]
	}

	if quotedFeature == "" {
		log.Printf("featurerecorder %q: dropped zero-length feature at %s", r.name, p)
		if r.set.Pedantic() {
			panic(fmt.Sprintf("featurerecorder %q: pedantic: zero-length feature at %s", r.name, p))
		}
		return nil
	}

	r.wroteFirst.Store(true)

	if sl := r.set.stoplist; sl != nil && !r.def.NoStoplist && r != r.set.stoplistRecorder &&
		sl.Matches(string(feature), string(context)) {
		// Stop-listed: the match still counts toward this recorder's
		// features_written (a scanner did find it here), but the line
		// itself, and the histogram update, go to the stoplist
		// recorder instead of this one.
		if err := r.set.stoplistRecorder.Write(p, feature, context); err != nil {
			return err
		}
		r.featuresWritten.Add(1)
		return nil
	}

	r.hmu.Lock()
	hists := make([]*histogram.Histogram, 0, len(r.histograms))
	for _, h := range r.histograms {
		hists = append(hists, h)
	}
	r.hmu.Unlock()
	for _, h := range hists {
		h.Add(quotedFeature)
	}

	if err := r.sink.WriteRecord(p.String(), quotedFeature, quotedContext, r.def.NoContext); err != nil {
		return fmt.Errorf("featurerecorder %q: write record: %w", r.name, err)
	}
	r.featuresWritten.Add(1)
	return nil
}

// WriteBuf computes the context window around [pos, pos+length) of buf
// and delegates to Write. Positions in buf's margin are silently
// dropped: the surrounding page will re-scan them.
func (r *Recorder) WriteBuf(buf *sbuf.Sbuf, pos, length int) error {
	if pos >= buf.PageSize() && pos < buf.BufSize() {
		return nil
	}

	feature, err := buf.Substr(pos, length)
	if err != nil {
		return fmt.Errorf("featurerecorder %q: write_buf: %w", r.name, err)
	}

	w := r.def.ContextWindow
	start := pos - w
	if start < 0 {
		start = 0
	}
	end := pos + length + w
	if end > buf.BufSize() {
		end = buf.BufSize()
	}
	context, err := buf.Substr(start, end-start)
	if err != nil {
		return fmt.Errorf("featurerecorder %q: write_buf context: %w", r.name, err)
	}

	return r.Write(buf.Pos0().Shift(int64(pos)), feature, context)
}

// Flush drains any buffered in-memory state to the backend sink.
func (r *Recorder) Flush() error { return r.sink.Flush() }

// HistogramsGenerate materializes every histogram attached to this
// recorder to its backend sink — the per-recorder half of the scanner
// set's shutdown-time histograms_generate() step (spec's C4/C7
// contract: "on shutdown, recorders flush histograms").
func (r *Recorder) HistogramsGenerate() error {
	r.hmu.Lock()
	hists := make([]*histogram.Histogram, 0, len(r.histograms))
	for _, h := range r.histograms {
		hists = append(hists, h)
	}
	r.hmu.Unlock()

	for _, h := range hists {
		if err := r.sink.WriteHistogram(h.Name(), h); err != nil {
			return fmt.Errorf("featurerecorder %q: histogram %q: %w", r.name, h.Name(), err)
		}
	}
	return nil
}

// Shutdown materializes this recorder's histograms, then flushes and
// finalizes its backend sink.
func (r *Recorder) Shutdown() error {
	if err := r.HistogramsGenerate(); err != nil {
		return err
	}
	return r.sink.Shutdown()
}

// stampMtime is shared by Carve; kept separate so tests can observe the
// mtime-stamping step in isolation.
func stampMtime(path string, mtime time.Time) error {
	if mtime.IsZero() {
		return nil
	}
	return chtimes(path, mtime)
}
