package featurerecorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rstorm/scancore/internal/histogram"
	"github.com/rstorm/scancore/internal/sbuf"
	mapset "github.com/deckarep/golang-set/v2"
)

// ErrMixedBackends is returned when a set is asked to create recorders
// against both a file outdir and a SQL DSN: exactly one backend may be
// active per set.
var ErrMixedBackends = errors.New("featurerecorder: set already bound to a different backend")

// Stoplist matches a feature (and optionally its context) against a set
// of known-uninteresting values, routing matches to a separate
// recorder instead of the main one.
type Stoplist interface {
	Matches(feature, context string) bool
}

// Set is the Feature Recorder Set (C6): the shared owner of every named
// recorder plus the cross-recorder seen-set used to detect and skip
// previously-processed sbuf content.
type Set struct {
	mu        sync.RWMutex
	recorders map[string]*Recorder

	outdir        string
	hashAlgorithm string
	sqlPool       *pgxpool.Pool
	backendBound  bool

	pedanticFlag bool

	stoplist         Stoplist
	stoplistRecorder *Recorder

	alertName string

	seen *shardedSet
}

// NewSet constructs an empty set writing files under outdir (or, if
// outdir is "", operating in NO_OUTDIR mode where Carve is a no-op and
// CreateFeatureRecorder binds each recorder to a sink that discards
// every record).
func NewSet(outdir, hashAlgorithm string, pedantic bool) *Set {
	return &Set{
		recorders:     make(map[string]*Recorder),
		outdir:        outdir,
		hashAlgorithm: hashAlgorithm,
		pedanticFlag:  pedantic,
		seen:          newShardedSet(),
	}
}

// SetStoplist attaches a stop-list matcher and names the recorder
// stop-listed features are routed to instead. The named recorder must
// already exist: a missing stop-list recorder is a fatal configuration
// error caught at construction, not a silent drop at scan time.
func (s *Set) SetStoplist(sl Stoplist, recorderName string) error {
	s.mu.RLock()
	rec, ok := s.recorders[recorderName]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("featurerecorder: stoplist recorder %q does not exist", recorderName)
	}
	s.stoplist = sl
	s.stoplistRecorder = rec
	return nil
}

// CreateFeatureRecorder creates and registers a new named recorder
// backed by the set's file outdir. Returns ErrMixedBackends if the set
// was already bound to a SQL pool.
func (s *Set) CreateFeatureRecorder(def Def) (*Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recorders[def.Name]; exists {
		return nil, fmt.Errorf("featurerecorder: recorder %q already exists", def.Name)
	}
	if s.sqlPool != nil {
		return nil, ErrMixedBackends
	}

	var sk sink
	if s.outdir == "" {
		sk = newNullSink()
	} else {
		fs, err := newFileSink(s.outdir, def.Name)
		if err != nil {
			return nil, fmt.Errorf("featurerecorder: create recorder %q: %w", def.Name, err)
		}
		sk = fs
	}
	s.backendBound = true

	rec := newRecorder(s, def, sk)
	s.recorders[def.Name] = rec
	return rec, nil
}

// CreateSQLFeatureRecorder is CreateFeatureRecorder's SQL-backend
// counterpart, binding the set to pool. Returns ErrMixedBackends if the
// set was already bound to a file outdir.
func (s *Set) CreateSQLFeatureRecorder(ctx context.Context, pool *pgxpool.Pool, def Def) (*Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recorders[def.Name]; exists {
		return nil, fmt.Errorf("featurerecorder: recorder %q already exists", def.Name)
	}
	if s.backendBound && s.sqlPool == nil {
		return nil, ErrMixedBackends
	}
	s.sqlPool = pool

	sk, err := newSQLSink(ctx, pool, def.Name)
	if err != nil {
		return nil, fmt.Errorf("featurerecorder: create sql recorder %q: %w", def.Name, err)
	}
	s.backendBound = true

	rec := newRecorder(s, def, sk)
	s.recorders[def.Name] = rec
	return rec, nil
}

// NamedFeatureRecorder looks up an existing recorder by name.
func (s *Set) NamedFeatureRecorder(name string) (*Recorder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recorders[name]
	return rec, ok
}

// GetAlertRecorder returns the designated alert recorder, creating it
// with default settings on first use. Exceptions, <exception> markers,
// and depth-cap notices are all routed here.
func (s *Set) GetAlertRecorder() (*Recorder, error) {
	name := s.alertName
	if name == "" {
		name = "alerts"
	}
	if rec, ok := s.NamedFeatureRecorder(name); ok {
		return rec, nil
	}
	def := DefaultDef(name)
	def.NoStoplist = true
	return s.CreateFeatureRecorder(def)
}

// SetAlertRecorderName overrides which recorder name GetAlertRecorder
// resolves to; must be called before GetAlertRecorder's first use.
func (s *Set) SetAlertRecorderName(name string) { s.alertName = name }

// CheckPreviouslyProcessed reports whether buf's content hash has been
// seen before on this set, recording it as seen if not. Used by
// scanner.Set to implement the scan_seen_before exemption: most scanners
// skip buffers already processed once, but a scanner whose Info sets
// ScanSeenBefore still runs on them.
func (s *Set) CheckPreviouslyProcessed(buf *sbuf.Sbuf) (alreadySeen bool) {
	digest := buf.Hash()
	shard := sbuf.ShardKey(digest)
	_, hit := s.seen.testAndInsert(digest, shard, buf.Pos0().String())
	return hit
}

// HashAlgorithm returns the set's configured hash algorithm name, the
// digest Carve uses for its carve cache and <hashdigest> element. The
// seen-set uses sbuf.Hash instead, which is SHA-1 unless the buffer was
// built with sbuf.WithHashFunc.
func (s *Set) HashAlgorithm() string { return s.hashAlgorithm }

// Pedantic reports whether the set enforces pedantic write checks.
func (s *Set) Pedantic() bool { return s.pedanticFlag }

// DumpNameCountStats writes, for each recorder, its feature count and
// carved-file count, used at shutdown for the human-readable run
// summary.
func (s *Set) DumpNameCountStats() map[string][2]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][2]int64, len(s.recorders))
	for name, rec := range s.recorders {
		out[name] = [2]int64{rec.FeaturesWritten(), rec.CarvedFileCount()}
	}
	return out
}

// HistogramAdd attaches a histogram to the named recorder.
func (s *Set) HistogramAdd(recorderName string, def histogram.Def) error {
	rec, ok := s.NamedFeatureRecorder(recorderName)
	if !ok {
		return fmt.Errorf("featurerecorder: histogram for unknown recorder %q", recorderName)
	}
	return rec.HistogramAdd(def)
}

// Shutdown flushes and closes every registered recorder, collecting all
// errors rather than stopping at the first.
func (s *Set) Shutdown() error {
	s.mu.RLock()
	recs := make([]*Recorder, 0, len(s.recorders))
	for _, r := range s.recorders {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	var errs []string
	for _, r := range recs {
		if err := r.Shutdown(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("featurerecorder: shutdown errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// seenNames returns a mapset of registered recorder names, used by
// callers validating a scanner's declared Def.Name set against what
// actually got created.
func (s *Set) seenNames() mapset.Set[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := mapset.NewSet[string]()
	for name := range s.recorders {
		names.Add(name)
	}
	return names
}
