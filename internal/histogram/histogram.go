// Package histogram implements the in-memory multiset over features
// (C4), with an optional regex projection so a recorder can, say,
// histogram just the domain part of an email feature.
package histogram

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
)

// Def declares one histogram a scanner wants attached to a recorder.
// Regex, if non-empty, is applied to each feature before counting; if it
// has a capture group, the first group is counted instead of the whole
// match, and features that don't match are dropped from this histogram
// (they still count toward other histograms and the feature file).
type Def struct {
	Name  string
	Regex string
}

// Histogram is a thread-safe multiset of projected feature strings.
type Histogram struct {
	def      Def
	re       *regexp.Regexp
	mu       sync.Mutex
	counts   map[string]int64
}

// New compiles def.Regex, if any, and returns a ready-to-use Histogram.
func New(def Def) (*Histogram, error) {
	h := &Histogram{def: def, counts: make(map[string]int64)}
	if def.Regex != "" {
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("histogram %q: bad regex %q: %w", def.Name, def.Regex, err)
		}
		h.re = re
	}
	return h, nil
}

// Name returns the histogram's declared name.
func (h *Histogram) Name() string { return h.def.Name }

// Add projects feature per the configured regex (or uses it verbatim)
// and increments its count. A regex with no match on feature is a no-op.
func (h *Histogram) Add(feature string) {
	key := feature
	if h.re != nil {
		m := h.re.FindStringSubmatch(feature)
		if m == nil {
			return
		}
		if len(m) > 1 {
			key = m[1]
		} else {
			key = m[0]
		}
	}
	h.mu.Lock()
	h.counts[key]++
	h.mu.Unlock()
}

// Count returns the current count for key, for tests.
func (h *Histogram) Count(key string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[key]
}

// Entry is one materialized histogram line: a projected feature value
// and its accumulated count.
type Entry struct {
	Key   string
	Count int64
}

// Entries returns every (feature, count) pair, most frequent first and
// ties broken alphabetically — the backend-agnostic form of the
// shutdown-time "histograms_generate()" materialization step, usable by
// any sink (text file, SQL table, ...) without going through a
// io.Writer-formatted line.
func (h *Histogram) Entries() []Entry {
	h.mu.Lock()
	entries := make([]Entry, 0, len(h.counts))
	for k, c := range h.counts {
		entries = append(entries, Entry{k, c})
	}
	h.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Generate writes every (feature, count) pair to w, most frequent first
// and ties broken alphabetically, as "count\tfeature\n" lines — the
// file-backend rendering of Entries.
func (h *Histogram) Generate(w io.Writer) error {
	for _, e := range h.Entries() {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", e.Count, e.Key); err != nil {
			return err
		}
	}
	return nil
}
