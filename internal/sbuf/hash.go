package sbuf

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// defaultHash is SHA-1, the digest Hash uses (and so the seen-set's
// digest) unless the root buffer was built with sbuf.WithHashFunc. The
// carve cache does not use it: featurerecorder hashes carved data with
// the set's configured algorithm.
func defaultHash(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Hash computes and memoizes this view's content-hash hex digest. The
// memoization uses sync.Once rather than a bare mutex (the source's
// "under a mutex" phrasing): both give the same once-only guarantee, and
// sync.Once is the idiomatic Go spelling of it.
func (s *Sbuf) Hash() string {
	s.hashOnce.Do(func() {
		hf := s.hashFunc
		if hf == nil {
			hf = defaultHash
		}
		s.hashVal = hf(s.data[:s.bufsize])
	})
	return s.hashVal
}

// fastDigest is a cheap, non-cryptographic fingerprint used only to
// short-circuit FindNgramSize's exact check and to shard the
// concurrent seen-set/carve-cache locks in the scanner and
// featurerecorder packages (see DESIGN.md's xxh3 entry). It must never
// be used as the canonical content hash.
func fastDigest(b []byte) uint64 {
	return xxh3.Hash(b)
}

// ShardKey returns a cheap, stable uint8 derived from hex, suitable for
// indexing into a small fixed array of mutexes. hex is expected to be a
// hash digest (from Hash or a featurerecorder.Set's configured hasher).
func ShardKey(hex string) uint8 {
	return uint8(fastDigest([]byte(hex)))
}

// FindNgramSize returns the smallest ngram length k <= max such that the
// whole buffer is k-periodic (buf[i] == buf[i mod k] for all i), or 0 if
// no such k exists. k is always strictly less than the buffer's length,
// so a short buffer is never trivially "periodic" by virtue of being
// its own single period — the check only fires when the pattern
// actually repeats at least once. Candidate lengths are pre-screened
// by comparing the xxh3 digest of the first k-length block with those
// of a few sampled later blocks, so the expensive byte-exact comparison
// only runs on candidates that pass that check.
func (s *Sbuf) FindNgramSize(max int) int {
	buf := s.data[:s.bufsize]
	if len(buf) < 2 {
		return 0
	}
	if max >= len(buf) {
		max = len(buf) - 1
	}
	for k := 1; k <= max; k++ {
		if !plausiblyPeriodic(buf, k) {
			continue
		}
		if isPeriodic(buf, k) {
			return k
		}
	}
	return 0
}

// plausiblyPeriodic compares the xxh3 digest of the first block against
// a handful of sampled later blocks before paying for the full
// byte-exact scan in isPeriodic.
func plausiblyPeriodic(buf []byte, k int) bool {
	if k >= len(buf) {
		return true
	}
	first := blockAt(buf, 0, k)
	want := fastDigest(first)
	samples := 4
	step := (len(buf) / k) / (samples + 1)
	if step < 1 {
		step = 1
	}
	for i := step; i*k+k <= len(buf) && i <= samples*step; i += step {
		b := blockAt(buf, i*k, k)
		if fastDigest(b) != want {
			return false
		}
	}
	return true
}

func blockAt(buf []byte, off, k int) []byte {
	end := off + k
	if end > len(buf) {
		end = len(buf)
	}
	return buf[off:end]
}

func isPeriodic(buf []byte, k int) bool {
	for i := 0; i < len(buf); i++ {
		if buf[i] != buf[i%k] {
			return false
		}
	}
	return true
}
