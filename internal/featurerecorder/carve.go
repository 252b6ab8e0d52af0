package featurerecorder

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rstorm/scancore/internal/sbuf"
)

// shardedSet is a lock-sharded seen-set used for the at-most-once carve
// cache, sharded by the fast (non-canonical) digest so one mutex never
// serializes every carve across the whole run — the same sharding idiom
// sbuf.ShardKey exists to support.
type shardedSet struct {
	shards [256]struct {
		mu   sync.Mutex
		seen map[string]string // content hash -> relative path of first carve
	}
}

func newShardedSet() *shardedSet {
	s := &shardedSet{}
	for i := range s.shards {
		s.shards[i].seen = make(map[string]string)
	}
	return s
}

// get returns (path, true) if key is already present, without mutating
// the set — a non-claiming peek used for the cache-hit fast path.
func (s *shardedSet) get(key string, shard byte) (string, bool) {
	sh := &s.shards[shard]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	existing, ok := sh.seen[key]
	return existing, ok
}

// testAndInsert returns (existingPath, true) if key was already present,
// or inserts path under key and returns ("", false) otherwise.
func (s *shardedSet) testAndInsert(key string, shard byte, path string) (string, bool) {
	sh := &s.shards[shard]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.seen[key]; ok {
		return existing, true
	}
	sh.seen[key] = path
	return "", false
}

func newHasher(algo string) hash.Hash {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New()
	case "sha256", "sha-256":
		return sha256.New()
	default:
		return sha1.New()
	}
}

// shouldCarve applies this recorder's CarveMode to data's position:
// CarveNone never carves, CarveAll always carves, and CarveEncoded
// carves only when data's forensic path is non-empty and its innermost
// alpha token isn't the recorder's DoNotCarveEncoding token (the
// "don't re-carve the thing you just decoded" rule — e.g. a GZIP
// scanner's decoded child shouldn't also get carved back out as GZIP).
func (r *Recorder) shouldCarve(data *sbuf.Sbuf) bool {
	switch r.def.CarveMode {
	case CarveNone:
		return false
	case CarveAll:
		return true
	case CarveEncoded:
		p := data.Pos0()
		return p.Path() != "" && p.AlphaPart() != r.def.DoNotCarveEncoding
	default:
		return false
	}
}

// Carve writes header followed by data to a standalone file under
// outdir, laid out as
// {outdir}/{recorder}/{seq/1000, zero-padded to 3 digits}/{pos0}{ext}
// — directly modeled on the segment-numbering directory scheme used
// elsewhere in this codebase for bucketing many small files. The
// content hash covers data only (header is framing, e.g. a synthesized
// archive-member header, not part of the carved object's identity). A
// carve whose content hash has already been seen by this recorder
// writes the literal string "CACHED" as the feature and omits the
// <filename> element from the context XML, rather than creating a
// duplicate file. If mtime is non-zero the carved file's modification
// time is stamped to it; header may be nil.
func (r *Recorder) Carve(header, data *sbuf.Sbuf, ext string, mtime time.Time) (string, error) {
	if r.set.outdir == "" || !r.shouldCarve(data) {
		return "", nil
	}

	h := newHasher(r.set.hashAlgorithm)
	h.Write(data.Bytes())
	digest := hex.EncodeToString(h.Sum(nil))

	shard := sbuf.ShardKey(digest)

	if existing, hit := r.carveCache.get(digest, shard); hit {
		if err := r.writeCarveRecord(data, "CACHED", existing, digest, false); err != nil {
			return "", err
		}
		return existing, nil
	}

	seq := r.carvedFileCount.Add(1) - 1
	bucket := fmt.Sprintf("%03d", seq/1000)
	relDir := filepath.Join(r.name, bucket)
	relPath := filepath.Join(relDir, sanitizeFilename(data.Pos0().String())+ext)

	absDir := filepath.Join(r.set.outdir, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("featurerecorder %q: carve mkdir: %w", r.name, err)
	}

	absPath := filepath.Join(r.set.outdir, relPath)
	f, err := os.OpenFile(absPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Lost a race with another goroutine carving the same
			// position (not the same content — positions are unique).
			// Fall through to stamp mtime and record as a fresh carve.
		} else {
			return "", fmt.Errorf("featurerecorder %q: carve create: %w", r.name, err)
		}
	} else {
		defer f.Close()
		if header != nil {
			if _, err := f.Write(header.Bytes()); err != nil {
				return "", fmt.Errorf("featurerecorder %q: carve write header: %w", r.name, err)
			}
		}
		if _, err := f.Write(data.Bytes()); err != nil {
			return "", fmt.Errorf("featurerecorder %q: carve write: %w", r.name, err)
		}
	}

	// First and only insert: the cache now holds this carve's actual
	// relative path, so a later cache hit returns a real, usable path.
	r.carveCache.testAndInsert(digest, shard, relPath)
	if !mtime.IsZero() {
		if err := stampMtime(absPath, mtime); err != nil {
			return "", fmt.Errorf("featurerecorder %q: carve stamp mtime: %w", r.name, err)
		}
	}

	if err := r.writeCarveRecord(data, relPath, relPath, digest, true); err != nil {
		return "", err
	}
	return relPath, nil
}

func (r *Recorder) writeCarveRecord(data *sbuf.Sbuf, feature, relPath, digest string, includeFilename bool) error {
	var ctx strings.Builder
	ctx.WriteString("<fileobject>")
	if includeFilename {
		fmt.Fprintf(&ctx, "<filename>%s</filename>", Quote([]byte(relPath), QuoteXML))
	}
	fmt.Fprintf(&ctx, "<filesize>%d</filesize>", data.BufSize())
	fmt.Fprintf(&ctx, "<hashdigest type='%s'>%s</hashdigest>", r.set.hashAlgorithm, digest)
	ctx.WriteString("</fileobject>")

	return r.Write(data.Pos0(), []byte(feature), []byte(ctx.String()))
}

// sanitizeFilename replaces path-hostile characters in a pos0 string
// (slashes, colons) with underscores so it can serve as a single path
// component.
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}
