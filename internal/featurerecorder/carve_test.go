package featurerecorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rstorm/scancore/internal/pos0"
	"github.com/rstorm/scancore/internal/sbuf"
)

func TestCarveWritesFileAndCachesDuplicates(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	def := DefaultDef("zip")
	def.CarveMode = CarveAll
	def.NoContext = false
	rec, err := set.CreateFeatureRecorder(def)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte("the quick brown fox jumps over the lazy dog")
	buf1, err := sbuf.New(pos0.New("100-ZIP", 0), payload, len(payload))
	if err != nil {
		t.Fatal(err)
	}
	path1, err := rec.Carve(nil, buf1, ".bin", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if path1 == "" {
		t.Fatal("expected a non-empty carve path on first carve")
	}
	if _, err := os.Stat(filepath.Join(dir, path1)); err != nil {
		t.Fatalf("carved file not found on disk: %v", err)
	}

	buf2, err := sbuf.New(pos0.New("200-ZIP", 0), append([]byte(nil), payload...), len(payload))
	if err != nil {
		t.Fatal(err)
	}
	path2, err := rec.Carve(nil, buf2, ".bin", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if path2 != path1 {
		t.Errorf("duplicate content should resolve to the first carve's path, got %q want %q", path2, path1)
	}
	if rec.CarvedFileCount() != 1 {
		t.Errorf("expected exactly 1 carved file, got %d", rec.CarvedFileCount())
	}
	if rec.FeaturesWritten() != 2 {
		t.Errorf("expected 2 feature records (one per carve call), got %d", rec.FeaturesWritten())
	}
}

func TestCarveNoneIsNoOp(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	rec, err := set.CreateFeatureRecorder(DefaultDef("passive"))
	if err != nil {
		t.Fatal(err)
	}
	buf, err := sbuf.New(pos0.Top, []byte("data"), 4)
	if err != nil {
		t.Fatal(err)
	}
	path, err := rec.Carve(nil, buf, ".bin", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("CarveNone should produce no path, got %q", path)
	}
}

func TestCarveEncodedSkipsDoNotCarveEncoding(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	def := DefaultDef("gzip")
	def.CarveMode = CarveEncoded
	def.DoNotCarveEncoding = "GZIP"
	rec, err := set.CreateFeatureRecorder(def)
	if err != nil {
		t.Fatal(err)
	}

	// Innermost stage is GZIP itself: must not be re-carved.
	decoded, err := sbuf.New(pos0.New("100-GZIP", 0), []byte("decoded payload"), 15)
	if err != nil {
		t.Fatal(err)
	}
	path, err := rec.Carve(nil, decoded, ".bin", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("CarveEncoded should skip the do-not-carve-encoding stage, got %q", path)
	}

	// A different innermost stage should carve normally.
	other, err := sbuf.New(pos0.New("100-ZIP", 0), []byte("embedded member"), 15)
	if err != nil {
		t.Fatal(err)
	}
	path, err = rec.Carve(nil, other, ".bin", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if path == "" {
		t.Error("CarveEncoded should carve a stage other than do-not-carve-encoding")
	}

	// A top-level (empty-path) buffer has no innermost alpha token and
	// must never be carved under CarveEncoded.
	top, err := sbuf.New(pos0.Top, []byte("raw top-level bytes"), 19)
	if err != nil {
		t.Fatal(err)
	}
	path, err = rec.Carve(nil, top, ".bin", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("CarveEncoded should skip top-level (empty path) buffers, got %q", path)
	}
}
