package featurerecorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rstorm/scancore/internal/histogram"
	"github.com/rstorm/scancore/internal/pos0"
	"github.com/rstorm/scancore/internal/sbuf"
)

func TestWriteAndFlush(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	rec, err := set.CreateFeatureRecorder(DefaultDef("email"))
	if err != nil {
		t.Fatal(err)
	}

	if err := rec.Write(pos0.New("", 100), []byte("bob@example.com"), []byte("context around bob")); err != nil {
		t.Fatal(err)
	}
	if rec.FeaturesWritten() != 1 {
		t.Errorf("expected 1 feature written, got %d", rec.FeaturesWritten())
	}
	if err := set.Shutdown(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "email.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "bob@example.com") {
		t.Errorf("feature file missing written feature: %q", data)
	}
}

func TestWriteDropsEmptyFeature(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	rec, err := set.CreateFeatureRecorder(DefaultDef("empties"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Write(pos0.Top, []byte{}, []byte("ctx")); err != nil {
		t.Fatal(err)
	}
	if rec.FeaturesWritten() != 0 {
		t.Errorf("zero-length feature should not be counted")
	}
}

func TestWritePedanticPanicsOnOversizedFeature(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", true)
	def := DefaultDef("tiny")
	def.MaxFeatureSize = 4
	rec, err := set.CreateFeatureRecorder(def)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic in pedantic mode on oversized feature")
		}
	}()
	_ = rec.Write(pos0.Top, []byte("way too long for this recorder"), nil)
}

func TestWriteBufSkipsMargin(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	rec, err := set.CreateFeatureRecorder(DefaultDef("margins"))
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("0123456789ABCDEF")
	buf, err := sbuf.New(pos0.Top, data, 10)
	if err != nil {
		t.Fatal(err)
	}

	if err := rec.WriteBuf(buf, 12, 2); err != nil {
		t.Fatal(err)
	}
	if rec.FeaturesWritten() != 0 {
		t.Errorf("a feature located entirely in the margin must not be written")
	}

	if err := rec.WriteBuf(buf, 2, 2); err != nil {
		t.Fatal(err)
	}
	if rec.FeaturesWritten() != 1 {
		t.Errorf("a feature located in the page should be written")
	}
}

func TestShutdownMaterializesHistograms(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	rec, err := set.CreateFeatureRecorder(DefaultDef("email"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.HistogramAdd(histogram.Def{Name: "domains", Regex: `@(\S+)$`}); err != nil {
		t.Fatal(err)
	}

	for _, addr := range []string{"bob@example.com", "alice@example.com", "carol@other.org"} {
		if err := rec.Write(pos0.Top, []byte(addr), nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := set.Shutdown(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "email_domains.txt"))
	if err != nil {
		t.Fatalf("histogram file was not materialized at shutdown: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "2\texample.com") {
		t.Errorf("expected example.com count of 2 in histogram, got %q", got)
	}
	if !strings.Contains(got, "1\tother.org") {
		t.Errorf("expected other.org count of 1 in histogram, got %q", got)
	}
}

func TestHistogramAddAfterWriteFails(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(dir, "sha1", false)
	rec, err := set.CreateFeatureRecorder(DefaultDef("h"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Write(pos0.Top, []byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	if err := rec.HistogramAdd(histogram.Def{Name: "h"}); err == nil {
		t.Error("expected error adding a histogram after the first write")
	}
}
