package featurerecorder

import (
	"testing"

	"github.com/rstorm/scancore/internal/pos0"
	"github.com/rstorm/scancore/internal/sbuf"
)

type prefixStoplist struct{ prefix string }

func (p prefixStoplist) Matches(feature, context string) bool {
	return len(feature) >= len(p.prefix) && feature[:len(p.prefix)] == p.prefix
}

func TestCreateFeatureRecorderRejectsDuplicateNames(t *testing.T) {
	set := NewSet(t.TempDir(), "sha1", false)
	if _, err := set.CreateFeatureRecorder(DefaultDef("dup")); err != nil {
		t.Fatal(err)
	}
	if _, err := set.CreateFeatureRecorder(DefaultDef("dup")); err == nil {
		t.Error("expected error creating a second recorder with the same name")
	}
}

func TestStoplistRoutesMatchingFeatures(t *testing.T) {
	set := NewSet(t.TempDir(), "sha1", false)
	main, err := set.CreateFeatureRecorder(DefaultDef("main"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := set.CreateFeatureRecorder(DefaultDef("stop")); err != nil {
		t.Fatal(err)
	}
	if err := set.SetStoplist(prefixStoplist{prefix: "boring"}, "stop"); err != nil {
		t.Fatal(err)
	}

	if err := main.Write(pos0.Top, []byte("boringjunk"), nil); err != nil {
		t.Fatal(err)
	}
	if main.FeaturesWritten() != 1 {
		t.Errorf("a stop-listed feature still counts toward its recorder's features_written, got %d", main.FeaturesWritten())
	}
	stop, _ := set.NamedFeatureRecorder("stop")
	if stop.FeaturesWritten() != 1 {
		t.Errorf("stop-listed feature should land in the stoplist recorder, got %d writes", stop.FeaturesWritten())
	}
}

func TestSetStoplistFailsOnMissingRecorder(t *testing.T) {
	set := NewSet(t.TempDir(), "sha1", false)
	if err := set.SetStoplist(prefixStoplist{prefix: "x"}, "does-not-exist"); err == nil {
		t.Error("expected an error naming a stoplist recorder that was never created")
	}
}

func TestCheckPreviouslyProcessed(t *testing.T) {
	set := NewSet(t.TempDir(), "sha1", false)
	buf, err := sbuf.New(pos0.Top, []byte("repeatable content"), 18)
	if err != nil {
		t.Fatal(err)
	}
	if set.CheckPreviouslyProcessed(buf) {
		t.Error("first sighting of content should not be reported as previously processed")
	}
	if !set.CheckPreviouslyProcessed(buf) {
		t.Error("second sighting of identical content should be reported as previously processed")
	}
}

func TestMixedBackendsRejected(t *testing.T) {
	set := NewSet(t.TempDir(), "sha1", false)
	if _, err := set.CreateFeatureRecorder(DefaultDef("file-backed")); err != nil {
		t.Fatal(err)
	}
	if _, err := set.CreateSQLFeatureRecorder(nil, nil, DefaultDef("sql-backed")); err != ErrMixedBackends {
		t.Errorf("expected ErrMixedBackends, got %v", err)
	}
}
