package pos0

import "testing"

func TestShift(t *testing.T) {
	p := New("1000-ZIP", 10)
	p2 := p.Shift(6)
	if p2.Offset() != 16 {
		t.Errorf("expected offset 16, got %d", p2.Offset())
	}
	if p2.Path() != p.Path() {
		t.Errorf("shift must not change path")
	}
}

func TestDepth(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"", 0},
		{"1000-ZIP", 1},
		{"1000-ZIP-33423-HIBER", 2},
	}
	for _, c := range cases {
		if got := New(c.path, 0).Depth(); got != c.want {
			t.Errorf("Depth(%q) = %d, want %d", c.path, got, c.want)
		}
	}
}

func TestAlphaPart(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"", ""},
		{"1000-ZIP", "ZIP"},
		{"1000-ZIP-33423-HIBER", "HIBER"},
		{"1000-ZIP-33423", ""},
	}
	for _, c := range cases {
		if got := New(c.path, 0).AlphaPart(); got != c.want {
			t.Errorf("AlphaPart(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestPush(t *testing.T) {
	p := New("1000-ZIP", 512)
	child := p.Push("33423-HIBER")
	if child.Path() != "1000-ZIP-33423-HIBER" {
		t.Errorf("unexpected push path: %q", child.Path())
	}
	if child.Offset() != 0 {
		t.Errorf("pushed child should start at offset 0, got %d", child.Offset())
	}
}

func TestString(t *testing.T) {
	if got := New("1000-ZIP", 512).String(); got != "1000-ZIP@512" {
		t.Errorf("unexpected string form: %q", got)
	}
	if got := Top.String(); got != "@0" {
		t.Errorf("unexpected top string form: %q", got)
	}
}
