package featurerecorder

import (
	"bytes"
	"strings"
	"testing"
)

func TestQuoteUnquoteRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("hello world"),
		[]byte("back\\slash"),
		{0xff, 0xfe, 'a', 'b'},
		[]byte("mixed\\and\xffinvalid"),
		{},
	}
	for _, raw := range cases {
		q := Quote(raw, QuoteDefault)
		got := Unquote(q)
		if !bytes.Equal(got, raw) {
			t.Errorf("round trip failed for %q: quoted %q, got back %q", raw, q, got)
		}
	}
}

func TestQuoteXMLEscapesOnlyInvalidUTF8(t *testing.T) {
	raw := []byte("back\\slash \xff")
	got := Quote(raw, QuoteXML)
	want := "back\\slash \\xff"
	if got != want {
		t.Errorf("QuoteXML(%q) = %q, want %q", raw, got, want)
	}
}

func TestQuoteEscapesControlBytes(t *testing.T) {
	raw := []byte("before\tafter\nnext\rline")
	for _, mode := range []QuoteMode{QuoteDefault, QuoteXML} {
		got := Quote(raw, mode)
		if strings.ContainsAny(got, "\t\n\r") {
			t.Errorf("Quote(mode=%v) left a raw tab/newline/CR in %q", mode, got)
		}
		want := "before\\x09after\\x0anext\\x0dline"
		if got != want {
			t.Errorf("Quote(mode=%v) = %q, want %q", mode, got, want)
		}
		if back := Unquote(got); string(back) != string(raw) {
			t.Errorf("Unquote(Quote(mode=%v)) = %q, want %q", mode, back, raw)
		}
	}
}

func TestQuoteNonePassesThrough(t *testing.T) {
	raw := []byte("\\x\xff\n")
	got := Quote(raw, QuoteNone)
	if got != string(raw) {
		t.Errorf("QuoteNone should pass bytes through unchanged")
	}
}

func TestContainsForbiddenWhitespace(t *testing.T) {
	if !containsForbiddenWhitespace("a\tb") {
		t.Error("expected tab to be forbidden")
	}
	if containsForbiddenWhitespace("a b") {
		t.Error("plain space should not be forbidden")
	}
}
