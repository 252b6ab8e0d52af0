package featurerecorder

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// QuoteMode selects the quoting policy for a recorder:
// default escapes invalid UTF-8, control bytes and backslashes; XML
// escapes invalid UTF-8 and control bytes; NoQuote escapes nothing.
type QuoteMode int

const (
	QuoteDefault QuoteMode = iota
	QuoteXML
	QuoteNone
)

func quoteModeFor(def Def) QuoteMode {
	switch {
	case def.NoQuote:
		return QuoteNone
	case def.XML:
		return QuoteXML
	default:
		return QuoteDefault
	}
}

// Quote applies the quoting policy to raw bytes, returning a string
// containing only printable-or-escaped bytes under QuoteDefault and
// QuoteXML. Invalid UTF-8 bytes and raw control bytes (anything below
// 0x20, plus DEL) are rendered as \xHH — the latter so a raw tab,
// newline, or carriage return can never reach the feature-file line
// format and split one record across lines. Under QuoteDefault, literal
// backslashes are doubled first so \xHH can only ever mean "an escaped
// byte" and Unquote can invert unambiguously.
func Quote(raw []byte, mode QuoteMode) string {
	if mode == QuoteNone {
		return string(raw)
	}

	var sb strings.Builder
	i := 0
	for i < len(raw) {
		b := raw[i]
		if mode == QuoteDefault && b == '\\' {
			sb.WriteString(`\\`)
			i++
			continue
		}
		if isControlByte(b) {
			fmt.Fprintf(&sb, `\x%02x`, b)
			i++
			continue
		}
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			fmt.Fprintf(&sb, `\x%02x`, b)
			i++
			continue
		}
		sb.WriteString(string(r))
		i += size
	}
	return sb.String()
}

// isControlByte reports whether b is a raw ASCII control byte (C0 range
// or DEL) that must never appear unescaped in a feature or context —
// tab, newline, and carriage return in particular would otherwise
// corrupt the tab-separated, newline-delimited feature-file format.
func isControlByte(b byte) bool {
	return b < 0x20 || b == 0x7f
}

// Unquote reverses Quote(..., QuoteDefault): \\ becomes a literal
// backslash, \xHH becomes the literal byte HH, everything else passes
// through unchanged.
func Unquote(s string) []byte {
	var out []byte
	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			switch {
			case s[i+1] == '\\':
				out = append(out, '\\')
				i += 2
				continue
			case s[i+1] == 'x' && i+3 < len(s):
				if n, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
					out = append(out, byte(n))
					i += 4
					continue
				}
			case s[i+1] >= '0' && s[i+1] <= '7' && i+3 < len(s):
				// octal \NNN escape, for strings produced elsewhere
				if n, err := strconv.ParseUint(s[i+1:i+4], 8, 16); err == nil && n <= 255 {
					out = append(out, byte(n))
					i += 4
					continue
				}
			}
		}
		out = append(out, s[i])
		i++
	}
	return out
}

// containsForbiddenWhitespace reports whether s contains a raw tab,
// newline, or carriage return — the bytes the feature-file format never
// allows unescaped.
func containsForbiddenWhitespace(s string) bool {
	return strings.ContainsAny(s, "\t\n\r")
}
