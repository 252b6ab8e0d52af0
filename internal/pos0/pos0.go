// Package pos0 identifies a single byte within a (possibly recursively
// carved) input by a forensic path and a byte offset.
package pos0

import (
	"strconv"
	"strings"
)

// Pos0 is an immutable (path, offset) pair. path is a dash-separated
// sequence of stage tokens such as "1000-ZIP-33423-HIBER"; offset is the
// byte offset of this position within the innermost stage.
type Pos0 struct {
	path   string
	offset int64
}

// Top is the position of byte 0 of the original, uncarved input.
var Top = Pos0{}

// New builds a Pos0 from an explicit path and offset.
func New(path string, offset int64) Pos0 {
	return Pos0{path: path, offset: offset}
}

// Path returns the forensic path component.
func (p Pos0) Path() string { return p.path }

// Offset returns the byte offset component.
func (p Pos0) Offset() int64 { return p.offset }

// Shift returns a new Pos0 with the offset advanced by n. n may be
// negative when re-basing a view, but callers should not construct an
// offset below zero.
func (p Pos0) Shift(n int64) Pos0 {
	return Pos0{path: p.path, offset: p.offset + n}
}

// Push appends a new stage to the path, used when a scanner carves out a
// child buffer (e.g. an embedded ZIP member). The child's own offset
// starts back at 0.
func (p Pos0) Push(stage string) Pos0 {
	if p.path == "" {
		return Pos0{path: stage, offset: 0}
	}
	return Pos0{path: p.path + "-" + stage, offset: 0}
}

// Depth is the number of stages in the path, counted as the tokens that
// begin with a letter: "1000-ZIP-33423-HIBER" has depth 2. A top-level
// position (no recursion) has depth 0.
func (p Pos0) Depth() int {
	n := 0
	for _, tok := range strings.Split(p.path, "-") {
		if tok != "" && isAlpha(tok[0]) {
			n++
		}
	}
	return n
}

// AlphaPart returns the leading run of ASCII letters of the innermost
// (last) stage token, e.g. "ZIP" from "...-33423-ZIP" or "HIBER" from
// "33423-HIBER". Returns "" if the path is empty or the innermost token
// has no alphabetic prefix.
func (p Pos0) AlphaPart() string {
	if p.path == "" {
		return ""
	}
	stages := strings.Split(p.path, "-")
	last := stages[len(stages)-1]
	i := 0
	for i < len(last) && isAlpha(last[i]) {
		i++
	}
	return last[:i]
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// String renders the canonical forensic-path stringification used in
// feature files: "path@offset", or "@offset" when path is empty.
func (p Pos0) String() string {
	return p.path + "@" + strconv.FormatInt(p.offset, 10)
}
