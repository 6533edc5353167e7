package treesitter

import (
	"bytes"

	sitter "github.com/smacker/go-tree-sitter"
)

// computeEdit describes the change from old to cur as a single replaced
// byte range, bounded by their common prefix and suffix. ok is false when
// the sources are identical.
func computeEdit(old, cur []byte) (sitter.EditInput, bool) {
	if bytes.Equal(old, cur) {
		return sitter.EditInput{}, false
	}

	limit := min(len(old), len(cur))
	prefix := 0
	for prefix < limit && old[prefix] == cur[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < limit-prefix && old[len(old)-1-suffix] == cur[len(cur)-1-suffix] {
		suffix++
	}

	oldEnd := len(old) - suffix
	newEnd := len(cur) - suffix
	return sitter.EditInput{
		StartIndex:  uint32(prefix),
		OldEndIndex: uint32(oldEnd),
		NewEndIndex: uint32(newEnd),
		StartPoint:  pointAt(old, prefix),
		OldEndPoint: pointAt(old, oldEnd),
		NewEndPoint: pointAt(cur, newEnd),
	}, true
}

// pointAt converts a byte offset into a row and byte column.
func pointAt(src []byte, offset int) sitter.Point {
	head := src[:offset]
	row := bytes.Count(head, []byte{'\n'})
	col := offset
	if i := bytes.LastIndexByte(head, '\n'); i >= 0 {
		col = offset - i - 1
	}
	return sitter.Point{Row: uint32(row), Column: uint32(col)}
}
