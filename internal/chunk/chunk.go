// Package chunk splits long text into bounded segments on whitespace boundaries.
package chunk

import (
	"iter"
	"unicode"
)

// DefaultSize is the chunk length used when settings do not specify one.
const DefaultSize = 1000

// Split yields text in order as chunks of at most size runes.
//
// Each cut is placed after the last whitespace rune inside the window, or at
// the window edge when whitespace follows it, so joining the chunks
// reproduces text exactly. A window without whitespace is
// cut at exactly size runes. The sequence is lazy and may be ranged over any
// number of times.
func Split(text string, size int) iter.Seq[string] {
	if size < 1 {
		size = 1
	}

	return func(yield func(string) bool) {
		runes := []rune(text)
		for start := 0; start < len(runes); {
			end := cutPoint(runes, start, size)
			if !yield(string(runes[start:end])) {
				return
			}
			start = end
		}
	}
}

// cutPoint returns the exclusive end of the chunk starting at start.
// Whitespace leading the chunk belongs to it and is never a cut on its own.
// Whitespace right after the window ends the chunk at the window edge.
func cutPoint(runes []rune, start, size int) int {
	limit := start + size
	if limit >= len(runes) {
		return len(runes)
	}
	if unicode.IsSpace(runes[limit]) {
		return limit
	}

	body := start
	for body < limit && unicode.IsSpace(runes[body]) {
		body++
	}
	for i := limit - 1; i > body; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return limit
}

// Collect materializes the chunks of text.
func Collect(text string, size int) []string {
	var out []string
	for c := range Split(text, size) {
		out = append(out, c)
	}
	return out
}

// Count reports how many chunks Split yields without keeping them.
func Count(text string, size int) int {
	n := 0
	for range Split(text, size) {
		n++
	}
	return n
}
