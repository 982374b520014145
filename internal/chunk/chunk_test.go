package chunk

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitEmptyYieldsNothing checks the zero-chunk case.
func TestSplitEmptyYieldsNothing(t *testing.T) {
	assert.Empty(t, Collect("", 10))
	assert.Equal(t, 0, Count("", 10))
}

// TestSplitCutsAfterLastWhitespace checks boundary placement.
func TestSplitCutsAfterLastWhitespace(t *testing.T) {
	got := Collect("Hello world, this is speech", 12)
	assert.Equal(t, []string{"Hello world,", " this is ", "speech"}, got)
}

// TestSplitWhitespaceAtWindowEdge keeps a word whole when the window ends
// right before a space, and never yields a whitespace-only chunk.
func TestSplitWhitespaceAtWindowEdge(t *testing.T) {
	assert.Equal(t, []string{"one two", " three"}, Collect("one two three", 7))

	got := Collect("abc def ghi", 3)
	assert.Equal(t, "abc def ghi", strings.Join(got, ""))
	for _, c := range got {
		assert.NotEmpty(t, strings.TrimSpace(c), "whitespace-only chunk in %q", got)
	}
}

// TestSplitHardCutsLongTokens checks progress on whitespace-free runs.
func TestSplitHardCutsLongTokens(t *testing.T) {
	got := Collect("abcdefghij xy", 4)
	assert.Equal(t, []string{"abcd", "efgh", "ij ", "xy"}, got)
}

// TestSplitCountsRunesNotBytes keeps multi-byte text within the size.
func TestSplitCountsRunesNotBytes(t *testing.T) {
	got := Collect("héllo wörld ñandú", 6)
	for _, c := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 6)
	}
	assert.Equal(t, "héllo wörld ñandú", strings.Join(got, ""))
}

// TestSplitNonPositiveSize treats the size as one rune.
func TestSplitNonPositiveSize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Collect("abc", 0))
}

// TestSplitIsRestartable ranges the same sequence twice.
func TestSplitIsRestartable(t *testing.T) {
	seq := Split("one two three four", 5)
	var first, second []string
	for c := range seq {
		first = append(first, c)
	}
	for c := range seq {
		second = append(second, c)
	}
	assert.Equal(t, first, second)
}

// TestSplitStopsEarly honours a consumer that breaks out of the range.
func TestSplitStopsEarly(t *testing.T) {
	n := 0
	for range Split("a b c d e f", 2) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

// TestSplitRoundTripProperty checks reconstruction and size bounds over many inputs.
func TestSplitRoundTripProperty(t *testing.T) {
	inputs := []string{
		"The quick brown fox jumps over the lazy dog.",
		strings.Repeat("x", 57),
		"  leading and trailing  ",
		"tabs\tand\nnewlines\r\nmixed in",
		strings.Repeat("word ", 200),
		"supercalifragilisticexpialidocious is long",
		"日本語のテキスト と スペース",
	}

	for _, text := range inputs {
		for size := 1; size <= 23; size++ {
			chunks := Collect(text, size)
			require.Equal(t, text, strings.Join(chunks, ""), "size=%d", size)

			for i, c := range chunks {
				n := utf8.RuneCountInString(c)
				require.LessOrEqual(t, n, size, "chunk %q size=%d", c, size)
				require.Positive(t, n)

				last, _ := utf8.DecodeLastRuneInString(c)
				if i < len(chunks)-1 && !unicode.IsSpace(last) {
					require.Equal(t, size, n, "hard cut %q size=%d", c, size)
				}
			}
		}
	}
}
