// Package linebreak keeps derived text line-aligned with the source it was
// produced from.
//
// The segmentation service may drop trailing line breaks from its output.
// Every view derived from one service round trip (segmented, romanized and
// phonetic) must end with at least as many line breaks as the source did, or
// the panels drift out of alignment line by line.
package linebreak

import "strings"

// TrailingCount returns the number of line breaks in the maximal suffix of s
// matching (\r?\n)*. A CRLF pair counts as a single line break: the count is
// of breaks, not of characters, so "a\r\n\r\n" yields 2 and padding it onto
// LF-only text adds two "\n", not four.
func TrailingCount(s string) int {
	n := 0
	i := len(s)
	for i > 0 && s[i-1] == '\n' {
		n++
		i--
		if i > 0 && s[i-1] == '\r' {
			i--
		}
	}
	return n
}

// Missing returns how many line breaks transformed lacks relative to original.
func Missing(original, transformed string) int {
	if d := TrailingCount(original) - TrailingCount(transformed); d > 0 {
		return d
	}
	return 0
}

// Preserve returns transformed with enough trailing "\n" appended that its
// trailing line break run is at least as long as original's.
func Preserve(original, transformed string) string {
	if n := Missing(original, transformed); n > 0 {
		return transformed + strings.Repeat("\n", n)
	}
	return transformed
}

// Align applies Preserve against original to every derived string of one
// round trip, in order.
func Align(original string, derived ...string) []string {
	out := make([]string, len(derived))
	for i, d := range derived {
		out[i] = Preserve(original, d)
	}
	return out
}

// TrimLineIndent removes leading spaces from the start of every line.
func TrimLineIndent(s string) string {
	if !strings.Contains(s, " ") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	atLineStart := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if atLineStart && c == ' ' {
			continue
		}
		atLineStart = c == '\n' || c == '\r'
		b.WriteByte(c)
	}
	return b.String()
}
