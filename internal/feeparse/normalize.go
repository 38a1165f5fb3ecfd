// Package feeparse recovers milestones, long-stop dates and engagement
// sections from the free-text fee cell of the billing tracker.
package feeparse

import (
	"strings"

	"golang.org/x/text/width"
)

var dashReplacer = strings.NewReplacer(
	"—", "-", // em dash
	"–", "-", // en dash
	"‒", "-",
	"―", "-",
	"−", "-", // minus sign
)

// NormalizePunctuation folds full-width CJK punctuation and digits to ASCII
// and maps dash variants to "-". The mapping is rune-for-rune, so offsets in
// the result line up with the input.
func NormalizePunctuation(s string) string {
	return dashReplacer.Replace(width.Fold.String(s))
}

// Line is one line of a cell with its rune offsets in the full cell text.
type Line struct {
	Text  string
	Start int
	End   int
}

// SplitLines splits text on newlines, keeping rune offsets. A trailing
// carriage return is dropped from Text but stays inside the span.
func SplitLines(text string) []Line {
	var lines []Line
	start := 0
	var cur []rune
	for _, r := range text {
		if r == '\n' {
			lines = append(lines, Line{Text: strings.TrimSuffix(string(cur), "\r"), Start: start, End: start + len(cur)})
			start += len(cur) + 1
			cur = cur[:0]
			continue
		}
		cur = append(cur, r)
	}
	lines = append(lines, Line{Text: strings.TrimSuffix(string(cur), "\r"), Start: start, End: start + len(cur)})
	return lines
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
