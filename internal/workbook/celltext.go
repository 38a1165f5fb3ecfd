package workbook

import (
	"strings"
	"unicode"
)

// Run is one formatting run of a rich-text cell. HasFont reports whether the
// run carries its own font properties; runs without them inherit the
// cell-level font.
type Run struct {
	Text    string
	HasFont bool
	Strike  bool
}

// Cell is a single worksheet cell.
type Cell struct {
	Value  string
	Runs   []Run
	Strike bool // cell-level font strikethrough
}

// StyledText is the flattened text of a cell and a strikethrough flag per rune.
type StyledText struct {
	Text   string
	Struck []bool
}

// Flatten concatenates a cell's runs into a single string while recording,
// for every rune, whether it was rendered struck through.
func Flatten(c Cell) StyledText {
	if len(c.Runs) == 0 {
		n := len([]rune(c.Value))
		struck := make([]bool, n)
		if c.Strike {
			for i := range struck {
				struck[i] = true
			}
		}
		return StyledText{Text: c.Value, Struck: struck}
	}

	var sb strings.Builder
	var struck []bool
	for _, r := range c.Runs {
		s := c.Strike
		if r.HasFont {
			s = r.Strike
		}
		sb.WriteString(r.Text)
		for range []rune(r.Text) {
			struck = append(struck, s)
		}
	}
	return StyledText{Text: sb.String(), Struck: struck}
}

// SpanCompleted reports whether more than half of the non-whitespace runes in
// the rune range [start, end) are struck through. Empty spans are not
// completed.
func (t StyledText) SpanCompleted(start, end int) bool {
	runes := []rune(t.Text)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}

	var total, struck int
	for i := start; i < end; i++ {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		total++
		if i < len(t.Struck) && t.Struck[i] {
			struck++
		}
	}
	return total > 0 && struck*2 > total
}
