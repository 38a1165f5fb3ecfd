package feeparse

import (
	"regexp"
	"strings"
)

// Section is a run of lines under one engagement header. Label is empty for
// the preamble and for cells without headers.
type Section struct {
	Label string
	Lines []Line
	// Offset is the byte length of the header prefix in the normalized first
	// line, when the header shares its line with milestone text.
	Offset int
}

const maxLabelRunes = 120

// elHeaderRe matches explicit engagement-letter headers. It runs on
// normalized text, so full-width colons are already ASCII.
var elHeaderRe = regexp.MustCompile(`(?i)^\s*((?:(?:original|supplemental|supplementary|additional|amended|revised|new)\s+)?(?:EL|engagement\s+letter)(?:\s*(?:no\.?\s*)?\d+)?|(?:原|补充|新)?(?:委托书|聘用函|委托协议)(?:\s*\d+)?)\s*:\s*`)

// periodHeaderRes recognise contractual-period headers. They apply only to
// lines that are not themselves milestones.
var periodHeaderRes = []*regexp.Regexp{
	regexp.MustCompile(`^自\s*\S.*?至\s*\S`),
	regexp.MustCompile(`(?i)\(\s*commencement\s+date\b`),
	regexp.MustCompile(`(?i)\b(?:signed|dated|entered\s+into)\s+on\b`),
	regexp.MustCompile(`期间`),
	regexp.MustCompile(`(?:签署|签订)的`),
}

// Segment splits lines into sections at engagement headers. With no headers
// the whole input is one unlabeled section. Lines before the first header
// form an unlabeled preamble section.
func Segment(lines []Line) []Section {
	var sections []Section
	cur := Section{}
	for _, ln := range lines {
		label, offset, ok := matchHeader(NormalizePunctuation(ln.Text))
		if !ok {
			cur.Lines = append(cur.Lines, ln)
			continue
		}
		if cur.Label != "" || len(cur.Lines) > 0 {
			sections = append(sections, cur)
		}
		cur = Section{Label: label, Lines: []Line{ln}, Offset: offset}
	}
	return append(sections, cur)
}

// matchHeader reports whether a normalized line opens a section. offset is the
// byte length of an engagement-letter prefix that should be skipped before
// milestone parsing; period headers consume the whole line.
func matchHeader(s string) (label string, offset int, ok bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", 0, false
	}

	if m := elHeaderRe.FindStringSubmatchIndex(s); m != nil {
		return strings.TrimSpace(s[m[2]:m[3]]), m[1], true
	}

	if _, isMilestone := matchOrdinal(trimmed); isMilestone {
		return "", 0, false
	}
	for _, re := range periodHeaderRes {
		if re.MatchString(trimmed) {
			label = strings.TrimRight(trimmed, " :")
			return truncateRunes(label, maxLabelRunes), len(s), true
		}
	}
	return "", 0, false
}
