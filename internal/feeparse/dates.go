package feeparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateMatch is a calendar date found in text. Start and End are byte offsets.
type DateMatch struct {
	Date  time.Time
	Raw   string
	Start int
	End   int
}

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

type datePattern struct {
	re *regexp.Regexp
	// ymd returns year, month and day strings from submatches.
	ymd func(m []string) (y, mo, d string)
}

var datePatterns = []datePattern{
	// 30 Sept 2026, 1st March, 2025
	{regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]{3,9})\.?,?\s+(\d{4})\b`),
		func(m []string) (string, string, string) { return m[3], m[2], m[1] }},
	// March 1, 2025
	{regexp.MustCompile(`(?i)\b([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`),
		func(m []string) (string, string, string) { return m[3], m[1], m[2] }},
	// 2025年3月1日
	{regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`),
		func(m []string) (string, string, string) { return m[1], m[2], m[3] }},
	// 2025-03-01, 2025/3/1
	{regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`),
		func(m []string) (string, string, string) { return m[1], m[2], m[3] }},
}

// FindDates returns every valid date in s in order of appearance. Matches that
// name an impossible calendar date are ignored.
func FindDates(s string) []DateMatch {
	var out []DateMatch
	for _, p := range datePatterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(s, -1) {
			m := submatches(s, idx)
			y, mo, d := p.ymd(m)
			t, ok := makeDate(y, mo, d)
			if !ok {
				continue
			}
			out = append(out, DateMatch{Date: t, Raw: m[0], Start: idx[0], End: idx[1]})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	// Drop matches overlapping an earlier one.
	kept := out[:0]
	lastEnd := -1
	for _, dm := range out {
		if dm.Start < lastEnd {
			continue
		}
		kept = append(kept, dm)
		lastEnd = dm.End
	}
	return kept
}

func submatches(s string, idx []int) []string {
	m := make([]string, len(idx)/2)
	for i := range m {
		if idx[2*i] >= 0 {
			m[i] = s[idx[2*i]:idx[2*i+1]]
		}
	}
	return m
}

func makeDate(ys, ms, ds string) (time.Time, bool) {
	y, err := strconv.Atoi(ys)
	if err != nil || y < 1900 || y > 2200 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(ds)
	if err != nil {
		return time.Time{}, false
	}

	var mo time.Month
	if n, err := strconv.Atoi(ms); err == nil {
		mo = time.Month(n)
	} else {
		var ok bool
		if mo, ok = monthNames[strings.ToLower(ms)]; !ok {
			return time.Time{}, false
		}
	}
	if mo < time.January || mo > time.December {
		return time.Time{}, false
	}

	t := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// LongStop is a long-stop date annotation. Date is nil when the annotation
// holds no parseable date; Raw keeps the annotation text for review.
type LongStop struct {
	Date  *time.Time
	Raw   string
	Match string
}

var (
	lsdParenRe = regexp.MustCompile(`(?i)\(\s*(?:LSD|long[\s-]*stop(?:\s+date)?|最后期限|最终期限|最后截止日期?)\s*:?\s*([^)]*)\)`)
	lsdBareRe  = regexp.MustCompile(`(?i)(?:^|\s)(?:LSD|long[\s-]*stop\s+date)\s*:\s*([^\n]*)`)
)

// ExtractLongStop finds long-stop annotations in text and keeps the latest
// date across all of them. It returns nil when no annotation is present.
// text should already be passed through NormalizePunctuation.
func ExtractLongStop(text string) *LongStop {
	matches := lsdParenRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		matches = lsdBareRe.FindAllStringSubmatch(text, -1)
	}
	if len(matches) == 0 {
		return nil
	}

	ls := &LongStop{Raw: strings.TrimSpace(matches[0][1])}
	for _, m := range matches {
		for _, dm := range FindDates(m[1]) {
			if ls.Date == nil || dm.Date.After(*ls.Date) {
				d := dm.Date
				ls.Date = &d
				ls.Raw = strings.TrimSpace(m[1])
				ls.Match = dm.Raw
			}
		}
	}
	return ls
}
