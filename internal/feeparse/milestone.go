package feeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/billing-sync/internal/model"
)

const maxTitleRunes = 120

type ordinalMatch struct {
	label   string
	content string
}

type ordinalMatcher struct {
	name string
	re   *regexp.Regexp
}

// ordinalMatchers are tried in order; the first hit labels the line.
var ordinalMatchers = []ordinalMatcher{
	{"paren", regexp.MustCompile(`^\(\s*([A-Za-z]|\d{1,2}|[ivxIVX]{2,4}|[一二三四五六七八九十]{1,3})\s*\)\s*(.*)$`)},
	{"numeric", regexp.MustCompile(`^(\d{1,2})[.)、]\s*(\D.*)$`)},
	{"letter", regexp.MustCompile(`^([A-Za-z])[.)]\s+(.+)$`)},
}

func matchOrdinal(s string) (ordinalMatch, bool) {
	for _, m := range ordinalMatchers {
		if sm := m.re.FindStringSubmatch(s); sm != nil {
			return ordinalMatch{
				label:   "(" + strings.ToLower(sm[1]) + ")",
				content: strings.TrimSpace(sm[2]),
			}, true
		}
	}
	return ordinalMatch{}, false
}

type amountMatch struct {
	value    float64
	currency model.Currency // empty when the token carries no marker
	start    int            // byte span of the matched text in content
	end      int
}

type amountStrategy struct {
	name  string
	match func(content string) (amountMatch, bool)
}

const (
	numPattern    = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`
	prefixMarkers = `(US\$|HK\$|USD|RMB|CNY|人民币|\$|¥)`
	suffixMarkers = `(USD|RMB|CNY|美元|元)`
)

var (
	trailingDashRe = regexp.MustCompile(`(?:^|\s)-\s*` + prefixMarkers + `?\s*` + numPattern + `\s*(万)?\s*` + suffixMarkers + `?\s*$`)
	parenAmountRe  = regexp.MustCompile(`\(\s*` + prefixMarkers + `\s*` + numPattern + `\s*(万)?\s*\)`)
	prefixAmountRe = regexp.MustCompile(prefixMarkers + `\s*` + numPattern + `\s*(万)?`)
	suffixAmountRe = regexp.MustCompile(numPattern + `\s*(万)?\s*` + suffixMarkers)
	leadingNumRe   = regexp.MustCompile(`^` + numPattern + `\s*(万)?`)
	percentRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	cnyMarkerRe    = regexp.MustCompile(`RMB|CNY|¥|人民币|元`)
)

// amountStrategies are tried in order; the first hit wins.
var amountStrategies = []amountStrategy{
	{"trailing-dash", matchTrailingDash},
	{"inline-currency", matchInlineCurrency},
	{"leading-number", matchLeadingNumber},
}

func matchTrailingDash(s string) (amountMatch, bool) {
	m := trailingDashRe.FindStringSubmatchIndex(s)
	if m == nil {
		return amountMatch{}, false
	}
	sm := submatches(s, m)
	v, ok := parseAmount(sm[2], sm[3] != "")
	if !ok {
		return amountMatch{}, false
	}
	marker := sm[1]
	if marker == "" {
		marker = sm[4]
	}
	return amountMatch{value: v, currency: currencyOf(marker), start: m[0], end: m[1]}, true
}

func matchInlineCurrency(s string) (amountMatch, bool) {
	if m := parenAmountRe.FindStringSubmatchIndex(s); m != nil {
		sm := submatches(s, m)
		if v, ok := parseAmount(sm[2], sm[3] != ""); ok {
			return amountMatch{value: v, currency: currencyOf(sm[1]), start: m[0], end: m[1]}, true
		}
	}
	if m := prefixAmountRe.FindStringSubmatchIndex(s); m != nil {
		sm := submatches(s, m)
		if v, ok := parseAmount(sm[2], sm[3] != ""); ok {
			return amountMatch{value: v, currency: currencyOf(sm[1]), start: m[0], end: m[1]}, true
		}
	}
	if m := suffixAmountRe.FindStringSubmatchIndex(s); m != nil {
		sm := submatches(s, m)
		if v, ok := parseAmount(sm[1], sm[2] != ""); ok {
			return amountMatch{value: v, currency: currencyOf(sm[3]), start: m[0], end: m[1]}, true
		}
	}
	return amountMatch{}, false
}

// matchLeadingNumber accepts a bare number at the start of the content when it
// is at least 1000 and does not look like a calendar year.
func matchLeadingNumber(s string) (amountMatch, bool) {
	m := leadingNumRe.FindStringSubmatchIndex(s)
	if m == nil {
		return amountMatch{}, false
	}
	sm := submatches(s, m)
	wan := sm[2] != ""
	v, ok := parseAmount(sm[1], wan)
	if !ok || v < 1000 {
		return amountMatch{}, false
	}
	if !wan && isYear(sm[1]) {
		return amountMatch{}, false
	}
	return amountMatch{value: v, start: m[0], end: m[1]}, true
}

func isYear(tok string) bool {
	if len(tok) != 4 || strings.ContainsAny(tok, ",.") {
		return false
	}
	n, err := strconv.Atoi(tok)
	return err == nil && n >= 2000 && n <= 2099
}

func parseAmount(tok string, wan bool) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if wan {
		v *= 10000
	}
	return v, true
}

func currencyOf(marker string) model.Currency {
	switch marker {
	case "":
		return ""
	case "RMB", "CNY", "¥", "人民币", "元":
		return model.CurrencyCNY
	}
	return model.CurrencyUSD
}

// ParseLine parses one normalized fee line into a milestone. It reports false
// when the line carries no ordinal. Completion, raw fragment and sort order
// are left for the caller, which knows the line's position in the cell.
func ParseLine(line string) (model.ParsedMilestone, bool) {
	om, ok := matchOrdinal(strings.TrimSpace(line))
	if !ok || om.content == "" {
		return model.ParsedMilestone{}, false
	}

	ms := model.ParsedMilestone{
		Ordinal:        om.label,
		TriggerText:    om.content,
		AmountCurrency: model.CurrencyUSD,
	}
	if cnyMarkerRe.MatchString(strings.ReplaceAll(om.content, "美元", "")) {
		ms.AmountCurrency = model.CurrencyCNY
	}

	title := om.content
	for _, st := range amountStrategies {
		am, ok := st.match(om.content)
		if !ok {
			continue
		}
		v := am.value
		ms.AmountValue = &v
		if am.currency != "" {
			ms.AmountCurrency = am.currency
		}
		title = om.content[:am.start] + " " + om.content[am.end:]
		break
	}

	if pm := percentRe.FindStringSubmatch(om.content); pm != nil {
		if pv, err := strconv.ParseFloat(pm[1], 64); err == nil {
			ms.IsPercent = true
			ms.PercentValue = &pv
		}
	}

	ms.Title = cleanTitle(truncateRunes(cleanTitle(lsdParenRe.ReplaceAllString(title, "")), maxTitleRunes))
	if ms.Title == "" {
		ms.Title = fmt.Sprintf("Milestone %s", om.label)
	}
	return ms, true
}

func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, " -:,;")
	return strings.TrimLeft(s, " -:,;")
}
