package sheet

import (
	"strconv"
	"strings"
)

var moneyReplacer = strings.NewReplacer(
	",", "", " ", "", "US$", "", "HK$", "", "$", "", "¥", "", "￥", "",
	"USD", "", "RMB", "", "CNY", "",
)

// parseMoney reads a financial cell. Blank, dash and unparseable values are
// nil; accounting parentheses are negative.
func parseMoney(s string) *float64 {
	s = moneyReplacer.Replace(strings.TrimSpace(s))
	if s == "" || s == "-" || s == "--" {
		return nil
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if neg {
		v = -v
	}
	return &v
}
