package billing

import (
	"regexp"
	"strings"
)

// legalSuffixes lists entity suffixes stripped before fuzzy name matching.
var legalSuffixes = []string{
	" LIMITED", " LTD.", " LTD",
	" CO., LTD.", " CO., LTD", " CO.", " CO",
	" INCORPORATED", " INC.", " INC",
	" CORPORATION", " CORP.", " CORP",
	" LLC", " L.L.C.", " PLC", " LP", " LLP",
	"有限责任公司", "股份有限公司", "有限公司", "集团",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeName standardizes a matter or client name for matching: upper
// case, legal suffix removed, punctuation stripped, spaces collapsed.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
		"(", " ",
		")", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
