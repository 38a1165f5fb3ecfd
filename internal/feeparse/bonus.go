package feeparse

import (
	"regexp"
	"strings"

	"github.com/sells-group/billing-sync/internal/model"
)

var (
	bonusUSDWanRe = regexp.MustCompile(`(?:不低于|不少于)?\s*` + numPattern + `\s*万\s*美元\s*(?:的)?\s*(?:奖金|成功费)`)
	bonusCNYWanRe = regexp.MustCompile(`(?:不低于|不少于)?\s*` + numPattern + `\s*万\s*(?:人民币|元)\s*(?:的)?\s*(?:奖金|成功费)`)
	bonusEnRe     = regexp.MustCompile(`(?i)(?:success\s+fee|bonus)\s*(?:of|:)?\s*(US\$|USD|\$|RMB|CNY)\s*` + numPattern)
)

// ExtractBonus finds a success-fee clause in normalized text. Amounts quoted
// in 万 are scaled by 10,000.
func ExtractBonus(text string) *model.Bonus {
	if m := bonusUSDWanRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1], true); ok {
			return &model.Bonus{Description: strings.TrimSpace(m[0]), AmountUSD: &v}
		}
	}
	if m := bonusCNYWanRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1], true); ok {
			return &model.Bonus{Description: strings.TrimSpace(m[0]), AmountCNY: &v}
		}
	}
	if m := bonusEnRe.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[2], false); ok {
			b := &model.Bonus{Description: strings.TrimSpace(m[0])}
			if currencyOf(m[1]) == model.CurrencyCNY {
				b.AmountCNY = &v
			} else {
				b.AmountUSD = &v
			}
			return b
		}
	}
	return nil
}
