package feeparse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/workbook"
)

// CellResult is everything recovered from one fee cell.
type CellResult struct {
	Blocks []model.ParsedEngagementBlock
	// ReferTo is set when the cell only points at another C/M number.
	ReferTo string
	// TimeBased is set when the cell says fees follow time spent.
	TimeBased bool
}

var (
	referToRe   = regexp.MustCompile(`(?i)^refer\s+to\s+(?:(?:C/?M|matter)\s*(?:no\.?|number)?\s*:?\s*)?([0-9A-Za-z][0-9A-Za-z-]*[0-9A-Za-z])\s*\.?$`)
	timeSpentRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:fees?\s+)?(?:to\s+be\s+|will\s+be\s+|are\s+|is\s+)?(?:billed|charged)\s+(?:by|on|based\s+on|according\s+to)\s+(?:the\s+)?(?:actual\s+)?(?:time\s+spent|hourly\s+rates?)\s*\.?$`),
		regexp.MustCompile(`^按(?:实际)?(?:工作)?(?:时间|小时|工时)(?:计费|收费|计收)[。.]?$`),
	}
)

// ParseCell turns a fee cell into engagement blocks. Blocks with no label, no
// milestones and no long-stop date are dropped. Cross-reference and
// time-spent cells short-circuit to a single block without milestones.
func ParseCell(st workbook.StyledText) CellResult {
	raw := strings.TrimSpace(st.Text)
	if raw == "" {
		return CellResult{}
	}

	norm := strings.Join(strings.Fields(NormalizePunctuation(raw)), " ")
	if m := referToRe.FindStringSubmatch(norm); m != nil {
		return CellResult{
			ReferTo: m[1],
			Blocks:  []model.ParsedEngagementBlock{{SourceText: raw, Milestones: []model.ParsedMilestone{}}},
		}
	}
	for _, re := range timeSpentRe {
		if re.MatchString(norm) {
			return CellResult{
				TimeBased: true,
				Blocks:    []model.ParsedEngagementBlock{{SourceText: raw, Milestones: []model.ParsedMilestone{}}},
			}
		}
	}

	var res CellResult
	for _, sec := range Segment(SplitLines(st.Text)) {
		blk := ParseSection(st, sec)
		if blk.Label == "" && len(blk.Milestones) == 0 && blk.LongStopDate == nil {
			continue
		}
		res.Blocks = append(res.Blocks, blk)
	}
	return res
}

// ParseSection parses the milestones, long-stop date and bonus of one
// section. Completion is decided on each line's span in the original text,
// excluding a header that shares the first line.
func ParseSection(st workbook.StyledText, sec Section) model.ParsedEngagementBlock {
	blk := model.ParsedEngagementBlock{Label: sec.Label, Milestones: []model.ParsedMilestone{}}

	seen := make(map[string]int)
	rawLines := make([]string, 0, len(sec.Lines))
	normLines := make([]string, 0, len(sec.Lines))
	for i, ln := range sec.Lines {
		rawLines = append(rawLines, ln.Text)
		norm := NormalizePunctuation(ln.Text)
		normLines = append(normLines, norm)
		start := ln.Start
		if i == 0 && sec.Offset > 0 {
			if sec.Offset >= len(norm) {
				continue
			}
			start += utf8.RuneCountInString(norm[:sec.Offset])
			norm = norm[sec.Offset:]
		}

		ms, ok := ParseLine(norm)
		if !ok {
			continue
		}
		seen[ms.Ordinal]++
		if n := seen[ms.Ordinal]; n > 1 {
			ms.Ordinal = fmt.Sprintf("%s-%d)", strings.TrimSuffix(ms.Ordinal, ")"), n)
		}
		ms.RawFragment = strings.TrimSpace(ln.Text)
		ms.SortOrder = len(blk.Milestones) + 1
		ms.Completed = st.SpanCompleted(start, ln.End)
		blk.Milestones = append(blk.Milestones, ms)
	}

	normText := strings.Join(normLines, "\n")
	if ls := ExtractLongStop(normText); ls != nil {
		blk.LongStopDate = ls.Date
		blk.LongStopRaw = ls.Raw
	}
	blk.Bonus = ExtractBonus(normText)
	blk.SourceText = strings.TrimSpace(strings.Join(rawLines, "\n"))
	return blk
}
