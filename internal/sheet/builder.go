package sheet

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/feeparse"
	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/workbook"
)

const maxEngagementTitleRunes = 200

type rowKind int

const (
	kindSkip rowKind = iota
	kindPrimary
	kindSubRow
	kindPromoted // sub-row with no earlier record to attach to
)

func (k rowKind) String() string {
	switch k {
	case kindPrimary:
		return "primary"
	case kindSubRow:
		return "sub-row"
	case kindPromoted:
		return "promoted"
	}
	return "skip"
}

// state carries what a sub-row needs from earlier rows.
type state struct {
	lastCM      string
	lastProject string
	count       int
	latest      map[string]int // C/M number -> index of its most recent record
}

// emission is what one worksheet row contributes.
type emission struct {
	kind        rowKind
	record      *model.ExcelRow         // primary and promoted
	appendTo    int                     // sub-row target record index
	engagements []model.ExcelEngagement // sub-row engagements
}

func newState() state {
	return state{latest: make(map[string]int)}
}

func classify(raw workbook.Row) rowKind {
	if raw.Text(colCMNo) != "" {
		return kindPrimary
	}
	if raw.Text(colProject) == "" && raw.Text(colClient) == "" &&
		raw.Text(colMilestones) == "" && raw.Text(colFeeAmount) == "" {
		return kindSkip
	}
	return kindSubRow
}

// step advances the builder by one worksheet row.
func step(st state, raw workbook.Row) (state, emission) {
	switch classify(raw) {
	case kindSkip:
		return st, emission{kind: kindSkip}

	case kindPrimary:
		rec := newRecord(raw, raw.Text(colCMNo))
		st.latest[rec.CMNo] = st.count
		st.count++
		st.lastCM = rec.CMNo
		st.lastProject = rec.ProjectName
		return st, emission{kind: kindPrimary, record: rec}
	}

	if idx, ok := st.latest[st.lastCM]; ok && st.lastCM != "" {
		title := raw.Text(colProject)
		if title == "" {
			title = st.lastProject
		}
		return st, emission{
			kind:        kindSubRow,
			appendTo:    idx,
			engagements: rowEngagements(raw, title, false),
		}
	}

	rec := newRecord(raw, st.lastCM)
	if rec.CMNo != "" {
		st.latest[rec.CMNo] = st.count
	}
	st.count++
	st.lastProject = rec.ProjectName
	return st, emission{kind: kindPromoted, record: rec}
}

// Build folds worksheet rows into matter records. Continuation rows without
// a C/M number contribute engagements to the nearest earlier record with the
// inherited number; their financial cells are ignored. Records without a
// resolved C/M number are dropped.
func Build(sh *workbook.Sheet) []model.ExcelRow {
	st := newState()
	var records []*model.ExcelRow
	for _, raw := range sh.Rows {
		var em emission
		st, em = step(st, raw)
		switch em.kind {
		case kindPrimary, kindPromoted:
			records = append(records, em.record)
		case kindSubRow:
			rec := records[em.appendTo]
			rec.Engagements = append(rec.Engagements, em.engagements...)
		}
	}

	out := make([]model.ExcelRow, 0, len(records))
	for _, rec := range records {
		if rec.CMNo == "" {
			zap.L().Debug("sheet: dropping row without C/M number", zap.Int("row", rec.RowIndex))
			continue
		}
		out = append(out, *rec)
	}
	return out
}

func newRecord(raw workbook.Row, cmNo string) *model.ExcelRow {
	rec := &model.ExcelRow{
		RowIndex:         raw.Index,
		CMNo:             cmNo,
		ProjectName:      raw.Text(colProject),
		ClientName:       raw.Text(colClient),
		AttorneyInCharge: raw.Text(colAttorney),
		SCA:              raw.Text(colSCA),
		Financials: model.Financials{
			BillingUSD:       parseMoney(raw.Text(colBillingUSD)),
			CollectionUSD:    parseMoney(raw.Text(colCollectionUSD)),
			BillingCreditUSD: parseMoney(raw.Text(colCreditUSD)),
			UBTUSD:           parseMoney(raw.Text(colUBTUSD)),
			ARUSD:            parseMoney(raw.Text(colARUSD)),
			BillingCreditCNY: parseMoney(raw.Text(colCreditCNY)),
			UBTCNY:           parseMoney(raw.Text(colUBTCNY)),
		},
		FinanceComment: raw.Text(colFinanceComment),
		CNYNote:        raw.Text(colCNYNote),
		Remarks:        raw.Text(colRemarks),
		MatterNotes:    raw.Text(colMatterNotes),
	}
	rec.Engagements = rowEngagements(raw, rec.ProjectName, true)
	return rec
}

// rowEngagements parses the fee cell of one worksheet row. A primary row
// always yields at least one engagement; a sub-row yields one only when it has
// fee text or a fee amount.
func rowEngagements(raw workbook.Row, defaultTitle string, always bool) []model.ExcelEngagement {
	if defaultTitle == "" {
		defaultTitle = "Engagement"
	}
	cell := raw.Cell(colMilestones)
	fee := parseMoney(raw.Text(colFeeAmount))
	res := feeparse.ParseCell(workbook.Flatten(cell))

	engs := make([]model.ExcelEngagement, 0, len(res.Blocks))
	for i, blk := range res.Blocks {
		title := blk.Label
		if title == "" {
			title = defaultTitle
		}
		e := model.ExcelEngagement{
			Title:        truncate(title, maxEngagementTitleRunes),
			Milestones:   blk.Milestones,
			LongStopDate: blk.LongStopDate,
			LongStopRaw:  blk.LongStopRaw,
			RawText:      blk.SourceText,
			Bonus:        blk.Bonus,
			SourceRow:    raw.Index,
		}
		if i == 0 {
			e.FeeAmountUSD = fee
			e.ReferTo = res.ReferTo
			e.TimeBased = res.TimeBased
		}
		engs = append(engs, e)
	}

	text := strings.TrimSpace(workbook.Flatten(cell).Text)
	if len(engs) == 0 && (always || fee != nil || text != "") {
		engs = append(engs, model.ExcelEngagement{
			Title:        truncate(defaultTitle, maxEngagementTitleRunes),
			FeeAmountUSD: fee,
			Milestones:   []model.ParsedMilestone{},
			RawText:      text,
			SourceRow:    raw.Index,
		})
	}
	return engs
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
