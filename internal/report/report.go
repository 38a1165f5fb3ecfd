// Package report renders apply results as an xlsx audit workbook.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/billing-sync/internal/model"
)

// Sheet names in the audit workbook.
const (
	SheetSummary = "Summary"
	SheetChanges = "Changes"
	SheetFailed  = "Failed Rows"
)

var changeHeader = []string{"C/M No", "Project", "Action", "Field", "Old Value", "New Value", "Milestones Created", "Milestones Completed", "Staffing Link"}

// WriteApplyReport writes res as a workbook with Summary, Changes and Failed
// Rows sheets.
func WriteApplyReport(w io.Writer, res *model.ApplyResult) error {
	if res == nil {
		return eris.New("report: nil result")
	}

	f := xlsx.NewFile()
	if err := writeSummary(f, res); err != nil {
		return err
	}
	if err := writeChanges(f, res.ChangeLog); err != nil {
		return err
	}
	if err := writeFailed(f, res.FailedRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

func writeSummary(f *xlsx.File, res *model.ApplyResult) error {
	sh, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addStrings(sh, "Metric", "Value")

	runID := res.RunID
	if res.DryRun {
		runID = "dry run"
	}
	addStrings(sh, "Run", runID)

	s := res.Summary
	for _, m := range []struct {
		label string
		n     int
	}{
		{"Rows processed", s.RowsProcessed},
		{"Projects created", s.ProjectsCreated},
		{"Projects updated", s.ProjectsUpdated},
		{"Financials updated", s.FinancialsUpdated},
		{"Engagements created", s.EngagementsCreated},
		{"Engagements updated", s.EngagementsUpdated},
		{"Fee arrangements created", s.FeeArrangementsCreated},
		{"Milestones created", s.MilestonesCreated},
		{"Milestones updated", s.MilestonesUpdated},
		{"Milestones completed", s.MilestonesCompleted},
		{"Finance comments", s.FinanceComments},
		{"Staffing linked", s.StaffingLinked},
		{"Failed rows", len(res.FailedRows)},
	} {
		row := sh.AddRow()
		row.AddCell().SetString(m.label)
		row.AddCell().SetInt(m.n)
	}

	addStrings(sh, "Skipped C/M numbers", strings.Join(res.Skipped, ", "))
	addStrings(sh, "Unlinked C/M numbers", strings.Join(res.Unlinked, ", "))
	return nil
}

func writeChanges(f *xlsx.File, log model.ChangeLog) error {
	sh, err := f.AddSheet(SheetChanges)
	if err != nil {
		return eris.Wrap(err, "report: add changes sheet")
	}
	addStrings(sh, changeHeader...)

	for _, c := range log.Created {
		link := ""
		if c.Link != nil {
			link = fmt.Sprintf("%s (%s, %.2f)", c.Link.StaffingName, c.Link.Method, c.Link.Confidence)
		}
		addStrings(sh, c.CMNo, c.ProjectName, "created", "", "", "", "", "", link)
	}

	for _, u := range log.Updated {
		if len(u.Changes) == 0 {
			addUpdate(sh, u, model.FieldChange{})
			continue
		}
		for _, fc := range u.Changes {
			addUpdate(sh, u, fc)
		}
	}
	return nil
}

func addUpdate(sh *xlsx.Sheet, u model.UpdatedMatter, fc model.FieldChange) {
	row := sh.AddRow()
	for _, v := range []string{u.CMNo, u.ProjectName, "updated", fc.Field, fc.OldValue, fc.NewValue} {
		row.AddCell().SetString(v)
	}
	row.AddCell().SetInt(u.MilestonesCreated)
	row.AddCell().SetInt(u.MilestonesCompleted)
}

func writeFailed(f *xlsx.File, failed []model.FailedRow) error {
	sh, err := f.AddSheet(SheetFailed)
	if err != nil {
		return eris.Wrap(err, "report: add failed rows sheet")
	}
	addStrings(sh, "Row", "C/M No", "Error")
	for _, fr := range failed {
		row := sh.AddRow()
		row.AddCell().SetInt(fr.RowIndex)
		row.AddCell().SetString(fr.CMNo)
		row.AddCell().SetString(fr.Error)
	}
	return nil
}

func addStrings(sh *xlsx.Sheet, vals ...string) {
	row := sh.AddRow()
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}
