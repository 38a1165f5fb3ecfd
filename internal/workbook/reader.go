// Package workbook reads the billing tracker worksheet, preserving rich-text
// strikethrough runs in the fee column.
package workbook

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Row is one worksheet row. Cells are indexed from column 1.
type Row struct {
	Index int
	Cells []Cell
}

// Cell returns the cell at the 1-based column, or an empty cell.
func (r Row) Cell(col int) Cell {
	if col < 1 || col > len(r.Cells) {
		return Cell{}
	}
	return r.Cells[col-1]
}

// Text returns the trimmed plain value at the 1-based column.
func (r Row) Text(col int) string {
	return strings.TrimSpace(r.Cell(col).Value)
}

// Sheet is the selected worksheet.
type Sheet struct {
	Name string
	Rows []Row
}

// ReadOptions controls which worksheet and rows are read.
type ReadOptions struct {
	SheetName       string // empty selects the first sheet
	StartRow        int    // 1-based first data row
	RichTextColumns []int  // 1-based columns whose runs and styles are loaded
}

// Read parses xlsx bytes. Rich-text runs are loaded only for the requested
// columns.
func Read(data []byte, opts ReadOptions) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open")
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, eris.New("workbook: no worksheets")
	}

	name := sheets[0]
	if opts.SheetName != "" {
		if idx, _ := f.GetSheetIndex(opts.SheetName); idx < 0 {
			return nil, eris.Errorf("workbook: sheet %q not found", opts.SheetName)
		}
		name = opts.SheetName
	}

	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, eris.Wrapf(err, "workbook: read rows of %q", name)
	}

	start := opts.StartRow
	if start < 1 {
		start = 1
	}

	sr := &styleReader{f: f, sheet: name, strikes: make(map[int]bool)}
	out := &Sheet{Name: name}
	for i := start - 1; i < len(raw); i++ {
		rowNum := i + 1
		cells := make([]Cell, len(raw[i]))
		for c, v := range raw[i] {
			cells[c].Value = v
		}
		for _, col := range opts.RichTextColumns {
			if col < 1 || col > len(cells) || cells[col-1].Value == "" {
				continue
			}
			sr.load(&cells[col-1], col, rowNum)
		}
		out.Rows = append(out.Rows, Row{Index: rowNum, Cells: cells})
	}

	zap.L().Debug("workbook: read sheet",
		zap.String("sheet", name),
		zap.Int("rows", len(out.Rows)),
	)
	return out, nil
}

type styleReader struct {
	f       *excelize.File
	sheet   string
	strikes map[int]bool
}

// load fills in runs and the cell-level strike flag. Lookup failures leave
// the cell as plain text.
func (s *styleReader) load(c *Cell, col, row int) {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return
	}

	runs, err := s.f.GetCellRichText(s.sheet, ref)
	if err != nil {
		zap.L().Debug("workbook: rich text unavailable", zap.String("cell", ref), zap.Error(err))
	}
	for _, r := range runs {
		run := Run{Text: r.Text}
		if r.Font != nil {
			run.HasFont = true
			run.Strike = r.Font.Strike
		}
		c.Runs = append(c.Runs, run)
	}

	styleID, err := s.f.GetCellStyle(s.sheet, ref)
	if err != nil || styleID == 0 {
		return
	}
	strike, ok := s.strikes[styleID]
	if !ok {
		if st, err := s.f.GetStyle(styleID); err == nil && st != nil && st.Font != nil {
			strike = st.Font.Strike
		}
		s.strikes[styleID] = strike
	}
	c.Strike = strike
}
