package sheet

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/workbook"
)

// Load normalizes an uploaded workbook, reads the tracker sheet and builds
// matter records.
func Load(data []byte, layout Layout) ([]model.ExcelRow, error) {
	norm, err := workbook.Normalize(data)
	if err != nil {
		return nil, err
	}

	start := layout.StartRow
	if start <= 0 {
		start = DefaultStartRow
	}

	sh, err := workbook.Read(norm, workbook.ReadOptions{
		SheetName:       layout.SheetName,
		StartRow:        start,
		RichTextColumns: []int{colMilestones},
	})
	if err != nil {
		return nil, eris.Wrap(err, "sheet: load")
	}
	return Build(sh), nil
}
