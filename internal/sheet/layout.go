// Package sheet assembles matter records from the billing tracker worksheet.
package sheet

// Worksheet columns, 1-based.
const (
	colProject        = 3
	colClient         = 4
	colCMNo           = 5
	colAttorney       = 6
	colSCA            = 7
	colFeeAmount      = 8
	colMilestones     = 9
	colBillingUSD     = 10
	colCollectionUSD  = 11
	colCreditUSD      = 12
	colUBTUSD         = 13
	colARUSD          = 14
	colCreditCNY      = 16
	colUBTCNY         = 17
	colFinanceComment = 19
	colCNYNote        = 20
	colRemarks        = 21
	colMatterNotes    = 22
)

// DefaultStartRow is the first data row below the tracker's header block.
const DefaultStartRow = 5

// Layout selects the worksheet and first data row.
type Layout struct {
	SheetName string
	StartRow  int
}
