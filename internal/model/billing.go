package model

import "time"

// Currency is the denomination of a milestone amount.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCNY Currency = "CNY"
)

// ParsedMilestone is one billable stage recovered from a fee cell.
type ParsedMilestone struct {
	Ordinal        string   `json:"ordinal"`
	Title          string   `json:"title"`
	TriggerText    string   `json:"trigger_text"`
	RawFragment    string   `json:"raw_fragment"`
	AmountValue    *float64 `json:"amount_value,omitempty"`
	AmountCurrency Currency `json:"amount_currency"`
	IsPercent      bool     `json:"is_percent"`
	PercentValue   *float64 `json:"percent_value,omitempty"`
	SortOrder      int      `json:"sort_order"`
	Completed      bool     `json:"completed"`
}

// Bonus is a success-fee clause found alongside the milestones.
type Bonus struct {
	Description string   `json:"description"`
	AmountUSD   *float64 `json:"amount_usd,omitempty"`
	AmountCNY   *float64 `json:"amount_cny,omitempty"`
}

// ParsedEngagementBlock is one labeled section of a fee cell.
type ParsedEngagementBlock struct {
	Label        string            `json:"label,omitempty"`
	Milestones   []ParsedMilestone `json:"milestones"`
	LongStopDate *time.Time        `json:"long_stop_date,omitempty"`
	LongStopRaw  string            `json:"long_stop_raw,omitempty"`
	SourceText   string            `json:"source_text"`
	Bonus        *Bonus            `json:"bonus,omitempty"`
}

// Financials is the per-matter money snapshot. Every field is nullable.
type Financials struct {
	BillingUSD       *float64 `json:"billing_usd,omitempty"`
	CollectionUSD    *float64 `json:"collection_usd,omitempty"`
	BillingCreditUSD *float64 `json:"billing_credit_usd,omitempty"`
	UBTUSD           *float64 `json:"ubt_usd,omitempty"`
	ARUSD            *float64 `json:"ar_usd,omitempty"`
	BillingCreditCNY *float64 `json:"billing_credit_cny,omitempty"`
	UBTCNY           *float64 `json:"ubt_cny,omitempty"`
}

// FinancialField pairs a display label with its column and accessor.
type FinancialField struct {
	Label  string
	Column string
	Get    func(Financials) *float64
}

// FinancialFields lists the snapshot fields in display order.
var FinancialFields = []FinancialField{
	{"Billing (USD)", "billing_usd", func(f Financials) *float64 { return f.BillingUSD }},
	{"Collection (USD)", "collection_usd", func(f Financials) *float64 { return f.CollectionUSD }},
	{"Billing Credit (USD)", "billing_credit_usd", func(f Financials) *float64 { return f.BillingCreditUSD }},
	{"UBT (USD)", "ubt_usd", func(f Financials) *float64 { return f.UBTUSD }},
	{"AR (USD)", "ar_usd", func(f Financials) *float64 { return f.ARUSD }},
	{"Billing Credit (CNY)", "billing_credit_cny", func(f Financials) *float64 { return f.BillingCreditCNY }},
	{"UBT (CNY)", "ubt_cny", func(f Financials) *float64 { return f.UBTCNY }},
}

// ExcelEngagement is an engagement assembled from a worksheet row.
type ExcelEngagement struct {
	Title        string            `json:"title"`
	FeeAmountUSD *float64          `json:"fee_amount_usd,omitempty"`
	Milestones   []ParsedMilestone `json:"milestones"`
	LongStopDate *time.Time        `json:"long_stop_date,omitempty"`
	LongStopRaw  string            `json:"long_stop_raw,omitempty"`
	RawText      string            `json:"raw_text,omitempty"`
	Bonus        *Bonus            `json:"bonus,omitempty"`
	ReferTo      string            `json:"refer_to,omitempty"`
	TimeBased    bool              `json:"time_based,omitempty"`
	SourceRow    int               `json:"source_row"`
}

// ExcelRow is one matter as read from the tracker workbook, with any
// continuation rows folded in.
type ExcelRow struct {
	RowIndex         int               `json:"row_index"`
	CMNo             string            `json:"cm_no"`
	ProjectName      string            `json:"project_name"`
	ClientName       string            `json:"client_name"`
	AttorneyInCharge string            `json:"attorney_in_charge"`
	SCA              string            `json:"sca"`
	Financials       Financials        `json:"financials"`
	FinanceComment   string            `json:"finance_comment,omitempty"`
	CNYNote          string            `json:"cny_note,omitempty"`
	Remarks          string            `json:"remarks,omitempty"`
	MatterNotes      string            `json:"matter_notes,omitempty"`
	Engagements      []ExcelEngagement `json:"engagements"`
}

// Project is a stored billing matter.
type Project struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	ClientName       string    `json:"client_name"`
	AttorneyInCharge string    `json:"attorney_in_charge"`
	SCA              string    `json:"sca"`
	Remarks          string    `json:"remarks,omitempty"`
	MatterNotes      string    `json:"matter_notes,omitempty"`
	CNYNote          string    `json:"cny_note,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CMNumber is a client/matter number and its financial snapshot.
type CMNumber struct {
	ID         int64      `json:"id"`
	ProjectID  int64      `json:"project_id"`
	CMNo       string     `json:"cm_no"`
	IsPrimary  bool       `json:"is_primary"`
	Financials Financials `json:"financials"`
	SyncedAt   *time.Time `json:"synced_at,omitempty"`
}

// Engagement is one engagement letter under a C/M number.
type Engagement struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	CMID         int64     `json:"cm_id"`
	Code         string    `json:"engagement_code"`
	Title        string    `json:"title"`
	FeeAmountUSD *float64  `json:"fee_amount_usd,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeeArrangement holds the raw fee text and long-stop date for an engagement.
type FeeArrangement struct {
	ID           int64      `json:"id"`
	EngagementID int64      `json:"engagement_id"`
	RawText      string     `json:"raw_text"`
	LSDDate      *time.Time `json:"lsd_date,omitempty"`
	LSDRaw       string     `json:"lsd_raw,omitempty"`
	ReferTo      string     `json:"refer_to,omitempty"`
	TimeBased    bool       `json:"time_based"`
	Bonus        *Bonus     `json:"bonus,omitempty"`
}

// Milestone is a stored milestone.
type Milestone struct {
	ID               int64      `json:"id"`
	EngagementID     int64      `json:"engagement_id"`
	Ordinal          string     `json:"ordinal"`
	Title            string     `json:"title"`
	Completed        bool       `json:"completed"`
	CompletionSource string     `json:"completion_source,omitempty"`
	CompletionDate   *time.Time `json:"completion_date,omitempty"`
}

// StaffingLink records a match between a billing matter and a staffing project.
type StaffingLink struct {
	ProjectID         int64   `json:"project_id"`
	StaffingProjectID int64   `json:"staffing_project_id"`
	StaffingName      string  `json:"staffing_name"`
	Method            string  `json:"method"`
	Confidence        float64 `json:"confidence"`
	BackFilled        bool    `json:"back_filled"`
}
