package model

import "time"

// MatchStatus classifies a C/M number against the store.
type MatchStatus string

const (
	MatchMatched MatchStatus = "matched"
	MatchNew     MatchStatus = "new"
	MatchSkipped MatchStatus = "skipped"
)

// FieldChange is one before/after pair. Values are rendered strings; an
// absent value is empty.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// EngagementPreview summarises what a sync would do to one engagement.
type EngagementPreview struct {
	Title               string  `json:"title"`
	ExistingEngagement  bool    `json:"existing_engagement"`
	Milestones          int     `json:"milestones"`
	MilestonesToCreate  int     `json:"milestones_to_create"`
	MilestonesCompleted int     `json:"milestones_to_complete"`
	LongStopDate        *string `json:"long_stop_date,omitempty"`
	ReferTo             string  `json:"refer_to,omitempty"`
}

// MatterChange is the per-matter entry in a preview.
type MatterChange struct {
	RowIndex         int                 `json:"row_index"`
	CMNo             string              `json:"cm_no"`
	ProjectName      string              `json:"project_name"`
	Status           MatchStatus         `json:"status"`
	FinancialChanges []FieldChange       `json:"financial_changes,omitempty"`
	Engagements      []EngagementPreview `json:"engagements,omitempty"`
}

// PreviewSummary aggregates counts across a preview.
type PreviewSummary struct {
	TotalRows            int `json:"total_rows"`
	MatchedCMNumbers     int `json:"matched_cm_numbers"`
	NewCMNumbers         int `json:"new_cm_numbers"`
	SkippedCMNumbers     int `json:"skipped_cm_numbers"`
	MilestonesToCreate   int `json:"milestones_to_create"`
	MilestonesToComplete int `json:"milestones_to_complete"`
	FinancialsToUpdate   int `json:"financials_to_update"`
}

// ValidationIssue is one advisory finding.
type ValidationIssue struct {
	CMNo            string `json:"cm_no"`
	EngagementTitle string `json:"engagement_title"`
	Severity        string `json:"severity"`
	Description     string `json:"description"`
	Suggestion      string `json:"suggestion,omitempty"`
}

// ValidationReport is the advisory validator outcome. Validated is false when
// the validator could not run to completion.
type ValidationReport struct {
	Validated bool              `json:"validated"`
	Checked   int               `json:"checked"`
	Unchecked int               `json:"unchecked"`
	Issues    []ValidationIssue `json:"issues"`
	Error     string            `json:"error,omitempty"`
}

// PreviewResult is returned by a preview.
type PreviewResult struct {
	Summary    PreviewSummary    `json:"summary"`
	Changes    []MatterChange    `json:"changes"`
	Validation *ValidationReport `json:"validation,omitempty"`
}

// ApplySummary counts what an apply wrote.
type ApplySummary struct {
	RowsProcessed          int `json:"rows_processed"`
	ProjectsCreated        int `json:"projects_created"`
	ProjectsUpdated        int `json:"projects_updated"`
	FinancialsUpdated      int `json:"financials_updated"`
	EngagementsCreated     int `json:"engagements_created"`
	EngagementsUpdated     int `json:"engagements_updated"`
	FeeArrangementsCreated int `json:"fee_arrangements_created"`
	MilestonesCreated      int `json:"milestones_created"`
	MilestonesUpdated      int `json:"milestones_updated"`
	MilestonesCompleted    int `json:"milestones_completed"`
	FinanceComments        int `json:"finance_comments"`
	StaffingLinked         int `json:"staffing_linked"`
}

// UpdatedMatter is a change-log entry for an existing matter.
type UpdatedMatter struct {
	CMNo                string        `json:"cm_no"`
	ProjectID           int64         `json:"project_id"`
	ProjectName         string        `json:"project_name"`
	Changes             []FieldChange `json:"changes"`
	MilestonesCreated   int           `json:"milestones_created"`
	MilestonesCompleted int           `json:"milestones_completed"`
}

// CreatedMatter is a change-log entry for a newly created matter.
type CreatedMatter struct {
	CMNo        string        `json:"cm_no"`
	ProjectID   int64         `json:"project_id"`
	ProjectName string        `json:"project_name"`
	Link        *StaffingLink `json:"link,omitempty"`
}

// ChangeLog is the structured record of an apply.
type ChangeLog struct {
	Updated []UpdatedMatter `json:"updated"`
	Created []CreatedMatter `json:"created"`
}

// FailedRow is a row whose writes were rolled back.
type FailedRow struct {
	RowIndex int    `json:"row_index"`
	CMNo     string `json:"cm_no"`
	Error    string `json:"error"`
}

// ApplyResult is returned by an apply.
type ApplyResult struct {
	RunID      string       `json:"run_id,omitempty"`
	DryRun     bool         `json:"dry_run"`
	Summary    ApplySummary `json:"summary"`
	Unlinked   []string     `json:"unlinked_cm_numbers"`
	Skipped    []string     `json:"skipped_cm_numbers"`
	ChangeLog  ChangeLog    `json:"change_log"`
	FailedRows []FailedRow  `json:"failed_rows"`
}

// SyncRun is an audit record for one apply.
type SyncRun struct {
	ID          string     `json:"id"`
	SourceFile  string     `json:"source_file"`
	UploadedBy  string     `json:"uploaded_by"`
	Status      string     `json:"status"`
	RowsTotal   int        `json:"rows_total"`
	RowsFailed  int        `json:"rows_failed"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ValidationItem is one engagement's free text and its parsed milestones,
// submitted to the advisory validator.
type ValidationItem struct {
	CMNo            string            `json:"cm_no"`
	EngagementTitle string            `json:"engagement_title"`
	RawText         string            `json:"raw_text"`
	Milestones      []ParsedMilestone `json:"milestones"`
	LongStopDate    *time.Time        `json:"long_stop_date,omitempty"`
}
