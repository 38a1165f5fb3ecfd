package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/billing-sync/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := start.Add(90 * time.Second)
	runs := []model.SyncRun{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			SourceFile:  "tracker-june.xlsx",
			UploadedBy:  "finance",
			Status:      "completed",
			RowsTotal:   120,
			RowsFailed:  2,
			StartedAt:   start,
			CompletedAt: &done,
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			SourceFile: "tracker-july.xlsx",
			Status:     "running",
			StartedAt:  start.Add(time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "tracker-june.xlsx")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "2025-06-15 10:30")
	assert.Contains(t, out, "running")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf, "json", model.SyncRun{ID: "r1", Status: "completed"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"id": "r1"`)
	assert.Contains(t, buf.String(), `"status": "completed"`)
}

func TestRender_YAMLUsesJSONKeys(t *testing.T) {
	var buf bytes.Buffer
	err := render(&buf, "yaml", model.PreviewSummary{TotalRows: 3, NewCMNumbers: 1}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "total_rows: 3")
	assert.Contains(t, buf.String(), "new_cm_numbers: 1")
}

func TestRender_TableAndUnknown(t *testing.T) {
	var called bool
	require.NoError(t, render(io.Discard, "table", nil, func(io.Writer) { called = true }))
	assert.True(t, called)

	assert.Error(t, render(io.Discard, "xml", nil, func(io.Writer) {}))
}

func TestFormatPreview(t *testing.T) {
	res := &model.PreviewResult{
		Summary: model.PreviewSummary{TotalRows: 2, MatchedCMNumbers: 1, NewCMNumbers: 1},
		Changes: []model.MatterChange{
			{
				RowIndex:    5,
				CMNo:        "10001-00001",
				ProjectName: "Alpha Listing",
				Status:      model.MatchMatched,
				FinancialChanges: []model.FieldChange{
					{Field: "Billing (USD)", OldValue: "100.00", NewValue: "150.00"},
				},
			},
			{RowIndex: 7, CMNo: "10002-00001", Status: model.MatchNew},
		},
		Validation: &model.ValidationReport{
			Validated: true,
			Checked:   1,
			Issues:    []model.ValidationIssue{{CMNo: "10001-00001", Severity: "warning", Description: "amounts do not sum"}},
		},
	}

	var buf bytes.Buffer
	formatPreview(&buf, res)

	out := buf.String()
	assert.Contains(t, out, "Billing (USD) 100.00 -> 150.00")
	assert.Contains(t, out, "10002-00001")
	assert.Contains(t, out, "new")
	assert.Contains(t, out, "[warning]")
	assert.Contains(t, out, "amounts do not sum")
}

func TestFormatApply_DryRun(t *testing.T) {
	res := &model.ApplyResult{
		DryRun:     true,
		Summary:    model.ApplySummary{RowsProcessed: 4, ProjectsCreated: 1},
		FailedRows: []model.FailedRow{{RowIndex: 9, CMNo: "10003-00001", Error: "boom"}},
	}

	var buf bytes.Buffer
	formatApply(&buf, res)

	out := buf.String()
	assert.Contains(t, out, "DRY RUN")
	assert.Contains(t, out, "row 9")
	assert.Contains(t, out, "boom")
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	res := &model.ApplyResult{RunID: "run-1", Summary: model.ApplySummary{RowsProcessed: 1}}

	require.NoError(t, writeReport(path, res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	f, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	assert.NotEmpty(t, f.Sheets)
}

func TestReadWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("xlsx"), 0o600))

	data, name, err := readWorkbook(path)
	require.NoError(t, err)
	assert.Equal(t, "tracker.xlsx", name)
	assert.Equal(t, []byte("xlsx"), data)

	_, _, err = readWorkbook(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}
