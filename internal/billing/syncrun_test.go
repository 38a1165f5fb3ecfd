package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncRuns_Start(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO billing_sync_run").
		WithArgs(pgxmock.AnyArg(), "tracker.xlsx", "finance@firm", RunRunning, 12).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := NewSyncRuns(mock).Start(context.Background(), "tracker.xlsx", "finance@firm", 12)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRuns_CompleteAndFail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE billing_sync_run").
		WithArgs("run-1", RunComplete, 2, []byte(`{"rows":3}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE billing_sync_run").
		WithArgs("run-2", RunFailed, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	runs := NewSyncRuns(mock)
	require.NoError(t, runs.Complete(context.Background(), "run-1", 2, map[string]int{"rows": 3}))
	require.NoError(t, runs.Fail(context.Background(), "run-2", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRuns_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	done := started.Add(time.Minute)
	failMsg := "db down"
	mock.ExpectQuery("SELECT .+ FROM billing_sync_run ORDER BY started_at DESC").WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source_file", "uploaded_by", "status", "rows_total", "rows_failed", "error", "started_at", "completed_at",
		}).
			AddRow("a", "t.xlsx", "ops", RunComplete, 10, 0, (*string)(nil), started, &done).
			AddRow("b", "t.xlsx", "ops", RunFailed, 10, 0, &failMsg, started, &done))

	runs, err := NewSyncRuns(mock).List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunComplete, runs[0].Status)
	assert.Equal(t, "db down", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncRuns_ListError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT").WillReturnError(fmt.Errorf("timeout"))
	_, err = NewSyncRuns(mock).List(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syncrun: list")
}
