package billing

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

// Sync run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// SyncRuns provides read/write access to the billing_sync_run audit table.
type SyncRuns struct {
	q db.Querier
}

// NewSyncRuns creates a SyncRuns on q.
func NewSyncRuns(q db.Querier) *SyncRuns {
	return &SyncRuns{q: q}
}

// Start records the beginning of an apply and returns its run ID.
func (s *SyncRuns) Start(ctx context.Context, sourceFile, uploadedBy string, rowsTotal int) (string, error) {
	id := uuid.NewString()
	_, err := s.q.Exec(ctx,
		`INSERT INTO billing_sync_run (id, source_file, uploaded_by, status, rows_total, started_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		id, sourceFile, uploadedBy, RunRunning, rowsTotal,
	)
	if err != nil {
		return "", eris.Wrapf(err, "syncrun: start run for %s", sourceFile)
	}
	return id, nil
}

// Complete marks a run as finished and stores its summary.
func (s *SyncRuns) Complete(ctx context.Context, id string, rowsFailed int, summary any) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "syncrun: marshal summary")
		}
	}

	_, err := s.q.Exec(ctx,
		`UPDATE billing_sync_run
		 SET status = $2, completed_at = now(), rows_failed = $3, summary = $4
		 WHERE id = $1`,
		id, RunComplete, rowsFailed, summaryJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "syncrun: complete run %s", id)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (s *SyncRuns) Fail(ctx context.Context, id, errMsg string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE billing_sync_run
		 SET status = $2, completed_at = now(), error = $3
		 WHERE id = $1`,
		id, RunFailed, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "syncrun: fail run %s", id)
	}
	return nil
}

// List returns the most recent runs first.
func (s *SyncRuns) List(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx,
		`SELECT id, source_file, uploaded_by, status, rows_total, rows_failed, error, started_at, completed_at
		 FROM billing_sync_run ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "syncrun: list")
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var errStr *string
		if err := rows.Scan(&r.ID, &r.SourceFile, &r.UploadedBy, &r.Status,
			&r.RowsTotal, &r.RowsFailed, &errStr, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "syncrun: scan run")
		}
		r.Error = deref(errStr)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
