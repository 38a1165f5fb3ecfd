package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a multi-row upsert.
type UpsertConfig struct {
	Table        string   // target table (e.g., "public.billing_milestone")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	// UpdateExprs overrides the SET expression for a column. The expression
	// may reference the existing row by table name and the new row as EXCLUDED.
	UpdateExprs map[string]string
	// Returning is appended as a RETURNING clause when non-empty.
	Returning []string
}

// BuildUpsertSQL renders INSERT ... VALUES ... ON CONFLICT ... DO UPDATE for
// nrows rows with positional parameters.
func BuildUpsertSQL(cfg UpsertConfig, nrows int) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}
	if nrows <= 0 {
		return "", eris.New("db: upsert: no rows")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	ncols := len(cfg.Columns)
	tuples := make([]string, nrows)
	for r := 0; r < nrows; r++ {
		ph := make([]string, ncols)
		for c := 0; c < ncols; c++ {
			ph[c] = fmt.Sprintf("$%d", r*ncols+c+1)
		}
		tuples[r] = "(" + strings.Join(ph, ", ") + ")"
	}

	setClauses := make([]string, 0, len(updateCols))
	for _, col := range updateCols {
		ident := pgx.Identifier{col}.Sanitize()
		if expr, ok := cfg.UpdateExprs[col]; ok {
			setClauses = append(setClauses, fmt.Sprintf("%s = %s", ident, expr))
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", ident, ident))
	}

	action := "DO NOTHING"
	if len(setClauses) > 0 {
		action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(tuples, ", "),
		quoteAndJoin(cfg.ConflictKeys),
		action,
	)
	if len(cfg.Returning) > 0 {
		sql += " RETURNING " + strings.Join(cfg.Returning, ", ")
	}
	return sql, nil
}

// Upsert writes rows in a single statement on q. Running it on a transaction
// keeps the write inside the caller's scope.
func Upsert(ctx context.Context, q Querier, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sql, err := BuildUpsertSQL(cfg, len(rows))
	if err != nil {
		return 0, err
	}

	args := make([]any, 0, len(rows)*len(cfg.Columns))
	for i, row := range rows {
		if len(row) != len(cfg.Columns) {
			return 0, eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(row), len(cfg.Columns))
		}
		args = append(args, row...)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "public.billing_project".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
