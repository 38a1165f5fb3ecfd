package billing

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 7310221

// Migrate applies pending schema migrations in lexicographic order under an
// advisory lock.
func Migrate(ctx context.Context, pool db.Querier) error {
	log := zap.L().With(zap.String("component", "billing.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "billing: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("billing: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := ensureMigrationTable(ctx, pool); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "billing: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "billing: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "billing: apply migration %s", name)
		}
		if _, err := pool.Exec(ctx,
			"INSERT INTO billing_schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "billing: record migration %s", name)
		}
	}
	return nil
}

func ensureMigrationTable(ctx context.Context, pool db.Querier) error {
	sql := `
		CREATE TABLE IF NOT EXISTS billing_schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "billing: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool db.Querier) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM billing_schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "billing: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "billing: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
