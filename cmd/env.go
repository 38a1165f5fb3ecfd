package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/reconcile"
	"github.com/sells-group/billing-sync/internal/resilience"
	"github.com/sells-group/billing-sync/internal/sheet"
	"github.com/sells-group/billing-sync/internal/validate"
	"github.com/sells-group/billing-sync/pkg/anthropic"
)

// openPool connects to cfg.Store.DatabaseURL.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		return nil, eris.New("store: no database_url configured (set BILLING_STORE_DATABASE_URL)")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse connection string")
	}
	if cfg.Store.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Store.MaxConns
	}
	if cfg.Store.MinConns > 0 {
		poolCfg.MinConns = cfg.Store.MinConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping database")
	}
	return pool, nil
}

// newValidator returns nil when no API key is configured.
func newValidator() reconcile.Validator {
	if cfg.Anthropic.Key == "" {
		return nil
	}
	return validate.New(anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL), validate.Config{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Concurrency: cfg.Sync.ValidateConcurrency,
		RPS:         cfg.Sync.ValidateRPS,
		Retry:       resilience.FromSettings(cfg.Sync.RetryAttempts, 0),
	})
}

// newService wires the sync engine over pool.
func newService(pool *pgxpool.Pool) *reconcile.Service {
	return reconcile.NewService(pool, reconcile.ServiceOptions{
		Layout:    sheet.Layout{SheetName: cfg.Sync.SheetName, StartRow: cfg.Sync.DataStartRow},
		Repos:     billing.NewRepoFactory(),
		Linkers:   reconcile.NewLinkerFactory(cfg.Sync.FuzzyThreshold),
		Validator: newValidator(),
		Runs:      billing.NewSyncRuns(pool),
		Config: reconcile.Config{
			TxTimeout:    cfg.Sync.TxTimeout(),
			Placeholders: cfg.Sync.Placeholders,
		},
	})
}

// readWorkbook reads an upload from disk.
func readWorkbook(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "read workbook %s", path)
	}
	zap.L().Debug("workbook read", zap.String("path", path), zap.Int("bytes", len(data)))
	return data, filepath.Base(path), nil
}
