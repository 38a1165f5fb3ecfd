package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
	"github.com/sells-group/billing-sync/internal/sheet"
)

// RunStore is a RunLog that can also list past runs.
type RunStore interface {
	RunLog
	List(ctx context.Context, limit int) ([]model.SyncRun, error)
}

// Service loads uploaded workbooks and previews or applies them.
type Service struct {
	pool      db.Pool
	layout    sheet.Layout
	repos     billing.RepoFactory
	validator Validator
	runs      RunStore
	applier   *Applier
	cfg       Config
}

// ServiceOptions wires a Service.
type ServiceOptions struct {
	Layout    sheet.Layout
	Repos     billing.RepoFactory
	Linkers   LinkerFactory
	Validator Validator
	Runs      RunStore
	Config    Config
}

// NewService creates a Service over pool. Nil Repos default to Postgres.
func NewService(pool db.Pool, opts ServiceOptions) *Service {
	if opts.Repos == nil {
		opts.Repos = billing.NewRepoFactory()
	}
	var runLog RunLog
	if opts.Runs != nil {
		runLog = opts.Runs
	}
	a := NewApplier(pool, opts.Repos, opts.Linkers, runLog, opts.Config)
	return &Service{
		pool:      pool,
		layout:    opts.Layout,
		repos:     opts.Repos,
		validator: opts.Validator,
		runs:      opts.Runs,
		applier:   a,
		cfg:       a.cfg,
	}
}

// Load parses an uploaded workbook into matter records.
func (s *Service) Load(data []byte) ([]model.ExcelRow, error) {
	rows, err := sheet.Load(data, s.layout)
	if err != nil {
		return nil, err
	}
	zap.L().Info("workbook loaded", zap.Int("rows", len(rows)), zap.String("sheet", s.layout.SheetName))
	return rows, nil
}

// Preview loads data and reports what an apply would change.
func (s *Service) Preview(ctx context.Context, data []byte, opts PreviewOptions) (*model.PreviewResult, error) {
	rows, err := s.Load(data)
	if err != nil {
		return nil, err
	}
	return NewPreviewer(s.repos(s.pool), s.validator, s.cfg.Placeholders).Preview(ctx, rows, opts)
}

// Apply loads data and syncs it into the store.
func (s *Service) Apply(ctx context.Context, data []byte, opts ApplyOptions) (*model.ApplyResult, error) {
	rows, err := s.Load(data)
	if err != nil {
		return nil, err
	}
	return s.applier.Apply(ctx, rows, opts)
}

// Runs lists recent apply runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if s.runs == nil {
		return []model.SyncRun{}, nil
	}
	return s.runs.List(ctx, limit)
}
