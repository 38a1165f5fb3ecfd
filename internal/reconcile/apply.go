package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

// RunLog records apply runs for audit.
type RunLog interface {
	Start(ctx context.Context, sourceFile, uploadedBy string, rowsTotal int) (string, error)
	Complete(ctx context.Context, id string, rowsFailed int, summary any) error
	Fail(ctx context.Context, id, errMsg string) error
}

// ApplyOptions controls a single apply.
type ApplyOptions struct {
	DryRun     bool
	UploadedBy string
	SourceFile string
}

// Config holds apply tunables.
type Config struct {
	TxTimeout    time.Duration
	Placeholders []string
}

// scope is a handle that can both query and open a nested transaction: the
// pool for a real apply, the outer transaction for a dry run.
type scope interface {
	db.Querier
	db.TxBeginner
}

// Applier writes a parsed workbook into the billing store one row at a time.
type Applier struct {
	pool    db.Pool
	repos   billing.RepoFactory
	linkers LinkerFactory
	runs    RunLog
	cfg     Config
}

// NewApplier creates an Applier. runs may be nil to skip the audit log.
func NewApplier(pool db.Pool, repos billing.RepoFactory, linkers LinkerFactory, runs RunLog, cfg Config) *Applier {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = db.DefaultTxTimeout
	}
	if cfg.Placeholders == nil {
		cfg.Placeholders = DefaultPlaceholders
	}
	return &Applier{pool: pool, repos: repos, linkers: linkers, runs: runs, cfg: cfg}
}

var errDryRun = errors.New("reconcile: dry run rollback")

// Apply syncs rows into the store. Existing matters are updated inside one
// transaction per row; new matters and their staffing link are created
// before that transaction. A failing row is rolled back, recorded in
// FailedRows and does not stop the batch. A dry run performs every write
// inside one outer transaction and rolls it back.
func (a *Applier) Apply(ctx context.Context, rows []model.ExcelRow, opts ApplyOptions) (*model.ApplyResult, error) {
	res := newApplyResult(opts.DryRun)
	log := zap.L().With(zap.String("component", "reconcile.apply"), zap.Bool("dry_run", opts.DryRun))

	if opts.DryRun {
		err := db.WithTx(ctx, a.pool, 0, func(ctx context.Context, tx pgx.Tx) error {
			a.applyRows(ctx, tx, rows, res)
			return errDryRun
		})
		if !errors.Is(err, errDryRun) {
			return nil, eris.Wrap(err, "reconcile: dry run")
		}
		log.Info("dry run complete", zap.Int("rows", len(rows)), zap.Int("failed", len(res.FailedRows)))
		return res, nil
	}

	if a.runs != nil {
		id, err := a.runs.Start(ctx, opts.SourceFile, opts.UploadedBy, len(rows))
		if err != nil {
			log.Warn("reconcile: sync run not recorded", zap.Error(err))
		}
		res.RunID = id
	}

	a.applyRows(ctx, a.pool, rows, res)

	if a.runs != nil && res.RunID != "" {
		if err := ctx.Err(); err != nil {
			_ = a.runs.Fail(context.WithoutCancel(ctx), res.RunID, err.Error())
		} else if err := a.runs.Complete(ctx, res.RunID, len(res.FailedRows), res.Summary); err != nil {
			log.Warn("reconcile: sync run not completed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}

	log.Info("apply complete",
		zap.String("run_id", res.RunID),
		zap.Int("rows", res.Summary.RowsProcessed),
		zap.Int("created", res.Summary.ProjectsCreated),
		zap.Int("updated", res.Summary.ProjectsUpdated),
		zap.Int("failed", len(res.FailedRows)),
	)
	return res, nil
}

func newApplyResult(dryRun bool) *model.ApplyResult {
	return &model.ApplyResult{
		DryRun:     dryRun,
		Unlinked:   []string{},
		Skipped:    []string{},
		FailedRows: []model.FailedRow{},
		ChangeLog: model.ChangeLog{
			Updated: []model.UpdatedMatter{},
			Created: []model.CreatedMatter{},
		},
	}
}

func (a *Applier) applyRows(ctx context.Context, base scope, rows []model.ExcelRow, res *model.ApplyResult) {
	for _, row := range rows {
		if IsPlaceholder(row.CMNo, a.cfg.Placeholders) {
			res.Skipped = append(res.Skipped, row.CMNo)
			continue
		}
		if ctx.Err() != nil {
			res.FailedRows = append(res.FailedRows, model.FailedRow{RowIndex: row.RowIndex, CMNo: row.CMNo, Error: ctx.Err().Error()})
			continue
		}

		res.Summary.RowsProcessed++
		if err := a.applyRow(ctx, base, row, res); err != nil {
			zap.L().Error("reconcile: row failed",
				zap.String("cm_no", row.CMNo),
				zap.Int("row", row.RowIndex),
				zap.Error(err),
			)
			res.FailedRows = append(res.FailedRows, model.FailedRow{RowIndex: row.RowIndex, CMNo: row.CMNo, Error: err.Error()})
		}
	}
}

// rowCounts accumulates one row's writes; it is merged only after commit.
type rowCounts struct {
	engagementsCreated  int
	engagementsUpdated  int
	feesCreated         int
	milestonesCreated   int
	milestonesUpdated   int
	milestonesCompleted int
	financeComments     int
}

func (a *Applier) applyRow(ctx context.Context, base scope, row model.ExcelRow, res *model.ApplyResult) error {
	repo := a.repos(base)

	cm, err := repo.FindCMNumber(ctx, row.CMNo)
	if err != nil {
		return err
	}

	isNew := cm == nil
	if isNew {
		created, newCM, err := a.createMatter(ctx, base, row)
		if err != nil {
			return err
		}
		cm = newCM
		res.Summary.ProjectsCreated++
		res.ChangeLog.Created = append(res.ChangeLog.Created, *created)
		if created.Link == nil {
			res.Unlinked = append(res.Unlinked, row.CMNo)
		} else {
			res.Summary.StaffingLinked++
		}
	}

	var counts rowCounts
	var changes []model.FieldChange
	err = db.WithTx(ctx, base, a.cfg.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		counts = rowCounts{}
		txRepo := a.repos(tx)

		if !isNew {
			if err := txRepo.UpdateProject(ctx, projectFromRow(cm.ProjectID, row)); err != nil {
				return err
			}
			changes = DiffFinancials(cm.Financials, row.Financials)
			if err := txRepo.UpdateFinancials(ctx, cm.ID, row.Financials); err != nil {
				return err
			}
		}

		var firstEngagement int64
		for idx, eng := range row.Engagements {
			id, err := a.syncEngagement(ctx, txRepo, cm, idx, eng, &counts)
			if err != nil {
				return eris.Wrapf(err, "engagement %d", idx)
			}
			if idx == 0 {
				firstEngagement = id
			}
		}

		if row.FinanceComment != "" && firstEngagement != 0 {
			added, err := txRepo.AddFinanceComment(ctx, firstEngagement, row.FinanceComment)
			if err != nil {
				return err
			}
			if added {
				counts.financeComments++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s := &res.Summary
	s.EngagementsCreated += counts.engagementsCreated
	s.EngagementsUpdated += counts.engagementsUpdated
	s.FeeArrangementsCreated += counts.feesCreated
	s.MilestonesCreated += counts.milestonesCreated
	s.MilestonesUpdated += counts.milestonesUpdated
	s.MilestonesCompleted += counts.milestonesCompleted
	s.FinanceComments += counts.financeComments

	if !isNew {
		s.ProjectsUpdated++
		if len(changes) > 0 {
			s.FinancialsUpdated++
		}
		res.ChangeLog.Updated = append(res.ChangeLog.Updated, model.UpdatedMatter{
			CMNo:                row.CMNo,
			ProjectID:           cm.ProjectID,
			ProjectName:         row.ProjectName,
			Changes:             nonNil(changes),
			MilestonesCreated:   counts.milestonesCreated,
			MilestonesCompleted: counts.milestonesCompleted,
		})
	}
	return nil
}

// createMatter inserts the project and C/M number in their own transaction,
// then tries to link the project to staffing. Link failures leave the matter
// unlinked.
func (a *Applier) createMatter(ctx context.Context, base scope, row model.ExcelRow) (*model.CreatedMatter, *model.CMNumber, error) {
	p := projectFromRow(0, row)
	if p.Name == "" {
		p.Name = row.CMNo
	}

	var projectID, cmID int64
	err := db.WithTx(ctx, base, a.cfg.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
		repo := a.repos(tx)
		var err error
		if projectID, err = repo.CreateProject(ctx, p); err != nil {
			return err
		}
		cmID, err = repo.CreateCMNumber(ctx, projectID, row.CMNo, row.Financials)
		return err
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "reconcile: create matter")
	}

	created := &model.CreatedMatter{CMNo: row.CMNo, ProjectID: projectID, ProjectName: p.Name}
	if a.linkers != nil {
		err := db.WithTx(ctx, base, a.cfg.TxTimeout, func(ctx context.Context, tx pgx.Tx) error {
			link, err := a.linkers(tx).Link(ctx, projectID, row.CMNo, p.Name)
			created.Link = link
			return err
		})
		if err != nil {
			created.Link = nil
			zap.L().Warn("reconcile: staffing link failed", zap.String("cm_no", row.CMNo), zap.Error(err))
		}
	}

	return created, &model.CMNumber{ID: cmID, ProjectID: projectID, CMNo: row.CMNo, IsPrimary: true, Financials: row.Financials}, nil
}

// syncEngagement finds or creates the engagement for a block, refreshes its
// fee arrangement and upserts its milestones. It returns the engagement ID.
func (a *Applier) syncEngagement(ctx context.Context, repo billing.Repository, cm *model.CMNumber, idx int, eng model.ExcelEngagement, counts *rowCounts) (int64, error) {
	e, err := resolveEngagement(ctx, repo, cm.ID, idx)
	if err != nil {
		return 0, err
	}

	if e == nil {
		e = &model.Engagement{
			ProjectID:    cm.ProjectID,
			CMID:         cm.ID,
			Code:         EngagementCode(idx),
			Title:        eng.Title,
			FeeAmountUSD: eng.FeeAmountUSD,
		}
		if e.ID, err = repo.CreateEngagement(ctx, e); err != nil {
			return 0, err
		}
		counts.engagementsCreated++
	} else {
		e.Title = eng.Title
		e.FeeAmountUSD = eng.FeeAmountUSD
		if err := repo.UpdateEngagement(ctx, e); err != nil {
			return 0, err
		}
		counts.engagementsUpdated++
	}

	fa := &model.FeeArrangement{
		EngagementID: e.ID,
		RawText:      eng.RawText,
		LSDDate:      eng.LongStopDate,
		LSDRaw:       eng.LongStopRaw,
		ReferTo:      eng.ReferTo,
		TimeBased:    eng.TimeBased,
		Bonus:        eng.Bonus,
	}
	existing, err := repo.EarliestFeeArrangement(ctx, e.ID)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		if fa.ID, err = repo.CreateFeeArrangement(ctx, fa); err != nil {
			return 0, err
		}
		counts.feesCreated++
	} else {
		fa.ID = existing.ID
		mergeFeeArrangement(fa, existing)
		if err := repo.UpdateFeeArrangement(ctx, fa); err != nil {
			return 0, err
		}
	}

	if len(eng.Milestones) == 0 {
		return e.ID, nil
	}

	stored, err := repo.ListMilestones(ctx, e.ID)
	if err != nil {
		return 0, err
	}
	c, u, done := countMilestones(eng.Milestones, milestoneState(stored))
	if err := repo.UpsertMilestones(ctx, e.ID, fa.ID, eng.Milestones); err != nil {
		return 0, err
	}
	counts.milestonesCreated += c
	counts.milestonesUpdated += u
	counts.milestonesCompleted += done
	return e.ID, nil
}

// mergeFeeArrangement keeps the stored long-stop date and reference when the
// sheet no longer yields one.
func mergeFeeArrangement(fa, existing *model.FeeArrangement) {
	if fa.LSDDate == nil {
		fa.LSDDate = existing.LSDDate
		if fa.LSDRaw == "" || existing.LSDDate != nil {
			fa.LSDRaw = existing.LSDRaw
		}
	}
	if fa.ReferTo == "" {
		fa.ReferTo = existing.ReferTo
	}
}

func projectFromRow(id int64, row model.ExcelRow) *model.Project {
	return &model.Project{
		ID:               id,
		Name:             row.ProjectName,
		ClientName:       row.ClientName,
		AttorneyInCharge: row.AttorneyInCharge,
		SCA:              row.SCA,
		Remarks:          row.Remarks,
		MatterNotes:      row.MatterNotes,
		CNYNote:          row.CNYNote,
	}
}

func nonNil(c []model.FieldChange) []model.FieldChange {
	if c == nil {
		return []model.FieldChange{}
	}
	return c
}
