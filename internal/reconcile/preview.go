package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/model"
)

// PreviewOptions controls optional preview work.
type PreviewOptions struct {
	Validate bool
}

// Previewer computes what an apply would change without writing.
type Previewer struct {
	repo         billing.Repository
	validator    Validator
	placeholders []string
}

// NewPreviewer creates a Previewer. validator may be nil.
func NewPreviewer(repo billing.Repository, validator Validator, placeholders []string) *Previewer {
	if placeholders == nil {
		placeholders = DefaultPlaceholders
	}
	return &Previewer{repo: repo, validator: validator, placeholders: placeholders}
}

// Preview partitions C/M numbers into matched, new and skipped, counts
// milestone work and financial updates, and builds a per-matter change list.
func (p *Previewer) Preview(ctx context.Context, rows []model.ExcelRow, opts PreviewOptions) (*model.PreviewResult, error) {
	res := &model.PreviewResult{Changes: make([]model.MatterChange, 0, len(rows))}
	res.Summary.TotalRows = len(rows)

	matched := make(map[string]bool)
	created := make(map[string]bool)
	skipped := make(map[string]bool)
	var items []model.ValidationItem

	for _, row := range rows {
		change := model.MatterChange{RowIndex: row.RowIndex, CMNo: row.CMNo, ProjectName: row.ProjectName}

		if IsPlaceholder(row.CMNo, p.placeholders) {
			change.Status = model.MatchSkipped
			skipped[row.CMNo] = true
			res.Changes = append(res.Changes, change)
			continue
		}

		cm, err := p.repo.FindCMNumber(ctx, row.CMNo)
		if err != nil {
			return nil, eris.Wrapf(err, "reconcile: preview row %d", row.RowIndex)
		}

		if cm == nil {
			change.Status = model.MatchNew
			created[row.CMNo] = true
		} else {
			change.Status = model.MatchMatched
			matched[row.CMNo] = true
			change.FinancialChanges = DiffFinancials(cm.Financials, row.Financials)
			if len(change.FinancialChanges) > 0 {
				res.Summary.FinancialsToUpdate++
			}
		}

		for idx, eng := range row.Engagements {
			ep, err := p.previewEngagement(ctx, cm, idx, eng)
			if err != nil {
				return nil, err
			}
			res.Summary.MilestonesToCreate += ep.MilestonesToCreate
			res.Summary.MilestonesToComplete += ep.MilestonesCompleted
			change.Engagements = append(change.Engagements, ep)

			if eng.RawText != "" {
				items = append(items, model.ValidationItem{
					CMNo:            row.CMNo,
					EngagementTitle: eng.Title,
					RawText:         eng.RawText,
					Milestones:      eng.Milestones,
					LongStopDate:    eng.LongStopDate,
				})
			}
		}
		res.Changes = append(res.Changes, change)
	}

	res.Summary.MatchedCMNumbers = len(matched)
	res.Summary.NewCMNumbers = len(created)
	res.Summary.SkippedCMNumbers = len(skipped)

	if opts.Validate && p.validator != nil && len(items) > 0 {
		res.Validation = p.validate(ctx, items)
	}
	return res, nil
}

func (p *Previewer) previewEngagement(ctx context.Context, cm *model.CMNumber, idx int, eng model.ExcelEngagement) (model.EngagementPreview, error) {
	ep := model.EngagementPreview{
		Title:      eng.Title,
		Milestones: len(eng.Milestones),
		ReferTo:    eng.ReferTo,
	}
	if eng.LongStopDate != nil {
		s := eng.LongStopDate.Format("2006-01-02")
		ep.LongStopDate = &s
	}

	stored := map[string]bool{}
	if cm != nil {
		e, err := resolveEngagement(ctx, p.repo, cm.ID, idx)
		if err != nil {
			return ep, eris.Wrapf(err, "reconcile: preview engagement %d of %s", idx, cm.CMNo)
		}
		if e != nil {
			ep.ExistingEngagement = true
			ms, err := p.repo.ListMilestones(ctx, e.ID)
			if err != nil {
				return ep, eris.Wrapf(err, "reconcile: preview milestones of %s", cm.CMNo)
			}
			stored = milestoneState(ms)
		}
	}

	ep.MilestonesToCreate, _, ep.MilestonesCompleted = countMilestones(eng.Milestones, stored)
	return ep, nil
}

// validate never fails the preview; errors are reported as not validated.
func (p *Previewer) validate(ctx context.Context, items []model.ValidationItem) *model.ValidationReport {
	rep, err := p.validator.Validate(ctx, items)
	if err != nil {
		zap.L().Warn("reconcile: validator unavailable", zap.Error(err))
		return &model.ValidationReport{Validated: false, Unchecked: len(items), Issues: []model.ValidationIssue{}, Error: err.Error()}
	}
	return rep
}
