// Package reconcile previews and applies a parsed billing workbook against
// the billing store.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

// DefaultPlaceholders are C/M values that mean "not yet assigned".
var DefaultPlaceholders = []string{"", "TBC", "TBD", "N/A", "-", "PENDING"}

// Linker matches a newly created matter to the staffing system.
type Linker interface {
	Link(ctx context.Context, projectID int64, cmNo, projectName string) (*model.StaffingLink, error)
}

// LinkerFactory binds a Linker to a transactional scope.
type LinkerFactory func(q db.Querier) Linker

// NewLinkerFactory returns a factory producing Postgres staffing linkers.
func NewLinkerFactory(threshold float64) LinkerFactory {
	return func(q db.Querier) Linker { return billing.NewLinker(q, threshold) }
}

// Validator is an advisory second opinion on parsed fee text.
type Validator interface {
	Validate(ctx context.Context, items []model.ValidationItem) (*model.ValidationReport, error)
}

// IsPlaceholder reports whether a C/M value stands for "not yet assigned".
func IsPlaceholder(cmNo string, placeholders []string) bool {
	v := strings.ToUpper(strings.TrimSpace(cmNo))
	for _, p := range placeholders {
		if v == strings.ToUpper(strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}

// EngagementCode is the stable key of the idx-th engagement block of a row.
func EngagementCode(idx int) string {
	if idx == 0 {
		return "original"
	}
	return fmt.Sprintf("supplemental-%d", idx)
}

// resolveEngagement finds the stored engagement for a block. The first block
// falls back to the oldest engagement under the C/M number, so engagements
// created before the first sync are reused rather than duplicated.
func resolveEngagement(ctx context.Context, repo billing.Repository, cmID int64, idx int) (*model.Engagement, error) {
	e, err := repo.FindEngagement(ctx, cmID, EngagementCode(idx))
	if err != nil || e != nil {
		return e, err
	}
	if idx == 0 {
		return repo.OldestEngagement(ctx, cmID)
	}
	return nil, nil
}

// DiffFinancials lists the snapshot fields whose values differ. Values equal
// to the cent are unchanged.
func DiffFinancials(old, cur model.Financials) []model.FieldChange {
	var out []model.FieldChange
	for _, f := range model.FinancialFields {
		o, n := f.Get(old), f.Get(cur)
		if sameAmount(o, n) {
			continue
		}
		out = append(out, model.FieldChange{Field: f.Label, OldValue: formatAmount(o), NewValue: formatAmount(n)})
	}
	return out
}

func sameAmount(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 0.005
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// milestoneState maps ordinal to completion for an engagement.
func milestoneState(ms []model.Milestone) map[string]bool {
	out := make(map[string]bool, len(ms))
	for _, m := range ms {
		out[m.Ordinal] = m.Completed
	}
	return out
}

// countMilestones compares parsed milestones with stored state.
func countMilestones(parsed []model.ParsedMilestone, stored map[string]bool) (created, updated, completed int) {
	for _, m := range parsed {
		done, exists := stored[m.Ordinal]
		if exists {
			updated++
		} else {
			created++
		}
		if m.Completed && !done {
			completed++
		}
	}
	return created, updated, completed
}
