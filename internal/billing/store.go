// Package billing persists matters, engagements, fee arrangements and
// milestones synced from the billing tracker.
package billing

import (
	"context"

	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

// CompletionSource marks milestones completed by a struck-through fee line.
const CompletionSource = "excel_strikethrough"

// Repository is the billing store as seen by one unit of work. Lookups that
// find nothing return (nil, nil).
type Repository interface {
	FindCMNumber(ctx context.Context, cmNo string) (*model.CMNumber, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	CreateProject(ctx context.Context, p *model.Project) (int64, error)
	UpdateProject(ctx context.Context, p *model.Project) error

	CreateCMNumber(ctx context.Context, projectID int64, cmNo string, f model.Financials) (int64, error)
	UpdateFinancials(ctx context.Context, cmID int64, f model.Financials) error

	FindEngagement(ctx context.Context, cmID int64, code string) (*model.Engagement, error)
	OldestEngagement(ctx context.Context, cmID int64) (*model.Engagement, error)
	CreateEngagement(ctx context.Context, e *model.Engagement) (int64, error)
	UpdateEngagement(ctx context.Context, e *model.Engagement) error

	EarliestFeeArrangement(ctx context.Context, engagementID int64) (*model.FeeArrangement, error)
	CreateFeeArrangement(ctx context.Context, fa *model.FeeArrangement) (int64, error)
	UpdateFeeArrangement(ctx context.Context, fa *model.FeeArrangement) error

	ListMilestones(ctx context.Context, engagementID int64) ([]model.Milestone, error)
	UpsertMilestones(ctx context.Context, engagementID, feeID int64, ms []model.ParsedMilestone) error

	AddFinanceComment(ctx context.Context, engagementID int64, comment string) (bool, error)
}

// RepoFactory binds a Repository to a transactional scope.
type RepoFactory func(q db.Querier) Repository

// NewRepoFactory returns a factory producing Postgres repositories.
func NewRepoFactory() RepoFactory {
	return func(q db.Querier) Repository { return NewPostgresRepo(q) }
}
