package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/billing-sync/internal/billing"
	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ptr(v float64) *float64 { return &v }

// memRepo is an in-memory billing store shared by every scope.
type memRepo struct {
	mu sync.Mutex

	nextID      int64
	projects    map[int64]*model.Project
	cms         map[string]*model.CMNumber
	engagements map[int64]*model.Engagement
	fees        map[int64]*model.FeeArrangement
	milestones  map[int64]map[string]*model.Milestone
	comments    map[int64]map[string]bool

	// failTitle makes CreateEngagement and UpdateEngagement fail for that title.
	failTitle string
}

func newMemRepo() *memRepo {
	return &memRepo{
		projects:    map[int64]*model.Project{},
		cms:         map[string]*model.CMNumber{},
		engagements: map[int64]*model.Engagement{},
		fees:        map[int64]*model.FeeArrangement{},
		milestones:  map[int64]map[string]*model.Milestone{},
		comments:    map[int64]map[string]bool{},
	}
}

func (r *memRepo) factory() billing.RepoFactory {
	return func(db.Querier) billing.Repository { return r }
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) FindCMNumber(_ context.Context, cmNo string) (*model.CMNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cm, ok := r.cms[cmNo]
	if !ok {
		return nil, nil
	}
	c := *cm
	return &c, nil
}

func (r *memRepo) GetProject(_ context.Context, id int64) (*model.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *memRepo) CreateProject(_ context.Context, p *model.Project) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	c.ID = r.id()
	r.projects[c.ID] = &c
	return c.ID, nil
}

func (r *memRepo) UpdateProject(_ context.Context, p *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; !ok {
		return fmt.Errorf("project %d not found", p.ID)
	}
	c := *p
	r.projects[p.ID] = &c
	return nil
}

func (r *memRepo) CreateCMNumber(_ context.Context, projectID int64, cmNo string, f model.Financials) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cms[cmNo]; ok {
		return 0, fmt.Errorf("duplicate cm %s", cmNo)
	}
	cm := &model.CMNumber{ID: r.id(), ProjectID: projectID, CMNo: cmNo, IsPrimary: true, Financials: f}
	r.cms[cmNo] = cm
	return cm.ID, nil
}

func (r *memRepo) UpdateFinancials(_ context.Context, cmID int64, f model.Financials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cm := range r.cms {
		if cm.ID == cmID {
			cm.Financials = f
			return nil
		}
	}
	return fmt.Errorf("cm %d not found", cmID)
}

func (r *memRepo) FindEngagement(_ context.Context, cmID int64, code string) (*model.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.engagements {
		if e.CMID == cmID && e.Code == code {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memRepo) OldestEngagement(_ context.Context, cmID int64) (*model.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *model.Engagement
	for _, e := range r.engagements {
		if e.CMID == cmID && (oldest == nil || e.ID < oldest.ID) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, nil
	}
	c := *oldest
	return &c, nil
}

func (r *memRepo) CreateEngagement(_ context.Context, e *model.Engagement) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTitle != "" && e.Title == r.failTitle {
		return 0, fmt.Errorf("insert engagement %q: constraint violation", e.Title)
	}
	for _, x := range r.engagements {
		if x.CMID == e.CMID && x.Code == e.Code {
			return 0, fmt.Errorf("duplicate engagement %s", e.Code)
		}
	}
	c := *e
	c.ID = r.id()
	r.engagements[c.ID] = &c
	return c.ID, nil
}

func (r *memRepo) UpdateEngagement(_ context.Context, e *model.Engagement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTitle != "" && e.Title == r.failTitle {
		return fmt.Errorf("update engagement %q: constraint violation", e.Title)
	}
	x, ok := r.engagements[e.ID]
	if !ok {
		return fmt.Errorf("engagement %d not found", e.ID)
	}
	x.Title = e.Title
	x.FeeAmountUSD = e.FeeAmountUSD
	return nil
}

func (r *memRepo) EarliestFeeArrangement(_ context.Context, engagementID int64) (*model.FeeArrangement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first *model.FeeArrangement
	for _, fa := range r.fees {
		if fa.EngagementID == engagementID && (first == nil || fa.ID < first.ID) {
			first = fa
		}
	}
	if first == nil {
		return nil, nil
	}
	c := *first
	return &c, nil
}

func (r *memRepo) CreateFeeArrangement(_ context.Context, fa *model.FeeArrangement) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *fa
	c.ID = r.id()
	r.fees[c.ID] = &c
	return c.ID, nil
}

func (r *memRepo) UpdateFeeArrangement(_ context.Context, fa *model.FeeArrangement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fees[fa.ID]; !ok {
		return fmt.Errorf("fee arrangement %d not found", fa.ID)
	}
	c := *fa
	r.fees[fa.ID] = &c
	return nil
}

func (r *memRepo) ListMilestones(_ context.Context, engagementID int64) ([]model.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Milestone
	for _, m := range r.milestones[engagementID] {
		out = append(out, *m)
	}
	return out, nil
}

// UpsertMilestones mirrors the SQL upsert: completion only moves forward and
// keeps its first source and date.
func (r *memRepo) UpsertMilestones(_ context.Context, engagementID, _ int64, ms []model.ParsedMilestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byOrd := r.milestones[engagementID]
	if byOrd == nil {
		byOrd = map[string]*model.Milestone{}
		r.milestones[engagementID] = byOrd
	}
	for _, pm := range ms {
		m, ok := byOrd[pm.Ordinal]
		if !ok {
			m = &model.Milestone{ID: r.id(), EngagementID: engagementID, Ordinal: pm.Ordinal}
			byOrd[pm.Ordinal] = m
		}
		m.Title = pm.Title
		if pm.Completed && !m.Completed {
			m.Completed = true
			m.CompletionSource = billing.CompletionSource
		}
	}
	return nil
}

func (r *memRepo) AddFinanceComment(_ context.Context, engagementID int64, comment string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.comments[engagementID]
	if set == nil {
		set = map[string]bool{}
		r.comments[engagementID] = set
	}
	fp := billing.Fingerprint(comment)
	if set[fp] {
		return false, nil
	}
	set[fp] = true
	return true, nil
}

func (r *memRepo) engagementCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engagements)
}

func (r *memRepo) milestoneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, byOrd := range r.milestones {
		n += len(byOrd)
	}
	return n
}

type mockLinker struct {
	mock.Mock
}

func (m *mockLinker) Link(ctx context.Context, projectID int64, cmNo, projectName string) (*model.StaffingLink, error) {
	args := m.Called(ctx, projectID, cmNo, projectName)
	link, _ := args.Get(0).(*model.StaffingLink)
	return link, args.Error(1)
}

func (m *mockLinker) factory() LinkerFactory {
	return func(db.Querier) Linker { return m }
}

type mockRunLog struct {
	mock.Mock
}

func (m *mockRunLog) Start(ctx context.Context, sourceFile, uploadedBy string, rowsTotal int) (string, error) {
	args := m.Called(ctx, sourceFile, uploadedBy, rowsTotal)
	return args.String(0), args.Error(1)
}

func (m *mockRunLog) Complete(ctx context.Context, id string, rowsFailed int, summary any) error {
	return m.Called(ctx, id, rowsFailed, summary).Error(0)
}

func (m *mockRunLog) Fail(ctx context.Context, id, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

type stubValidator struct {
	report *model.ValidationReport
	err    error
	items  []model.ValidationItem
}

func (s *stubValidator) Validate(_ context.Context, items []model.ValidationItem) (*model.ValidationReport, error) {
	s.items = items
	return s.report, s.err
}
