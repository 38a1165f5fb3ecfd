package billing

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billing-sync/internal/db"
	"github.com/sells-group/billing-sync/internal/model"
)

// PostgresRepo implements Repository on a pool or a transaction.
type PostgresRepo struct {
	q   db.Querier
	now func() time.Time
}

// NewPostgresRepo binds a repository to q.
func NewPostgresRepo(q db.Querier) *PostgresRepo {
	return &PostgresRepo{q: q, now: time.Now}
}

var _ Repository = (*PostgresRepo)(nil)

const cmColumns = `id, project_id, cm_no, is_primary,
	billing_usd, collection_usd, billing_credit_usd, ubt_usd, ar_usd,
	billing_credit_cny, ubt_cny, financials_updated_at`

// FindCMNumber returns the primary record for a C/M number.
func (r *PostgresRepo) FindCMNumber(ctx context.Context, cmNo string) (*model.CMNumber, error) {
	var cm model.CMNumber
	f := &cm.Financials
	err := r.q.QueryRow(ctx,
		`SELECT `+cmColumns+` FROM billing_project_cm_no
		 WHERE cm_no = $1 ORDER BY is_primary DESC, id LIMIT 1`, cmNo,
	).Scan(&cm.ID, &cm.ProjectID, &cm.CMNo, &cm.IsPrimary,
		&f.BillingUSD, &f.CollectionUSD, &f.BillingCreditUSD, &f.UBTUSD, &f.ARUSD,
		&f.BillingCreditCNY, &f.UBTCNY, &cm.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "billing: find cm %s", cmNo)
	}
	return &cm, nil
}

// GetProject returns a project by ID.
func (r *PostgresRepo) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	var client, attorney, sca, remarks, notes, cny *string
	err := r.q.QueryRow(ctx,
		`SELECT id, project_name, client_name, attorney_in_charge, sca,
		        remarks, matter_notes, cny_note, created_at, updated_at
		 FROM billing_project WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &client, &attorney, &sca, &remarks, &notes, &cny, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "billing: get project %d", id)
	}
	p.ClientName = deref(client)
	p.AttorneyInCharge = deref(attorney)
	p.SCA = deref(sca)
	p.Remarks = deref(remarks)
	p.MatterNotes = deref(notes)
	p.CNYNote = deref(cny)
	return &p, nil
}

// CreateProject inserts a project and returns its ID.
func (r *PostgresRepo) CreateProject(ctx context.Context, p *model.Project) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`INSERT INTO billing_project
		   (project_name, client_name, attorney_in_charge, sca, remarks, matter_notes, cny_note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.Name, nullStr(p.ClientName), nullStr(p.AttorneyInCharge), nullStr(p.SCA),
		nullStr(p.Remarks), nullStr(p.MatterNotes), nullStr(p.CNYNote),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "billing: create project %q", p.Name)
	}
	return id, nil
}

// UpdateProject overwrites identity and note fields. Empty values keep what is
// stored.
func (r *PostgresRepo) UpdateProject(ctx context.Context, p *model.Project) error {
	_, err := r.q.Exec(ctx,
		`UPDATE billing_project SET
		   project_name       = COALESCE(NULLIF($2, ''), project_name),
		   client_name        = COALESCE(NULLIF($3, ''), client_name),
		   attorney_in_charge = COALESCE(NULLIF($4, ''), attorney_in_charge),
		   sca                = COALESCE(NULLIF($5, ''), sca),
		   remarks            = COALESCE(NULLIF($6, ''), remarks),
		   matter_notes       = COALESCE(NULLIF($7, ''), matter_notes),
		   cny_note           = COALESCE(NULLIF($8, ''), cny_note),
		   updated_at         = now()
		 WHERE id = $1`,
		p.ID, p.Name, p.ClientName, p.AttorneyInCharge, p.SCA, p.Remarks, p.MatterNotes, p.CNYNote,
	)
	if err != nil {
		return eris.Wrapf(err, "billing: update project %d", p.ID)
	}
	return nil
}

// CreateCMNumber inserts a C/M number with its financial snapshot.
func (r *PostgresRepo) CreateCMNumber(ctx context.Context, projectID int64, cmNo string, f model.Financials) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`INSERT INTO billing_project_cm_no
		   (project_id, cm_no, is_primary, billing_usd, collection_usd, billing_credit_usd,
		    ubt_usd, ar_usd, billing_credit_cny, ubt_cny, financials_updated_at)
		 VALUES ($1, $2, true, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (project_id, cm_no) DO UPDATE SET cm_no = EXCLUDED.cm_no
		 RETURNING id`,
		projectID, cmNo, f.BillingUSD, f.CollectionUSD, f.BillingCreditUSD,
		f.UBTUSD, f.ARUSD, f.BillingCreditCNY, f.UBTCNY,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "billing: create cm %s", cmNo)
	}
	return id, nil
}

// UpdateFinancials overwrites the snapshot, including clearing absent values.
func (r *PostgresRepo) UpdateFinancials(ctx context.Context, cmID int64, f model.Financials) error {
	_, err := r.q.Exec(ctx,
		`UPDATE billing_project_cm_no SET
		   billing_usd = $2, collection_usd = $3, billing_credit_usd = $4,
		   ubt_usd = $5, ar_usd = $6, billing_credit_cny = $7, ubt_cny = $8,
		   financials_updated_at = now()
		 WHERE id = $1`,
		cmID, f.BillingUSD, f.CollectionUSD, f.BillingCreditUSD,
		f.UBTUSD, f.ARUSD, f.BillingCreditCNY, f.UBTCNY,
	)
	if err != nil {
		return eris.Wrapf(err, "billing: update financials for cm %d", cmID)
	}
	return nil
}

const engagementColumns = `id, project_id, cm_id, engagement_code, engagement_title, fee_amount_usd, created_at`

func scanEngagement(row pgx.Row) (*model.Engagement, error) {
	var e model.Engagement
	if err := row.Scan(&e.ID, &e.ProjectID, &e.CMID, &e.Code, &e.Title, &e.FeeAmountUSD, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEngagement looks up an engagement by its code under a C/M number.
func (r *PostgresRepo) FindEngagement(ctx context.Context, cmID int64, code string) (*model.Engagement, error) {
	e, err := scanEngagement(r.q.QueryRow(ctx,
		`SELECT `+engagementColumns+` FROM billing_engagement
		 WHERE cm_id = $1 AND engagement_code = $2`, cmID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "billing: find engagement %s for cm %d", code, cmID)
	}
	return e, nil
}

// OldestEngagement returns the first engagement created under a C/M number.
func (r *PostgresRepo) OldestEngagement(ctx context.Context, cmID int64) (*model.Engagement, error) {
	e, err := scanEngagement(r.q.QueryRow(ctx,
		`SELECT `+engagementColumns+` FROM billing_engagement
		 WHERE cm_id = $1 ORDER BY created_at, id LIMIT 1`, cmID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "billing: oldest engagement for cm %d", cmID)
	}
	return e, nil
}

// CreateEngagement inserts an engagement. A concurrent insert of the same
// code returns the existing row.
func (r *PostgresRepo) CreateEngagement(ctx context.Context, e *model.Engagement) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`INSERT INTO billing_engagement (project_id, cm_id, engagement_code, engagement_title, fee_amount_usd)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cm_id, engagement_code) DO UPDATE SET engagement_title = EXCLUDED.engagement_title
		 RETURNING id`,
		e.ProjectID, e.CMID, e.Code, e.Title, e.FeeAmountUSD,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "billing: create engagement %s", e.Code)
	}
	return id, nil
}

// UpdateEngagement refreshes the title and, when present, the fee amount.
func (r *PostgresRepo) UpdateEngagement(ctx context.Context, e *model.Engagement) error {
	_, err := r.q.Exec(ctx,
		`UPDATE billing_engagement SET
		   engagement_title = $2,
		   fee_amount_usd   = COALESCE($3, fee_amount_usd),
		   updated_at       = now()
		 WHERE id = $1`,
		e.ID, e.Title, e.FeeAmountUSD,
	)
	if err != nil {
		return eris.Wrapf(err, "billing: update engagement %d", e.ID)
	}
	return nil
}

// EarliestFeeArrangement returns the first fee arrangement of an engagement.
func (r *PostgresRepo) EarliestFeeArrangement(ctx context.Context, engagementID int64) (*model.FeeArrangement, error) {
	var fa model.FeeArrangement
	var lsdRaw, referTo, bonusDesc *string
	var bonusUSD, bonusCNY *float64
	err := r.q.QueryRow(ctx,
		`SELECT id, engagement_id, raw_text, lsd_date, lsd_raw, refer_to, time_based,
		        bonus_description, bonus_amount_usd, bonus_amount_cny
		 FROM billing_fee_arrangement
		 WHERE engagement_id = $1 ORDER BY created_at, id LIMIT 1`, engagementID,
	).Scan(&fa.ID, &fa.EngagementID, &fa.RawText, &fa.LSDDate, &lsdRaw, &referTo, &fa.TimeBased,
		&bonusDesc, &bonusUSD, &bonusCNY)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "billing: fee arrangement for engagement %d", engagementID)
	}
	fa.LSDRaw = deref(lsdRaw)
	fa.ReferTo = deref(referTo)
	if bonusDesc != nil || bonusUSD != nil || bonusCNY != nil {
		fa.Bonus = &model.Bonus{Description: deref(bonusDesc), AmountUSD: bonusUSD, AmountCNY: bonusCNY}
	}
	return &fa, nil
}

// CreateFeeArrangement inserts a fee arrangement and returns its ID.
func (r *PostgresRepo) CreateFeeArrangement(ctx context.Context, fa *model.FeeArrangement) (int64, error) {
	desc, usd, cny := bonusArgs(fa.Bonus)
	var id int64
	err := r.q.QueryRow(ctx,
		`INSERT INTO billing_fee_arrangement
		   (engagement_id, raw_text, lsd_date, lsd_raw, refer_to, time_based,
		    bonus_description, bonus_amount_usd, bonus_amount_cny)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		fa.EngagementID, fa.RawText, fa.LSDDate, nullStr(fa.LSDRaw), nullStr(fa.ReferTo), fa.TimeBased,
		desc, usd, cny,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "billing: create fee arrangement for engagement %d", fa.EngagementID)
	}
	return id, nil
}

// UpdateFeeArrangement overwrites the raw text and bonus. A null long-stop
// date, raw annotation or reference keeps the stored value.
func (r *PostgresRepo) UpdateFeeArrangement(ctx context.Context, fa *model.FeeArrangement) error {
	desc, usd, cny := bonusArgs(fa.Bonus)
	_, err := r.q.Exec(ctx,
		`UPDATE billing_fee_arrangement SET
		   raw_text = $2,
		   lsd_date = COALESCE($3, lsd_date),
		   lsd_raw = CASE WHEN $3::date IS NULL AND (lsd_date IS NOT NULL OR $4 IS NULL) THEN lsd_raw ELSE $4 END,
		   refer_to = COALESCE($5, refer_to),
		   time_based = $6,
		   bonus_description = $7, bonus_amount_usd = $8, bonus_amount_cny = $9,
		   updated_at = now()
		 WHERE id = $1`,
		fa.ID, fa.RawText, fa.LSDDate, nullStr(fa.LSDRaw), nullStr(fa.ReferTo), fa.TimeBased,
		desc, usd, cny,
	)
	if err != nil {
		return eris.Wrapf(err, "billing: update fee arrangement %d", fa.ID)
	}
	return nil
}

// ListMilestones returns the stored milestones of an engagement.
func (r *PostgresRepo) ListMilestones(ctx context.Context, engagementID int64) ([]model.Milestone, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, engagement_id, ordinal, title, completed, completion_source, completion_date
		 FROM billing_milestone WHERE engagement_id = $1 ORDER BY sort_order, id`, engagementID)
	if err != nil {
		return nil, eris.Wrapf(err, "billing: list milestones for engagement %d", engagementID)
	}
	defer rows.Close()

	var out []model.Milestone
	for rows.Next() {
		var m model.Milestone
		var src *string
		if err := rows.Scan(&m.ID, &m.EngagementID, &m.Ordinal, &m.Title, &m.Completed, &src, &m.CompletionDate); err != nil {
			return nil, eris.Wrap(err, "billing: scan milestone")
		}
		m.CompletionSource = deref(src)
		out = append(out, m)
	}
	return out, rows.Err()
}

var milestoneUpsert = db.UpsertConfig{
	Table: "billing_milestone",
	Columns: []string{
		"engagement_id", "fee_id", "ordinal", "title", "trigger_text", "raw_fragment",
		"amount_value", "amount_currency", "is_percent", "percent_value", "sort_order",
		"completed", "completion_source", "completion_date",
	},
	ConflictKeys: []string{"engagement_id", "ordinal"},
	UpdateCols: []string{
		"fee_id", "title", "trigger_text", "raw_fragment", "amount_value", "amount_currency",
		"is_percent", "percent_value", "sort_order",
		"completed", "completion_source", "completion_date", "updated_at",
	},
	UpdateExprs: map[string]string{
		// Completion only moves forward; the first completion keeps its source and date.
		"completed":         `"billing_milestone"."completed" OR EXCLUDED."completed"`,
		"completion_source": `CASE WHEN "billing_milestone"."completed" THEN "billing_milestone"."completion_source" ELSE EXCLUDED."completion_source" END`,
		"completion_date":   `CASE WHEN "billing_milestone"."completed" THEN "billing_milestone"."completion_date" ELSE EXCLUDED."completion_date" END`,
		"updated_at":        "now()",
	},
}

// UpsertMilestones writes parsed milestones in one statement keyed on
// (engagement_id, ordinal). A milestone never reverts from completed.
func (r *PostgresRepo) UpsertMilestones(ctx context.Context, engagementID, feeID int64, ms []model.ParsedMilestone) error {
	if len(ms) == 0 {
		return nil
	}

	today := r.now().UTC().Truncate(24 * time.Hour)
	rows := make([][]any, 0, len(ms))
	for _, m := range ms {
		var src *string
		var doneAt *time.Time
		if m.Completed {
			s := CompletionSource
			src = &s
			doneAt = &today
		}
		rows = append(rows, []any{
			engagementID, feeID, m.Ordinal, m.Title, m.TriggerText, m.RawFragment,
			m.AmountValue, string(m.AmountCurrency), m.IsPercent, m.PercentValue, m.SortOrder,
			m.Completed, src, doneAt,
		})
	}

	if _, err := db.Upsert(ctx, r.q, milestoneUpsert, rows); err != nil {
		return eris.Wrapf(err, "billing: upsert milestones for engagement %d", engagementID)
	}
	return nil
}

// AddFinanceComment stores a finance comment unless an identical one is
// already attached to the engagement. It reports whether a row was inserted.
func (r *PostgresRepo) AddFinanceComment(ctx context.Context, engagementID int64, comment string) (bool, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return false, nil
	}
	tag, err := r.q.Exec(ctx,
		`INSERT INTO billing_finance_comment (engagement_id, comment_raw, fingerprint_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (engagement_id, fingerprint_hash) DO NOTHING`,
		engagementID, comment, Fingerprint(comment),
	)
	if err != nil {
		return false, eris.Wrapf(err, "billing: add finance comment for engagement %d", engagementID)
	}
	return tag.RowsAffected() > 0, nil
}

// Fingerprint is the MD5 hex digest used to deduplicate finance comments.
func Fingerprint(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func bonusArgs(b *model.Bonus) (*string, *float64, *float64) {
	if b == nil {
		return nil, nil, nil
	}
	return nullStr(b.Description), b.AmountUSD, b.AmountCNY
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
