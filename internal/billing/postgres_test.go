package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billing-sync/internal/model"
)

func fptr(v float64) *float64 { return &v }

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepo) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo := NewPostgresRepo(mock)
	repo.now = func() time.Time { return time.Date(2025, 7, 1, 15, 4, 5, 0, time.UTC) }
	return mock, repo
}

func TestFindCMNumber_Found(t *testing.T) {
	mock, repo := newMockRepo(t)

	cols := []string{"id", "project_id", "cm_no", "is_primary",
		"billing_usd", "collection_usd", "billing_credit_usd", "ubt_usd", "ar_usd",
		"billing_credit_cny", "ubt_cny", "financials_updated_at"}
	mock.ExpectQuery("SELECT .+ FROM billing_project_cm_no").WithArgs("12345-00001").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			int64(7), int64(3), "12345-00001", true,
			fptr(100), (*float64)(nil), (*float64)(nil), (*float64)(nil), (*float64)(nil),
			(*float64)(nil), (*float64)(nil), (*time.Time)(nil)))

	cm, err := repo.FindCMNumber(context.Background(), "12345-00001")
	require.NoError(t, err)
	require.NotNil(t, cm)
	assert.Equal(t, int64(7), cm.ID)
	assert.Equal(t, int64(3), cm.ProjectID)
	require.NotNil(t, cm.Financials.BillingUSD)
	assert.Equal(t, 100.0, *cm.Financials.BillingUSD)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCMNumber_NotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery("SELECT .+ FROM billing_project_cm_no").WithArgs("x").WillReturnError(pgx.ErrNoRows)

	cm, err := repo.FindCMNumber(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, cm)
}

func TestFindCMNumber_Error(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery("SELECT .+ FROM billing_project_cm_no").WithArgs("x").WillReturnError(fmt.Errorf("conn reset"))

	_, err := repo.FindCMNumber(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "billing: find cm x")
}

func TestCreateProject(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery("INSERT INTO billing_project").
		WithArgs("Alpha", strp("Alpha Ltd"), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := repo.CreateProject(context.Background(), &model.Project{Name: "Alpha", ClientName: "Alpha Ltd"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strp(s string) *string { return &s }

func TestUpdateFinancials(t *testing.T) {
	mock, repo := newMockRepo(t)
	f := model.Financials{BillingUSD: fptr(150)}
	mock.ExpectExec("UPDATE billing_project_cm_no SET").
		WithArgs(int64(7), f.BillingUSD, f.CollectionUSD, f.BillingCreditUSD, f.UBTUSD, f.ARUSD, f.BillingCreditCNY, f.UBTCNY).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateFinancials(context.Background(), 7, f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOldestEngagement_None(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery("SELECT .+ FROM billing_engagement\\s+WHERE cm_id = \\$1 ORDER BY created_at").
		WithArgs(int64(7)).WillReturnError(pgx.ErrNoRows)

	e, err := repo.OldestEngagement(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestUpsertMilestones_SingleStatement(t *testing.T) {
	mock, repo := newMockRepo(t)

	ms := []model.ParsedMilestone{
		{Ordinal: "(a)", Title: "Signing", AmountValue: fptr(100000), AmountCurrency: model.CurrencyUSD, SortOrder: 1, Completed: true},
		{Ordinal: "(b)", Title: "Closing", AmountCurrency: model.CurrencyUSD, SortOrder: 2},
	}
	today := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	src := CompletionSource

	mock.ExpectExec(`INSERT INTO "billing_milestone" .+ VALUES \(\$1, .+\), \(\$15, .+\) ON CONFLICT \("engagement_id", "ordinal"\) DO UPDATE SET .+"completed" = "billing_milestone"."completed" OR EXCLUDED."completed"`).
		WithArgs(
			int64(5), int64(9), "(a)", "Signing", "", "", ms[0].AmountValue, "USD", false, (*float64)(nil), 1, true, &src, &today,
			int64(5), int64(9), "(b)", "Closing", "", "", (*float64)(nil), "USD", false, (*float64)(nil), 2, false, (*string)(nil), (*time.Time)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, repo.UpsertMilestones(context.Background(), 5, 9, ms))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMilestones_Empty(t *testing.T) {
	mock, repo := newMockRepo(t)
	require.NoError(t, repo.UpsertMilestones(context.Background(), 5, 9, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddFinanceComment_Dedup(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec("INSERT INTO billing_finance_comment").
		WithArgs(int64(5), "Invoice sent", Fingerprint("Invoice sent")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO billing_finance_comment").
		WithArgs(int64(5), "Invoice sent", Fingerprint("Invoice sent")).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := repo.AddFinanceComment(context.Background(), 5, " Invoice sent ")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.AddFinanceComment(context.Background(), 5, "Invoice sent")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.AddFinanceComment(context.Background(), 5, "  ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Fingerprint(""))
	assert.Len(t, Fingerprint("abc"), 32)
}

func TestUpdateFeeArrangement_KeepsStoredLongStop(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec(`(?s)UPDATE billing_fee_arrangement SET.+lsd_date = COALESCE\(\$3, lsd_date\).+refer_to = COALESCE\(\$5, refer_to\)`).
		WithArgs(int64(4), "(a) Signing", (*time.Time)(nil), (*string)(nil), (*string)(nil), false,
			(*string)(nil), (*float64)(nil), (*float64)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateFeeArrangement(context.Background(), &model.FeeArrangement{ID: 4, RawText: "(a) Signing"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
