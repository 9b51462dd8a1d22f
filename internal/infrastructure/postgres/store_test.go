package postgres

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"planning-tracker/internal/domain"
)

var created = time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func applicationRow(id, prj, submitted string) []driver.Value {
	return []driver.Value{id, prj, "PP-" + id, "", "Loft conversion", "York", "", "", "", "", "Submitted", "",
		submitted, "", "", "", 0, created, created}
}

var applicationHeaders = []string{"application_id", "prj_code_name", "pp_reference", "lpa_reference", "description",
	"council", "case_officer", "case_officer_email", "planning_portal_url", "notes", "status", "outcome",
	"submission_date", "validation_date", "determination_date", "eot_date", "issues_count", "created_at", "updated_at"}

var issueHeaders = []string{"issue_id", "application_id", "pp_reference", "lpa_reference", "prj_code_name", "title",
	"category", "description", "raised_by", "assigned_to", "date_raised", "due_date", "status", "resolution_notes",
	"date_resolved", "created_at", "updated_at"}

func TestMigrateAppliesEveryStatement(t *testing.T) {
	store, mock := newMockStore(t)
	for range 6 {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplication(t *testing.T) {
	store, mock := newMockStore(t)
	app := domain.Application{ID: "a1", PrjCodeName: "P1", PPReference: "PP-1", Description: "d", Council: "York",
		Status: domain.StatusSubmitted, SubmissionDate: "2025-01-01", CreatedAt: created, UpdatedAt: created}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WithArgs("a1", "P1", "PP-1", "", "d", "York", "", "", "", "", "Submitted", "", "2025-01-01", "", "", "", 0, created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateApplication(context.Background(), app))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplicationDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := store.CreateApplication(context.Background(), domain.Application{ID: "a1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateIssueForMissingApplication(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO issues")).WillReturnError(&pgconn.PgError{Code: foreignKeyViolation})

	err := store.CreateIssue(context.Background(), domain.Issue{ID: "i1", ApplicationID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetAggregateMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE application_id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(applicationHeaders))

	_, err := store.GetAggregate(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetAggregateLoadsChildren(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE application_id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(applicationHeaders).AddRow(applicationRow("a1", "P1", "2025-01-01")...))
	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE application_id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(issueHeaders).
			AddRow("i1", "a1", "PP-a1", "", "P1", "Missing plan", "Plans", "No site plan", "", "", "2025-01-02", "",
				"Open", "", "", created, created))
	mock.ExpectQuery(regexp.QuoteMeta("FROM timeline_events")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "application_id", "occurred_at", "stage", "event", "details"}).
			AddRow("e1", "a1", created, "Submitted", "Application Submitted", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM extensions_of_time")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"extension_id", "application_id", "pp_reference", "prj_code_name",
			"requested_date", "agreed_date", "notes", "created_at", "updated_at"}))

	agg, err := store.GetAggregate(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, agg.Application.Status)
	require.Len(t, agg.Issues, 1)
	assert.Equal(t, domain.IssueOpen, agg.Issues[0].Status)
	require.Len(t, agg.Timeline, 1)
	assert.Equal(t, domain.StatusSubmitted, agg.Timeline[0].Stage)
	assert.NotNil(t, agg.Extensions)
	assert.Empty(t, agg.Extensions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildApplicationUpdate(t *testing.T) {
	live := domain.StatusLive
	date := "2025-01-09"
	cleared := ""
	count := 0
	query, args, err := buildApplicationUpdate("a1", domain.ApplicationChanges{
		Status: &live, ValidationDate: &date, Notes: &cleared, IssuesCount: &count, UpdatedAt: created,
	})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE applications SET updated_at = $1, notes = $2, status = $3, validation_date = $4, issues_count = $5 WHERE application_id = $6", query)
	assert.Equal(t, []any{created, "", "Live", "2025-01-09", 0, "a1"}, args)
}

func TestUpdateApplicationMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateApplication(context.Background(), "a1", domain.ApplicationChanges{UpdatedAt: created}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteIssueMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM issues")).WithArgs("a1", "i9").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteIssue(context.Background(), "a1", "i9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListApplicationsByStatusPages(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY submission_date DESC, application_id DESC LIMIT $2")).
		WithArgs("Submitted", 2).
		WillReturnRows(sqlmock.NewRows(applicationHeaders).
			AddRow(applicationRow("a2", "P2", "2025-02-01")...).
			AddRow(applicationRow("a1", "P1", "2025-01-01")...))

	page, err := store.ListApplicationsByStatus(context.Background(), domain.StatusSubmitted, domain.PageRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a2", page.Items[0].ID)
	require.NotEmpty(t, page.NextToken)

	mock.ExpectQuery(regexp.QuoteMeta("AND (submission_date, application_id) < ($2, $3)")).
		WithArgs("Submitted", "2025-02-01", "a2", 2).
		WillReturnRows(sqlmock.NewRows(applicationHeaders).AddRow(applicationRow("a1", "P1", "2025-01-01")...))

	page, err = store.ListApplicationsByStatus(context.Background(), domain.StatusSubmitted, domain.PageRequest{Limit: 1, Cursor: page.NextToken})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListApplicationsRejectsBadCursor(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.ListApplicationsByStatus(context.Background(), domain.StatusLive, domain.PageRequest{Limit: 5, Cursor: "bm9waXBl"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListIssuesFiltersByStatus(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE status = $1")).
		WithArgs("Resolved").
		WillReturnRows(sqlmock.NewRows(issueHeaders))

	issues, err := store.ListIssues(context.Background(), domain.IssueResolved)
	require.NoError(t, err)
	assert.Empty(t, issues)
}
