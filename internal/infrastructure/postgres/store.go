// Package postgres stores application aggregates in four relational tables.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

var _ ports.AggregateStore = (*Store)(nil)

const driverName = "pgx"

//go:embed schema.sql
var schema string

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

// Open connects, pings and applies the schema. With traced set every
// statement is recorded as an X-Ray SQL subsegment.
func Open(ctx context.Context, dsn string, traced bool) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	if traced {
		db, err = xray.SQLContext(driverName, dsn)
	} else {
		db, err = sql.Open(driverName, dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate applies every statement of the embedded schema. All statements are
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// exec runs a single-row write and reports whether a row was affected.
func (s *Store) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const applicationColumns = `application_id, prj_code_name, pp_reference, lpa_reference, description, council,
	case_officer, case_officer_email, planning_portal_url, notes, status, outcome,
	submission_date, validation_date, determination_date, eot_date, issues_count, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (domain.Application, error) {
	var (
		app             domain.Application
		status, outcome string
	)
	err := row.Scan(&app.ID, &app.PrjCodeName, &app.PPReference, &app.LPAReference, &app.Description, &app.Council,
		&app.CaseOfficer, &app.CaseOfficerEmail, &app.PlanningPortalURL, &app.Notes, &status, &outcome,
		&app.SubmissionDate, &app.ValidationDate, &app.DeterminationDate, &app.EOTDate, &app.IssuesCount,
		&app.CreatedAt, &app.UpdatedAt)
	app.Status = domain.ApplicationStatus(status)
	app.Outcome = domain.ApplicationOutcome(outcome)
	app.CreatedAt, app.UpdatedAt = app.CreatedAt.UTC(), app.UpdatedAt.UTC()
	return app, err
}

func (s *Store) CreateApplication(ctx context.Context, app domain.Application) error {
	_, err := s.exec(ctx, `INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		app.ID, app.PrjCodeName, app.PPReference, app.LPAReference, app.Description, app.Council,
		app.CaseOfficer, app.CaseOfficerEmail, app.PlanningPortalURL, app.Notes, string(app.Status), string(app.Outcome),
		app.SubmissionDate, app.ValidationDate, app.DeterminationDate, app.EOTDate, app.IssuesCount,
		app.CreatedAt, app.UpdatedAt)
	if pgCode(err) == uniqueViolation {
		return domain.Invalidf("application already exists")
	}
	return domain.WrapStore("postgres insert application", err)
}

func (s *Store) GetAggregate(ctx context.Context, appID string) (domain.Aggregate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE application_id = $1`, appID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Aggregate{}, domain.NotFound("application")
	}
	if err != nil {
		return domain.Aggregate{}, domain.WrapStore("postgres select application", err)
	}
	agg := domain.Aggregate{Application: app}
	if agg.Issues, err = s.queryIssues(ctx, `WHERE application_id = $1 ORDER BY created_at`, appID); err != nil {
		return domain.Aggregate{}, err
	}
	if agg.Timeline, err = s.queryTimeline(ctx, appID); err != nil {
		return domain.Aggregate{}, err
	}
	if agg.Extensions, err = s.queryExtensions(ctx, appID); err != nil {
		return domain.Aggregate{}, err
	}
	return agg, nil
}

// applicationColumnNames maps update field names onto columns.
var applicationColumnNames = map[string]string{
	"prjCodeName":       "prj_code_name",
	"ppReference":       "pp_reference",
	"lpaReference":      "lpa_reference",
	"description":       "description",
	"council":           "council",
	"caseOfficer":       "case_officer",
	"caseOfficerEmail":  "case_officer_email",
	"planningPortalUrl": "planning_portal_url",
	"notes":             "notes",
	"status":            "status",
	"outcome":           "outcome",
	"submissionDate":    "submission_date",
	"validationDate":    "validation_date",
	"determinationDate": "determination_date",
	"eotDate":           "eot_date",
	"issuesCount":       "issues_count",
}

func buildApplicationUpdate(appID string, changes domain.ApplicationChanges) (string, []any, error) {
	sets := []string{"updated_at = $1"}
	args := []any{changes.UpdatedAt}
	for _, f := range changes.Fields() {
		col, ok := applicationColumnNames[f.Name]
		if !ok {
			return "", nil, fmt.Errorf("unknown application field %q", f.Name)
		}
		value := f.Value
		if f.Clear {
			value = ""
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	args = append(args, appID)
	query := fmt.Sprintf("UPDATE applications SET %s WHERE application_id = $%d", strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func (s *Store) UpdateApplication(ctx context.Context, appID string, changes domain.ApplicationChanges, _ *domain.Application) error {
	if changes.UpdatedAt.IsZero() {
		changes.UpdatedAt = time.Now().UTC()
	}
	query, args, err := buildApplicationUpdate(appID, changes)
	if err != nil {
		return domain.WrapStore("postgres build application update", err)
	}
	ok, err := s.exec(ctx, query, args...)
	if err != nil {
		return domain.WrapStore("postgres update application", err)
	}
	if !ok {
		return domain.NotFound("application")
	}
	return nil
}

func (s *Store) DeleteApplication(ctx context.Context, appID string) error {
	ok, err := s.exec(ctx, `DELETE FROM applications WHERE application_id = $1`, appID)
	if err != nil {
		return domain.WrapStore("postgres delete application", err)
	}
	if !ok {
		return domain.NotFound("application")
	}
	return nil
}

const issueColumns = `issue_id, application_id, pp_reference, lpa_reference, prj_code_name, title, category,
	description, raised_by, assigned_to, date_raised, due_date, status, resolution_notes, date_resolved,
	created_at, updated_at`

func issueArgs(i domain.Issue) []any {
	return []any{i.ID, i.ApplicationID, i.PPReference, i.LPAReference, i.PrjCodeName, i.Title, i.Category,
		i.Description, i.RaisedBy, i.AssignedTo, i.DateRaised, i.DueDate, string(i.Status), i.ResolutionNotes,
		i.DateResolved, i.CreatedAt, i.UpdatedAt}
}

func scanIssue(row scanner) (domain.Issue, error) {
	var (
		issue  domain.Issue
		status string
	)
	err := row.Scan(&issue.ID, &issue.ApplicationID, &issue.PPReference, &issue.LPAReference, &issue.PrjCodeName,
		&issue.Title, &issue.Category, &issue.Description, &issue.RaisedBy, &issue.AssignedTo, &issue.DateRaised,
		&issue.DueDate, &status, &issue.ResolutionNotes, &issue.DateResolved, &issue.CreatedAt, &issue.UpdatedAt)
	issue.Status = domain.IssueStatus(status)
	issue.CreatedAt, issue.UpdatedAt = issue.CreatedAt.UTC(), issue.UpdatedAt.UTC()
	return issue, err
}

func (s *Store) queryIssues(ctx context.Context, where string, args ...any) ([]domain.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues `+where, args...)
	if err != nil {
		return nil, domain.WrapStore("postgres select issues", err)
	}
	defer func() { _ = rows.Close() }()
	issues := []domain.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, domain.WrapStore("postgres scan issue", err)
		}
		issues = append(issues, issue)
	}
	return issues, domain.WrapStore("postgres iterate issues", rows.Err())
}

func (s *Store) CreateIssue(ctx context.Context, issue domain.Issue) error {
	_, err := s.exec(ctx, `INSERT INTO issues (`+issueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`, issueArgs(issue)...)
	switch pgCode(err) {
	case uniqueViolation:
		return domain.Invalidf("issue already exists")
	case foreignKeyViolation:
		return domain.NotFound("application")
	}
	return domain.WrapStore("postgres insert issue", err)
}

func (s *Store) UpdateIssue(ctx context.Context, issue domain.Issue) error {
	ok, err := s.exec(ctx, `UPDATE issues SET pp_reference = $3, lpa_reference = $4, prj_code_name = $5, title = $6,
		category = $7, description = $8, raised_by = $9, assigned_to = $10, date_raised = $11, due_date = $12,
		status = $13, resolution_notes = $14, date_resolved = $15, created_at = $16, updated_at = $17
		WHERE issue_id = $1 AND application_id = $2`, issueArgs(issue)...)
	if err != nil {
		return domain.WrapStore("postgres update issue", err)
	}
	if !ok {
		return domain.NotFound("issue")
	}
	return nil
}

func (s *Store) GetIssue(ctx context.Context, appID, issueID string) (domain.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE application_id = $1 AND issue_id = $2`, appID, issueID)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Issue{}, domain.NotFound("issue")
	}
	return issue, domain.WrapStore("postgres select issue", err)
}

func (s *Store) DeleteIssue(ctx context.Context, appID, issueID string) error {
	ok, err := s.exec(ctx, `DELETE FROM issues WHERE application_id = $1 AND issue_id = $2`, appID, issueID)
	if err != nil {
		return domain.WrapStore("postgres delete issue", err)
	}
	if !ok {
		return domain.NotFound("issue")
	}
	return nil
}

func (s *Store) PutTimelineEvent(ctx context.Context, event domain.TimelineEvent) error {
	_, err := s.exec(ctx, `INSERT INTO timeline_events (event_id, application_id, occurred_at, stage, event, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ApplicationID, event.Timestamp, string(event.Stage), event.Event, event.Details)
	if pgCode(err) == foreignKeyViolation {
		return domain.NotFound("application")
	}
	return domain.WrapStore("postgres insert timeline event", err)
}

func (s *Store) queryTimeline(ctx context.Context, appID string) ([]domain.TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, application_id, occurred_at, stage, event, details
		FROM timeline_events WHERE application_id = $1 ORDER BY occurred_at, event_id`, appID)
	if err != nil {
		return nil, domain.WrapStore("postgres select timeline", err)
	}
	defer func() { _ = rows.Close() }()
	events := []domain.TimelineEvent{}
	for rows.Next() {
		var (
			ev    domain.TimelineEvent
			stage string
		)
		if err := rows.Scan(&ev.ID, &ev.ApplicationID, &ev.Timestamp, &stage, &ev.Event, &ev.Details); err != nil {
			return nil, domain.WrapStore("postgres scan timeline event", err)
		}
		ev.Stage = domain.ApplicationStatus(stage)
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	return events, domain.WrapStore("postgres iterate timeline", rows.Err())
}

const extensionColumns = `extension_id, application_id, pp_reference, prj_code_name, requested_date, agreed_date,
	notes, created_at, updated_at`

func extensionArgs(e domain.ExtensionOfTime) []any {
	return []any{e.ID, e.ApplicationID, e.PPReference, e.PrjCodeName, e.RequestedDate, e.AgreedDate, e.Notes,
		e.CreatedAt, e.UpdatedAt}
}

func scanExtension(row scanner) (domain.ExtensionOfTime, error) {
	var ext domain.ExtensionOfTime
	err := row.Scan(&ext.ID, &ext.ApplicationID, &ext.PPReference, &ext.PrjCodeName, &ext.RequestedDate,
		&ext.AgreedDate, &ext.Notes, &ext.CreatedAt, &ext.UpdatedAt)
	ext.CreatedAt, ext.UpdatedAt = ext.CreatedAt.UTC(), ext.UpdatedAt.UTC()
	return ext, err
}

func (s *Store) queryExtensions(ctx context.Context, appID string) ([]domain.ExtensionOfTime, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+extensionColumns+` FROM extensions_of_time
		WHERE application_id = $1 ORDER BY agreed_date, created_at`, appID)
	if err != nil {
		return nil, domain.WrapStore("postgres select extensions", err)
	}
	defer func() { _ = rows.Close() }()
	exts := []domain.ExtensionOfTime{}
	for rows.Next() {
		ext, err := scanExtension(rows)
		if err != nil {
			return nil, domain.WrapStore("postgres scan extension", err)
		}
		exts = append(exts, ext)
	}
	return exts, domain.WrapStore("postgres iterate extensions", rows.Err())
}

func (s *Store) CreateExtension(ctx context.Context, ext domain.ExtensionOfTime) error {
	_, err := s.exec(ctx, `INSERT INTO extensions_of_time (`+extensionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, extensionArgs(ext)...)
	switch pgCode(err) {
	case uniqueViolation:
		return domain.Invalidf("extension of time already exists")
	case foreignKeyViolation:
		return domain.NotFound("application")
	}
	return domain.WrapStore("postgres insert extension", err)
}

func (s *Store) UpdateExtension(ctx context.Context, ext domain.ExtensionOfTime) error {
	ok, err := s.exec(ctx, `UPDATE extensions_of_time SET pp_reference = $3, prj_code_name = $4, requested_date = $5,
		agreed_date = $6, notes = $7, created_at = $8, updated_at = $9
		WHERE extension_id = $1 AND application_id = $2`, extensionArgs(ext)...)
	if err != nil {
		return domain.WrapStore("postgres update extension", err)
	}
	if !ok {
		return domain.NotFound("extension of time")
	}
	return nil
}

func (s *Store) GetExtension(ctx context.Context, appID, extensionID string) (domain.ExtensionOfTime, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+extensionColumns+` FROM extensions_of_time
		WHERE application_id = $1 AND extension_id = $2`, appID, extensionID)
	ext, err := scanExtension(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExtensionOfTime{}, domain.NotFound("extension of time")
	}
	return ext, domain.WrapStore("postgres select extension", err)
}

// ListApplicationsByStatus pages by keyset on (submission_date, application_id),
// newest first. The token carries the last row's key.
func (s *Store) ListApplicationsByStatus(ctx context.Context, status domain.ApplicationStatus, page domain.PageRequest) (domain.Page, error) {
	args := []any{string(status)}
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE status = $1`
	if page.Cursor != "" {
		date, id, err := decodeCursor(page.Cursor)
		if err != nil {
			return domain.Page{}, domain.Invalidf("invalid pagination token")
		}
		args = append(args, date, id)
		query += ` AND (submission_date, application_id) < ($2, $3)`
	}
	args = append(args, page.Limit+1)
	query += fmt.Sprintf(` ORDER BY submission_date DESC, application_id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Page{}, domain.WrapStore("postgres list applications", err)
	}
	defer func() { _ = rows.Close() }()
	out := domain.Page{Items: []domain.Application{}}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return domain.Page{}, domain.WrapStore("postgres scan application", err)
		}
		out.Items = append(out.Items, app)
	}
	if err := rows.Err(); err != nil {
		return domain.Page{}, domain.WrapStore("postgres iterate applications", err)
	}
	if len(out.Items) > page.Limit {
		out.Items = out.Items[:page.Limit]
		last := out.Items[len(out.Items)-1]
		out.NextToken = encodeCursor(last.SubmissionDate, last.ID)
	}
	return out, nil
}

func (s *Store) ListIssues(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error) {
	if status == "" {
		return s.queryIssues(ctx, `ORDER BY created_at`)
	}
	return s.queryIssues(ctx, `WHERE status = $1 ORDER BY created_at`, string(status))
}

func encodeCursor(submissionDate, appID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(submissionDate + "|" + appID))
}

func decodeCursor(token string) (string, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", err
	}
	date, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return "", "", errors.New("malformed cursor")
	}
	return date, id, nil
}
