package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplicationChanges_ApplyTo(t *testing.T) {
	updated := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	app := Application{
		Council:     "Leeds",
		Notes:       "call back",
		Status:      StatusSubmitted,
		IssuesCount: 1,
	}
	council, notes := "York", ""
	status := StatusLive
	count := 0

	got := ApplicationChanges{Council: &council, Notes: &notes, Status: &status, IssuesCount: &count, UpdatedAt: updated}.ApplyTo(app)
	assert.Equal(t, "York", got.Council)
	assert.Empty(t, got.Notes)
	assert.Equal(t, StatusLive, got.Status)
	assert.Zero(t, got.IssuesCount)
	assert.Equal(t, updated, got.UpdatedAt)

	assert.Equal(t, "Leeds", app.Council, "input must not be modified")
	assert.Equal(t, app, ApplicationChanges{}.ApplyTo(app))
}

func TestApplicationChanges_Fields(t *testing.T) {
	council, email, validation := "York", "", "2025-02-02"
	status := StatusInvalidated
	outcome := OutcomeApproved
	count := 3

	fields := ApplicationChanges{
		Council:          &council,
		CaseOfficerEmail: &email,
		Status:           &status,
		Outcome:          &outcome,
		ValidationDate:   &validation,
		IssuesCount:      &count,
	}.Fields()

	assert.Equal(t, []FieldChange{
		{Name: "council", Value: "York"},
		{Name: "caseOfficerEmail", Clear: true},
		{Name: "status", Value: "Invalidated"},
		{Name: "outcome", Value: "Approved"},
		{Name: "validationDate", Value: "2025-02-02"},
		{Name: "issuesCount", Value: 3},
	}, fields)

	assert.Empty(t, ApplicationChanges{UpdatedAt: time.Now()}.Fields())
}

func TestUnresolvedCount(t *testing.T) {
	issues := []Issue{
		{Status: IssueOpen},
		{Status: IssueInProgress},
		{Status: IssueResolved},
		{Status: IssueClosed},
	}
	assert.Equal(t, 2, UnresolvedCount(issues))
	assert.Zero(t, UnresolvedCount(nil))
}

func TestLatestAgreedDate(t *testing.T) {
	assert.Empty(t, LatestAgreedDate(nil))
	assert.Equal(t, "2025-07-01", LatestAgreedDate([]ExtensionOfTime{
		{AgreedDate: "2025-05-01"},
		{AgreedDate: "2025-07-01"},
		{AgreedDate: "2025-06-15"},
	}))
}

func TestErrorsMatchSentinels(t *testing.T) {
	assert.ErrorIs(t, NotFound("issue"), ErrNotFound)
	assert.EqualError(t, NotFound("issue"), "issue not found")
	assert.ErrorIs(t, Invalidf("bad %s", "thing"), ErrInvalidInput)

	cause := errors.New("throttled")
	wrapped := WrapStore("dynamodb put", cause)
	var storeErr *StoreError
	assert.ErrorAs(t, wrapped, &storeErr)
	assert.ErrorIs(t, wrapped, cause)
	assert.EqualError(t, wrapped, "dynamodb put: throttled")

	assert.NoError(t, WrapStore("noop", nil))
	notFound := NotFound("application")
	assert.Equal(t, notFound, WrapStore("get", notFound))
}
