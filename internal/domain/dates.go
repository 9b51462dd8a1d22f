package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseDate accepts a calendar date or an RFC 3339 timestamp and returns the
// calendar day it names.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// FormatDate renders t as the calendar day in UTC.
func FormatDate(t time.Time) string { return t.UTC().Format(DateLayout) }

// CheckDate rejects values that are neither empty nor a parseable date.
func CheckDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := ParseDate(value); err != nil {
		return Invalidf("%s must be an ISO-8601 date", field)
	}
	return nil
}

// CompareDates orders two non-empty date strings by calendar day.
func CompareDates(a, b string) int {
	ta, errA := ParseDate(a)
	tb, errB := ParseDate(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return ta.Compare(tb)
}

// CheckDateOrder enforces submission <= validation <= determination for the
// dates that are present.
func CheckDateOrder(app Application) error {
	fields := []struct{ name, value string }{
		{"submissionDate", app.SubmissionDate},
		{"validationDate", app.ValidationDate},
		{"determinationDate", app.DeterminationDate},
		{"eotDate", app.EOTDate},
	}
	for _, f := range fields {
		if err := CheckDate(f.name, f.value); err != nil {
			return err
		}
	}
	if app.SubmissionDate != "" && app.ValidationDate != "" && CompareDates(app.SubmissionDate, app.ValidationDate) > 0 {
		return Invalidf("Validation date cannot precede submission date")
	}
	if app.ValidationDate != "" && app.DeterminationDate != "" && CompareDates(app.ValidationDate, app.DeterminationDate) > 0 {
		return Invalidf("Determination date cannot precede validation date")
	}
	if app.ValidationDate == "" && app.SubmissionDate != "" && app.DeterminationDate != "" && CompareDates(app.SubmissionDate, app.DeterminationDate) > 0 {
		return Invalidf("Determination date cannot precede submission date")
	}
	return nil
}
