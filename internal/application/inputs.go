package application

import (
	"strings"

	"planning-tracker/internal/domain"
)

type CreateApplicationInput struct {
	PrjCodeName       string
	PPReference       string
	LPAReference      string
	Description       string
	Council           string
	SubmissionDate    string
	ValidationDate    string
	DeterminationDate string
	EOTDate           string
	CaseOfficer       string
	CaseOfficerEmail  string
	PlanningPortalURL string
	Notes             string
}

func (in *CreateApplicationInput) normalise() {
	for _, f := range []*string{
		&in.PrjCodeName, &in.PPReference, &in.LPAReference, &in.Description, &in.Council,
		&in.SubmissionDate, &in.ValidationDate, &in.DeterminationDate, &in.EOTDate,
		&in.CaseOfficer, &in.CaseOfficerEmail, &in.PlanningPortalURL, &in.Notes,
	} {
		*f = strings.TrimSpace(*f)
	}
}

func (in CreateApplicationInput) validate() error {
	required := []struct{ name, value string }{
		{"prjCodeName", in.PrjCodeName},
		{"ppReference", in.PPReference},
		{"description", in.Description},
		{"council", in.Council},
		{"submissionDate", in.SubmissionDate},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.Invalidf("%s is required", r.name)
		}
	}
	return nil
}

// trimPointers replaces each non-nil value with a trimmed copy so the
// caller's strings are never modified.
func trimPointers(fields ...**string) {
	for _, f := range fields {
		if *f == nil {
			continue
		}
		v := strings.TrimSpace(**f)
		*f = &v
	}
}

// ApplicationPatch carries the attributes a caller may change. Nil leaves an
// attribute alone; an empty string clears an optional one.
type ApplicationPatch struct {
	Status            *domain.ApplicationStatus
	Outcome           *domain.ApplicationOutcome
	ValidationDate    *string
	DeterminationDate *string
	EOTDate           *string
	Council           *string
	Description       *string
	LPAReference      *string
	PlanningPortalURL *string
	CaseOfficer       *string
	CaseOfficerEmail  *string
	Notes             *string
}

func (p *ApplicationPatch) normalise() {
	trimPointers(&p.ValidationDate, &p.DeterminationDate, &p.EOTDate, &p.Council, &p.Description,
		&p.LPAReference, &p.PlanningPortalURL, &p.CaseOfficer, &p.CaseOfficerEmail, &p.Notes)
}

func (p ApplicationPatch) validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return domain.Invalidf("Unknown application status %q", *p.Status)
	}
	if p.Outcome != nil && !p.Outcome.Valid() {
		return domain.Invalidf("Unknown application outcome %q", *p.Outcome)
	}
	if p.Council != nil && *p.Council == "" {
		return domain.Invalidf("council cannot be blank")
	}
	if p.Description != nil && *p.Description == "" {
		return domain.Invalidf("description cannot be blank")
	}
	return nil
}

func (p ApplicationPatch) changes() domain.ApplicationChanges {
	return domain.ApplicationChanges{
		Status:            p.Status,
		Outcome:           p.Outcome,
		ValidationDate:    p.ValidationDate,
		DeterminationDate: p.DeterminationDate,
		EOTDate:           p.EOTDate,
		Council:           p.Council,
		Description:       p.Description,
		LPAReference:      p.LPAReference,
		PlanningPortalURL: p.PlanningPortalURL,
		CaseOfficer:       p.CaseOfficer,
		CaseOfficerEmail:  p.CaseOfficerEmail,
		Notes:             p.Notes,
	}
}

type CreateIssueInput struct {
	ApplicationID string
	PPReference   string
	LPAReference  string
	Title         string
	Category      string
	Description   string
	RaisedBy      string
	AssignedTo    string
	DateRaised    string
	DueDate       string
	Status        domain.IssueStatus
}

func (in *CreateIssueInput) normalise() {
	for _, f := range []*string{
		&in.PPReference, &in.LPAReference, &in.Title, &in.Category, &in.Description,
		&in.RaisedBy, &in.AssignedTo, &in.DateRaised, &in.DueDate,
	} {
		*f = strings.TrimSpace(*f)
	}
	if in.Status == "" {
		in.Status = domain.IssueOpen
	}
}

func (in CreateIssueInput) validate() error {
	required := []struct{ name, value string }{
		{"title", in.Title},
		{"category", in.Category},
		{"description", in.Description},
		{"dateRaised", in.DateRaised},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.Invalidf("%s is required", r.name)
		}
	}
	if in.Status != domain.IssueOpen && in.Status != domain.IssueInProgress {
		return domain.Invalidf("New issues must be Open or In Progress")
	}
	if err := domain.CheckDate("dateRaised", in.DateRaised); err != nil {
		return err
	}
	return domain.CheckDate("dueDate", in.DueDate)
}

type IssuePatch struct {
	Title           *string
	Category        *string
	Description     *string
	RaisedBy        *string
	AssignedTo      *string
	DateRaised      *string
	DueDate         *string
	Status          *domain.IssueStatus
	ResolutionNotes *string
	DateResolved    *string
}

func (p *IssuePatch) normalise() {
	trimPointers(&p.Title, &p.Category, &p.Description, &p.RaisedBy, &p.AssignedTo,
		&p.DateRaised, &p.DueDate, &p.ResolutionNotes, &p.DateResolved)
}

func (p IssuePatch) validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return domain.Invalidf("Unknown issue status %q", *p.Status)
	}
	blank := []struct {
		name  string
		value *string
	}{
		{"title", p.Title},
		{"category", p.Category},
		{"description", p.Description},
		{"dateRaised", p.DateRaised},
	}
	for _, b := range blank {
		if b.value != nil && *b.value == "" {
			return domain.Invalidf("%s cannot be blank", b.name)
		}
	}
	for _, d := range []struct {
		name  string
		value *string
	}{{"dateRaised", p.DateRaised}, {"dueDate", p.DueDate}, {"dateResolved", p.DateResolved}} {
		if d.value != nil {
			if err := domain.CheckDate(d.name, *d.value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p IssuePatch) applyTo(issue domain.Issue) domain.Issue {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&issue.Title, p.Title)
	set(&issue.Category, p.Category)
	set(&issue.Description, p.Description)
	set(&issue.RaisedBy, p.RaisedBy)
	set(&issue.AssignedTo, p.AssignedTo)
	set(&issue.DateRaised, p.DateRaised)
	set(&issue.DueDate, p.DueDate)
	set(&issue.ResolutionNotes, p.ResolutionNotes)
	set(&issue.DateResolved, p.DateResolved)
	if p.Status != nil {
		issue.Status = *p.Status
	}
	return issue
}

type ExtensionInput struct {
	RequestedDate string
	AgreedDate    string
	Notes         string
}

func (in *ExtensionInput) normalise() {
	in.RequestedDate = strings.TrimSpace(in.RequestedDate)
	in.AgreedDate = strings.TrimSpace(in.AgreedDate)
	in.Notes = strings.TrimSpace(in.Notes)
}

func (in ExtensionInput) validate() error {
	if in.AgreedDate == "" {
		return domain.Invalidf("agreedDate is required")
	}
	if err := domain.CheckDate("agreedDate", in.AgreedDate); err != nil {
		return err
	}
	return domain.CheckDate("requestedDate", in.RequestedDate)
}

// timelineDetails renders the agreed date with any notes appended.
func (in ExtensionInput) timelineDetails() string {
	if in.Notes == "" {
		return in.AgreedDate
	}
	return in.AgreedDate + " – " + in.Notes
}
