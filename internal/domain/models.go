package domain

import "time"

type ApplicationStatus string

const (
	StatusSubmitted   ApplicationStatus = "Submitted"
	StatusInvalidated ApplicationStatus = "Invalidated"
	StatusLive        ApplicationStatus = "Live"
	StatusDetermined  ApplicationStatus = "Determined"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusInvalidated, StatusLive, StatusDetermined:
		return true
	}
	return false
}

type ApplicationOutcome string

const (
	OutcomeApproved      ApplicationOutcome = "Approved"
	OutcomeRefused       ApplicationOutcome = "Refused"
	OutcomeWithdrawn     ApplicationOutcome = "Withdrawn"
	OutcomePending       ApplicationOutcome = "Pending"
	OutcomeNotApplicable ApplicationOutcome = "NotApplicable"
)

func (o ApplicationOutcome) Valid() bool {
	switch o {
	case OutcomeApproved, OutcomeRefused, OutcomeWithdrawn, OutcomePending, OutcomeNotApplicable:
		return true
	}
	return false
}

type IssueStatus string

const (
	IssueOpen       IssueStatus = "Open"
	IssueInProgress IssueStatus = "In Progress"
	IssueResolved   IssueStatus = "Resolved"
	IssueClosed     IssueStatus = "Closed"
)

// IssueStatusOrder is the display order used when listing issues.
var IssueStatusOrder = []IssueStatus{IssueOpen, IssueInProgress, IssueResolved, IssueClosed}

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueResolved, IssueClosed:
		return true
	}
	return false
}

// Unresolved reports whether an issue in this status still blocks validation.
func (s IssueStatus) Unresolved() bool {
	return s != IssueResolved && s != IssueClosed
}

// Application is the root aggregate. Calendar dates are ISO-8601 strings; an
// empty string means the date has not been recorded.
type Application struct {
	ID                string             `json:"applicationId"`
	PrjCodeName       string             `json:"prjCodeName"`
	PPReference       string             `json:"ppReference"`
	LPAReference      string             `json:"lpaReference,omitempty"`
	Description       string             `json:"description"`
	Council           string             `json:"council"`
	CaseOfficer       string             `json:"caseOfficer,omitempty"`
	CaseOfficerEmail  string             `json:"caseOfficerEmail,omitempty"`
	PlanningPortalURL string             `json:"planningPortalUrl,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	Status            ApplicationStatus  `json:"status"`
	Outcome           ApplicationOutcome `json:"outcome,omitempty"`
	SubmissionDate    string             `json:"submissionDate"`
	ValidationDate    string             `json:"validationDate,omitempty"`
	DeterminationDate string             `json:"determinationDate,omitempty"`
	EOTDate           string             `json:"eotDate,omitempty"`
	IssuesCount       int                `json:"issuesCount"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

type Issue struct {
	ID              string      `json:"issueId"`
	ApplicationID   string      `json:"applicationId"`
	PPReference     string      `json:"ppReference"`
	LPAReference    string      `json:"lpaReference,omitempty"`
	PrjCodeName     string      `json:"prjCodeName,omitempty"`
	Title           string      `json:"title"`
	Category        string      `json:"category"`
	Description     string      `json:"description"`
	RaisedBy        string      `json:"raisedBy,omitempty"`
	AssignedTo      string      `json:"assignedTo,omitempty"`
	DateRaised      string      `json:"dateRaised"`
	DueDate         string      `json:"dueDate,omitempty"`
	Status          IssueStatus `json:"status"`
	ResolutionNotes string      `json:"resolutionNotes,omitempty"`
	DateResolved    string      `json:"dateResolved,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// TimelineEvent is append-only; nothing in the system mutates or deletes one.
type TimelineEvent struct {
	ID            string            `json:"eventId"`
	ApplicationID string            `json:"applicationId"`
	Timestamp     time.Time         `json:"timestamp"`
	Stage         ApplicationStatus `json:"stage"`
	Event         string            `json:"event"`
	Details       string            `json:"details,omitempty"`
}

type ExtensionOfTime struct {
	ID            string    `json:"extensionId"`
	ApplicationID string    `json:"applicationId"`
	PPReference   string    `json:"ppReference"`
	PrjCodeName   string    `json:"prjCodeName,omitempty"`
	RequestedDate string    `json:"requestedDate,omitempty"`
	AgreedDate    string    `json:"agreedDate"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Aggregate is one application with all of its children. Timeline is sorted
// ascending by timestamp and Extensions ascending by agreed date.
type Aggregate struct {
	Application Application       `json:"application"`
	Issues      []Issue           `json:"issues"`
	Timeline    []TimelineEvent   `json:"timeline"`
	Extensions  []ExtensionOfTime `json:"extensions"`
}

// ApplicationChanges is a partial update. A nil field is left untouched; a
// pointer to the zero value clears the attribute.
type ApplicationChanges struct {
	PrjCodeName       *string
	PPReference       *string
	LPAReference      *string
	Description       *string
	Council           *string
	CaseOfficer       *string
	CaseOfficerEmail  *string
	PlanningPortalURL *string
	Notes             *string
	Status            *ApplicationStatus
	Outcome           *ApplicationOutcome
	SubmissionDate    *string
	ValidationDate    *string
	DeterminationDate *string
	EOTDate           *string
	IssuesCount       *int
	UpdatedAt         time.Time
}

// ApplyTo overlays the changes onto a copy of app.
func (c ApplicationChanges) ApplyTo(app Application) Application {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&app.PrjCodeName, c.PrjCodeName)
	set(&app.PPReference, c.PPReference)
	set(&app.LPAReference, c.LPAReference)
	set(&app.Description, c.Description)
	set(&app.Council, c.Council)
	set(&app.CaseOfficer, c.CaseOfficer)
	set(&app.CaseOfficerEmail, c.CaseOfficerEmail)
	set(&app.PlanningPortalURL, c.PlanningPortalURL)
	set(&app.Notes, c.Notes)
	set(&app.SubmissionDate, c.SubmissionDate)
	set(&app.ValidationDate, c.ValidationDate)
	set(&app.DeterminationDate, c.DeterminationDate)
	set(&app.EOTDate, c.EOTDate)
	if c.Status != nil {
		app.Status = *c.Status
	}
	if c.Outcome != nil {
		app.Outcome = *c.Outcome
	}
	if c.IssuesCount != nil {
		app.IssuesCount = *c.IssuesCount
	}
	if !c.UpdatedAt.IsZero() {
		app.UpdatedAt = c.UpdatedAt
	}
	return app
}

// FieldChange is one attribute touched by a partial update, named by its
// JSON field. Clear means the optional attribute is removed.
type FieldChange struct {
	Name  string
	Value any
	Clear bool
}

// Fields lists the attributes the update touches in a fixed order. Cleared
// optional strings are reported with Clear set.
func (c ApplicationChanges) Fields() []FieldChange {
	var out []FieldChange
	str := func(name string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			out = append(out, FieldChange{Name: name, Clear: true})
			return
		}
		out = append(out, FieldChange{Name: name, Value: *v})
	}
	str("prjCodeName", c.PrjCodeName)
	str("ppReference", c.PPReference)
	str("lpaReference", c.LPAReference)
	str("description", c.Description)
	str("council", c.Council)
	str("caseOfficer", c.CaseOfficer)
	str("caseOfficerEmail", c.CaseOfficerEmail)
	str("planningPortalUrl", c.PlanningPortalURL)
	str("notes", c.Notes)
	if c.Status != nil {
		out = append(out, FieldChange{Name: "status", Value: string(*c.Status)})
	}
	if c.Outcome != nil {
		s := string(*c.Outcome)
		str("outcome", &s)
	}
	str("submissionDate", c.SubmissionDate)
	str("validationDate", c.ValidationDate)
	str("determinationDate", c.DeterminationDate)
	str("eotDate", c.EOTDate)
	if c.IssuesCount != nil {
		out = append(out, FieldChange{Name: "issuesCount", Value: *c.IssuesCount})
	}
	return out
}

type Page struct {
	Items     []Application `json:"items"`
	NextToken string        `json:"nextToken,omitempty"`
}

type PageRequest struct {
	Limit  int
	Cursor string
}

const (
	DefaultPageLimit = 25
	MaxPageLimit     = 100
)
