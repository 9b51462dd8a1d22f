package dynamodb

import (
	"slices"
	"time"

	"planning-tracker/internal/domain"
)

const (
	entityApplication = "Application"
	entityIssue       = "Issue"
	entityTimeline    = "TimelineEvent"
	entityExtension   = "ExtensionOfTime"

	statusIndex    = "GSI1"
	referenceIndex = "GSI2"

	noDueDate = "9999-12-31"
)

func appPK(appID string) string              { return "APP#" + appID }
func appSK(appID string) string              { return "APP#" + appID }
func issueSK(issueID string) string          { return "ISSUE#" + issueID }
func extensionSK(extID string) string        { return "EOT#" + extID }
func ppKey(ref string) string                { return "PP#" + ref }
func appStatusKey(status string) string      { return "STATUS#" + status }
func issueStatusKey(status string) string    { return "STATUS#Issue#" + status }
func submittedKey(date, appID string) string { return "SUBMITTED#" + date + "#APP#" + appID }

// eventSK sorts lexically by time; the event id keeps two events stamped in
// the same instant from overwriting each other.
func eventSK(ts time.Time, eventID string) string {
	return "EVENT#" + formatTime(ts) + "#" + eventID
}

// Fixed-width nanoseconds so sort keys order the same as the instants.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

type keyItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

type entityProbe struct {
	EntityType string `dynamodbav:"entityType"`
}

type applicationItem struct {
	PK                string `dynamodbav:"PK"`
	SK                string `dynamodbav:"SK"`
	GSI1PK            string `dynamodbav:"GSI1PK"`
	GSI1SK            string `dynamodbav:"GSI1SK"`
	GSI2PK            string `dynamodbav:"GSI2PK"`
	GSI2SK            string `dynamodbav:"GSI2SK"`
	EntityType        string `dynamodbav:"entityType"`
	ApplicationID     string `dynamodbav:"applicationId"`
	PrjCodeName       string `dynamodbav:"prjCodeName"`
	PPReference       string `dynamodbav:"ppReference"`
	LPAReference      string `dynamodbav:"lpaReference,omitempty"`
	Description       string `dynamodbav:"description"`
	Council           string `dynamodbav:"council"`
	CaseOfficer       string `dynamodbav:"caseOfficer,omitempty"`
	CaseOfficerEmail  string `dynamodbav:"caseOfficerEmail,omitempty"`
	PlanningPortalURL string `dynamodbav:"planningPortalUrl,omitempty"`
	Notes             string `dynamodbav:"notes,omitempty"`
	Status            string `dynamodbav:"status"`
	Outcome           string `dynamodbav:"outcome,omitempty"`
	SubmissionDate    string `dynamodbav:"submissionDate"`
	ValidationDate    string `dynamodbav:"validationDate,omitempty"`
	DeterminationDate string `dynamodbav:"determinationDate,omitempty"`
	EOTDate           string `dynamodbav:"eotDate,omitempty"`
	IssuesCount       int    `dynamodbav:"issuesCount"`
	CreatedAt         string `dynamodbav:"createdAt"`
	UpdatedAt         string `dynamodbav:"updatedAt"`
}

func toApplicationItem(app domain.Application) applicationItem {
	return applicationItem{
		PK:                appPK(app.ID),
		SK:                appSK(app.ID),
		GSI1PK:            appStatusKey(string(app.Status)),
		GSI1SK:            submittedKey(app.SubmissionDate, app.ID),
		GSI2PK:            ppKey(app.PPReference),
		GSI2SK:            appSK(app.ID),
		EntityType:        entityApplication,
		ApplicationID:     app.ID,
		PrjCodeName:       app.PrjCodeName,
		PPReference:       app.PPReference,
		LPAReference:      app.LPAReference,
		Description:       app.Description,
		Council:           app.Council,
		CaseOfficer:       app.CaseOfficer,
		CaseOfficerEmail:  app.CaseOfficerEmail,
		PlanningPortalURL: app.PlanningPortalURL,
		Notes:             app.Notes,
		Status:            string(app.Status),
		Outcome:           string(app.Outcome),
		SubmissionDate:    app.SubmissionDate,
		ValidationDate:    app.ValidationDate,
		DeterminationDate: app.DeterminationDate,
		EOTDate:           app.EOTDate,
		IssuesCount:       app.IssuesCount,
		CreatedAt:         formatTime(app.CreatedAt),
		UpdatedAt:         formatTime(app.UpdatedAt),
	}
}

func (it applicationItem) domain() domain.Application {
	return domain.Application{
		ID:                it.ApplicationID,
		PrjCodeName:       it.PrjCodeName,
		PPReference:       it.PPReference,
		LPAReference:      it.LPAReference,
		Description:       it.Description,
		Council:           it.Council,
		CaseOfficer:       it.CaseOfficer,
		CaseOfficerEmail:  it.CaseOfficerEmail,
		PlanningPortalURL: it.PlanningPortalURL,
		Notes:             it.Notes,
		Status:            domain.ApplicationStatus(it.Status),
		Outcome:           domain.ApplicationOutcome(it.Outcome),
		SubmissionDate:    it.SubmissionDate,
		ValidationDate:    it.ValidationDate,
		DeterminationDate: it.DeterminationDate,
		EOTDate:           it.EOTDate,
		IssuesCount:       it.IssuesCount,
		CreatedAt:         parseTime(it.CreatedAt),
		UpdatedAt:         parseTime(it.UpdatedAt),
	}
}

type issueItem struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	GSI1PK          string `dynamodbav:"GSI1PK"`
	GSI1SK          string `dynamodbav:"GSI1SK"`
	GSI2PK          string `dynamodbav:"GSI2PK"`
	GSI2SK          string `dynamodbav:"GSI2SK"`
	EntityType      string `dynamodbav:"entityType"`
	IssueID         string `dynamodbav:"issueId"`
	ApplicationID   string `dynamodbav:"applicationId"`
	PPReference     string `dynamodbav:"ppReference"`
	LPAReference    string `dynamodbav:"lpaReference,omitempty"`
	PrjCodeName     string `dynamodbav:"prjCodeName,omitempty"`
	Title           string `dynamodbav:"title"`
	Category        string `dynamodbav:"category"`
	Description     string `dynamodbav:"description"`
	RaisedBy        string `dynamodbav:"raisedBy,omitempty"`
	AssignedTo      string `dynamodbav:"assignedTo,omitempty"`
	DateRaised      string `dynamodbav:"dateRaised"`
	DueDate         string `dynamodbav:"dueDate,omitempty"`
	Status          string `dynamodbav:"status"`
	ResolutionNotes string `dynamodbav:"resolutionNotes,omitempty"`
	DateResolved    string `dynamodbav:"dateResolved,omitempty"`
	CreatedAt       string `dynamodbav:"createdAt"`
	UpdatedAt       string `dynamodbav:"updatedAt"`
}

func toIssueItem(issue domain.Issue) issueItem {
	due := issue.DueDate
	if due == "" {
		due = noDueDate
	}
	return issueItem{
		PK:              appPK(issue.ApplicationID),
		SK:              issueSK(issue.ID),
		GSI1PK:          issueStatusKey(string(issue.Status)),
		GSI1SK:          "DUE#" + due + "#ISSUE#" + issue.ID,
		GSI2PK:          ppKey(issue.PPReference),
		GSI2SK:          issueSK(issue.ID),
		EntityType:      entityIssue,
		IssueID:         issue.ID,
		ApplicationID:   issue.ApplicationID,
		PPReference:     issue.PPReference,
		LPAReference:    issue.LPAReference,
		PrjCodeName:     issue.PrjCodeName,
		Title:           issue.Title,
		Category:        issue.Category,
		Description:     issue.Description,
		RaisedBy:        issue.RaisedBy,
		AssignedTo:      issue.AssignedTo,
		DateRaised:      issue.DateRaised,
		DueDate:         issue.DueDate,
		Status:          string(issue.Status),
		ResolutionNotes: issue.ResolutionNotes,
		DateResolved:    issue.DateResolved,
		CreatedAt:       formatTime(issue.CreatedAt),
		UpdatedAt:       formatTime(issue.UpdatedAt),
	}
}

func (it issueItem) domain() domain.Issue {
	return domain.Issue{
		ID:              it.IssueID,
		ApplicationID:   it.ApplicationID,
		PPReference:     it.PPReference,
		LPAReference:    it.LPAReference,
		PrjCodeName:     it.PrjCodeName,
		Title:           it.Title,
		Category:        it.Category,
		Description:     it.Description,
		RaisedBy:        it.RaisedBy,
		AssignedTo:      it.AssignedTo,
		DateRaised:      it.DateRaised,
		DueDate:         it.DueDate,
		Status:          domain.IssueStatus(it.Status),
		ResolutionNotes: it.ResolutionNotes,
		DateResolved:    it.DateResolved,
		CreatedAt:       parseTime(it.CreatedAt),
		UpdatedAt:       parseTime(it.UpdatedAt),
	}
}

type timelineItem struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	EntityType    string `dynamodbav:"entityType"`
	EventID       string `dynamodbav:"eventId"`
	ApplicationID string `dynamodbav:"applicationId"`
	Timestamp     string `dynamodbav:"timestamp"`
	Stage         string `dynamodbav:"stage"`
	Event         string `dynamodbav:"event"`
	Details       string `dynamodbav:"details,omitempty"`
}

func toTimelineItem(ev domain.TimelineEvent) timelineItem {
	return timelineItem{
		PK:            appPK(ev.ApplicationID),
		SK:            eventSK(ev.Timestamp, ev.ID),
		EntityType:    entityTimeline,
		EventID:       ev.ID,
		ApplicationID: ev.ApplicationID,
		Timestamp:     formatTime(ev.Timestamp),
		Stage:         string(ev.Stage),
		Event:         ev.Event,
		Details:       ev.Details,
	}
}

func (it timelineItem) domain() domain.TimelineEvent {
	return domain.TimelineEvent{
		ID:            it.EventID,
		ApplicationID: it.ApplicationID,
		Timestamp:     parseTime(it.Timestamp),
		Stage:         domain.ApplicationStatus(it.Stage),
		Event:         it.Event,
		Details:       it.Details,
	}
}

type extensionItem struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	GSI1PK        string `dynamodbav:"GSI1PK"`
	GSI1SK        string `dynamodbav:"GSI1SK"`
	GSI2PK        string `dynamodbav:"GSI2PK"`
	GSI2SK        string `dynamodbav:"GSI2SK"`
	EntityType    string `dynamodbav:"entityType"`
	ExtensionID   string `dynamodbav:"extensionId"`
	ApplicationID string `dynamodbav:"applicationId"`
	PPReference   string `dynamodbav:"ppReference"`
	PrjCodeName   string `dynamodbav:"prjCodeName,omitempty"`
	RequestedDate string `dynamodbav:"requestedDate,omitempty"`
	AgreedDate    string `dynamodbav:"agreedDate"`
	Notes         string `dynamodbav:"notes,omitempty"`
	CreatedAt     string `dynamodbav:"createdAt"`
	UpdatedAt     string `dynamodbav:"updatedAt"`
}

func toExtensionItem(ext domain.ExtensionOfTime) extensionItem {
	return extensionItem{
		PK:            appPK(ext.ApplicationID),
		SK:            extensionSK(ext.ID),
		GSI1PK:        "STATUS#Extension",
		GSI1SK:        "AGREED#" + ext.AgreedDate + "#EOT#" + ext.ID,
		GSI2PK:        ppKey(ext.PPReference),
		GSI2SK:        extensionSK(ext.ID),
		EntityType:    entityExtension,
		ExtensionID:   ext.ID,
		ApplicationID: ext.ApplicationID,
		PPReference:   ext.PPReference,
		PrjCodeName:   ext.PrjCodeName,
		RequestedDate: ext.RequestedDate,
		AgreedDate:    ext.AgreedDate,
		Notes:         ext.Notes,
		CreatedAt:     formatTime(ext.CreatedAt),
		UpdatedAt:     formatTime(ext.UpdatedAt),
	}
}

func (it extensionItem) domain() domain.ExtensionOfTime {
	return domain.ExtensionOfTime{
		ID:            it.ExtensionID,
		ApplicationID: it.ApplicationID,
		PPReference:   it.PPReference,
		PrjCodeName:   it.PrjCodeName,
		RequestedDate: it.RequestedDate,
		AgreedDate:    it.AgreedDate,
		Notes:         it.Notes,
		CreatedAt:     parseTime(it.CreatedAt),
		UpdatedAt:     parseTime(it.UpdatedAt),
	}
}

func sortTimeline(events []domain.TimelineEvent) {
	slices.SortStableFunc(events, func(a, b domain.TimelineEvent) int { return a.Timestamp.Compare(b.Timestamp) })
}

func sortExtensions(exts []domain.ExtensionOfTime) {
	slices.SortStableFunc(exts, func(a, b domain.ExtensionOfTime) int { return domain.CompareDates(a.AgreedDate, b.AgreedDate) })
}
