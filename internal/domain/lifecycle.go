package domain

// TransitionView is the merged picture of an application a guard is evaluated
// against: stored attributes overlaid with the requested changes.
type TransitionView struct {
	Application      Application
	UnresolvedIssues int
}

// TransitionDecision is the outcome of a guard check. Violations lists the
// failed prerequisites in evaluation order.
type TransitionDecision struct {
	Allowed    bool
	Violations []string
}

// Err returns a ValidationError for the first violation, or nil.
func (d TransitionDecision) Err() error {
	if d.Allowed || len(d.Violations) == 0 {
		return nil
	}
	return &ValidationError{Message: d.Violations[0]}
}

type guard func(TransitionView) []string

// Only entering Live and Determined carry prerequisites. Moving to any other
// status, including backwards, is the caller's call.
var transitionGuards = map[ApplicationStatus]guard{
	StatusLive: func(v TransitionView) []string {
		var out []string
		if v.UnresolvedIssues > 0 {
			out = append(out, "Cannot mark application as Live while issues remain open")
		}
		if v.Application.ValidationDate == "" {
			out = append(out, "Validation date required when moving to Live")
		}
		return out
	},
	StatusDetermined: func(v TransitionView) []string {
		var out []string
		if v.Application.Outcome == "" {
			out = append(out, "Outcome required to mark application as Determined")
		}
		if v.Application.DeterminationDate == "" {
			out = append(out, "Determination date required when marking as Determined")
		}
		return out
	},
}

// CheckTransition decides whether an application may be in status to, given
// the merged view. from is the stored status; it does not widen or narrow the
// guard but is kept so callers evaluate every patch through one function.
func CheckTransition(from, to ApplicationStatus, view TransitionView) TransitionDecision {
	if !to.Valid() {
		return TransitionDecision{Violations: []string{"Unknown application status " + string(to)}}
	}
	g, ok := transitionGuards[to]
	if !ok {
		return TransitionDecision{Allowed: true}
	}
	violations := g(view)
	return TransitionDecision{Allowed: len(violations) == 0, Violations: violations}
}

// Trigger names a side effect that can move an application without the
// caller asking for a status.
type Trigger int

const (
	TriggerIssueRaised Trigger = iota + 1
	TriggerIssuesCleared
)

type autoTransition struct {
	from  func(ApplicationStatus) bool
	to    ApplicationStatus
	label string
}

var autoTransitions = map[Trigger]autoTransition{
	TriggerIssueRaised: {
		from:  func(s ApplicationStatus) bool { return s != StatusInvalidated },
		to:    StatusInvalidated,
		label: "Application Invalidated",
	},
	// Only invalidated applications revalidate; clearing issues on a Live or
	// Determined application leaves its status alone.
	TriggerIssuesCleared: {
		from:  func(s ApplicationStatus) bool { return s == StatusInvalidated },
		to:    StatusLive,
		label: "Revalidated after issue resolution",
	},
}

// AutoTransition returns the status a trigger moves current to and the
// timeline label to record, or ok=false when the trigger does not apply.
func AutoTransition(trigger Trigger, current ApplicationStatus) (next ApplicationStatus, label string, ok bool) {
	t, found := autoTransitions[trigger]
	if !found || !t.from(current) {
		return current, "", false
	}
	return t.to, t.label, true
}

// TransitionLabel is the timeline label for an explicit status change.
func TransitionLabel(from, to ApplicationStatus) string {
	switch to {
	case StatusSubmitted:
		return "Submitted"
	case StatusInvalidated:
		return "Invalidated"
	case StatusLive:
		if from == StatusInvalidated {
			return "Revalidated"
		}
		return "Validated"
	case StatusDetermined:
		return "Decision Issued"
	}
	return string(to)
}

// InitialStatus is Live when the application arrives already validated.
func InitialStatus(validationDate string) ApplicationStatus {
	if validationDate != "" {
		return StatusLive
	}
	return StatusSubmitted
}

// ShouldAutoPromoteToLive reports whether a patch that sets a determination
// date without naming a status should be read as a move to Live.
func ShouldAutoPromoteToLive(app Application, issues []Issue, changes ApplicationChanges) bool {
	if changes.Status != nil {
		return false
	}
	if app.Status != StatusSubmitted && app.Status != StatusInvalidated {
		return false
	}
	if changes.DeterminationDate == nil || *changes.DeterminationDate == "" {
		return false
	}
	if UnresolvedCount(issues) > 0 {
		return false
	}
	return changes.ApplyTo(app).ValidationDate != ""
}
