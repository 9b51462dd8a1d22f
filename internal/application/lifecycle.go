package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

// LifecycleService is the only writer of applications and their children. Each
// method loads what it needs, checks every guard, then writes; it keeps no
// state between calls.
type LifecycleService struct {
	store       ports.AggregateStore
	logger      ports.Logger
	timeline    *TimelineRecorder
	now         func() time.Time
	newID       func() string
	autoPromote bool
	observe     func(from, to domain.ApplicationStatus)
}

type Option func(*LifecycleService)

func WithClock(now func() time.Time) Option {
	return func(s *LifecycleService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *LifecycleService) { s.newID = newID }
}

// WithAutoPromotion enables reading a determination-date-only patch as a move
// to Live when ShouldAutoPromoteToLive holds.
func WithAutoPromotion(enabled bool) Option {
	return func(s *LifecycleService) { s.autoPromote = enabled }
}

// WithTransitionObserver is called after every persisted status change.
func WithTransitionObserver(fn func(from, to domain.ApplicationStatus)) Option {
	return func(s *LifecycleService) { s.observe = fn }
}

func NewLifecycleService(store ports.AggregateStore, logger ports.Logger, opts ...Option) *LifecycleService {
	s := &LifecycleService{
		store:   store,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		observe: func(domain.ApplicationStatus, domain.ApplicationStatus) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timeline = NewTimelineRecorder(store, s.now, s.newID)
	return s
}

func (s *LifecycleService) CreateApplication(ctx context.Context, in CreateApplicationInput) (domain.Application, error) {
	in.normalise()
	if err := in.validate(); err != nil {
		return domain.Application{}, err
	}
	now := s.now().UTC()
	app := domain.Application{
		ID:                s.newID(),
		PrjCodeName:       in.PrjCodeName,
		PPReference:       in.PPReference,
		LPAReference:      in.LPAReference,
		Description:       in.Description,
		Council:           in.Council,
		CaseOfficer:       in.CaseOfficer,
		CaseOfficerEmail:  in.CaseOfficerEmail,
		PlanningPortalURL: in.PlanningPortalURL,
		Notes:             in.Notes,
		Status:            domain.InitialStatus(in.ValidationDate),
		Outcome:           domain.OutcomePending,
		SubmissionDate:    in.SubmissionDate,
		ValidationDate:    in.ValidationDate,
		DeterminationDate: in.DeterminationDate,
		EOTDate:           in.EOTDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := domain.CheckDateOrder(app); err != nil {
		return domain.Application{}, err
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return domain.Application{}, err
	}
	label := "Submitted"
	if app.Status == domain.StatusLive {
		label = "Validated"
	}
	if _, err := s.timeline.Record(ctx, app.ID, app.Status, label, ""); err != nil {
		return domain.Application{}, err
	}
	s.logger.Info(ctx, "application created", "application_id", app.ID, "status", app.Status)
	return app, nil
}

func (s *LifecycleService) PatchApplication(ctx context.Context, appID string, patch ApplicationPatch) (domain.Application, error) {
	patch.normalise()
	if err := patch.validate(); err != nil {
		return domain.Application{}, err
	}
	agg, err := s.store.GetAggregate(ctx, appID)
	if err != nil {
		return domain.Application{}, err
	}
	current := agg.Application
	changes := patch.changes()

	if s.autoPromote && domain.ShouldAutoPromoteToLive(current, agg.Issues, changes) {
		live := domain.StatusLive
		changes.Status = &live
		s.logger.Info(ctx, "promoting application to live on determination date", "application_id", appID)
	}

	next := current.Status
	if changes.Status != nil {
		next = *changes.Status
	}
	merged := changes.ApplyTo(current)
	merged.Status = next

	decision := domain.CheckTransition(current.Status, next, domain.TransitionView{
		Application:      merged,
		UnresolvedIssues: domain.UnresolvedCount(agg.Issues),
	})
	if err := decision.Err(); err != nil {
		s.logger.Warn(ctx, "application patch rejected", "application_id", appID, "to", next, "reason", err.Error())
		return domain.Application{}, err
	}
	if err := domain.CheckDateOrder(merged); err != nil {
		return domain.Application{}, err
	}

	changes.Status = &next
	changes.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateApplication(ctx, appID, changes, &current); err != nil {
		return domain.Application{}, err
	}
	merged.UpdatedAt = changes.UpdatedAt

	if next != current.Status {
		if _, err := s.timeline.Record(ctx, appID, next, domain.TransitionLabel(current.Status, next), ""); err != nil {
			return domain.Application{}, err
		}
		s.transitioned(ctx, appID, current.Status, next)
	}
	return merged, nil
}

func (s *LifecycleService) DeleteApplication(ctx context.Context, appID string) error {
	if _, err := s.store.GetAggregate(ctx, appID); err != nil {
		return err
	}
	if err := s.store.DeleteApplication(ctx, appID); err != nil {
		return err
	}
	s.logger.Info(ctx, "application deleted", "application_id", appID)
	return nil
}

func (s *LifecycleService) CreateIssue(ctx context.Context, in CreateIssueInput) (domain.Issue, error) {
	in.normalise()
	if err := in.validate(); err != nil {
		return domain.Issue{}, err
	}
	agg, err := s.store.GetAggregate(ctx, in.ApplicationID)
	if err != nil {
		return domain.Issue{}, err
	}
	app := agg.Application
	now := s.now().UTC()
	issue := domain.Issue{
		ID:            s.newID(),
		ApplicationID: app.ID,
		PPReference:   firstNonEmpty(in.PPReference, app.PPReference),
		LPAReference:  firstNonEmpty(in.LPAReference, app.LPAReference),
		PrjCodeName:   app.PrjCodeName,
		Title:         in.Title,
		Category:      in.Category,
		Description:   in.Description,
		RaisedBy:      in.RaisedBy,
		AssignedTo:    in.AssignedTo,
		DateRaised:    in.DateRaised,
		DueDate:       in.DueDate,
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return domain.Issue{}, err
	}
	if _, err := s.timeline.Record(ctx, app.ID, domain.StatusInvalidated, "Issue Raised: "+issue.Title, issue.Description); err != nil {
		return domain.Issue{}, err
	}

	// The new issue is Open or In Progress, so the previous count plus one is exact.
	count := domain.UnresolvedCount(agg.Issues) + 1
	changes := domain.ApplicationChanges{IssuesCount: &count, UpdatedAt: s.now().UTC()}
	next, label, moved := domain.AutoTransition(domain.TriggerIssueRaised, app.Status)
	if moved {
		changes.Status = &next
		if _, err := s.timeline.Record(ctx, app.ID, next, label, ""); err != nil {
			return domain.Issue{}, err
		}
	}
	if err := s.store.UpdateApplication(ctx, app.ID, changes, &app); err != nil {
		return domain.Issue{}, err
	}
	if moved {
		s.transitioned(ctx, app.ID, app.Status, next)
	}
	return issue, nil
}

func (s *LifecycleService) UpdateIssue(ctx context.Context, appID, issueID string, patch IssuePatch) (domain.Issue, error) {
	patch.normalise()
	if err := patch.validate(); err != nil {
		return domain.Issue{}, err
	}
	existing, err := s.store.GetIssue(ctx, appID, issueID)
	if err != nil {
		return domain.Issue{}, err
	}

	resolving := patch.Status != nil && *patch.Status == domain.IssueResolved
	if resolving {
		if valueOr(patch.ResolutionNotes, existing.ResolutionNotes) == "" {
			return domain.Issue{}, domain.Invalidf("Provide resolution notes when resolving an issue")
		}
		if valueOr(patch.DateResolved, existing.DateResolved) == "" {
			today := domain.FormatDate(s.now())
			patch.DateResolved = &today
		}
	}

	updated := patch.applyTo(existing)
	updated.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateIssue(ctx, updated); err != nil {
		return domain.Issue{}, err
	}

	agg, err := s.store.GetAggregate(ctx, appID)
	if err != nil {
		return domain.Issue{}, err
	}
	app := agg.Application
	count := domain.UnresolvedCount(agg.Issues)
	countChanges := domain.ApplicationChanges{IssuesCount: &count, UpdatedAt: s.now().UTC()}
	if err := s.store.UpdateApplication(ctx, appID, countChanges, &app); err != nil {
		return domain.Issue{}, err
	}
	app = countChanges.ApplyTo(app)

	if !resolving {
		return updated, nil
	}
	if _, err := s.timeline.Record(ctx, appID, domain.StatusInvalidated, "Issue Resolved: "+existing.Title, updated.ResolutionNotes); err != nil {
		return domain.Issue{}, err
	}
	if count > 0 {
		return updated, nil
	}
	next, label, moved := domain.AutoTransition(domain.TriggerIssuesCleared, app.Status)
	if !moved {
		return updated, nil
	}
	validationDate := app.ValidationDate
	if validationDate == "" {
		validationDate = s.stampDate(app.SubmissionDate, app.DeterminationDate)
	}
	liveChanges := domain.ApplicationChanges{Status: &next, ValidationDate: &validationDate, UpdatedAt: s.now().UTC()}
	if err := domain.CheckDateOrder(liveChanges.ApplyTo(app)); err != nil {
		return domain.Issue{}, err
	}
	if err := s.store.UpdateApplication(ctx, appID, liveChanges, &app); err != nil {
		return domain.Issue{}, err
	}
	if _, err := s.timeline.Record(ctx, appID, next, label, ""); err != nil {
		return domain.Issue{}, err
	}
	s.transitioned(ctx, appID, app.Status, next)
	return updated, nil
}

func (s *LifecycleService) DeleteIssue(ctx context.Context, appID, issueID string) error {
	existing, err := s.store.GetIssue(ctx, appID, issueID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteIssue(ctx, appID, issueID); err != nil {
		return err
	}
	agg, err := s.store.GetAggregate(ctx, appID)
	if err != nil {
		return err
	}
	app := agg.Application
	count := domain.UnresolvedCount(agg.Issues)
	if err := s.store.UpdateApplication(ctx, appID, domain.ApplicationChanges{IssuesCount: &count, UpdatedAt: s.now().UTC()}, &app); err != nil {
		return err
	}
	_, err = s.timeline.Record(ctx, appID, app.Status, "Issue Deleted: "+existing.Title, existing.Description)
	return err
}

func (s *LifecycleService) CreateExtensionOfTime(ctx context.Context, appID string, in ExtensionInput) (domain.ExtensionOfTime, error) {
	in.normalise()
	if err := in.validate(); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	agg, err := s.store.GetAggregate(ctx, appID)
	if err != nil {
		return domain.ExtensionOfTime{}, err
	}
	if agg.Application.Status != domain.StatusLive {
		return domain.ExtensionOfTime{}, domain.Invalidf("Extensions of time can only be added to Live applications")
	}
	now := s.now().UTC()
	ext := domain.ExtensionOfTime{
		ID:            s.newID(),
		ApplicationID: appID,
		PPReference:   agg.Application.PPReference,
		PrjCodeName:   agg.Application.PrjCodeName,
		RequestedDate: in.RequestedDate,
		AgreedDate:    in.AgreedDate,
		Notes:         in.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateExtension(ctx, ext); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	if _, err := s.timeline.Record(ctx, appID, domain.StatusLive, "Extension of Time Agreed", in.timelineDetails()); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	if err := s.refreshExtensionDate(ctx, appID); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	return ext, nil
}

func (s *LifecycleService) UpdateExtensionOfTime(ctx context.Context, appID, extensionID string, in ExtensionInput) (domain.ExtensionOfTime, error) {
	in.normalise()
	if err := in.validate(); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	agg, err := s.store.GetAggregate(ctx, appID)
	if err != nil {
		return domain.ExtensionOfTime{}, err
	}
	if agg.Application.Status != domain.StatusLive {
		return domain.ExtensionOfTime{}, domain.Invalidf("Extensions of time can only be modified on Live applications")
	}
	existing, err := s.store.GetExtension(ctx, appID, extensionID)
	if err != nil {
		return domain.ExtensionOfTime{}, err
	}
	existing.RequestedDate = in.RequestedDate
	existing.AgreedDate = in.AgreedDate
	existing.Notes = in.Notes
	existing.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateExtension(ctx, existing); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	if _, err := s.timeline.Record(ctx, appID, domain.StatusLive, "Extension of Time Updated", in.timelineDetails()); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	if err := s.refreshExtensionDate(ctx, appID); err != nil {
		return domain.ExtensionOfTime{}, err
	}
	return existing, nil
}

// refreshExtensionDate recomputes eotDate from the stored extensions. It must
// run after the extension write so the reload observes it.
func (s *LifecycleService) refreshExtensionDate(ctx context.Context, appID string) error {
	agg, err := s.store.GetAggregate(ctx, appID)
	if err != nil {
		return err
	}
	latest := domain.LatestAgreedDate(agg.Extensions)
	return s.store.UpdateApplication(ctx, appID, domain.ApplicationChanges{EOTDate: &latest, UpdatedAt: s.now().UTC()}, &agg.Application)
}

// stampDate is today, clamped between the submission and determination dates
// when they are set.
func (s *LifecycleService) stampDate(submissionDate, determinationDate string) string {
	stamp := domain.FormatDate(s.now())
	if submissionDate != "" && domain.CompareDates(stamp, submissionDate) < 0 {
		stamp = submissionDate
	}
	if determinationDate != "" && domain.CompareDates(stamp, determinationDate) > 0 {
		stamp = determinationDate
	}
	return stamp
}

func (s *LifecycleService) transitioned(ctx context.Context, appID string, from, to domain.ApplicationStatus) {
	s.logger.Info(ctx, "application status changed", "application_id", appID, "from", from, "to", to)
	s.observe(from, to)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOr(v *string, fallback string) string {
	if v != nil {
		return *v
	}
	return fallback
}
