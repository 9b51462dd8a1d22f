package ports

import (
	"context"

	"planning-tracker/internal/domain"
)

// AggregateStore persists applications together with their issues, timeline
// events and extensions. Lookups of a missing entity return domain.ErrNotFound.
type AggregateStore interface {
	CreateApplication(ctx context.Context, app domain.Application) error
	GetAggregate(ctx context.Context, appID string) (domain.Aggregate, error)
	// UpdateApplication merges changes into an existing application and fails
	// with domain.ErrNotFound when it does not exist. current, when non-nil,
	// is a snapshot the adapter may use instead of reloading.
	UpdateApplication(ctx context.Context, appID string, changes domain.ApplicationChanges, current *domain.Application) error
	DeleteApplication(ctx context.Context, appID string) error

	CreateIssue(ctx context.Context, issue domain.Issue) error
	UpdateIssue(ctx context.Context, issue domain.Issue) error
	GetIssue(ctx context.Context, appID, issueID string) (domain.Issue, error)
	DeleteIssue(ctx context.Context, appID, issueID string) error

	PutTimelineEvent(ctx context.Context, event domain.TimelineEvent) error

	CreateExtension(ctx context.Context, ext domain.ExtensionOfTime) error
	UpdateExtension(ctx context.Context, ext domain.ExtensionOfTime) error
	GetExtension(ctx context.Context, appID, extensionID string) (domain.ExtensionOfTime, error)

	ListApplicationsByStatus(ctx context.Context, status domain.ApplicationStatus, page domain.PageRequest) (domain.Page, error)
	// ListIssues returns every issue, or only those in status when non-empty.
	ListIssues(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error)
}

type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Debug(ctx context.Context, msg string, args ...any)
}
