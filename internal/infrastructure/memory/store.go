// Package memory is an in-process AggregateStore for local runs and tests.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

var _ ports.AggregateStore = (*Store)(nil)

type record struct {
	app        domain.Application
	issues     []domain.Issue
	timeline   []domain.TimelineEvent
	extensions []domain.ExtensionOfTime
}

// Store keeps aggregates in insertion order. Values are copied on the way in
// and out so callers never share memory with the store.
type Store struct {
	mu    sync.RWMutex
	order []string
	apps  map[string]*record
}

func NewStore() *Store {
	return &Store{apps: map[string]*record{}}
}

func (s *Store) CreateApplication(_ context.Context, app domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return domain.Invalidf("application already exists")
	}
	s.apps[app.ID] = &record{app: app}
	s.order = append(s.order, app.ID)
	return nil
}

func (s *Store) GetAggregate(_ context.Context, appID string) (domain.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.apps[appID]
	if !ok {
		return domain.Aggregate{}, domain.NotFound("application")
	}
	agg := domain.Aggregate{
		Application: rec.app,
		Issues:      slices.Clone(rec.issues),
		Timeline:    slices.Clone(rec.timeline),
		Extensions:  slices.Clone(rec.extensions),
	}
	slices.SortStableFunc(agg.Timeline, func(a, b domain.TimelineEvent) int { return a.Timestamp.Compare(b.Timestamp) })
	slices.SortStableFunc(agg.Extensions, func(a, b domain.ExtensionOfTime) int { return domain.CompareDates(a.AgreedDate, b.AgreedDate) })
	if agg.Issues == nil {
		agg.Issues = []domain.Issue{}
	}
	if agg.Timeline == nil {
		agg.Timeline = []domain.TimelineEvent{}
	}
	if agg.Extensions == nil {
		agg.Extensions = []domain.ExtensionOfTime{}
	}
	return agg, nil
}

func (s *Store) UpdateApplication(_ context.Context, appID string, changes domain.ApplicationChanges, _ *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[appID]
	if !ok {
		return domain.NotFound("application")
	}
	rec.app = changes.ApplyTo(rec.app)
	return nil
}

func (s *Store) DeleteApplication(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return domain.NotFound("application")
	}
	delete(s.apps, appID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == appID })
	return nil
}

func (s *Store) CreateIssue(_ context.Context, issue domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[issue.ApplicationID]
	if !ok {
		return domain.NotFound("application")
	}
	rec.issues = append(rec.issues, issue)
	return nil
}

func (s *Store) UpdateIssue(_ context.Context, issue domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[issue.ApplicationID]
	if !ok {
		return domain.NotFound("issue")
	}
	i := slices.IndexFunc(rec.issues, func(it domain.Issue) bool { return it.ID == issue.ID })
	if i < 0 {
		return domain.NotFound("issue")
	}
	rec.issues[i] = issue
	return nil
}

func (s *Store) GetIssue(_ context.Context, appID, issueID string) (domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.apps[appID]
	if !ok {
		return domain.Issue{}, domain.NotFound("issue")
	}
	i := slices.IndexFunc(rec.issues, func(it domain.Issue) bool { return it.ID == issueID })
	if i < 0 {
		return domain.Issue{}, domain.NotFound("issue")
	}
	return rec.issues[i], nil
}

func (s *Store) DeleteIssue(_ context.Context, appID, issueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[appID]
	if !ok {
		return domain.NotFound("issue")
	}
	before := len(rec.issues)
	rec.issues = slices.DeleteFunc(rec.issues, func(it domain.Issue) bool { return it.ID == issueID })
	if len(rec.issues) == before {
		return domain.NotFound("issue")
	}
	return nil
}

func (s *Store) PutTimelineEvent(_ context.Context, event domain.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[event.ApplicationID]
	if !ok {
		return domain.NotFound("application")
	}
	rec.timeline = append(rec.timeline, event)
	return nil
}

func (s *Store) CreateExtension(_ context.Context, ext domain.ExtensionOfTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[ext.ApplicationID]
	if !ok {
		return domain.NotFound("application")
	}
	rec.extensions = append(rec.extensions, ext)
	return nil
}

func (s *Store) UpdateExtension(_ context.Context, ext domain.ExtensionOfTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.apps[ext.ApplicationID]
	if !ok {
		return domain.NotFound("extension of time")
	}
	i := slices.IndexFunc(rec.extensions, func(e domain.ExtensionOfTime) bool { return e.ID == ext.ID })
	if i < 0 {
		return domain.NotFound("extension of time")
	}
	rec.extensions[i] = ext
	return nil
}

func (s *Store) GetExtension(_ context.Context, appID, extensionID string) (domain.ExtensionOfTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.apps[appID]
	if !ok {
		return domain.ExtensionOfTime{}, domain.NotFound("extension of time")
	}
	i := slices.IndexFunc(rec.extensions, func(e domain.ExtensionOfTime) bool { return e.ID == extensionID })
	if i < 0 {
		return domain.ExtensionOfTime{}, domain.NotFound("extension of time")
	}
	return rec.extensions[i], nil
}

// ListApplicationsByStatus pages by offset; the cursor is the decimal offset
// of the next item.
func (s *Store) ListApplicationsByStatus(_ context.Context, status domain.ApplicationStatus, page domain.PageRequest) (domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offset := 0
	if page.Cursor != "" {
		n, err := strconv.Atoi(page.Cursor)
		if err != nil || n < 0 {
			return domain.Page{}, domain.Invalidf("invalid pagination token")
		}
		offset = n
	}
	var matched []domain.Application
	for _, id := range s.order {
		if app := s.apps[id].app; app.Status == status {
			matched = append(matched, app)
		}
	}
	// newest submissions first, as the status index is read in reverse
	slices.SortStableFunc(matched, func(a, b domain.Application) int {
		return domain.CompareDates(b.SubmissionDate, a.SubmissionDate)
	})
	out := domain.Page{Items: []domain.Application{}}
	if offset >= len(matched) {
		return out, nil
	}
	end := min(offset+page.Limit, len(matched))
	out.Items = append(out.Items, matched[offset:end]...)
	if end < len(matched) {
		out.NextToken = strconv.Itoa(end)
	}
	return out, nil
}

func (s *Store) ListIssues(_ context.Context, status domain.IssueStatus) ([]domain.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Issue{}
	for _, id := range s.order {
		for _, issue := range s.apps[id].issues {
			if status == "" || issue.Status == status {
				out = append(out, issue)
			}
		}
	}
	return out, nil
}
