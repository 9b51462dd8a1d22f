package application

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

type QueryService struct {
	store ports.AggregateStore
}

func NewQueryService(store ports.AggregateStore) *QueryService {
	return &QueryService{store: store}
}

func (s *QueryService) GetApplication(ctx context.Context, appID string) (domain.Aggregate, error) {
	if appID == "" {
		return domain.Aggregate{}, domain.ErrInvalidInput
	}
	return s.store.GetAggregate(ctx, appID)
}

func (s *QueryService) ListApplications(ctx context.Context, status domain.ApplicationStatus, page domain.PageRequest) (domain.Page, error) {
	if !status.Valid() {
		return domain.Page{}, domain.Invalidf("Query parameter \"status\" is required")
	}
	if page.Limit == 0 {
		page.Limit = domain.DefaultPageLimit
	}
	if page.Limit < 1 || page.Limit > domain.MaxPageLimit {
		return domain.Page{}, domain.Invalidf("Query parameter \"limit\" must be between 1 and %d", domain.MaxPageLimit)
	}
	out, err := s.store.ListApplicationsByStatus(ctx, status, page)
	if err != nil {
		return domain.Page{}, err
	}
	slices.SortStableFunc(out.Items, func(a, b domain.Application) int {
		return naturalCompare(a.PrjCodeName, b.PrjCodeName)
	})
	return out, nil
}

// ListIssues ignores a status it does not recognise and lists everything.
func (s *QueryService) ListIssues(ctx context.Context, status string) ([]domain.Issue, error) {
	filter := domain.IssueStatus(status)
	if !filter.Valid() {
		filter = ""
	}
	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(issues, compareIssues)
	return issues, nil
}

const noDueDate = "9999-12-31"

func compareIssues(a, b domain.Issue) int {
	if d := slices.Index(domain.IssueStatusOrder, a.Status) - slices.Index(domain.IssueStatusOrder, b.Status); d != 0 {
		return d
	}
	if c := strings.Compare(firstNonEmpty(a.DueDate, noDueDate), firstNonEmpty(b.DueDate, noDueDate)); c != 0 {
		return c
	}
	return naturalCompare(a.PrjCodeName, b.PrjCodeName)
}

// naturalCompare orders case-insensitively with digit runs compared by value,
// so "P2" sorts before "P10".
func naturalCompare(a, b string) int {
	ar, br := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na := strings.TrimLeft(string(ar[si:i]), "0")
			nb := strings.TrimLeft(string(br[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			continue
		}
		if ar[i] != br[j] {
			if ar[i] < br[j] {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	return (len(ar) - i) - (len(br) - j)
}
