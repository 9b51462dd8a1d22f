package dynamodb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"planning-tracker/internal/domain"
)

type apiMock struct{ mock.Mock }

func (m *apiMock) PutItem(ctx context.Context, in *awsv2dynamodb.PutItemInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	return &awsv2dynamodb.PutItemOutput{}, args.Error(0)
}

func (m *apiMock) GetItem(ctx context.Context, in *awsv2dynamodb.GetItemInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*awsv2dynamodb.GetItemOutput), args.Error(1)
}

func (m *apiMock) UpdateItem(ctx context.Context, in *awsv2dynamodb.UpdateItemInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	return &awsv2dynamodb.UpdateItemOutput{}, args.Error(0)
}

func (m *apiMock) DeleteItem(ctx context.Context, in *awsv2dynamodb.DeleteItemInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	return &awsv2dynamodb.DeleteItemOutput{}, args.Error(0)
}

func (m *apiMock) Query(ctx context.Context, in *awsv2dynamodb.QueryInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*awsv2dynamodb.QueryOutput), args.Error(1)
}

func (m *apiMock) DescribeTable(ctx context.Context, in *awsv2dynamodb.DescribeTableInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DescribeTableOutput, error) {
	args := m.Called(ctx, in)
	return &awsv2dynamodb.DescribeTableOutput{}, args.Error(0)
}

func (m *apiMock) CreateTable(ctx context.Context, in *awsv2dynamodb.CreateTableInput, _ ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.CreateTableOutput, error) {
	args := m.Called(ctx, in)
	return &awsv2dynamodb.CreateTableOutput{}, args.Error(0)
}

func tracedContext(t *testing.T) context.Context {
	t.Helper()
	ctx, seg := xray.BeginSegment(context.Background(), "dynamodb-test")
	t.Cleanup(func() { seg.Close(nil) })
	return ctx
}

func newTestStore() (*Store, *apiMock) {
	api := new(apiMock)
	return NewStore(NewClientWithAPI(api, "planning")), api
}

func mustMarshal(t *testing.T, v any) map[string]awsv2types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return av
}

var fixedTime = time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

func sampleApplication() domain.Application {
	return domain.Application{
		ID:             "app-1",
		PrjCodeName:    "P10 Riverside",
		PPReference:    "PP-123",
		Description:    "Two storey extension",
		Council:        "Leeds",
		SubmissionDate: "2025-01-10",
		Status:         domain.StatusSubmitted,
		CreatedAt:      fixedTime,
		UpdatedAt:      fixedTime,
	}
}

func TestStore_CreateApplicationWritesIndexKeys(t *testing.T) {
	store, api := newTestStore()
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.PutItemInput) bool {
		var got applicationItem
		if err := attributevalue.UnmarshalMap(in.Item, &got); err != nil {
			return false
		}
		return aws.ToString(in.ConditionExpression) == "attribute_not_exists(PK)" &&
			got.PK == "APP#app-1" && got.SK == "APP#app-1" &&
			got.GSI1PK == "STATUS#Submitted" && got.GSI1SK == "SUBMITTED#2025-01-10#APP#app-1" &&
			got.GSI2PK == "PP#PP-123" && got.EntityType == entityApplication
	})).Return(nil)

	err := store.CreateApplication(tracedContext(t), sampleApplication())
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestStore_CreateApplicationDuplicate(t *testing.T) {
	store, api := newTestStore()
	api.On("PutItem", mock.Anything, mock.Anything).Return(&awsv2types.ConditionalCheckFailedException{})

	err := store.CreateApplication(tracedContext(t), sampleApplication())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_GetAggregateDecodesPartition(t *testing.T) {
	store, api := newTestStore()
	app := sampleApplication()
	later := domain.TimelineEvent{ID: "e2", ApplicationID: "app-1", Stage: "Invalidated", Event: "Issue Raised: Fee", Timestamp: fixedTime.Add(time.Minute)}
	earlier := domain.TimelineEvent{ID: "e1", ApplicationID: "app-1", Stage: "Submitted", Event: "Application Submitted", Timestamp: fixedTime}
	items := []map[string]awsv2types.AttributeValue{
		mustMarshal(t, toApplicationItem(app)),
		mustMarshal(t, toExtensionItem(domain.ExtensionOfTime{ID: "x2", ApplicationID: "app-1", AgreedDate: "2025-06-01"})),
		mustMarshal(t, toExtensionItem(domain.ExtensionOfTime{ID: "x1", ApplicationID: "app-1", AgreedDate: "2025-05-01"})),
		mustMarshal(t, toTimelineItem(later)),
		mustMarshal(t, toTimelineItem(earlier)),
	}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey == nil
	})).Return(&awsv2dynamodb.QueryOutput{Items: items[:3], LastEvaluatedKey: keyOf("APP#app-1", "EOT#x1")}, nil).Once()
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.QueryInput) bool {
		return in.ExclusiveStartKey != nil
	})).Return(&awsv2dynamodb.QueryOutput{Items: append(items[3:], mustMarshal(t, toIssueItem(domain.Issue{ID: "i1", ApplicationID: "app-1", Status: domain.IssueOpen})))}, nil).Once()

	agg, err := store.GetAggregate(tracedContext(t), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "P10 Riverside", agg.Application.PrjCodeName)
	assert.Equal(t, fixedTime, agg.Application.CreatedAt)
	require.Len(t, agg.Issues, 1)
	require.Len(t, agg.Timeline, 2)
	assert.Equal(t, "e1", agg.Timeline[0].ID)
	require.Len(t, agg.Extensions, 2)
	assert.Equal(t, "x1", agg.Extensions[0].ID)
	api.AssertExpectations(t)
}

func TestStore_GetAggregateMissing(t *testing.T) {
	store, api := newTestStore()
	api.On("Query", mock.Anything, mock.Anything).Return(&awsv2dynamodb.QueryOutput{}, nil)

	_, err := store.GetAggregate(tracedContext(t), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpdateApplicationRefreshesIndexKeys(t *testing.T) {
	store, api := newTestStore()
	app := sampleApplication()
	live := domain.StatusLive
	validated := "2025-01-20"
	cleared := ""
	changes := domain.ApplicationChanges{Status: &live, ValidationDate: &validated, Notes: &cleared, UpdatedAt: fixedTime.Add(time.Hour)}

	api.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.UpdateItemInput) bool {
		expr := aws.ToString(in.UpdateExpression)
		status, ok := in.ExpressionAttributeValues[":gsi1pk"].(*awsv2types.AttributeValueMemberS)
		return ok && status.Value == "STATUS#Live" &&
			aws.ToString(in.ConditionExpression) == "attribute_exists(PK)" &&
			strings.Contains(expr, " REMOVE ") &&
			strings.Contains(expr, "updatedAt = :updatedAt")
	})).Return(nil)

	err := store.UpdateApplication(tracedContext(t), "app-1", changes, &app)
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestStore_UpdateApplicationLoadsSnapshotWhenMissing(t *testing.T) {
	store, api := newTestStore()
	api.On("GetItem", mock.Anything, mock.Anything).Return(&awsv2dynamodb.GetItemOutput{}, nil)

	err := store.UpdateApplication(tracedContext(t), "app-1", domain.ApplicationChanges{UpdatedAt: fixedTime}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	api.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything)
}

func TestStore_UpdateIssueMissing(t *testing.T) {
	store, api := newTestStore()
	api.On("PutItem", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.PutItemInput) bool {
		return aws.ToString(in.ConditionExpression) == "attribute_exists(PK) AND attribute_exists(SK)"
	})).Return(&awsv2types.ConditionalCheckFailedException{})

	err := store.UpdateIssue(tracedContext(t), domain.Issue{ID: "i1", ApplicationID: "app-1", Status: domain.IssueResolved})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_DeleteApplicationRemovesEveryItem(t *testing.T) {
	store, api := newTestStore()
	api.On("Query", mock.Anything, mock.Anything).Return(&awsv2dynamodb.QueryOutput{Items: []map[string]awsv2types.AttributeValue{
		keyOf("APP#app-1", "APP#app-1"),
		keyOf("APP#app-1", "ISSUE#i1"),
	}}, nil)
	api.On("DeleteItem", mock.Anything, mock.Anything).Return(nil).Twice()

	err := store.DeleteApplication(tracedContext(t), "app-1")
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestStore_ListApplicationsByStatusRoundTripsCursor(t *testing.T) {
	store, api := newTestStore()
	last := map[string]awsv2types.AttributeValue{
		"PK":     &awsv2types.AttributeValueMemberS{Value: "APP#app-1"},
		"SK":     &awsv2types.AttributeValueMemberS{Value: "APP#app-1"},
		"GSI1PK": &awsv2types.AttributeValueMemberS{Value: "STATUS#Submitted"},
		"GSI1SK": &awsv2types.AttributeValueMemberS{Value: "SUBMITTED#2025-01-10#APP#app-1"},
	}
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == statusIndex && !aws.ToBool(in.ScanIndexForward) &&
			aws.ToInt32(in.Limit) == 1 && in.ExclusiveStartKey == nil
	})).Return(&awsv2dynamodb.QueryOutput{
		Items:            []map[string]awsv2types.AttributeValue{mustMarshal(t, toApplicationItem(sampleApplication()))},
		LastEvaluatedKey: last,
	}, nil).Once()

	page, err := store.ListApplicationsByStatus(tracedContext(t), domain.StatusSubmitted, domain.PageRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextToken)

	decoded, err := decodeCursor(page.NextToken)
	require.NoError(t, err)
	assert.Equal(t, last, decoded)
}

func TestStore_ListApplicationsRejectsBadCursor(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.ListApplicationsByStatus(tracedContext(t), domain.StatusLive, domain.PageRequest{Limit: 5, Cursor: "%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_ListIssuesQueriesEachStatus(t *testing.T) {
	store, api := newTestStore()
	api.On("Query", mock.Anything, mock.Anything).Return(&awsv2dynamodb.QueryOutput{}, nil).Times(len(domain.IssueStatusOrder))

	issues, err := store.ListIssues(tracedContext(t), "")
	require.NoError(t, err)
	assert.Empty(t, issues)
	api.AssertExpectations(t)
}

func TestStore_StoreErrorsAreWrapped(t *testing.T) {
	store, api := newTestStore()
	api.On("PutItem", mock.Anything, mock.Anything).Return(errors.New("throttled"))

	err := store.PutTimelineEvent(tracedContext(t), domain.TimelineEvent{ID: "e1", ApplicationID: "app-1", Timestamp: fixedTime})
	var storeErr *domain.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "dynamodb put timeline event", storeErr.Op)
}

func TestClient_EnsureTableCreatesWhenMissing(t *testing.T) {
	api := new(apiMock)
	client := NewClientWithAPI(api, "planning")
	api.On("DescribeTable", mock.Anything, mock.Anything).Return(&awsv2types.ResourceNotFoundException{})
	api.On("CreateTable", mock.Anything, mock.MatchedBy(func(in *awsv2dynamodb.CreateTableInput) bool {
		return len(in.GlobalSecondaryIndexes) == 2 &&
			aws.ToString(in.GlobalSecondaryIndexes[0].IndexName) == "GSI1" &&
			aws.ToString(in.GlobalSecondaryIndexes[1].IndexName) == "GSI2"
	})).Return(nil)

	created, err := client.EnsureTable(tracedContext(t))
	require.NoError(t, err)
	assert.True(t, created)
	api.AssertExpectations(t)
}

func TestEventSortKeyOrdersByTime(t *testing.T) {
	a := eventSK(time.Date(2025, 1, 1, 9, 0, 0, 5, time.UTC), "b")
	b := eventSK(time.Date(2025, 1, 1, 9, 0, 0, 40, time.UTC), "a")
	assert.Less(t, a, b)
}
