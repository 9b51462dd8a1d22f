package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"planning-tracker/internal/domain"
	"planning-tracker/internal/ports"
)

var _ ports.AggregateStore = (*Store)(nil)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *awsv2dynamodb.PutItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *awsv2dynamodb.GetItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *awsv2dynamodb.UpdateItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *awsv2dynamodb.DeleteItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *awsv2dynamodb.QueryInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *awsv2dynamodb.DescribeTableInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *awsv2dynamodb.CreateTableInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.CreateTableOutput, error)
}

type Client struct {
	db        API
	tableName string
}

// NewClient builds an instrumented client. A non-empty endpoint points it at
// a local DynamoDB.
func NewClient(ctx context.Context, region, tableName, endpoint string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	client := awsv2dynamodb.NewFromConfig(cfg, func(o *awsv2dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &Client{db: client, tableName: tableName}, nil
}

func NewClientWithAPI(api API, tableName string) *Client {
	return &Client{db: api, tableName: tableName}
}

func isConditionalCheckFailure(err error) bool {
	var condErr *awsv2types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

// Store keeps each aggregate in one partition of a single table.
type Store struct{ client *Client }

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) table() *string { return aws.String(s.client.tableName) }

func (s *Store) put(ctx context.Context, segment string, item any, condition string) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	return xray.Capture(ctx, segment, func(ctx context.Context) error {
		in := &awsv2dynamodb.PutItemInput{TableName: s.table(), Item: av}
		if condition != "" {
			in.ConditionExpression = aws.String(condition)
		}
		_, err := s.client.db.PutItem(ctx, in)
		return err
	})
}

func (s *Store) CreateApplication(ctx context.Context, app domain.Application) error {
	err := s.put(ctx, "DynamoDB.PutApplication", toApplicationItem(app), "attribute_not_exists(PK)")
	if isConditionalCheckFailure(err) {
		return domain.Invalidf("application already exists")
	}
	return domain.WrapStore("dynamodb put application", err)
}

// queryPartition reads every item of one aggregate, following pagination.
func (s *Store) queryPartition(ctx context.Context, appID string) ([]map[string]awsv2types.AttributeValue, error) {
	var items []map[string]awsv2types.AttributeValue
	var start map[string]awsv2types.AttributeValue
	for {
		var out *awsv2dynamodb.QueryOutput
		err := xray.Capture(ctx, "DynamoDB.QueryAggregate", func(ctx context.Context) error {
			var e error
			out, e = s.client.db.Query(ctx, &awsv2dynamodb.QueryInput{
				TableName:              s.table(),
				KeyConditionExpression: aws.String("PK = :pk"),
				ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
					":pk": &awsv2types.AttributeValueMemberS{Value: appPK(appID)},
				},
				ExclusiveStartKey: start,
			})
			return e
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (s *Store) GetAggregate(ctx context.Context, appID string) (domain.Aggregate, error) {
	items, err := s.queryPartition(ctx, appID)
	if err != nil {
		return domain.Aggregate{}, domain.WrapStore("dynamodb query aggregate", err)
	}
	agg, found, err := decodeAggregate(items)
	if err != nil {
		return domain.Aggregate{}, domain.WrapStore("dynamodb decode aggregate", err)
	}
	if !found {
		return domain.Aggregate{}, domain.NotFound("application")
	}
	return agg, nil
}

// decodeAggregate sorts partition items by entity type. Timeline order comes
// from the EVENT# sort key; extensions are ordered by agreed date.
func decodeAggregate(items []map[string]awsv2types.AttributeValue) (domain.Aggregate, bool, error) {
	agg := domain.Aggregate{Issues: []domain.Issue{}, Timeline: []domain.TimelineEvent{}, Extensions: []domain.ExtensionOfTime{}}
	found := false
	for _, item := range items {
		var probe entityProbe
		if err := attributevalue.UnmarshalMap(item, &probe); err != nil {
			return agg, false, err
		}
		switch probe.EntityType {
		case entityApplication:
			var raw applicationItem
			if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
				return agg, false, err
			}
			agg.Application = raw.domain()
			found = true
		case entityIssue:
			var raw issueItem
			if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
				return agg, false, err
			}
			agg.Issues = append(agg.Issues, raw.domain())
		case entityTimeline:
			var raw timelineItem
			if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
				return agg, false, err
			}
			agg.Timeline = append(agg.Timeline, raw.domain())
		case entityExtension:
			var raw extensionItem
			if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
				return agg, false, err
			}
			agg.Extensions = append(agg.Extensions, raw.domain())
		}
	}
	sortTimeline(agg.Timeline)
	sortExtensions(agg.Extensions)
	return agg, found, nil
}

func (s *Store) getApplication(ctx context.Context, appID string) (domain.Application, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetApplication", func(ctx context.Context) error {
		var e error
		out, e = s.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: s.table(),
			Key:       keyOf(appPK(appID), appSK(appID)),
		})
		return e
	})
	if err != nil {
		return domain.Application{}, domain.WrapStore("dynamodb get application", err)
	}
	if out.Item == nil {
		return domain.Application{}, domain.NotFound("application")
	}
	var raw applicationItem
	if err := attributevalue.UnmarshalMap(out.Item, &raw); err != nil {
		return domain.Application{}, domain.WrapStore("dynamodb decode application", err)
	}
	return raw.domain(), nil
}

func (s *Store) UpdateApplication(ctx context.Context, appID string, changes domain.ApplicationChanges, current *domain.Application) error {
	snapshot := current
	if snapshot == nil {
		app, err := s.getApplication(ctx, appID)
		if err != nil {
			return err
		}
		snapshot = &app
	}
	in, err := buildApplicationUpdate(s.client.tableName, appID, changes, *snapshot)
	if err != nil {
		return domain.WrapStore("dynamodb build application update", err)
	}
	err = xray.Capture(ctx, "DynamoDB.UpdateApplication", func(ctx context.Context) error {
		_, err := s.client.db.UpdateItem(ctx, in)
		return err
	})
	if isConditionalCheckFailure(err) {
		return domain.NotFound("application")
	}
	return domain.WrapStore("dynamodb update application", err)
}

// buildApplicationUpdate renders a partial update. Index keys are always
// rewritten from the merged view so status listings follow the change.
func buildApplicationUpdate(tableName, appID string, changes domain.ApplicationChanges, snapshot domain.Application) (*awsv2dynamodb.UpdateItemInput, error) {
	merged := changes.ApplyTo(snapshot)
	values := map[string]awsv2types.AttributeValue{
		":updatedAt": &awsv2types.AttributeValueMemberS{Value: formatTime(merged.UpdatedAt)},
		":gsi1pk":    &awsv2types.AttributeValueMemberS{Value: appStatusKey(string(merged.Status))},
		":gsi1sk":    &awsv2types.AttributeValueMemberS{Value: submittedKey(merged.SubmissionDate, appID)},
		":gsi2pk":    &awsv2types.AttributeValueMemberS{Value: ppKey(merged.PPReference)},
		":gsi2sk":    &awsv2types.AttributeValueMemberS{Value: appSK(appID)},
	}
	names := map[string]string{}
	sets := []string{"updatedAt = :updatedAt", "GSI1PK = :gsi1pk", "GSI1SK = :gsi1sk", "GSI2PK = :gsi2pk", "GSI2SK = :gsi2sk"}
	var removes []string
	for i, ch := range changes.Fields() {
		namePH := fmt.Sprintf("#attr%d", i)
		names[namePH] = ch.Name
		if ch.Clear {
			removes = append(removes, namePH)
			continue
		}
		av, err := attributevalue.Marshal(ch.Value)
		if err != nil {
			return nil, err
		}
		valuePH := fmt.Sprintf(":val%d", i)
		values[valuePH] = av
		sets = append(sets, namePH+" = "+valuePH)
	}
	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}
	in := &awsv2dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       keyOf(appPK(appID), appSK(appID)),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}
	return in, nil
}

func (s *Store) DeleteApplication(ctx context.Context, appID string) error {
	items, err := s.queryPartition(ctx, appID)
	if err != nil {
		return domain.WrapStore("dynamodb query aggregate", err)
	}
	if len(items) == 0 {
		return domain.NotFound("application")
	}
	for _, item := range items {
		var key keyItem
		if err := attributevalue.UnmarshalMap(item, &key); err != nil {
			return domain.WrapStore("dynamodb decode key", err)
		}
		err := xray.Capture(ctx, "DynamoDB.DeleteItem", func(ctx context.Context) error {
			_, err := s.client.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
				TableName: s.table(),
				Key:       keyOf(key.PK, key.SK),
			})
			return err
		})
		if err != nil {
			return domain.WrapStore("dynamodb delete item", err)
		}
	}
	return nil
}

func (s *Store) CreateIssue(ctx context.Context, issue domain.Issue) error {
	err := s.put(ctx, "DynamoDB.PutIssue", toIssueItem(issue), "attribute_not_exists(PK) AND attribute_not_exists(SK)")
	if isConditionalCheckFailure(err) {
		return domain.Invalidf("issue already exists")
	}
	return domain.WrapStore("dynamodb put issue", err)
}

// UpdateIssue replaces the whole item so the status index keys move with it.
func (s *Store) UpdateIssue(ctx context.Context, issue domain.Issue) error {
	err := s.put(ctx, "DynamoDB.UpdateIssue", toIssueItem(issue), "attribute_exists(PK) AND attribute_exists(SK)")
	if isConditionalCheckFailure(err) {
		return domain.NotFound("issue")
	}
	return domain.WrapStore("dynamodb update issue", err)
}

func (s *Store) GetIssue(ctx context.Context, appID, issueID string) (domain.Issue, error) {
	item, err := s.getItem(ctx, "DynamoDB.GetIssue", appPK(appID), issueSK(issueID))
	if err != nil {
		return domain.Issue{}, domain.WrapStore("dynamodb get issue", err)
	}
	if item == nil {
		return domain.Issue{}, domain.NotFound("issue")
	}
	var raw issueItem
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.Issue{}, domain.WrapStore("dynamodb decode issue", err)
	}
	return raw.domain(), nil
}

func (s *Store) DeleteIssue(ctx context.Context, appID, issueID string) error {
	err := xray.Capture(ctx, "DynamoDB.DeleteIssue", func(ctx context.Context) error {
		_, err := s.client.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
			TableName:           s.table(),
			Key:                 keyOf(appPK(appID), issueSK(issueID)),
			ConditionExpression: aws.String("attribute_exists(SK)"),
		})
		return err
	})
	if isConditionalCheckFailure(err) {
		return domain.NotFound("issue")
	}
	return domain.WrapStore("dynamodb delete issue", err)
}

func (s *Store) PutTimelineEvent(ctx context.Context, event domain.TimelineEvent) error {
	return domain.WrapStore("dynamodb put timeline event", s.put(ctx, "DynamoDB.PutTimelineEvent", toTimelineItem(event), ""))
}

func (s *Store) CreateExtension(ctx context.Context, ext domain.ExtensionOfTime) error {
	err := s.put(ctx, "DynamoDB.PutExtension", toExtensionItem(ext), "attribute_not_exists(PK) AND attribute_not_exists(SK)")
	if isConditionalCheckFailure(err) {
		return domain.Invalidf("extension of time already exists")
	}
	return domain.WrapStore("dynamodb put extension", err)
}

func (s *Store) UpdateExtension(ctx context.Context, ext domain.ExtensionOfTime) error {
	err := s.put(ctx, "DynamoDB.UpdateExtension", toExtensionItem(ext), "attribute_exists(PK) AND attribute_exists(SK)")
	if isConditionalCheckFailure(err) {
		return domain.NotFound("extension of time")
	}
	return domain.WrapStore("dynamodb update extension", err)
}

func (s *Store) GetExtension(ctx context.Context, appID, extensionID string) (domain.ExtensionOfTime, error) {
	item, err := s.getItem(ctx, "DynamoDB.GetExtension", appPK(appID), extensionSK(extensionID))
	if err != nil {
		return domain.ExtensionOfTime{}, domain.WrapStore("dynamodb get extension", err)
	}
	if item == nil {
		return domain.ExtensionOfTime{}, domain.NotFound("extension of time")
	}
	var raw extensionItem
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.ExtensionOfTime{}, domain.WrapStore("dynamodb decode extension", err)
	}
	return raw.domain(), nil
}

func (s *Store) getItem(ctx context.Context, segment, pk, sk string) (map[string]awsv2types.AttributeValue, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, segment, func(ctx context.Context) error {
		var e error
		out, e = s.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: s.table(),
			Key:       keyOf(pk, sk),
		})
		return e
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

// ListApplicationsByStatus reads the status index newest submission first.
// The page token is the encoded LastEvaluatedKey.
func (s *Store) ListApplicationsByStatus(ctx context.Context, status domain.ApplicationStatus, page domain.PageRequest) (domain.Page, error) {
	start, err := decodeCursor(page.Cursor)
	if err != nil {
		return domain.Page{}, domain.Invalidf("invalid pagination token")
	}
	var out *awsv2dynamodb.QueryOutput
	err = xray.Capture(ctx, "DynamoDB.QueryApplicationsByStatus", func(ctx context.Context) error {
		var e error
		out, e = s.client.db.Query(ctx, &awsv2dynamodb.QueryInput{
			TableName:              s.table(),
			IndexName:              aws.String(statusIndex),
			KeyConditionExpression: aws.String("GSI1PK = :pk"),
			ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
				":pk": &awsv2types.AttributeValueMemberS{Value: appStatusKey(string(status))},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(page.Limit)),
			ExclusiveStartKey: start,
		})
		return e
	})
	if err != nil {
		return domain.Page{}, domain.WrapStore("dynamodb query applications", err)
	}
	result := domain.Page{Items: make([]domain.Application, 0, len(out.Items))}
	for _, item := range out.Items {
		var raw applicationItem
		if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
			return domain.Page{}, domain.WrapStore("dynamodb decode application", err)
		}
		if raw.EntityType != entityApplication {
			continue
		}
		result.Items = append(result.Items, raw.domain())
	}
	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return domain.Page{}, domain.WrapStore("dynamodb encode cursor", err)
	}
	result.NextToken = next
	return result, nil
}

func (s *Store) ListIssues(ctx context.Context, status domain.IssueStatus) ([]domain.Issue, error) {
	statuses := domain.IssueStatusOrder
	if status != "" {
		statuses = []domain.IssueStatus{status}
	}
	issues := []domain.Issue{}
	for _, st := range statuses {
		var start map[string]awsv2types.AttributeValue
		for {
			var out *awsv2dynamodb.QueryOutput
			err := xray.Capture(ctx, "DynamoDB.QueryIssuesByStatus", func(ctx context.Context) error {
				var e error
				out, e = s.client.db.Query(ctx, &awsv2dynamodb.QueryInput{
					TableName:              s.table(),
					IndexName:              aws.String(statusIndex),
					KeyConditionExpression: aws.String("GSI1PK = :pk"),
					ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
						":pk": &awsv2types.AttributeValueMemberS{Value: issueStatusKey(string(st))},
					},
					ScanIndexForward:  aws.Bool(true),
					ExclusiveStartKey: start,
				})
				return e
			})
			if err != nil {
				return nil, domain.WrapStore("dynamodb query issues", err)
			}
			for _, item := range out.Items {
				var raw issueItem
				if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
					return nil, domain.WrapStore("dynamodb decode issue", err)
				}
				if raw.EntityType == entityIssue {
					issues = append(issues, raw.domain())
				}
			}
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			start = out.LastEvaluatedKey
		}
	}
	return issues, nil
}

func keyOf(pk, sk string) map[string]awsv2types.AttributeValue {
	return map[string]awsv2types.AttributeValue{
		"PK": &awsv2types.AttributeValueMemberS{Value: pk},
		"SK": &awsv2types.AttributeValueMemberS{Value: sk},
	}
}

// Index keys are all strings, so a LastEvaluatedKey round-trips through a
// flat JSON object.
func encodeCursor(key map[string]awsv2types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	flat := map[string]string{}
	if err := attributevalue.UnmarshalMap(key, &flat); err != nil {
		return "", err
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(token string) (map[string]awsv2types.AttributeValue, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	flat := map[string]string{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(flat)
}
