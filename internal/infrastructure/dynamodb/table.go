package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-xray-sdk-go/xray"
)

// EnsureTable creates the table and both indexes when it does not exist yet.
// It is meant for local DynamoDB; deployed tables come from the template.
func (c *Client) EnsureTable(ctx context.Context) (created bool, err error) {
	err = xray.Capture(ctx, "DynamoDB.DescribeTable", func(ctx context.Context) error {
		_, err := c.db.DescribeTable(ctx, &awsv2dynamodb.DescribeTableInput{TableName: aws.String(c.tableName)})
		return err
	})
	if err == nil {
		return false, nil
	}
	var missing *awsv2types.ResourceNotFoundException
	if !errors.As(err, &missing) {
		return false, err
	}
	err = xray.Capture(ctx, "DynamoDB.CreateTable", func(ctx context.Context) error {
		_, err := c.db.CreateTable(ctx, tableDefinition(c.tableName))
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func tableDefinition(tableName string) *awsv2dynamodb.CreateTableInput {
	attr := func(name string) awsv2types.AttributeDefinition {
		return awsv2types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: awsv2types.ScalarAttributeTypeS}
	}
	keys := func(hash, rng string) []awsv2types.KeySchemaElement {
		return []awsv2types.KeySchemaElement{
			{AttributeName: aws.String(hash), KeyType: awsv2types.KeyTypeHash},
			{AttributeName: aws.String(rng), KeyType: awsv2types.KeyTypeRange},
		}
	}
	index := func(name, hash, rng string) awsv2types.GlobalSecondaryIndex {
		return awsv2types.GlobalSecondaryIndex{
			IndexName:  aws.String(name),
			KeySchema:  keys(hash, rng),
			Projection: &awsv2types.Projection{ProjectionType: awsv2types.ProjectionTypeAll},
		}
	}
	return &awsv2dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: awsv2types.BillingModePayPerRequest,
		AttributeDefinitions: []awsv2types.AttributeDefinition{
			attr("PK"), attr("SK"), attr("GSI1PK"), attr("GSI1SK"), attr("GSI2PK"), attr("GSI2SK"),
		},
		KeySchema: keys("PK", "SK"),
		GlobalSecondaryIndexes: []awsv2types.GlobalSecondaryIndex{
			index(statusIndex, "GSI1PK", "GSI1SK"),
			index(referenceIndex, "GSI2PK", "GSI2SK"),
		},
	}
}
