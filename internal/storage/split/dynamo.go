package split

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	sentinelerrors "github.com/scan-io-git/cloudsentinel/pkg/shared/errors"
)

const (
	// ScansByTimeIndex is the GSI on the scans table: hash "kind", range "sort_key".
	ScansByTimeIndex = "kind-sort_key-index"

	scanKind       = "scan"
	timelineStream = "timeline"
	batchSize      = 25
	maxBatchTries  = 5
)

type scanItem struct {
	ScanID       string         `dynamodbav:"scan_id"`
	Kind         string         `dynamodbav:"kind"`
	SortKey      string         `dynamodbav:"sort_key"`
	CreatedAt    string         `dynamodbav:"created_at"`
	AccountID    string         `dynamodbav:"account_id"`
	Region       string         `dynamodbav:"region"`
	Score        int            `dynamodbav:"score"`
	DomainScores map[string]int `dynamodbav:"domain_scores"`
	BodyKey      string         `dynamodbav:"body_key"`
}

type eventItem struct {
	Stream      string           `dynamodbav:"stream"`
	SeqKey      string           `dynamodbav:"seq_key"`
	EventTime   string           `dynamodbav:"event_time"`
	EventName   string           `dynamodbav:"event_name"`
	EventSource string           `dynamodbav:"event_source"`
	Username    string           `dynamodbav:"username"`
	Resources   []model.Resource `dynamodbav:"resources"`
	Scenario    string           `dynamodbav:"scenario"`
	OperationID string           `dynamodbav:"operation_id"`
}

// DynamoIndex keeps Metas in the scans table and the timeline in a second table keyed
// by stream and seq_key. seq_key is the event time key followed by a UUIDv7, so equal
// times keep their append order.
type DynamoIndex struct {
	client        dynamodbiface.DynamoDBAPI
	scansTable    string
	timelineTable string
	logger        hclog.Logger
}

var _ Index = (*DynamoIndex)(nil)

func NewDynamoIndex(client dynamodbiface.DynamoDBAPI, scansTable, timelineTable string, logger hclog.Logger) *DynamoIndex {
	return &DynamoIndex{
		client:        client,
		scansTable:    scansTable,
		timelineTable: timelineTable,
		logger:        logger,
	}
}

func (d *DynamoIndex) Name() string { return "dynamodb" }

func (d *DynamoIndex) Close() error { return nil }

// EnsureTables creates both tables with on-demand billing. Tables that already exist are
// left untouched.
func (d *DynamoIndex) EnsureTables(ctx context.Context) error {
	tables := []*dynamodb.CreateTableInput{
		{
			TableName:   aws.String(d.scansTable),
			BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
			AttributeDefinitions: []*dynamodb.AttributeDefinition{
				stringAttr("scan_id"), stringAttr("kind"), stringAttr("sort_key"),
			},
			KeySchema: []*dynamodb.KeySchemaElement{hashKey("scan_id")},
			GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndex{{
				IndexName:  aws.String(ScansByTimeIndex),
				KeySchema:  []*dynamodb.KeySchemaElement{hashKey("kind"), rangeKey("sort_key")},
				Projection: &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
			}},
		},
		{
			TableName:            aws.String(d.timelineTable),
			BillingMode:          aws.String(dynamodb.BillingModePayPerRequest),
			AttributeDefinitions: []*dynamodb.AttributeDefinition{stringAttr("stream"), stringAttr("seq_key")},
			KeySchema:            []*dynamodb.KeySchemaElement{hashKey("stream"), rangeKey("seq_key")},
		},
	}

	for _, input := range tables {
		_, err := d.client.CreateTableWithContext(ctx, input)
		if sentinelerrors.IsAWSErrorCode(err, dynamodb.ErrCodeResourceInUseException) {
			d.logger.Debug("table already exists", "table", aws.StringValue(input.TableName))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", aws.StringValue(input.TableName), err)
		}
		if err := d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}); err != nil {
			return fmt.Errorf("table %s did not become active: %w", aws.StringValue(input.TableName), err)
		}
		d.logger.Info("table created", "table", aws.StringValue(input.TableName))
	}
	return nil
}

func stringAttr(name string) *dynamodb.AttributeDefinition {
	return &dynamodb.AttributeDefinition{AttributeName: aws.String(name), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)}
}

func hashKey(name string) *dynamodb.KeySchemaElement {
	return &dynamodb.KeySchemaElement{AttributeName: aws.String(name), KeyType: aws.String(dynamodb.KeyTypeHash)}
}

func rangeKey(name string) *dynamodb.KeySchemaElement {
	return &dynamodb.KeySchemaElement{AttributeName: aws.String(name), KeyType: aws.String(dynamodb.KeyTypeRange)}
}

func (d *DynamoIndex) PutMeta(ctx context.Context, meta model.Meta) error {
	created := storage.TimeKey(meta.CreatedAt)
	item, err := dynamodbattribute.MarshalMap(scanItem{
		ScanID:       meta.ScanID,
		Kind:         scanKind,
		SortKey:      created + "#" + meta.ScanID,
		CreatedAt:    created,
		AccountID:    meta.AccountID,
		Region:       meta.Region,
		Score:        meta.Score,
		DomainScores: meta.DomainScores,
		BodyKey:      meta.BodyKey,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal meta %s: %w", meta.ScanID, err)
	}

	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.scansTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(scan_id)"),
	})
	if sentinelerrors.IsAWSErrorCode(err, dynamodb.ErrCodeConditionalCheckFailedException) {
		return fmt.Errorf("scan %s: %w", meta.ScanID, storage.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to put meta %s: %w", meta.ScanID, err)
	}
	return nil
}

func (d *DynamoIndex) ListMetas(ctx context.Context, limit int) ([]model.Meta, error) {
	items, err := d.queryNewest(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(d.scansTable),
		IndexName:                aws.String(ScansByTimeIndex),
		KeyConditionExpression:   aws.String("#k = :hash"),
		ExpressionAttributeNames: map[string]*string{"#k": aws.String("kind")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":hash": {S: aws.String(scanKind)},
		},
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	metas := make([]model.Meta, 0, len(items))
	for _, raw := range items {
		meta, err := decodeScanItem(raw)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (d *DynamoIndex) GetMeta(ctx context.Context, scanID string) (model.Meta, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.scansTable),
		Key:            map[string]*dynamodb.AttributeValue{"scan_id": {S: aws.String(scanID)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.Meta{}, fmt.Errorf("failed to get meta %s: %w", scanID, err)
	}
	if len(out.Item) == 0 {
		return model.Meta{}, storage.ErrNotFound
	}
	return decodeScanItem(out.Item)
}

func decodeScanItem(raw map[string]*dynamodb.AttributeValue) (model.Meta, error) {
	var item scanItem
	if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
		return model.Meta{}, fmt.Errorf("failed to unmarshal meta: %w", err)
	}
	created, err := storage.ParseTimeKey(item.CreatedAt)
	if err != nil {
		return model.Meta{}, fmt.Errorf("scan %s: %w", item.ScanID, err)
	}
	if item.DomainScores == nil {
		item.DomainScores = map[string]int{}
	}
	return model.Meta{
		ScanID:       item.ScanID,
		CreatedAt:    created,
		AccountID:    item.AccountID,
		Region:       item.Region,
		Score:        item.Score,
		DomainScores: item.DomainScores,
		BodyKey:      item.BodyKey,
	}, nil
}

// queryNewest pages through a descending query until limit items are collected.
func (d *DynamoIndex) queryNewest(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]map[string]*dynamodb.AttributeValue, error) {
	input.ScanIndexForward = aws.Bool(false)
	var items []map[string]*dynamodb.AttributeValue
	for len(items) < limit {
		input.Limit = aws.Int64(int64(limit - len(items)))
		out, err := d.client.QueryWithContext(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return items, nil
}

func (d *DynamoIndex) AppendEvents(ctx context.Context, events []model.TimelineEvent) error {
	requests := make([]*dynamodb.WriteRequest, 0, len(events))
	for _, e := range events {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate sequence key: %w", err)
		}
		at := storage.TimeKey(e.EventTime)
		item, err := dynamodbattribute.MarshalMap(eventItem{
			Stream:      timelineStream,
			SeqKey:      at + "#" + id.String(),
			EventTime:   at,
			EventName:   e.EventName,
			EventSource: e.EventSource,
			Username:    e.Username,
			Resources:   e.Resources,
			Scenario:    e.Scenario,
			OperationID: e.OperationID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.EventName, err)
		}
		requests = append(requests, &dynamodb.WriteRequest{PutRequest: &dynamodb.PutRequest{Item: item}})
	}
	if err := d.batchWrite(ctx, requests); err != nil {
		return fmt.Errorf("failed to append events: %w", err)
	}
	return nil
}

func (d *DynamoIndex) ListTimeline(ctx context.Context, since time.Time, limit int) ([]model.TimelineEvent, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(d.timelineTable),
		KeyConditionExpression:   aws.String("#s = :hash"),
		ExpressionAttributeNames: map[string]*string{"#s": aws.String("stream")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":hash": {S: aws.String(timelineStream)},
		},
	}
	if !since.IsZero() {
		input.KeyConditionExpression = aws.String("#s = :hash AND #q >= :lower")
		input.ExpressionAttributeNames["#q"] = aws.String("seq_key")
		input.ExpressionAttributeValues[":lower"] = &dynamodb.AttributeValue{S: aws.String(storage.TimeKey(since))}
	}

	items, err := d.queryNewest(ctx, input, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}

	events := make([]model.TimelineEvent, len(items))
	for i, raw := range items {
		var item eventItem
		if err := dynamodbattribute.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		at, err := storage.ParseTimeKey(item.EventTime)
		if err != nil {
			return nil, err
		}
		if item.Resources == nil {
			item.Resources = []model.Resource{}
		}
		// Newest first from the query, oldest first for callers.
		events[len(items)-1-i] = model.TimelineEvent{
			EventTime:   at,
			EventName:   item.EventName,
			EventSource: item.EventSource,
			Username:    item.Username,
			Resources:   item.Resources,
			Scenario:    item.Scenario,
			OperationID: item.OperationID,
		}
	}
	return events, nil
}

func (d *DynamoIndex) ResetTimeline(ctx context.Context) error {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(d.timelineTable),
		KeyConditionExpression:   aws.String("#s = :hash"),
		ProjectionExpression:     aws.String("#s, #q"),
		ExpressionAttributeNames: map[string]*string{"#s": aws.String("stream"), "#q": aws.String("seq_key")},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":hash": {S: aws.String(timelineStream)},
		},
	}

	var requests []*dynamodb.WriteRequest
	for {
		out, err := d.client.QueryWithContext(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to read timeline keys: %w", err)
		}
		for _, item := range out.Items {
			requests = append(requests, &dynamodb.WriteRequest{DeleteRequest: &dynamodb.DeleteRequest{
				Key: map[string]*dynamodb.AttributeValue{"stream": item["stream"], "seq_key": item["seq_key"]},
			}})
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	if err := d.batchWrite(ctx, requests); err != nil {
		return fmt.Errorf("failed to reset timeline: %w", err)
	}
	d.logger.Debug("timeline reset", "deleted", len(requests))
	return nil
}

// batchWrite sends requests to the timeline table in chunks of 25 and resubmits
// unprocessed items a few times before giving up.
func (d *DynamoIndex) batchWrite(ctx context.Context, requests []*dynamodb.WriteRequest) error {
	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]*dynamodb.WriteRequest{d.timelineTable: requests[start:end]}
		for try := 0; len(pending) > 0; try++ {
			if try == maxBatchTries {
				return fmt.Errorf("%d items left unprocessed after %d attempts", len(pending[d.timelineTable]), maxBatchTries)
			}
			out, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return err
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}
