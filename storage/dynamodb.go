package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/johnwmail/clipsync/models"
)

const (
	// ExpiryIndex is the local secondary index (partition userId, sort expiresAt)
	ExpiryIndex = "expiresAt-index"

	// DynamoDB caps BatchWriteItem at 25 requests
	dynamoBatchSize = 25
)

// dynamoAPI is the subset of the DynamoDB client used by DynamoStore
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements ClipStore using DynamoDB. The table is keyed by (userId, id) and
// carries the ExpiryIndex LSI. DynamoDB has no push channel in this stack, so live
// subscriptions poll the index and publish only when the result set changes.
type DynamoStore struct {
	client       dynamoAPI
	tableName    string
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewDynamoStore creates a new DynamoDB storage backend
func NewDynamoStore(tableName, region string, pollInterval time.Duration, logger *slog.Logger) (*DynamoStore, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newDynamoStore(dynamodb.NewFromConfig(cfg), tableName, pollInterval, logger), nil
}

func newDynamoStore(client dynamoAPI, tableName string, pollInterval time.Duration, logger *slog.Logger) *DynamoStore {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoStore{
		client:       client,
		tableName:    tableName,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Write saves a record to DynamoDB
func (d *DynamoStore) Write(ctx context.Context, userID string, rec models.Record) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	rec.ID = uuid.NewString()

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                recordToItem(userID, rec),
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	if err != nil {
		return "", unavailable("dynamodb put", err)
	}
	return rec.ID, nil
}

// DeleteByID removes one item; DynamoDB deletes are idempotent
func (d *DynamoStore) DeleteByID(ctx context.Context, userID, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       itemKey(userID, id),
	})
	return unavailable("dynamodb delete", err)
}

// DeleteExpired queries up to limit expired items and deletes them in batches of 25.
// Unprocessed items are left for the next sweep.
func (d *DynamoStore) DeleteExpired(ctx context.Context, userID string, now time.Time, limit int) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(ExpiryIndex),
		KeyConditionExpression: aws.String("userId = :u AND expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":   &types.AttributeValueMemberS{Value: userID},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
		ProjectionExpression:     aws.String("userId, #id"),
		ExpressionAttributeNames: map[string]string{"#id": "id"},
		ScanIndexForward:         aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := d.client.Query(ctx, input)
	if err != nil {
		return 0, unavailable("dynamodb query expired", err)
	}

	var requests []types.WriteRequest
	for _, item := range out.Items {
		id, ok := item["id"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: itemKey(userID, id.Value)},
		})
	}

	deleted := 0
	for start := 0; start < len(requests); start += dynamoBatchSize {
		end := min(start+dynamoBatchSize, len(requests))
		chunk := requests[start:end]
		res, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{d.tableName: chunk},
		})
		if err != nil {
			return deleted, unavailable("dynamodb batch delete", err)
		}
		deleted += len(chunk) - len(res.UnprocessedItems[d.tableName])
	}
	return deleted, nil
}

// SubscribeLive polls the expiry index and publishes whenever the live set changes. A failed
// poll is published once as an error snapshot and ends the feed; resubscribing is up to the
// caller.
func (d *DynamoStore) SubscribeLive(ctx context.Context, userID string, limit int, now time.Time) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	f := newFeed(cancel)

	go func() {
		defer f.finish()
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()

		last := ""
		first := true
		for {
			recs, err := d.queryLive(subCtx, userID, limit, now)
			switch {
			case subCtx.Err() != nil:
				return
			case err != nil:
				d.logger.Warn("DynamoDB live poll failed", "user", userID, "error", err)
				f.publish(Snapshot{Err: err})
				return
			default:
				sig := signature(recs)
				if first || sig != last {
					first = false
					last = sig
					f.publish(Snapshot{Records: recs})
				}
			}

			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return f, nil
}

func (d *DynamoStore) queryLive(ctx context.Context, userID string, limit int, now time.Time) ([]models.Record, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(ExpiryIndex),
		KeyConditionExpression: aws.String("userId = :u AND expiresAt > :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":   &types.AttributeValueMemberS{Value: userID},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := d.client.Query(ctx, input)
	if err != nil {
		return nil, unavailable("dynamodb query live", err)
	}
	recs := make([]models.Record, 0, len(out.Items))
	for _, item := range out.Items {
		recs = append(recs, itemToRecord(item))
	}
	return recs, nil
}

// Partitions scans the table for distinct user ids
func (d *DynamoStore) Partitions(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:            aws.String(d.tableName),
		ProjectionExpression: aws.String("userId"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, unavailable("dynamodb scan", err)
		}
		for _, item := range page.Items {
			u, ok := item["userId"].(*types.AttributeValueMemberS)
			if !ok || u.Value == "" {
				continue
			}
			if _, dup := seen[u.Value]; !dup {
				seen[u.Value] = struct{}{}
				ids = append(ids, u.Value)
			}
		}
	}
	return ids, nil
}

// Close is a no-op for DynamoDB
func (d *DynamoStore) Close() error {
	return nil
}

func itemKey(userID, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"userId": &types.AttributeValueMemberS{Value: userID},
		"id":     &types.AttributeValueMemberS{Value: id},
	}
}

// recordToItem converts a record to a DynamoDB item. "ttl" (epoch seconds) lets the table's
// native TTL remove items the sweeps missed.
func recordToItem(userID string, rec models.Record) map[string]types.AttributeValue {
	item := itemKey(userID, rec.ID)
	item["kind"] = &types.AttributeValueMemberS{Value: rec.Kind}
	item["createdAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.CreatedAt, 10)}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt, 10)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpiresAt/1000, 10)}
	item["origin"] = &types.AttributeValueMemberS{Value: rec.Origin}

	// DynamoDB rejects empty strings in key attributes only, but omit unused payload fields
	if rec.Content != "" {
		item["content"] = &types.AttributeValueMemberS{Value: rec.Content}
	}
	if rec.ImageRef != "" {
		item["imageRef"] = &types.AttributeValueMemberS{Value: rec.ImageRef}
	}
	return item
}

// itemToRecord converts a DynamoDB item to a record. Missing or mistyped attributes are left
// zero; Record.ToClip rejects what cannot be used.
func itemToRecord(item map[string]types.AttributeValue) models.Record {
	rec := models.Record{}

	if v, ok := item["id"].(*types.AttributeValueMemberS); ok {
		rec.ID = v.Value
	}
	if v, ok := item["kind"].(*types.AttributeValueMemberS); ok {
		rec.Kind = v.Value
	}
	if v, ok := item["content"].(*types.AttributeValueMemberS); ok {
		rec.Content = v.Value
	}
	if v, ok := item["imageRef"].(*types.AttributeValueMemberS); ok {
		rec.ImageRef = v.Value
	}
	if v, ok := item["createdAt"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			rec.CreatedAt = n
		}
	}
	if v, ok := item["expiresAt"].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			rec.ExpiresAt = n
		}
	}
	if v, ok := item["origin"].(*types.AttributeValueMemberS); ok {
		rec.Origin = v.Value
	}
	return rec
}

// signature identifies a result set; clips are immutable so ids and expiries suffice
func signature(recs []models.Record) string {
	var b strings.Builder
	for _, r := range recs {
		b.WriteString(r.ID)
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(r.ExpiresAt, 10))
		b.WriteByte(';')
	}
	return b.String()
}
