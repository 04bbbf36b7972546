package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

const (
	EmailIndex = "EmailIndex"
	CvIDIndex  = "CvIdIndex"

	attrStorageKey = "s3_key"
)

// API is the subset of the DynamoDB client used by the repository.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// cvItem is the table layout. The storage key is the partition key so the
// uniqueness invariant is a conditional put.
type cvItem struct {
	StorageKey       string   `dynamodbav:"s3_key"`
	ID               string   `dynamodbav:"cv_id"`
	OwnerEmail       string   `dynamodbav:"email"`
	OriginalFilename string   `dynamodbav:"original_filename"`
	UploadedAt       string   `dynamodbav:"uploaded_at"`
	Keywords         []string `dynamodbav:"keywords"`
	Status           string   `dynamodbav:"status"`
}

type CatalogRepository struct {
	client    API
	tableName string
}

func NewCatalogRepository(client API, tableName string) *CatalogRepository {
	return &CatalogRepository{client: client, tableName: tableName}
}

// EnsureTable creates the table and its owner and id indexes when missing.
func (r *CatalogRepository) EnsureTable(ctx context.Context) error {
	_, err := r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(r.tableName),
		BillingMode: types.BillingModePayPerRequest,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrStorageKey), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrStorageKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("cv_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("email"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("uploaded_at"), AttributeType: types.ScalarAttributeTypeS},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(EmailIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("email"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("uploaded_at"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				IndexName: aws.String(CvIDIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("cv_id"), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("create table %s: %w", r.tableName, err)
	}
	return nil
}

func toItem(rec *domain.CvRecord) cvItem {
	keywords := rec.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return cvItem{
		StorageKey:       rec.StorageKey,
		ID:               rec.ID,
		OwnerEmail:       rec.OwnerEmail,
		OriginalFilename: rec.OriginalFilename,
		UploadedAt:       rec.UploadedAt.UTC().Format(time.RFC3339Nano),
		Keywords:         keywords,
		Status:           string(rec.Status),
	}
}

func toRecord(item cvItem) (domain.CvRecord, error) {
	uploadedAt, err := time.Parse(time.RFC3339Nano, item.UploadedAt)
	if err != nil {
		return domain.CvRecord{}, fmt.Errorf("parse uploaded_at: %w", err)
	}
	keywords := item.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return domain.CvRecord{
		ID:               item.ID,
		OwnerEmail:       item.OwnerEmail,
		StorageKey:       item.StorageKey,
		OriginalFilename: item.OriginalFilename,
		UploadedAt:       uploadedAt.UTC(),
		Keywords:         keywords,
		Status:           domain.CvStatus(item.Status),
	}, nil
}

func (r *CatalogRepository) Create(ctx context.Context, rec *domain.CvRecord) error {
	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("marshal cv item: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name(attrStorageKey))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return domain.WrapError(domain.ErrDuplicateKey, "put cv item", fmt.Errorf("storage_key=%s", rec.StorageKey))
		}
		return wrapAPIError("put cv item", err)
	}
	return nil
}

func (r *CatalogRepository) GetByStorageKey(ctx context.Context, storageKey string) (*domain.CvRecord, error) {
	key, err := attributevalue.MarshalMap(map[string]string{attrStorageKey: storageKey})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, wrapAPIError("get cv item", err)
	}
	if result.Item == nil {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get cv item", fmt.Errorf("storage_key=%s", storageKey))
	}

	var item cvItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal cv item: %w", err)
	}
	rec, err := toRecord(item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*domain.CvRecord, error) {
	records, err := r.query(ctx, CvIDIndex, "cv_id", id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get cv item", fmt.Errorf("cv_id=%s", id))
	}
	return &records[0], nil
}

func (r *CatalogRepository) UpdateIngestion(
	ctx context.Context,
	storageKey string,
	keywords []string,
	status domain.CvStatus,
) (*domain.CvRecord, error) {
	if keywords == nil {
		keywords = []string{}
	}

	update := expression.Set(expression.Name("keywords"), expression.Value(keywords))
	update = update.Set(expression.Name("status"), expression.Value(string(status)))
	cond := expression.AttributeExists(expression.Name(attrStorageKey))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build update expression: %w", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       map[string]types.AttributeValue{attrStorageKey: &types.AttributeValueMemberS{Value: storageKey}},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "update cv item", fmt.Errorf("storage_key=%s", storageKey))
		}
		return nil, wrapAPIError("update cv item", err)
	}

	var item cvItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, fmt.Errorf("unmarshal cv item: %w", err)
	}
	rec, err := toRecord(item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *CatalogRepository) ListByOwner(ctx context.Context, ownerEmail string) ([]domain.CvRecord, error) {
	records, err := r.query(ctx, EmailIndex, "email", ownerEmail)
	if err != nil {
		return nil, err
	}
	domain.SortByUploadedDesc(records)
	return records, nil
}

// Search scans the table; keyword matching runs here rather than in a
// FilterExpression because contains() on a list is exact element membership.
func (r *CatalogRepository) Search(ctx context.Context, query domain.SearchQuery) ([]domain.CvRecord, error) {
	var filter *expression.ConditionBuilder
	if query.Filtered() {
		processed := expression.Name("status").Equal(expression.Value(string(domain.CvStatusProcessed)))
		filter = &processed
	}
	out, err := r.scan(ctx, filter, func(rec domain.CvRecord) bool {
		return domain.MatchesAll(rec, query.Keywords)
	})
	if err != nil {
		return nil, err
	}
	domain.SortByUploadedDesc(out)
	return out, nil
}

// ListPending filters on status server-side; uploaded_at is RFC3339Nano
// text, which does not order lexically, so the age check runs here.
func (r *CatalogRepository) ListPending(ctx context.Context, uploadedBefore time.Time) ([]domain.CvRecord, error) {
	pending := expression.Name("status").Equal(expression.Value(string(domain.CvStatusPending)))
	out, err := r.scan(ctx, &pending, func(rec domain.CvRecord) bool {
		return rec.UploadedAt.Before(uploadedBefore)
	})
	if err != nil {
		return nil, err
	}
	domain.SortByUploadedDesc(out)
	return out, nil
}

func (r *CatalogRepository) scan(ctx context.Context, filter *expression.ConditionBuilder, keep func(domain.CvRecord) bool) ([]domain.CvRecord, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}
	if filter != nil {
		expr, err := expression.NewBuilder().WithFilter(*filter).Build()
		if err != nil {
			return nil, fmt.Errorf("build filter expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	out := make([]domain.CvRecord, 0)
	paginator := dynamodb.NewScanPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAPIError("scan cv table", err)
		}
		records, err := unmarshalRecords(page.Items)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if keep(rec) {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (r *CatalogRepository) query(ctx context.Context, index, attr, value string) ([]domain.CvRecord, error) {
	keyCond := expression.Key(attr).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	out := make([]domain.CvRecord, 0)
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAPIError("query "+index, err)
		}
		records, err := unmarshalRecords(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func unmarshalRecords(items []map[string]types.AttributeValue) ([]domain.CvRecord, error) {
	var cvItems []cvItem
	if err := attributevalue.UnmarshalListOfMaps(items, &cvItems); err != nil {
		return nil, fmt.Errorf("unmarshal cv items: %w", err)
	}
	out := make([]domain.CvRecord, 0, len(cvItems))
	for _, item := range cvItems {
		rec, err := toRecord(item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// wrapAPIError marks throttling as temporary so callers may retry; every
// other service failure is an upstream error.
func wrapAPIError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException", "RequestLimitExceeded":
			return domain.WrapError(domain.ErrTemporary, op, err)
		}
	}
	return domain.WrapError(domain.ErrUpstream, op, err)
}
