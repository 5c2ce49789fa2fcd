package deadletter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoOptions locate the dead-letter table. Endpoint overrides the AWS
// endpoint, e.g. for DynamoDB Local.
type DynamoOptions struct {
	Table    string
	Region   string
	Endpoint string
}

// DynamoAPI is the part of *dynamodb.Client the store uses.
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore writes one item per entry keyed by decision_id.
type DynamoStore struct {
	db    DynamoAPI
	table string
}

func NewDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	if strings.TrimSpace(opts.Table) == "" {
		return nil, fmt.Errorf("dynamo table is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-2"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewDynamoStoreWithClient(client, opts.Table), nil
}

func NewDynamoStoreWithClient(db DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{db: db, table: table}
}

func (s *DynamoStore) Add(ctx context.Context, e Entry) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamo put item: %w", err)
	}
	return nil
}

// List scans the whole table, orders entries by dead-letter time and returns
// the oldest limit of them; limit <= 0 means all.
func (s *DynamoStore) List(ctx context.Context, limit int) ([]Entry, error) {
	pages := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{TableName: aws.String(s.table)})
	var entries []Entry
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo scan: %w", err)
		}
		var page []Entry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("decode dead-letter entries: %w", err)
		}
		entries = append(entries, page...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DeadLetteredAt.Before(entries[j].DeadLetteredAt)
	})
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *DynamoStore) Len(ctx context.Context) (int, error) {
	pages := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Select:    types.SelectCount,
	})
	total := 0
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("dynamo scan count: %w", err)
		}
		total += int(out.Count)
	}
	return total, nil
}
