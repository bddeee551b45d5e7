// Package dynamo stores the case ledger in a DynamoDB table, for deployments
// (such as Lambda) without a local disk.
//
// Table layout: partition key "PK" = "NODE#<hash>", no sort key. A global
// secondary index named "parent-index" is keyed on the "parent" attribute,
// which holds the parent hash or "ROOT".
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/finvisor/finvisor/pkg/merkle"
)

const (
	pkPrefix    = "NODE#"
	rootParent  = "ROOT"
	parentIndex = "parent-index"
)

// dynamodbAPI is the minimal DynamoDB interface required by Storer.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Storer implements merkle.Storer on DynamoDB.
type Storer struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ merkle.Storer = (*Storer)(nil)

// New creates a Storer for tableName.
func New(api dynamodbAPI, tableName string) (*Storer, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &Storer{api: api, tableName: tableName, now: time.Now}, nil
}

// NewFromEnvironment loads the default AWS configuration chain and returns a
// Storer on tableName.
func NewFromEnvironment(ctx context.Context, region, tableName string) (*Storer, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), tableName)
}

func nodePK(hash string) string {
	return pkPrefix + hash
}

func (s *Storer) Put(ctx context.Context, node *merkle.Node) error {
	if node == nil {
		return errors.New("dynamo: cannot store nil node")
	}

	content, err := json.Marshal(node.Content)
	if err != nil {
		return fmt.Errorf("dynamo: marshal content: %w", err)
	}

	parent := rootParent
	if node.ParentHash != nil {
		parent = *node.ParentHash
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":      &types.AttributeValueMemberS{Value: nodePK(node.Hash)},
			"hash":    &types.AttributeValueMemberS{Value: node.Hash},
			"parent":  &types.AttributeValueMemberS{Value: parent},
			"content": &types.AttributeValueMemberS{Value: string(content)},
			"created": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().UnixNano(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var exists *types.ConditionalCheckFailedException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("dynamo: put node %s: %w", node.Hash, err)
	}
	return nil
}

func (s *Storer) Get(ctx context.Context, hash string) (*merkle.Node, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: nodePK(hash)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get node %s: %w", hash, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, merkle.ErrNotFound{Hash: hash}
	}

	rec, err := itemToRecord(out.Item)
	if err != nil {
		return nil, err
	}
	return rec.node, nil
}

func (s *Storer) Has(ctx context.Context, hash string) (bool, error) {
	_, err := s.Get(ctx, hash)
	if merkle.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Storer) GetByParent(ctx context.Context, parentHash *string) ([]*merkle.Node, error) {
	parent := rootParent
	if parentHash != nil {
		parent = *parentHash
	}

	var (
		recs  []record
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(parentIndex),
			KeyConditionExpression: aws.String("parent = :parent"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":parent": &types.AttributeValueMemberS{Value: parent},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: query children of %s: %w", parent, err)
		}
		for _, item := range out.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}
	return nodesOf(recs), nil
}

func (s *Storer) List(ctx context.Context) ([]*merkle.Node, error) {
	recs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return nodesOf(recs), nil
}

func (s *Storer) Roots(ctx context.Context) ([]*merkle.Node, error) {
	return s.GetByParent(ctx, nil)
}

// Leaves scans the table once; there is no index on "has children".
func (s *Storer) Leaves(ctx context.Context) ([]*merkle.Node, error) {
	recs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	parents := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		if r.node.ParentHash != nil {
			parents[*r.node.ParentHash] = struct{}{}
		}
	}

	leaves := make([]record, 0)
	for _, r := range recs {
		if _, ok := parents[r.node.Hash]; !ok {
			leaves = append(leaves, r)
		}
	}
	return nodesOf(leaves), nil
}

func (s *Storer) Ancestry(ctx context.Context, hash string) ([]*merkle.Node, error) {
	return merkle.WalkAncestry(ctx, hash, s.Get)
}

func (s *Storer) Descendants(ctx context.Context, hash string) ([]*merkle.Node, error) {
	path, err := s.Ancestry(ctx, hash)
	if err != nil {
		return nil, err
	}
	return merkle.Reversed(path), nil
}

func (s *Storer) Depth(ctx context.Context, hash string) (int, error) {
	path, err := s.Ancestry(ctx, hash)
	if err != nil {
		return 0, err
	}
	return len(path) - 1, nil
}

func (s *Storer) Close() error {
	return nil
}

func (s *Storer) scan(ctx context.Context) ([]record, error) {
	var (
		recs  []record
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan: %w", err)
		}
		for _, item := range out.Items {
			rec, err := itemToRecord(item)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return recs, nil
		}
		start = out.LastEvaluatedKey
	}
}

type record struct {
	node    *merkle.Node
	created int64
}

// nodesOf orders records by creation time, matching the other storers'
// insertion order.
func nodesOf(recs []record) []*merkle.Node {
	slices.SortStableFunc(recs, func(a, b record) int {
		switch {
		case a.created < b.created:
			return -1
		case a.created > b.created:
			return 1
		}
		return 0
	})

	nodes := make([]*merkle.Node, 0, len(recs))
	for _, r := range recs {
		nodes = append(nodes, r.node)
	}
	return nodes
}

func itemToRecord(item map[string]types.AttributeValue) (record, error) {
	hash, err := stringAttr(item, "hash")
	if err != nil {
		return record{}, err
	}
	parent, err := stringAttr(item, "parent")
	if err != nil {
		return record{}, err
	}
	content, err := stringAttr(item, "content")
	if err != nil {
		return record{}, err
	}

	node := &merkle.Node{Hash: hash}
	if parent != rootParent {
		node.ParentHash = &parent
	}
	if err := json.Unmarshal([]byte(content), &node.Content); err != nil {
		return record{}, fmt.Errorf("dynamo: decode content of %s: %w", hash, err)
	}

	var created int64
	if av, ok := item["created"].(*types.AttributeValueMemberN); ok {
		created, _ = strconv.ParseInt(av.Value, 10, 64)
	}
	return record{node: node, created: created}, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	av, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamo: attribute %q missing or not a string", name)
	}
	return av.Value, nil
}
