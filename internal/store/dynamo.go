package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/openharvest/outreach-platform/internal/sanitize"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// dynamoAPI is the subset of the DynamoDB client used by DynamoBackend.
type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoBackend is the remote document store. Live subscriptions are
// rendered as a poll-driven watcher per collection: subscribers get the
// current snapshot immediately and a fresh one whenever the observed
// contents change. The backend's own writes kick the watcher so local
// mutations propagate without waiting out the poll interval.
type DynamoBackend struct {
	client   dynamoAPI
	tables   map[string]string
	interval time.Duration
	logger   *logging.Logger

	mu       sync.Mutex
	watchers map[string]*watcher
	nextSub  int
	closed   bool
}

var _ Backend = (*DynamoBackend)(nil)

type watcher struct {
	subs map[int]SubscriberFunc
	stop chan struct{}
	kick chan struct{}
	last []byte
}

// NewDynamoBackend builds a remote backend over the provided client.
// tables maps logical collection names to DynamoDB table names.
func NewDynamoBackend(client dynamoAPI, tables map[string]string, interval time.Duration, logger *logging.Logger) *DynamoBackend {
	if client == nil {
		panic("store: dynamodb client cannot be nil")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoBackend{
		client:   client,
		tables:   tables,
		interval: interval,
		logger:   logger,
		watchers: make(map[string]*watcher),
	}
}

func (b *DynamoBackend) tableFor(collection string) (string, error) {
	if name, ok := b.tables[collection]; ok && name != "" {
		return name, nil
	}
	return "", fmt.Errorf("store: no table mapped for collection %q", collection)
}

func (b *DynamoBackend) Put(ctx context.Context, collection, id string, rec Record) error {
	table, err := b.tableFor(collection)
	if err != nil {
		return err
	}

	clean := sanitize.Record(rec)
	clean[FieldID] = id

	item, err := attributevalue.MarshalMap(clean)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}

	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("store: put %s/%s: %w", collection, id, err)
	}

	b.kickWatcher(collection)
	return nil
}

func (b *DynamoBackend) Patch(ctx context.Context, collection, id string, fields Record) error {
	table, err := b.tableFor(collection)
	if err != nil {
		return err
	}

	clean := sanitize.Record(fields)
	delete(clean, FieldID)
	if len(clean) == 0 {
		return nil
	}

	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))
	expr := "SET "
	for i, k := range keys {
		attr, err := attributevalue.Marshal(clean[k])
		if err != nil {
			return fmt.Errorf("store: marshal field %s: %w", k, err)
		}
		namePH := fmt.Sprintf("#f%d", i)
		valuePH := fmt.Sprintf(":v%d", i)
		names[namePH] = k
		values[valuePH] = attr
		if i > 0 {
			expr += ", "
		}
		expr += namePH + " = " + valuePH
	}

	if _, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       map[string]types.AttributeValue{FieldID: &types.AttributeValueMemberS{Value: id}},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}); err != nil {
		return fmt.Errorf("store: patch %s/%s: %w", collection, id, err)
	}

	b.kickWatcher(collection)
	return nil
}

func (b *DynamoBackend) Get(ctx context.Context, collection, id string) (Record, error) {
	table, err := b.tableFor(collection)
	if err != nil {
		return nil, err
	}

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       map[string]types.AttributeValue{FieldID: &types.AttributeValueMemberS{Value: id}},
	})
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return rec, nil
}

func (b *DynamoBackend) List(ctx context.Context, collection string) ([]Record, error) {
	table, err := b.tableFor(collection)
	if err != nil {
		return nil, err
	}

	var records []Record
	var startKey map[string]types.AttributeValue
	for {
		out, err := b.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("store: list %s: %w", collection, err)
		}
		var page []Record
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("store: unmarshal records: %w", err)
		}
		records = append(records, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sortNewestFirst(records)
	return records, nil
}

func (b *DynamoBackend) Subscribe(collection string, fn SubscriberFunc) func() {
	b.mu.Lock()
	w := b.watchers[collection]
	if w == nil {
		w = &watcher{
			subs: make(map[int]SubscriberFunc),
			stop: make(chan struct{}),
			kick: make(chan struct{}, 1),
		}
		b.watchers[collection] = w
		go b.watch(collection, w)
	}
	id := b.nextSub
	b.nextSub++
	w.subs[id] = fn
	b.mu.Unlock()

	// New subscribers get the current state before the next poll.
	snap := b.fetch(collection)
	b.mu.Lock()
	w.last = fingerprint(snap)
	b.mu.Unlock()
	fn(snap)

	return func() {
		b.mu.Lock()
		delete(w.subs, id)
		b.mu.Unlock()
	}
}

func (b *DynamoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, w := range b.watchers {
		close(w.stop)
	}
	return nil
}

// kickWatcher wakes the collection watcher after one of our own writes
// so in-memory caches refresh promptly.
func (b *DynamoBackend) kickWatcher(collection string) {
	b.mu.Lock()
	w := b.watchers[collection]
	b.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (b *DynamoBackend) watch(collection string, w *watcher) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		case <-w.kick:
		}

		snap := b.fetch(collection)
		fp := fingerprint(snap)

		b.mu.Lock()
		changed := !bytes.Equal(fp, w.last)
		if changed {
			w.last = fp
		}
		fns := make([]SubscriberFunc, 0, len(w.subs))
		for _, fn := range w.subs {
			fns = append(fns, fn)
		}
		b.mu.Unlock()

		if !changed {
			continue
		}
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (b *DynamoBackend) fetch(collection string) Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	records, err := b.List(ctx, collection)
	if err != nil {
		denied := isAccessDenied(err)
		if denied {
			b.logger.Error("document store denied access", "collection", collection, "error", err)
		} else {
			b.logger.Warn("collection refresh failed", "collection", collection, "error", err)
		}
		return Snapshot{Collection: collection, Denied: denied, Err: err}
	}
	return Snapshot{Collection: collection, Records: records}
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDeniedException"
}

// fingerprint reduces a snapshot to comparable bytes for change
// detection between polls.
func fingerprint(s Snapshot) []byte {
	if s.Err != nil {
		return []byte("err:" + s.Err.Error())
	}
	return sanitize.Encode(s.Records)
}
