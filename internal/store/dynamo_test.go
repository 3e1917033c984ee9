package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/outreach-platform/pkg/logging"
)

type mockDynamo struct {
	putInputs    []*dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	getOutput    *dynamodb.GetItemOutput
	scanOutput   *dynamodb.ScanOutput
	scanErr      error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getOutput != nil {
		return m.getOutput, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	if m.scanOutput != nil {
		return m.scanOutput, nil
	}
	return &dynamodb.ScanOutput{}, nil
}

type fakeAPIError struct{ code string }

func (e *fakeAPIError) Error() string                 { return e.code }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var testTables = map[string]string{
	CollectionUsers:       "users",
	CollectionProspects:   "prospects",
	CollectionInvitations: "invitations",
}

func newDynamoBackend(mock *mockDynamo) *DynamoBackend {
	return NewDynamoBackend(mock, testTables, time.Minute, logging.Default())
}

func TestDynamoBackendPutSanitizes(t *testing.T) {
	mock := &mockDynamo{}
	b := newDynamoBackend(mock)

	rec := Record{"name": "Lucas", "handle": make(chan int)}
	rec["self"] = rec
	require.NoError(t, b.Put(context.Background(), CollectionProspects, "p1", rec))

	require.Len(t, mock.putInputs, 1)
	assert.Equal(t, "prospects", *mock.putInputs[0].TableName)

	var stored Record
	require.NoError(t, attributevalue.UnmarshalMap(mock.putInputs[0].Item, &stored))
	assert.Equal(t, "Lucas", stored["name"])
	assert.Equal(t, "p1", stored[FieldID])
	assert.NotContains(t, stored, "handle")
	assert.NotContains(t, stored, "self")
}

func TestDynamoBackendPatchBuildsExpression(t *testing.T) {
	mock := &mockDynamo{}
	b := newDynamoBackend(mock)

	err := b.Patch(context.Background(), CollectionProspects, "p1", Record{
		"status":          "Member",
		"wantsBaptism":    true,
		"id":              "must-not-be-patched",
		"brokenReference": func() {},
	})
	require.NoError(t, err)

	require.Len(t, mock.updateInputs, 1)
	update := mock.updateInputs[0]

	key := update.Key[FieldID].(*types.AttributeValueMemberS)
	assert.Equal(t, "p1", key.Value)

	// Fields are sorted, so placeholders are deterministic.
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1", *update.UpdateExpression)
	assert.Equal(t, "status", update.ExpressionAttributeNames["#f0"])
	assert.Equal(t, "wantsBaptism", update.ExpressionAttributeNames["#f1"])

	status := update.ExpressionAttributeValues[":v0"].(*types.AttributeValueMemberS)
	assert.Equal(t, "Member", status.Value)
}

func TestDynamoBackendPatchWithNoSurvivingFieldsIsNoOp(t *testing.T) {
	mock := &mockDynamo{}
	b := newDynamoBackend(mock)

	require.NoError(t, b.Patch(context.Background(), CollectionProspects, "p1", Record{"id": "p1"}))
	assert.Empty(t, mock.updateInputs)
}

func TestDynamoBackendGetNotFound(t *testing.T) {
	b := newDynamoBackend(&mockDynamo{})
	_, err := b.Get(context.Background(), CollectionUsers, "u-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoBackendListNewestFirst(t *testing.T) {
	older, _ := attributevalue.MarshalMap(Record{FieldID: "a", "createdAt": "2026-01-01T00:00:00Z"})
	newer, _ := attributevalue.MarshalMap(Record{FieldID: "b", "createdAt": "2026-02-01T00:00:00Z"})
	mock := &mockDynamo{scanOutput: &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{older, newer}}}
	b := newDynamoBackend(mock)

	records, err := b.List(context.Background(), CollectionProspects)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0][FieldID])
	assert.Equal(t, "a", records[1][FieldID])
}

func TestDynamoBackendUnmappedCollection(t *testing.T) {
	b := newDynamoBackend(&mockDynamo{})
	err := b.Put(context.Background(), "unknown", "x", Record{})
	assert.Error(t, err)
}

func TestDynamoBackendSubscribeDeliversInitialSnapshot(t *testing.T) {
	item, _ := attributevalue.MarshalMap(Record{FieldID: "p1", "name": "Rosa"})
	mock := &mockDynamo{scanOutput: &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{item}}}
	b := newDynamoBackend(mock)
	defer b.Close()

	var got Snapshot
	cancel := b.Subscribe(CollectionProspects, func(s Snapshot) { got = s })
	defer cancel()

	require.Len(t, got.Records, 1)
	assert.Equal(t, "Rosa", got.Records[0]["name"])
	assert.False(t, got.Denied)
}

func TestDynamoBackendSubscribeFlagsAccessDenied(t *testing.T) {
	mock := &mockDynamo{scanErr: &fakeAPIError{code: "AccessDeniedException"}}
	b := newDynamoBackend(mock)
	defer b.Close()

	var got Snapshot
	cancel := b.Subscribe(CollectionProspects, func(s Snapshot) { got = s })
	defer cancel()

	assert.True(t, got.Denied)
	assert.Error(t, got.Err)
}

func TestIsAccessDenied(t *testing.T) {
	assert.True(t, isAccessDenied(&fakeAPIError{code: "AccessDeniedException"}))
	assert.False(t, isAccessDenied(&fakeAPIError{code: "ThrottlingException"}))
	assert.False(t, isAccessDenied(errors.New("plain error")))
}
