package ddbbatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_ChunksAndResubmitsUnprocessed(t *testing.T) {
	var leftover []types.WriteRequest
	db := &fakeClient{
		batchWrite: func(call int, in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			if call == 3 {
				reqs := in.RequestItems["t"]
				leftover = reqs[len(reqs)-2:]
				return &dynamodb.BatchWriteItemOutput{
					UnprocessedItems: map[string][]types.WriteRequest{"t": leftover},
				}, nil
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	items := make([]Item, 53)
	for i := range items {
		items[i] = PutItem("t", key(i))
	}

	n, err := New(db, WithSleep(noSleep)).Write(context.Background(), items...)
	require.NoError(t, err)
	assert.Equal(t, 53, n)

	require.Len(t, db.writeCalls, 4)
	assert.Equal(t, 25, requestCount(db.writeCalls[0].RequestItems))
	assert.Equal(t, 25, requestCount(db.writeCalls[1].RequestItems))
	assert.Equal(t, 3, requestCount(db.writeCalls[2].RequestItems))
	assert.Equal(t, map[string][]types.WriteRequest{"t": leftover}, db.writeCalls[3].RequestItems)
}

func TestWrite_MultiTableChunk(t *testing.T) {
	db := &fakeClient{}
	var items []Item
	for i := range 20 {
		items = append(items, PutItem("a", key(i)))
	}
	for i := range 10 {
		items = append(items, DeleteItem("b", key(i)))
	}

	n, err := New(db).Write(context.Background(), items...)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	require.Len(t, db.writeCalls, 2)
	assert.Len(t, db.writeCalls[0].RequestItems["a"], 20)
	assert.Len(t, db.writeCalls[0].RequestItems["b"], 5)
	assert.Len(t, db.writeCalls[1].RequestItems["b"], 5)
	assert.NotContains(t, db.writeCalls[1].RequestItems, "a")
}

func TestWrite_Empty(t *testing.T) {
	db := &fakeClient{}
	n, err := New(db).Write(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, db.writeCalls)
}

func TestWrite_RetriesThrottle(t *testing.T) {
	var delays []time.Duration
	db := &fakeClient{
		batchWrite: func(call int, _ *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			if call < 3 {
				return nil, &types.ProvisionedThroughputExceededException{Message: ptrString("slow down")}
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}
	ex := New(db, WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))
	n, err := ex.Write(context.Background(), PutItem("t", key(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, db.writeCalls, 3)
	require.Len(t, delays, 2)
	assert.Less(t, delays[0], DefaultBackoffBase)
	assert.Less(t, delays[1], 2*DefaultBackoffBase)
}

func TestWrite_OtherErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	db := &fakeClient{
		batchWrite: func(int, *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			return nil, boom
		},
	}
	items := make([]Item, 30)
	for i := range items {
		items[i] = PutItem("t", key(i))
	}
	n, err := New(db, WithSleep(noSleep)).Write(context.Background(), items...)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, n)
	assert.Len(t, db.writeCalls, 1)
}

func TestWrite_RetriesExhausted(t *testing.T) {
	db := &fakeClient{
		batchWrite: func(int, *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			return nil, &types.ProvisionedThroughputExceededException{}
		},
	}
	b := NewBackoff(WithBase(time.Millisecond), WithCap(4*time.Millisecond), Finite(true))
	_, err := New(db, WithBackoff(b), WithSleep(noSleep)).Write(context.Background(), PutItem("t", key(1)))
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Len(t, db.writeCalls, b.Len())
}

func TestWrite_CanceledContext(t *testing.T) {
	db := &fakeClient{
		batchWrite: func(int, *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			return nil, &types.ProvisionedThroughputExceededException{}
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(db).Write(ctx, PutItem("t", key(1)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWrite_RejectsTransactionalKinds(t *testing.T) {
	db := &fakeClient{}
	_, err := New(db).Write(context.Background(), CheckItem("t", key(1), nil))
	require.ErrorIs(t, err, ErrNotBatchable)
	assert.Empty(t, db.writeCalls)
}

func ptrString(s string) *string { return &s }
