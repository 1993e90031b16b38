package ddbbatch

import (
	"context"
	"strconv"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient scripts wire responses per call. Methods the tests do not set
// panic through the nil embedded interface.
type fakeClient struct {
	ddbiface.Client

	batchWrite    func(call int, in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
	batchGet      func(call int, in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)
	transactWrite func(call int, in *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
	transactGet   func(call int, in *dynamodb.TransactGetItemsInput) (*dynamodb.TransactGetItemsOutput, error)

	writeCalls    []*dynamodb.BatchWriteItemInput
	getCalls      []*dynamodb.BatchGetItemInput
	transactCalls []*dynamodb.TransactWriteItemsInput
}

func (f *fakeClient) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.writeCalls = append(f.writeCalls, in)
	if f.batchWrite == nil {
		return &dynamodb.BatchWriteItemOutput{}, nil
	}
	return f.batchWrite(len(f.writeCalls), in)
}

func (f *fakeClient) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	f.getCalls = append(f.getCalls, in)
	return f.batchGet(len(f.getCalls), in)
}

func (f *fakeClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transactCalls = append(f.transactCalls, in)
	if f.transactWrite == nil {
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	return f.transactWrite(len(f.transactCalls), in)
}

func (f *fakeClient) TransactGetItems(_ context.Context, in *dynamodb.TransactGetItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	return f.transactGet(1, in)
}

func noSleep(context.Context, time.Duration) error { return nil }

func key(id int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "item#" + strconv.Itoa(id)},
	}
}

func requestCount(m map[string][]types.WriteRequest) int {
	return countWrites(m)
}
