package ddbbatch

import (
	"context"
	"fmt"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Transact applies all items atomically in one TransactWriteItems call and
// returns the number of items written. If any condition fails nothing is
// applied and the error matches both ErrTransactionCanceled and
// ErrPreconditionFailed. Throttled attempts are retried; every retry reuses
// the same ClientRequestToken.
func (e *Executor) Transact(ctx context.Context, items ...Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if len(items) > ddbiface.MaxTransactItems {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(items), ddbiface.MaxTransactItems)
	}
	tx := make([]types.TransactWriteItem, len(items))
	for i, it := range items {
		ti, err := it.transactItem()
		if err != nil {
			return 0, err
		}
		tx[i] = ti
	}
	in := &dynamodb.TransactWriteItemsInput{
		TransactItems:      tx,
		ClientRequestToken: aws.String(e.opts.token()),
	}
	err := e.retry(ctx, "transact write", func() (int, error) {
		_, err := e.client.TransactWriteItems(ctx, in)
		if err != nil {
			return len(tx), transactionError(err)
		}
		return 0, nil
	})
	if err != nil {
		return 0, err
	}
	return len(tx), nil
}

// TransactGet reads items atomically. Missing items come back with a nil
// Item in the matching position.
func (e *Executor) TransactGet(ctx context.Context, gets ...GetRequest) ([]TableItem, error) {
	var (
		tx     []types.TransactGetItem
		tables []string
	)
	for _, g := range gets {
		p := g.Params
		if p == nil {
			p = &ddbexpr.Params{}
		}
		for _, key := range g.Keys {
			tx = append(tx, types.TransactGetItem{Get: &types.Get{
				TableName:                aws.String(g.Table),
				Key:                      key,
				ProjectionExpression:     p.ProjectionExpression,
				ExpressionAttributeNames: p.ExpressionAttributeNames,
			}})
			tables = append(tables, g.Table)
		}
	}
	if len(tx) == 0 {
		return nil, nil
	}
	if len(tx) > ddbiface.MaxTransactItems {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(tx), ddbiface.MaxTransactItems)
	}
	var out *dynamodb.TransactGetItemsOutput
	err := e.retry(ctx, "transact get", func() (int, error) {
		var err error
		out, err = e.client.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{TransactItems: tx})
		if err != nil {
			return len(tx), transactionError(err)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	result := make([]TableItem, len(tables))
	for i, table := range tables {
		result[i].Table = table
		if i < len(out.Responses) {
			result[i].Item = out.Responses[i].Item
		}
	}
	return result, nil
}
