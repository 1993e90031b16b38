package ddblocal

import (
	"context"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddblocal/ddbeval"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type txOp struct {
	sc     *schema
	key    []byte
	rawKey map[string]types.AttributeValue
	x      *expressions
	rv     types.ReturnValuesOnConditionCheckFailure

	put    map[string]types.AttributeValue
	delete bool
	update bool
}

func (s *Store) txOp(w types.TransactWriteItem) (*txOp, error) {
	set := 0
	op := &txOp{}
	var in exprInput
	var tableName *string
	if c := w.ConditionCheck; c != nil {
		set++
		if c.ConditionExpression == nil {
			return nil, validationError("ConditionCheck requires a ConditionExpression")
		}
		tableName, op.rawKey, op.rv = c.TableName, c.Key, c.ReturnValuesOnConditionCheckFailure
		in = exprInput{Names: c.ExpressionAttributeNames, Values: c.ExpressionAttributeValues, Condition: c.ConditionExpression}
	}
	if p := w.Put; p != nil {
		set++
		tableName, op.put, op.rv = p.TableName, ddbeval.CloneItem(p.Item), p.ReturnValuesOnConditionCheckFailure
		in = exprInput{Names: p.ExpressionAttributeNames, Values: p.ExpressionAttributeValues, Condition: p.ConditionExpression}
	}
	if d := w.Delete; d != nil {
		set++
		tableName, op.rawKey, op.rv, op.delete = d.TableName, d.Key, d.ReturnValuesOnConditionCheckFailure, true
		in = exprInput{Names: d.ExpressionAttributeNames, Values: d.ExpressionAttributeValues, Condition: d.ConditionExpression}
	}
	if u := w.Update; u != nil {
		set++
		tableName, op.rawKey, op.rv, op.update = u.TableName, u.Key, u.ReturnValuesOnConditionCheckFailure, true
		in = exprInput{Names: u.ExpressionAttributeNames, Values: u.ExpressionAttributeValues, Condition: u.ConditionExpression, Update: u.UpdateExpression}
	}
	if set != 1 {
		return nil, validationError("each transact item must hold exactly one action")
	}
	sc, err := s.schema(tableName)
	if err != nil {
		return nil, err
	}
	op.sc = sc
	if op.put != nil {
		op.key, err = sc.itemKey(op.put)
	} else {
		op.key, err = sc.exactKey(op.rawKey)
	}
	if err != nil {
		return nil, err
	}
	if op.x, err = parseExpressions(in); err != nil {
		return nil, err
	}
	if op.update && op.x.update != nil {
		for _, p := range op.x.update.Paths() {
			if sc.isKeyAttribute(p.Top()) {
				return nil, validationError("cannot update attribute %s: this attribute is part of the key", p.Top())
			}
		}
	}
	return op, nil
}

// TransactWriteItems applies all actions or none. A failed condition cancels
// the transaction with one CancellationReason per action.
func (s *Store) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if n := len(in.TransactItems); n == 0 || n > ddbiface.MaxTransactItems {
		return nil, validationError("TransactItems must hold between 1 and %d items, got %d", ddbiface.MaxTransactItems, n)
	}
	token := aws.ToString(in.ClientRequestToken)
	if token != "" && s.seenToken(token, time.Now()) {
		s.log.Debug("transact write replayed", zap.String("token", token))
		return &dynamodb.TransactWriteItemsOutput{}, nil
	}
	ops := make([]*txOp, len(in.TransactItems))
	seen := map[string]bool{}
	for i, w := range in.TransactItems {
		op, err := s.txOp(w)
		if err != nil {
			return nil, err
		}
		if seen[string(op.key)] {
			return nil, validationError("transaction request cannot include multiple operations on one item")
		}
		seen[string(op.key)] = true
		ops[i] = op
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		olds := make([]map[string]types.AttributeValue, len(ops))
		reasons := make([]types.CancellationReason, len(ops))
		failed := false
		for i, op := range ops {
			old, err := s.load(txn, op.key)
			if err != nil {
				return err
			}
			olds[i] = old
			ok, err := op.x.check(old)
			if err != nil {
				return err
			}
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
			if !ok {
				failed = true
				reasons[i] = types.CancellationReason{
					Code:    aws.String("ConditionalCheckFailed"),
					Message: aws.String("the conditional request failed"),
				}
				if op.rv == types.ReturnValuesOnConditionCheckFailureAllOld {
					reasons[i].Item = old
				}
			}
		}
		if failed {
			return &types.TransactionCanceledException{
				Message:             aws.String("transaction cancelled, please refer cancellation reasons for specific reasons"),
				CancellationReasons: reasons,
			}
		}
		for i, op := range ops {
			var err error
			switch {
			case op.put != nil:
				err = s.store(txn, op.sc, op.key, olds[i], op.put)
			case op.delete:
				err = s.remove(txn, op.sc, op.key, olds[i])
			case op.update:
				var next map[string]types.AttributeValue
				if next, err = applyUpdate(op.x.update, olds[i], op.rawKey); err == nil {
					err = s.store(txn, op.sc, op.key, olds[i], next)
				}
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if token != "" {
		s.rememberToken(token, time.Now())
	}
	s.log.Debug("transact write", zap.Int("items", len(ops)))
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// TransactGetItems reads every item from one consistent snapshot. Responses
// follow request order; a missing item has a nil Item.
func (s *Store) TransactGetItems(ctx context.Context, in *dynamodb.TransactGetItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	if n := len(in.TransactItems); n == 0 || n > ddbiface.MaxTransactItems {
		return nil, validationError("TransactItems must hold between 1 and %d items, got %d", ddbiface.MaxTransactItems, n)
	}
	type getOp struct {
		key []byte
		x   *expressions
	}
	gets := make([]getOp, len(in.TransactItems))
	for i, item := range in.TransactItems {
		g := item.Get
		if g == nil {
			return nil, validationError("each transact get item requires Get")
		}
		sc, err := s.schema(g.TableName)
		if err != nil {
			return nil, err
		}
		key, err := sc.exactKey(g.Key)
		if err != nil {
			return nil, err
		}
		x, err := parseExpressions(exprInput{Names: g.ExpressionAttributeNames, Projection: g.ProjectionExpression})
		if err != nil {
			return nil, err
		}
		gets[i] = getOp{key: key, x: x}
	}
	out := &dynamodb.TransactGetItemsOutput{Responses: make([]types.ItemResponse, len(gets))}
	err := s.view(ctx, func(txn *badger.Txn) error {
		for i, g := range gets {
			item, err := s.load(txn, g.key)
			if err != nil {
				return err
			}
			if item != nil {
				out.Responses[i].Item = g.x.projection.Apply(item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
