package ddblocal

import (
	"context"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddblocal/ddbeval"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

func (s *Store) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	sc, err := s.schema(in.TableName)
	if err != nil {
		return nil, err
	}
	key, err := sc.exactKey(in.Key)
	if err != nil {
		return nil, err
	}
	x, err := parseExpressions(exprInput{
		Names:      in.ExpressionAttributeNames,
		Projection: in.ProjectionExpression,
	})
	if err != nil {
		return nil, err
	}
	var item map[string]types.AttributeValue
	err = s.view(ctx, func(txn *badger.Txn) error {
		item, err = s.load(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("get item", zap.String("table", sc.def.Name), zap.Bool("found", item != nil))
	if item == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: x.projection.Apply(item)}, nil
}

func (s *Store) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	sc, err := s.schema(in.TableName)
	if err != nil {
		return nil, err
	}
	key, err := sc.itemKey(in.Item)
	if err != nil {
		return nil, err
	}
	x, err := parseExpressions(exprInput{
		Names:     in.ExpressionAttributeNames,
		Values:    in.ExpressionAttributeValues,
		Condition: in.ConditionExpression,
	})
	if err != nil {
		return nil, err
	}
	if in.ReturnValues != "" && in.ReturnValues != types.ReturnValueNone && in.ReturnValues != types.ReturnValueAllOld {
		return nil, validationError("ReturnValues for PutItem must be NONE or ALL_OLD")
	}
	var old map[string]types.AttributeValue
	err = s.update(ctx, func(txn *badger.Txn) error {
		if old, err = s.load(txn, key); err != nil {
			return err
		}
		ok, err := x.check(old)
		if err != nil {
			return err
		}
		if !ok {
			return conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
		}
		return s.store(txn, sc, key, old, ddbeval.CloneItem(in.Item))
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("put item", zap.String("table", sc.def.Name), zap.Bool("replaced", old != nil))
	out := &dynamodb.PutItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (s *Store) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	sc, err := s.schema(in.TableName)
	if err != nil {
		return nil, err
	}
	key, err := sc.exactKey(in.Key)
	if err != nil {
		return nil, err
	}
	x, err := parseExpressions(exprInput{
		Names:     in.ExpressionAttributeNames,
		Values:    in.ExpressionAttributeValues,
		Condition: in.ConditionExpression,
	})
	if err != nil {
		return nil, err
	}
	var old map[string]types.AttributeValue
	err = s.update(ctx, func(txn *badger.Txn) error {
		if old, err = s.load(txn, key); err != nil {
			return err
		}
		ok, err := x.check(old)
		if err != nil {
			return err
		}
		if !ok {
			return conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
		}
		return s.remove(txn, sc, key, old)
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("delete item", zap.String("table", sc.def.Name), zap.Bool("existed", old != nil))
	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = old
	}
	return out, nil
}

func (s *Store) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	sc, err := s.schema(in.TableName)
	if err != nil {
		return nil, err
	}
	key, err := sc.exactKey(in.Key)
	if err != nil {
		return nil, err
	}
	x, err := parseExpressions(exprInput{
		Names:     in.ExpressionAttributeNames,
		Values:    in.ExpressionAttributeValues,
		Condition: in.ConditionExpression,
		Update:    in.UpdateExpression,
	})
	if err != nil {
		return nil, err
	}
	if x.update != nil {
		for _, p := range x.update.Paths() {
			if sc.isKeyAttribute(p.Top()) {
				return nil, validationError("cannot update attribute %s: this attribute is part of the key", p.Top())
			}
		}
	}
	var old, next map[string]types.AttributeValue
	err = s.update(ctx, func(txn *badger.Txn) error {
		if old, err = s.load(txn, key); err != nil {
			return err
		}
		ok, err := x.check(old)
		if err != nil {
			return err
		}
		if !ok {
			return conditionFailed(old, in.ReturnValuesOnConditionCheckFailure)
		}
		if next, err = applyUpdate(x.update, old, in.Key); err != nil {
			return err
		}
		return s.store(txn, sc, key, old, next)
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("update item", zap.String("table", sc.def.Name), zap.Bool("created", old == nil))
	return &dynamodb.UpdateItemOutput{Attributes: returnValues(in.ReturnValues, x.update, old, next)}, nil
}

// applyUpdate upserts: a missing item starts out as its key.
func applyUpdate(u *ddbeval.Update, old, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	base := old
	if base == nil {
		base = ddbeval.CloneItem(key)
	}
	if u == nil {
		return ddbeval.CloneItem(base), nil
	}
	next, err := u.Apply(base)
	if err != nil {
		return nil, validationError("%v", err)
	}
	return next, nil
}

func returnValues(rv types.ReturnValue, u *ddbeval.Update, old, next map[string]types.AttributeValue) map[string]types.AttributeValue {
	switch rv {
	case types.ReturnValueAllOld:
		return old
	case types.ReturnValueAllNew:
		return next
	case types.ReturnValueUpdatedOld, types.ReturnValueUpdatedNew:
		src := next
		if rv == types.ReturnValueUpdatedOld {
			src = old
		}
		if u == nil {
			return nil
		}
		out := map[string]types.AttributeValue{}
		for _, p := range u.Paths() {
			if v, ok := src[p.Top()]; ok {
				out[p.Top()] = v
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}
