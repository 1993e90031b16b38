package ddbbatch

import (
	"fmt"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type Kind int

const (
	KindPut Kind = iota + 1
	KindDelete
	KindCheck
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindPut:
		return "put"
	case KindDelete:
		return "delete"
	case KindCheck:
		return "check"
	case KindUpdate:
		return "update"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Item is one logical write aimed at a table. Params carries the
// condition, update expression and aliases for transactional items and is
// ignored by batch writes.
type Item struct {
	Table  string
	Kind   Kind
	Key    map[string]types.AttributeValue
	Value  map[string]types.AttributeValue
	Params *ddbexpr.Params
}

func PutItem(table string, item map[string]types.AttributeValue) Item {
	return Item{Table: table, Kind: KindPut, Value: item}
}

// ConditionalPut is a put that only applies inside a transaction.
func ConditionalPut(table string, item map[string]types.AttributeValue, params *ddbexpr.Params) Item {
	return Item{Table: table, Kind: KindPut, Value: item, Params: params}
}

func DeleteItem(table string, key map[string]types.AttributeValue) Item {
	return Item{Table: table, Kind: KindDelete, Key: key}
}

func ConditionalDelete(table string, key map[string]types.AttributeValue, params *ddbexpr.Params) Item {
	return Item{Table: table, Kind: KindDelete, Key: key, Params: params}
}

// CheckItem asserts params.ConditionExpression on key without writing.
func CheckItem(table string, key map[string]types.AttributeValue, params *ddbexpr.Params) Item {
	return Item{Table: table, Kind: KindCheck, Key: key, Params: params}
}

func UpdateItem(table string, key map[string]types.AttributeValue, params *ddbexpr.Params) Item {
	return Item{Table: table, Kind: KindUpdate, Key: key, Params: params}
}

func (it Item) writeRequest() (types.WriteRequest, error) {
	switch it.Kind {
	case KindPut:
		if it.Value == nil {
			return types.WriteRequest{}, fmt.Errorf("%w: put without item for table %s", ErrInvalidItem, it.Table)
		}
		return types.WriteRequest{PutRequest: &types.PutRequest{Item: it.Value}}, nil
	case KindDelete:
		if it.Key == nil {
			return types.WriteRequest{}, fmt.Errorf("%w: delete without key for table %s", ErrInvalidItem, it.Table)
		}
		return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: it.Key}}, nil
	}
	return types.WriteRequest{}, fmt.Errorf("%w: %s", ErrNotBatchable, it.Kind)
}

func (it Item) transactItem() (types.TransactWriteItem, error) {
	p := it.Params
	if p == nil {
		p = &ddbexpr.Params{}
	}
	table := aws.String(it.Table)
	switch it.Kind {
	case KindPut:
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                 table,
			Item:                      it.Value,
			ConditionExpression:       p.ConditionExpression,
			ExpressionAttributeNames:  p.ExpressionAttributeNames,
			ExpressionAttributeValues: p.ExpressionAttributeValues,
		}}, nil
	case KindDelete:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 table,
			Key:                       it.Key,
			ConditionExpression:       p.ConditionExpression,
			ExpressionAttributeNames:  p.ExpressionAttributeNames,
			ExpressionAttributeValues: p.ExpressionAttributeValues,
		}}, nil
	case KindCheck:
		if p.ConditionExpression == nil {
			return types.TransactWriteItem{}, fmt.Errorf("%w: check without condition for table %s", ErrInvalidItem, it.Table)
		}
		return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                 table,
			Key:                       it.Key,
			ConditionExpression:       p.ConditionExpression,
			ExpressionAttributeNames:  p.ExpressionAttributeNames,
			ExpressionAttributeValues: p.ExpressionAttributeValues,
		}}, nil
	case KindUpdate:
		if !p.HasUpdate() {
			return types.TransactWriteItem{}, fmt.Errorf("%w: update without expression for table %s", ErrInvalidItem, it.Table)
		}
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 table,
			Key:                       it.Key,
			UpdateExpression:          p.UpdateExpression,
			ConditionExpression:       p.ConditionExpression,
			ExpressionAttributeNames:  p.ExpressionAttributeNames,
			ExpressionAttributeValues: p.ExpressionAttributeValues,
		}}, nil
	}
	return types.TransactWriteItem{}, fmt.Errorf("%w: kind %s", ErrInvalidItem, it.Kind)
}

// GetRequest reads Keys from one table. Params may carry ConsistentRead,
// ProjectionExpression and ExpressionAttributeNames.
type GetRequest struct {
	Table  string
	Keys   []map[string]types.AttributeValue
	Params *ddbexpr.Params
}

// TableItem is an item returned by a multi-table read.
type TableItem struct {
	Table string
	Item  map[string]types.AttributeValue
}
