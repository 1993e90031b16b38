package ddblocal

import (
	"context"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddblocal/ddbeval"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type batchOp struct {
	sc   *schema
	key  []byte
	item map[string]types.AttributeValue // nil for deletes
}

// BatchWriteItem applies every request atomically. UnprocessedItems is
// always empty.
func (s *Store) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	var ops []batchOp
	seen := map[string]bool{}
	for name, reqs := range in.RequestItems {
		sc, err := s.schema(&name)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			var op batchOp
			var err error
			switch {
			case r.PutRequest != nil && r.DeleteRequest == nil:
				op = batchOp{sc: sc, item: ddbeval.CloneItem(r.PutRequest.Item)}
				op.key, err = sc.itemKey(r.PutRequest.Item)
			case r.DeleteRequest != nil && r.PutRequest == nil:
				op = batchOp{sc: sc}
				op.key, err = sc.exactKey(r.DeleteRequest.Key)
			default:
				return nil, validationError("each write request must hold exactly one of PutRequest or DeleteRequest")
			}
			if err != nil {
				return nil, err
			}
			if seen[string(op.key)] {
				return nil, validationError("provided list of item keys contains duplicates")
			}
			seen[string(op.key)] = true
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return nil, validationError("RequestItems must contain at least one write request")
	}
	if len(ops) > ddbiface.MaxBatchWrite {
		return nil, validationError("too many items requested for the BatchWriteItem call: %d > %d", len(ops), ddbiface.MaxBatchWrite)
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, op := range ops {
			old, err := s.load(txn, op.key)
			if err != nil {
				return err
			}
			if op.item == nil {
				err = s.remove(txn, op.sc, op.key, old)
			} else {
				err = s.store(txn, op.sc, op.key, old, op.item)
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
	s.log.Debug("batch write", zap.Int("requests", len(ops)))
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}, nil
}

// BatchGetItem reads every key; UnprocessedKeys is always empty. Missing
// items are omitted from Responses.
func (s *Store) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	type tableRead struct {
		sc   *schema
		keys [][]byte
		x    *expressions
	}
	var reads []tableRead
	total := 0
	for name, ka := range in.RequestItems {
		sc, err := s.schema(&name)
		if err != nil {
			return nil, err
		}
		x, err := parseExpressions(exprInput{
			Names:      ka.ExpressionAttributeNames,
			Projection: ka.ProjectionExpression,
		})
		if err != nil {
			return nil, err
		}
		tr := tableRead{sc: sc, x: x}
		seen := map[string]bool{}
		for _, k := range ka.Keys {
			key, err := sc.exactKey(k)
			if err != nil {
				return nil, err
			}
			if seen[string(key)] {
				return nil, validationError("provided list of item keys contains duplicates")
			}
			seen[string(key)] = true
			tr.keys = append(tr.keys, key)
		}
		total += len(tr.keys)
		reads = append(reads, tr)
	}
	if total == 0 {
		return nil, validationError("RequestItems must contain at least one key")
	}
	if total > ddbiface.MaxBatchGet {
		return nil, validationError("too many items requested for the BatchGetItem call: %d > %d", total, ddbiface.MaxBatchGet)
	}
	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, tr := range reads {
			items := []map[string]types.AttributeValue{}
			for _, key := range tr.keys {
				item, err := s.load(txn, key)
				if err != nil {
					return err
				}
				if item != nil {
					items = append(items, tr.x.projection.Apply(item))
				}
			}
			out.Responses[tr.sc.def.Name] = items
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("batch get", zap.Int("keys", total))
	return out, nil
}
