package ddblocal

import (
	"bytes"
	"context"
	"slices"

	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// readSpec describes one Scan or Query page.
type readSpec struct {
	sc      *schema
	index   string
	prefix  []byte
	keyDefs []table.PrimaryKeyDefinition
	x       *expressions
	limit   int32
	forward bool
	esk     map[string]types.AttributeValue
	count   bool
}

type readResult struct {
	items   []map[string]types.AttributeValue
	count   int32
	scanned int32
	lek     map[string]types.AttributeValue
}

func (s *Store) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	sc, err := s.schema(in.TableName)
	if err != nil {
		return nil, err
	}
	x, err := parseExpressions(exprInput{
		Names:      in.ExpressionAttributeNames,
		Values:     in.ExpressionAttributeValues,
		Filter:     in.FilterExpression,
		Projection: in.ProjectionExpression,
	})
	if err != nil {
		return nil, err
	}
	spec, err := s.readSpec(sc, in.IndexName, x, in.Limit, in.Select, in.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}
	spec.prefix = keyPrefix(sc.def.Name, spec.index)
	spec.forward = true
	res, err := s.read(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            res.items,
		Count:            res.count,
		ScannedCount:     res.scanned,
		LastEvaluatedKey: res.lek,
	}, nil
}

func (s *Store) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	sc, err := s.schema(in.TableName)
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, validationError("KeyConditionExpression is required")
	}
	x, err := parseExpressions(exprInput{
		Names:      in.ExpressionAttributeNames,
		Values:     in.ExpressionAttributeValues,
		KeyCond:    in.KeyConditionExpression,
		Filter:     in.FilterExpression,
		Projection: in.ProjectionExpression,
	})
	if err != nil {
		return nil, err
	}
	spec, err := s.readSpec(sc, in.IndexName, x, in.Limit, in.Select, in.ExclusiveStartKey)
	if err != nil {
		return nil, err
	}
	pkDef := spec.keyDefs[0].PartitionKey
	pk, ok := x.keyCond.Equality(pkDef.Name)
	if !ok {
		return nil, validationError("query condition missed key schema element: %s", pkDef.Name)
	}
	enc, err := encodeKeyValue(pk, pkDef.Kind)
	if err != nil {
		return nil, validationError("one or more parameter values were invalid: %v", err)
	}
	spec.prefix = append(append(keyPrefix(sc.def.Name, spec.index), enc...), keySeparator)
	spec.forward = in.ScanIndexForward == nil || *in.ScanIndexForward
	res, err := s.read(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &dynamodb.QueryOutput{
		Items:            res.items,
		Count:            res.count,
		ScannedCount:     res.scanned,
		LastEvaluatedKey: res.lek,
	}, nil
}

func (s *Store) readSpec(sc *schema, indexName *string, x *expressions, limit *int32, sel types.Select, esk map[string]types.AttributeValue) (*readSpec, error) {
	spec := &readSpec{
		sc:      sc,
		x:       x,
		esk:     esk,
		keyDefs: []table.PrimaryKeyDefinition{sc.def.KeyDefinitions},
	}
	if name := aws.ToString(indexName); name != "" {
		g, ok := sc.gsis[name]
		if !ok {
			return nil, validationError("the table does not have the specified index: %s", name)
		}
		spec.index = name
		spec.keyDefs = []table.PrimaryKeyDefinition{g.KeyDefinitions, sc.def.KeyDefinitions}
	}
	if limit != nil {
		if *limit <= 0 {
			return nil, validationError("limit must be greater than or equal to 1")
		}
		spec.limit = *limit
	}
	switch sel {
	case "", types.SelectAllAttributes, types.SelectAllProjectedAttributes:
	case types.SelectCount:
		spec.count = true
	case types.SelectSpecificAttributes:
		if len(x.projection.Paths()) == 0 {
			return nil, validationError("SPECIFIC_ATTRIBUTES requires a ProjectionExpression")
		}
	default:
		return nil, validationError("unknown Select value %q", sel)
	}
	return spec, nil
}

// entryKey encodes the position of item in the table or index being read.
func (spec *readSpec) entryKey(item map[string]types.AttributeValue) ([]byte, error) {
	if spec.index == "" {
		return spec.sc.itemKey(item)
	}
	k, ok, err := spec.sc.indexKey(spec.sc.gsis[spec.index], item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, validationError("the provided starting key is invalid")
	}
	return k, nil
}

// read walks entries under spec.prefix. Limit bounds the number of items
// evaluated, before the filter is applied.
func (s *Store) read(ctx context.Context, spec *readSpec) (*readResult, error) {
	var start []byte
	if spec.esk != nil {
		k, err := spec.entryKey(spec.esk)
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(k, spec.prefix) {
			return nil, validationError("the provided starting key is outside the query range")
		}
		start = k
	}
	res := &readResult{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = spec.prefix
		opts.Reverse = !spec.forward
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := start
		if seek == nil {
			seek = spec.prefix
			if !spec.forward {
				seek = append(slices.Clone(spec.prefix), 0xFF)
			}
		}
		for it.Seek(seek); it.ValidForPrefix(spec.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry := it.Item()
			if start != nil && bytes.Equal(entry.Key(), start) {
				continue
			}
			val, err := entry.ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := decodeItem(val)
			if err != nil {
				return err
			}
			ok, err := spec.x.keyCond.Match(item)
			if err != nil {
				return validationError("invalid KeyConditionExpression: %v", err)
			}
			if !ok {
				continue
			}
			res.scanned++
			ok, err = spec.x.filter.Match(item)
			if err != nil {
				return validationError("invalid FilterExpression: %v", err)
			}
			if ok {
				res.count++
				if !spec.count {
					res.items = append(res.items, spec.x.projection.Apply(item))
				}
			}
			if spec.limit > 0 && res.scanned == spec.limit {
				res.lek = keyAttributes(item, spec.keyDefs...)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.items == nil && !spec.count {
		res.items = []map[string]types.AttributeValue{}
	}
	s.log.Debug("read",
		zap.String("table", spec.sc.def.Name),
		zap.String("index", spec.index),
		zap.Int32("count", res.count),
		zap.Int32("scanned", res.scanned),
		zap.Bool("more", res.lek != nil))
	return res, nil
}
