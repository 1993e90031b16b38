package ddbbatch

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type readSettings struct {
	consistent bool
	projection string
	names      map[string]string
}

func settingsOf(r GetRequest) readSettings {
	if r.Params == nil {
		return readSettings{}
	}
	return readSettings{
		consistent: aws.ToBool(r.Params.ConsistentRead),
		projection: aws.ToString(r.Params.ProjectionExpression),
		names:      r.Params.ExpressionAttributeNames,
	}
}

func (s readSettings) equal(o readSettings) bool {
	return s.consistent == o.consistent && s.projection == o.projection && maps.Equal(s.names, o.names)
}

func (s readSettings) keysAndAttributes(keys []map[string]types.AttributeValue) types.KeysAndAttributes {
	ka := types.KeysAndAttributes{Keys: keys}
	if s.consistent {
		ka.ConsistentRead = aws.Bool(true)
	}
	if s.projection != "" {
		ka.ProjectionExpression = aws.String(s.projection)
		ka.ExpressionAttributeNames = s.names
	}
	return ka
}

// Get reads keys from one or more tables with at most the per-call key
// limit in each BatchGetItem call. Requests for the same table must agree
// on ConsistentRead, ProjectionExpression and ExpressionAttributeNames;
// otherwise ErrConflictingReadParams is returned before any call is made.
// Items come back grouped per call, not in key order.
func (e *Executor) Get(ctx context.Context, reqs ...GetRequest) ([]TableItem, error) {
	settings := make(map[string]readSettings)
	for _, r := range reqs {
		s := settingsOf(r)
		if prev, ok := settings[r.Table]; ok && !prev.equal(s) {
			return nil, fmt.Errorf("%w: %s", ErrConflictingReadParams, r.Table)
		}
		settings[r.Table] = s
	}

	var (
		result []TableItem
		size   int
		chunk  map[string][]map[string]types.AttributeValue
	)
	flush := func() error {
		if size == 0 {
			return nil
		}
		payload := make(map[string]types.KeysAndAttributes, len(chunk))
		for table, keys := range chunk {
			payload[table] = settings[table].keysAndAttributes(keys)
		}
		responses, err := e.GetKeys(ctx, payload)
		if err != nil {
			return err
		}
		for _, table := range slices.Sorted(maps.Keys(responses)) {
			for _, item := range responses[table] {
				result = append(result, TableItem{Table: table, Item: item})
			}
		}
		size, chunk = 0, nil
		return nil
	}
	for _, r := range reqs {
		for _, key := range r.Keys {
			if chunk == nil {
				chunk = make(map[string][]map[string]types.AttributeValue)
			}
			chunk[r.Table] = append(chunk[r.Table], key)
			size++
			if size >= e.opts.getLimit {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

// GetKeys submits one BatchGetItem payload, retrying unprocessed keys with
// the table settings of the original request, and returns the collected
// responses per table.
func (e *Executor) GetKeys(ctx context.Context, requests map[string]types.KeysAndAttributes) (map[string][]map[string]types.AttributeValue, error) {
	responses := make(map[string][]map[string]types.AttributeValue)
	pending := requests
	err := e.retry(ctx, "batch get", func() (int, error) {
		out, err := e.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
		if err != nil {
			return countKeys(pending), err
		}
		for table, items := range out.Responses {
			responses[table] = append(responses[table], items...)
		}
		if countKeys(out.UnprocessedKeys) == 0 {
			return 0, nil
		}
		next := make(map[string]types.KeysAndAttributes, len(out.UnprocessedKeys))
		for table, ka := range out.UnprocessedKeys {
			orig, ok := requests[table]
			if !ok {
				orig = ka
			}
			orig.Keys = ka.Keys
			next[table] = orig
		}
		pending = next
		return countKeys(pending), nil
	})
	return responses, err
}

func countKeys(m map[string]types.KeysAndAttributes) int {
	var n int
	for _, ka := range m {
		n += len(ka.Keys)
	}
	return n
}
