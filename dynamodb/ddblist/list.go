// Package ddblist runs mass operations over lists of items: reading by
// keys, bulk writes and deletes, and copying or moving the results of a
// scan or query.
//
// Every operation returns the number of items it processed. Writes go
// through a [ddbbatch.Executor], so throttled requests are retried with
// backoff.
package ddblist

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbbatch"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbpage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Chunk sizes for mass operations.
const (
	// ReadChunk is the page limit used when scanning for copy and delete.
	ReadChunk = 25
	// MoveChunk items produce one put and one delete each, filling a batch.
	MoveChunk = 12
)

type Item = map[string]types.AttributeValue

// MapFunc transforms an item before it is written. Returning nil skips it.
type MapFunc func(Item) Item

// KeyFunc extracts the primary key of an item. Returning nil skips it.
type KeyFunc func(Item) Item

// Identity is the MapFunc that writes items unchanged.
func Identity(it Item) Item { return it }

// KeyFields returns a KeyFunc that keeps only the named attributes.
func KeyFields(names ...string) KeyFunc {
	return func(it Item) Item {
		key := make(Item, len(names))
		for _, n := range names {
			v, ok := it[n]
			if !ok {
				return nil
			}
			key[n] = v
		}
		return key
	}
}

type Lister struct {
	batch *ddbbatch.Executor
	pager *ddbpage.Pager
	keyFn KeyFunc
	log   *zap.Logger
}

type Option func(*Lister)

func WithPager(p *ddbpage.Pager) Option {
	return func(l *Lister) { l.pager = p }
}

// WithKeyFunc sets how keys are derived from listed items for deletes and
// moves. By default items are used as keys as they are, which requires the
// params to project only key attributes.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *Lister) { l.keyFn = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Lister) { l.log = log }
}

func New(batch *ddbbatch.Executor, opts ...Option) *Lister {
	l := &Lister{
		batch: batch,
		keyFn: Identity,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pager == nil {
		l.pager = ddbpage.New(batch.Client(), ddbpage.WithLogger(l.log))
	}
	return l
}

// readParams keeps the per-table settings that apply to BatchGetItem.
func readParams(params *ddbexpr.Params) *ddbexpr.Params {
	if params == nil {
		return nil
	}
	p := &ddbexpr.Params{ProjectionExpression: params.ProjectionExpression}
	if aws.ToBool(params.ConsistentRead) {
		p.ConsistentRead = aws.Bool(true)
	}
	if p.ProjectionExpression != nil {
		p.ExpressionAttributeNames = params.ExpressionAttributeNames
	}
	return ddbexpr.Cleanup(p)
}

// ReadByKeys fetches the items stored under keys. Missing items are left
// out; the result is not in key order.
func (l *Lister) ReadByKeys(ctx context.Context, table string, keys []Item, params *ddbexpr.Params) ([]Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	res, err := l.batch.Get(ctx, ddbbatch.GetRequest{Table: table, Keys: keys, Params: readParams(params)})
	if err != nil {
		return nil, fmt.Errorf("read %s by keys: %w", table, err)
	}
	items := make([]Item, len(res))
	for i, r := range res {
		items[i] = r.Item
	}
	return items, nil
}

// ReadOrderedByKeys is ReadByKeys with the result aligned to keys: the
// i-th element belongs to keys[i] and is nil when the item is missing. The
// projection, if any, must include the key attributes.
func (l *Lister) ReadOrderedByKeys(ctx context.Context, table string, keys []Item, params *ddbexpr.Params) ([]Item, error) {
	items, err := l.ReadByKeys(ctx, table, keys, params)
	if err != nil || len(keys) == 0 {
		return items, err
	}
	names := make([]string, 0, len(keys[0]))
	for n := range keys[0] {
		names = append(names, n)
	}
	slices.Sort(names)
	byKey := make(map[string]Item, len(items))
	for _, it := range items {
		byKey[identity(it, names)] = it
	}
	out := make([]Item, len(keys))
	for i, k := range keys {
		out[i] = byKey[identity(k, names)]
	}
	return out, nil
}

// identity renders the key attributes of it as a comparable string.
func identity(it Item, names []string) string {
	var b strings.Builder
	for _, n := range names {
		switch v := it[n].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("S:" + v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("N:" + v.Value)
		case *types.AttributeValueMemberB:
			b.WriteString("B:" + base64.StdEncoding.EncodeToString(v.Value))
		default:
			b.WriteString("?")
		}
		b.WriteByte(0)
	}
	return b.String()
}

// WriteAll puts mapFn(item) for every item into table.
func (l *Lister) WriteAll(ctx context.Context, table string, items []Item, mapFn MapFunc) (int, error) {
	if mapFn == nil {
		mapFn = Identity
	}
	var writes []ddbbatch.Item
	for _, it := range items {
		if m := mapFn(it); m != nil {
			writes = append(writes, ddbbatch.PutItem(table, m))
		}
	}
	return l.batch.Write(ctx, writes...)
}

// DeleteByKeys deletes every non-nil key from table.
func (l *Lister) DeleteByKeys(ctx context.Context, table string, keys []Item) (int, error) {
	var writes []ddbbatch.Item
	for _, k := range keys {
		if k != nil {
			writes = append(writes, ddbbatch.DeleteItem(table, k))
		}
	}
	return l.batch.Write(ctx, writes...)
}

// chunked runs fn over the scan or query described by params, ReadChunk
// items at a time.
func (l *Lister) chunked(ctx context.Context, params *ddbexpr.Params, fn func([]Item) (int, error)) (int, error) {
	p := ddbexpr.Clone(params)
	p.Limit = aws.Int32(ReadChunk)
	processed := 0
	for out, err := range l.pager.Pages(ctx, p) {
		if err != nil {
			return processed, err
		}
		if len(out.Items) == 0 {
			continue
		}
		n, err := fn(out.Items)
		processed += n
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// DeleteByParams deletes every item the scan or query in params returns.
func (l *Lister) DeleteByParams(ctx context.Context, params *ddbexpr.Params) (int, error) {
	table := aws.ToString(params.TableName)
	n, err := l.chunked(ctx, params, func(items []Item) (int, error) {
		keys := make([]Item, len(items))
		for i, it := range items {
			keys[i] = l.keyFn(it)
		}
		return l.DeleteByKeys(ctx, table, keys)
	})
	l.log.Debug("deleted by params", zap.String("table", table), zap.Int("processed", n))
	return n, err
}

// CopyByParams writes mapFn(item) for every item the scan or query in
// params returns back into the same table.
func (l *Lister) CopyByParams(ctx context.Context, params *ddbexpr.Params, mapFn MapFunc) (int, error) {
	table := aws.ToString(params.TableName)
	n, err := l.chunked(ctx, params, func(items []Item) (int, error) {
		return l.WriteAll(ctx, table, items, mapFn)
	})
	l.log.Debug("copied by params", zap.String("table", table), zap.Int("processed", n))
	return n, err
}

// CopyByKeys reads keys in chunks and writes mapFn of each found item.
func (l *Lister) CopyByKeys(ctx context.Context, table string, keys []Item, mapFn MapFunc) (int, error) {
	processed := 0
	for chunk := range slices.Chunk(keys, ReadChunk) {
		items, err := l.ReadByKeys(ctx, table, chunk, nil)
		if err != nil {
			return processed, err
		}
		n, err := l.WriteAll(ctx, table, items, mapFn)
		processed += n
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// move writes the mapped items and deletes keys in one batch.
func (l *Lister) move(ctx context.Context, table string, items []Item, keys []Item, mapFn MapFunc) (int, error) {
	if mapFn == nil {
		mapFn = Identity
	}
	var writes []ddbbatch.Item
	for _, it := range items {
		if m := mapFn(it); m != nil {
			writes = append(writes, ddbbatch.PutItem(table, m))
		}
	}
	for _, k := range keys {
		if k != nil {
			writes = append(writes, ddbbatch.DeleteItem(table, k))
		}
	}
	return l.batch.Write(ctx, writes...)
}

// MoveByParams rewrites every listed item as mapFn(item) and deletes the
// original under keyFn(item). A nil keyFn uses the lister's key function.
// The count includes both puts and deletes.
func (l *Lister) MoveByParams(ctx context.Context, params *ddbexpr.Params, mapFn MapFunc, keyFn KeyFunc) (int, error) {
	if keyFn == nil {
		keyFn = l.keyFn
	}
	table := aws.ToString(params.TableName)
	processed := 0
	next := params
	for next != nil {
		items, np, err := l.pager.Next(ctx, next)
		if err != nil {
			return processed, err
		}
		for chunk := range slices.Chunk(items, MoveChunk) {
			keys := make([]Item, len(chunk))
			for i, it := range chunk {
				keys[i] = keyFn(it)
			}
			n, err := l.move(ctx, table, chunk, keys, mapFn)
			processed += n
			if err != nil {
				return processed, err
			}
		}
		next = np
	}
	l.log.Debug("moved by params", zap.String("table", table), zap.Int("processed", processed))
	return processed, nil
}

// MoveViaKeys collects every listed key first and then moves by keys, for
// when the listing would observe its own writes.
func (l *Lister) MoveViaKeys(ctx context.Context, params *ddbexpr.Params, mapFn MapFunc, keyFn KeyFunc) (int, error) {
	if keyFn == nil {
		keyFn = l.keyFn
	}
	var keys []Item
	for it, err := range l.pager.Items(ctx, params) {
		if err != nil {
			return 0, err
		}
		if k := keyFn(it); k != nil {
			keys = append(keys, k)
		}
	}
	return l.MoveByKeys(ctx, aws.ToString(params.TableName), keys, mapFn)
}

// MoveByKeys reads keys MoveChunk at a time, writes mapFn of each found
// item and deletes every key of the chunk.
func (l *Lister) MoveByKeys(ctx context.Context, table string, keys []Item, mapFn MapFunc) (int, error) {
	processed := 0
	for chunk := range slices.Chunk(keys, MoveChunk) {
		items, err := l.ReadByKeys(ctx, table, chunk, nil)
		if err != nil {
			return processed, err
		}
		n, err := l.move(ctx, table, items, chunk, mapFn)
		processed += n
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}
