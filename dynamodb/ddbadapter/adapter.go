// Package ddbadapter is a typed record facade over one DynamoDB table.
//
// An [Adapter] maps records of type T to stored items and back, guards
// single-item writes on key existence and exposes the mass operations of
// [ddblist] and the offset pagination of [ddbpage] in terms of T.
package ddbadapter

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbbatch"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddblist"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbpage"
	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

type Item = map[string]types.AttributeValue

var (
	ErrInvalidConfig = errors.New("invalid adapter config")
	ErrMissingKey    = errors.New("missing key field")
)

// Config describes the table and how records map onto it.
type Config struct {
	Table string
	// KeyFields lists the primary key attributes, partition key first.
	// When empty they are taken from Index.
	KeyFields []string
	Style     WireStyle
	// Search names the fields that get a lower-cased shadow copy for
	// case-insensitive filtering.
	Search ddbexpr.Search
	// ProjectionRename maps requested field names to stored ones.
	ProjectionRename map[string]string
	// Separator splits nested field paths. Defaults to ".".
	Separator string
	// Index derives key attributes from the record on every full write.
	Index *table.PrimaryIndexDefinition

	// Prepare runs on the wire item before it is written.
	Prepare func(item Item, isPatch bool) (Item, error)
	// Revive runs on the wire item after it is read, before decoding.
	Revive func(item Item, fields map[string]bool) (Item, error)
}

type Adapter[T any] struct {
	cfg          Config
	style        WireStyle
	keyFields    []string
	shadowPrefix string

	client ddbiface.Client
	batch  *ddbbatch.Executor
	pager  *ddbpage.Pager
	list   *ddblist.Lister
	log    *zap.Logger
}

type options struct {
	batch *ddbbatch.Executor
	pager *ddbpage.Pager
	log   *zap.Logger
}

type Option func(*options)

func WithExecutor(e *ddbbatch.Executor) Option {
	return func(o *options) { o.batch = e }
}

func WithPager(p *ddbpage.Pager) Option {
	return func(o *options) { o.pager = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New validates cfg and resolves its wire style for T.
func New[T any](client ddbiface.Client, cfg Config, opts ...Option) (*Adapter[T], error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidConfig)
	}
	keys := cfg.KeyFields
	if len(keys) == 0 && cfg.Index != nil {
		keys = cfg.Index.Table.KeyDefinitions.KeyNames()
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one key field is required", ErrInvalidConfig)
	}
	style, err := resolveStyle[T](cfg.Style)
	if err != nil {
		return nil, err
	}
	if cfg.Separator == "" {
		cfg.Separator = ddbexpr.DefaultSeparator
	}

	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batch == nil {
		o.batch = ddbbatch.New(client, ddbbatch.WithLogger(o.log))
	}
	if o.pager == nil {
		o.pager = ddbpage.New(client, ddbpage.WithLogger(o.log))
	}
	shadow := cfg.Search.ShadowPrefix
	if shadow == "" {
		shadow = ddbexpr.DefaultShadowPrefix
	}
	log := o.log.With(zap.String("table", cfg.Table))
	return &Adapter[T]{
		cfg:          cfg,
		style:        style,
		keyFields:    keys,
		shadowPrefix: shadow,
		client:       client,
		batch:        o.batch,
		pager:        o.pager,
		list: ddblist.New(o.batch,
			ddblist.WithPager(o.pager),
			ddblist.WithKeyFunc(ddblist.KeyFields(keys...)),
			ddblist.WithLogger(log)),
		log: log,
	}, nil
}

// Style reports the resolved wire style.
func (a *Adapter[T]) Style() WireStyle {
	return a.style
}

func (a *Adapter[T]) KeyFields() []string {
	return a.keyFields
}

func (a *Adapter[T]) params() *ddbexpr.Params {
	return &ddbexpr.Params{TableName: aws.String(a.cfg.Table)}
}

func (a *Adapter[T]) projection(c *ddbexpr.Compiler, fields []string) {
	c.Projection(fields,
		ddbexpr.WithRename(a.cfg.ProjectionRename),
		ddbexpr.WithFieldSeparator(a.cfg.Separator))
}

// GetByKey reads one record. The bool reports whether it exists.
func (a *Adapter[T]) GetByKey(ctx context.Context, key T, fields []string) (T, bool, error) {
	var zero T
	k, err := a.prepareKey(key)
	if err != nil {
		return zero, false, err
	}
	p := a.params()
	p.Key = k
	a.projection(ddbexpr.NewCompiler(p), fields)
	out, err := a.client.GetItem(ctx, ddbexpr.Cleanup(p).GetItemInput())
	if err != nil {
		return zero, false, fmt.Errorf("get item: %w", err)
	}
	if out.Item == nil {
		return zero, false, nil
	}
	rec, err := a.revive(out.Item, a.fieldSet(fields))
	if err != nil {
		return zero, false, err
	}
	return rec, true, nil
}

func (a *Adapter[T]) put(ctx context.Context, op string, item Item, guard, invert bool) error {
	p := a.params()
	if guard {
		ddbexpr.NewCompiler(p).Condition(a.keyFields[0], invert)
	}
	_, err := a.client.PutItem(ctx, ddbexpr.Cleanup(p).PutItemInput(item))
	return ddbbatch.Classify(op, err)
}

// Post creates a record. It fails with [ddbbatch.ErrPreconditionFailed]
// when the key is taken.
func (a *Adapter[T]) Post(ctx context.Context, rec T) error {
	item, err := a.prepare(rec, false)
	if err != nil {
		return err
	}
	return a.put(ctx, "post", item, true, true)
}

// Put replaces an existing record, or writes unconditionally when force
// is set.
func (a *Adapter[T]) Put(ctx context.Context, rec T, force bool) error {
	item, err := a.prepare(rec, false)
	if err != nil {
		return err
	}
	return a.put(ctx, "put", item, !force, false)
}

// PatchByKey updates the fields present in patch and removes deletes on the
// record under key. Key fields in patch are ignored. With deep set, nested
// maps and lists are updated leaf by leaf instead of replaced. The bool is
// false when the patch was empty and no request was sent.
func (a *Adapter[T]) PatchByKey(ctx context.Context, key T, patch T, deletes []string, deep bool) (bool, error) {
	k, err := a.prepareKey(key)
	if err != nil {
		return false, err
	}
	item, err := a.prepare(patch, true)
	if err != nil {
		return false, err
	}
	for _, name := range a.keyFields {
		delete(item, name)
	}

	p := a.params()
	p.Key = k
	c := ddbexpr.NewCompiler(p)
	c.Condition(a.keyFields[0], false)
	if deep {
		c.DeepUpdate(item, deletes, ddbexpr.WithSeparator(a.cfg.Separator))
	} else {
		c.Update(item, deletes, ddbexpr.WithSeparator(a.cfg.Separator))
	}
	if !p.HasUpdate() {
		return false, nil
	}
	if _, err := a.client.UpdateItem(ctx, ddbexpr.Cleanup(p).UpdateItemInput()); err != nil {
		return false, ddbbatch.Classify("patch", err)
	}
	return true, nil
}

func (a *Adapter[T]) DeleteByKey(ctx context.Context, key T) error {
	k, err := a.prepareKey(key)
	if err != nil {
		return err
	}
	p := a.params()
	p.Key = k
	_, err = a.client.DeleteItem(ctx, p.DeleteItemInput())
	return ddbbatch.Classify("delete", err)
}

// CloneByKey reads the record under key and writes mapFn of it. Unless
// force is set, the write fails when the target key already exists. The
// bool is false when there was nothing to clone.
func (a *Adapter[T]) CloneByKey(ctx context.Context, key T, mapFn func(T) T, force bool) (bool, error) {
	rec, found, err := a.GetByKey(ctx, key, nil)
	if err != nil || !found {
		return false, err
	}
	item, err := a.prepare(mapFn(rec), false)
	if err != nil {
		return false, err
	}
	if err := a.put(ctx, "clone", item, !force, true); err != nil {
		return false, err
	}
	return true, nil
}

// Page is a window of records.
type Page[T any] struct {
	Data   []T
	Offset int
	Limit  int
	Total  *int
}

func (a *Adapter[T]) listParams(params *ddbexpr.Params, fields []string, filter string) *ddbexpr.Params {
	p := ddbexpr.Clone(params)
	p.TableName = aws.String(a.cfg.Table)
	c := ddbexpr.NewCompiler(p)
	a.projection(c, fields)
	search := a.cfg.Search
	if len(fields) > 0 {
		search.Scope = a.fieldSet(ddbexpr.NormalizeFields(fields, a.cfg.ProjectionRename, a.cfg.Separator))
	}
	c.Filter(filter, search)
	return ddbexpr.Cleanup(p)
}

// GetAll lists the window req of the scan or query in params. filter is a
// case-insensitive substring matched against the searchable fields, limited
// to fields when a projection is given.
func (a *Adapter[T]) GetAll(ctx context.Context, params *ddbexpr.Params, req ddbpage.Request, fields []string, filter string) (*Page[T], error) {
	page, err := a.pager.Paginate(ctx, a.listParams(params, fields, filter), req)
	if err != nil {
		return nil, err
	}
	set := a.fieldSet(fields)
	out := &Page[T]{Offset: page.Offset, Limit: page.Limit, Total: page.Total, Data: make([]T, 0, len(page.Data))}
	for _, item := range page.Data {
		rec, err := a.revive(item, set)
		if err != nil {
			return nil, err
		}
		out.Data = append(out.Data, rec)
	}
	return out, nil
}

// GetAllByKeys reads the records under keys. Missing ones are left out.
func (a *Adapter[T]) GetAllByKeys(ctx context.Context, keys []T, fields []string) ([]T, error) {
	wire := make([]Item, len(keys))
	for i, k := range keys {
		var err error
		if wire[i], err = a.prepareKey(k); err != nil {
			return nil, err
		}
	}
	p := a.params()
	a.projection(ddbexpr.NewCompiler(p), fields)
	items, err := a.list.ReadByKeys(ctx, a.cfg.Table, wire, p)
	if err != nil {
		return nil, err
	}
	set := a.fieldSet(fields)
	out := make([]T, 0, len(items))
	for _, item := range items {
		rec, err := a.revive(item, set)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// PutAll writes records unconditionally in batches.
func (a *Adapter[T]) PutAll(ctx context.Context, recs []T) (int, error) {
	items := make([]Item, len(recs))
	for i, r := range recs {
		var err error
		if items[i], err = a.prepare(r, false); err != nil {
			return 0, err
		}
	}
	return a.list.WriteAll(ctx, a.cfg.Table, items, ddblist.Identity)
}

// DeleteAllByParams deletes every record the scan or query in params
// returns. Only key fields are read.
func (a *Adapter[T]) DeleteAllByParams(ctx context.Context, params *ddbexpr.Params) (int, error) {
	p := ddbexpr.Clone(params)
	p.TableName = aws.String(a.cfg.Table)
	p.ProjectionExpression = nil
	ddbexpr.NewCompiler(p).Projection(a.keyFields)
	return a.list.DeleteByParams(ctx, ddbexpr.Cleanup(p))
}

func (a *Adapter[T]) remap(item Item, mapFn func(T) T) (Item, error) {
	rec, err := a.revive(cloneItem(item), nil)
	if err != nil {
		return nil, err
	}
	return a.prepare(mapFn(rec), false)
}

// CloneAllByParams writes mapFn of every listed record. Records listed
// after a mapping failure are skipped and the failure is returned.
func (a *Adapter[T]) CloneAllByParams(ctx context.Context, params *ddbexpr.Params, mapFn func(T) T) (int, error) {
	var mapErr error
	p := ddbexpr.Clone(params)
	p.TableName = aws.String(a.cfg.Table)
	n, err := a.list.CopyByParams(ctx, p, func(item Item) Item {
		if mapErr != nil {
			return nil
		}
		out, err := a.remap(item, mapFn)
		if err != nil {
			mapErr = err
			return nil
		}
		return out
	})
	return n, errors.Join(err, mapErr)
}

// MoveAllByParams rewrites every listed record as mapFn of it and deletes
// the original. A chunk is mapped completely before any of it is written,
// so a mapping failure never deletes an unwritten record. The count
// includes puts and deletes.
func (a *Adapter[T]) MoveAllByParams(ctx context.Context, params *ddbexpr.Params, mapFn func(T) T) (int, error) {
	keyFn := ddblist.KeyFields(a.keyFields...)
	next := ddbexpr.Clone(params)
	next.TableName = aws.String(a.cfg.Table)
	processed := 0
	for next != nil {
		items, np, err := a.pager.Next(ctx, next)
		if err != nil {
			return processed, err
		}
		for chunk := range slices.Chunk(items, ddblist.MoveChunk) {
			writes := make([]ddbbatch.Item, 0, 2*len(chunk))
			for _, it := range chunk {
				key := keyFn(it)
				if key == nil {
					return processed, fmt.Errorf("%w: listed item lacks key fields %v", ErrMissingKey, a.keyFields)
				}
				out, err := a.remap(it, mapFn)
				if err != nil {
					return processed, err
				}
				writes = append(writes, ddbbatch.PutItem(a.cfg.Table, out), ddbbatch.DeleteItem(a.cfg.Table, key))
			}
			n, err := a.batch.Write(ctx, writes...)
			processed += n
			if err != nil {
				return processed, err
			}
		}
		next = np
	}
	a.log.Debug("moved records", zap.Int("processed", processed))
	return processed, nil
}
