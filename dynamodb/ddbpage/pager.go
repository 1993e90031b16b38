// Package ddbpage emulates offset/limit pagination over DynamoDB scans and
// queries, which only expose forward cursors and page-limited calls.
package ddbpage

import (
	"context"
	"fmt"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"golang.org/x/exp/constraints"
)

const (
	DefaultMinLimit = 10
	DefaultMaxLimit = 100
	// DefaultLimit is the page size used when a caller has no preference.
	DefaultLimit = 10
	// DefaultReadLimit is the Limit applied by [Pager.Next] when the params
	// carry none.
	DefaultReadLimit = 100
)

type Item = map[string]types.AttributeValue

// Request asks for Limit items starting at Offset.
type Request struct {
	Offset int
	Limit  int
}

// Page is the result of [Pager.Paginate]. Total is set only when totals
// were requested.
type Page struct {
	Data   []Item
	Offset int
	Limit  int
	Total  *int
}

// Output is one scan or query response.
type Output struct {
	Items            []Item
	Count            int
	ScannedCount     int
	LastEvaluatedKey map[string]types.AttributeValue
}

type Pager struct {
	client   ddbiface.Client
	minLimit int
	maxLimit int
	total    bool
	logger   *zap.Logger
}

type Option func(*Pager)

// WithMinLimit sets the page size used for item calls near the skip target.
func WithMinLimit(n int) Option {
	return func(p *Pager) {
		p.minLimit = n
	}
}

// WithMaxLimit caps the requested limit.
func WithMaxLimit(n int) Option {
	return func(p *Pager) {
		p.maxLimit = n
	}
}

// WithTotal toggles the exact total count. Counting the rest of a large
// result set costs extra wire calls.
func WithTotal(on bool) Option {
	return func(p *Pager) {
		p.total = on
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pager) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(client ddbiface.Client, opts ...Option) *Pager {
	p := &Pager{
		client:   client,
		minLimit: DefaultMinLimit,
		maxLimit: DefaultMaxLimit,
		total:    true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.minLimit = clamp(p.minLimit, 1, ddbiface.MaxBatchGet)
	p.maxLimit = max(p.maxLimit, 1)
	return p
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// call dispatches to Query when the params carry a key condition and to
// Scan otherwise.
func (p *Pager) call(ctx context.Context, params *ddbexpr.Params) (*Output, error) {
	if params.IsQuery() {
		out, err := p.client.Query(ctx, params.QueryInput())
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", aws.ToString(params.TableName), err)
		}
		return &Output{Items: out.Items, Count: int(out.Count), ScannedCount: int(out.ScannedCount), LastEvaluatedKey: out.LastEvaluatedKey}, nil
	}
	out, err := p.client.Scan(ctx, params.ScanInput())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", aws.ToString(params.TableName), err)
	}
	return &Output{Items: out.Items, Count: int(out.Count), ScannedCount: int(out.ScannedCount), LastEvaluatedKey: out.LastEvaluatedKey}, nil
}

// Total counts every item matching params with count-only calls, starting
// at the params' cursor if it has one.
func (p *Pager) Total(ctx context.Context, params *ddbexpr.Params) (int, error) {
	return p.countRest(ctx, ddbexpr.CountingParams(params), 0)
}

// countRest keeps issuing count-only calls from cp's cursor until the
// result set is exhausted.
func (p *Pager) countRest(ctx context.Context, cp *ddbexpr.Params, total int) (int, error) {
	for {
		out, err := p.call(ctx, cp)
		if err != nil {
			return total, err
		}
		total += out.Count
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		cp.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (p *Pager) normalize(req Request) (int, int) {
	return req.Offset, min(p.maxLimit, req.Limit)
}

func (p *Pager) page(data []Item, offset, limit, total int) *Page {
	pg := &Page{Data: data, Offset: offset, Limit: limit}
	if pg.Data == nil {
		pg.Data = []Item{}
	}
	if p.total {
		pg.Total = &total
	}
	return pg
}
