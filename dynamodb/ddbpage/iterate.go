package ddbpage

import (
	"context"
	"iter"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/aws/aws-sdk-go-v2/aws"
)

// Pages yields every raw response of a scan or query, following the cursor
// to the end. Iteration stops after the first error.
func (p *Pager) Pages(ctx context.Context, params *ddbexpr.Params) iter.Seq2[*Output, error] {
	return func(yield func(*Output, error) bool) {
		lp := ddbexpr.Cleanup(ddbexpr.Clone(params))
		for {
			out, err := p.call(ctx, lp)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(out, nil) {
				return
			}
			if len(out.LastEvaluatedKey) == 0 {
				return
			}
			lp.ExclusiveStartKey = out.LastEvaluatedKey
		}
	}
}

// Items yields every matching item in backend order.
func (p *Pager) Items(ctx context.Context, params *ddbexpr.Params) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for out, err := range p.Pages(ctx, params) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range out.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Next reads one page. It returns the params for the following page, or nil
// when the cursor is exhausted. Params without a Limit get
// [DefaultReadLimit].
func (p *Pager) Next(ctx context.Context, params *ddbexpr.Params) ([]Item, *ddbexpr.Params, error) {
	lp := ddbexpr.Cleanup(ddbexpr.Clone(params))
	if lp.Limit == nil {
		lp.Limit = aws.Int32(DefaultReadLimit)
	}
	out, err := p.call(ctx, lp)
	if err != nil {
		return nil, nil, err
	}
	if len(out.LastEvaluatedKey) == 0 {
		return out.Items, nil, nil
	}
	lp.ExclusiveStartKey = out.LastEvaluatedKey
	return out.Items, lp, nil
}
