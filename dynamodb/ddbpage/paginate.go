package ddbpage

import (
	"context"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
)

// Paginate returns the page at req.Offset of at most req.Limit items.
//
// Large skips are done with count-only calls so item bodies are not
// transferred; the last stretch of the skip uses item calls of minLimit and
// slices the page that crosses the offset. Items are then collected until
// the limit is reached, and when totals are on the rest of the result set
// is counted. An exhausted cursor ends every phase at once.
func (p *Pager) Paginate(ctx context.Context, params *ddbexpr.Params, req Request) (*Page, error) {
	offset, limit := p.normalize(req)
	data, total, err := p.paginate(ctx, params, offset, limit)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("paginated",
		zap.String("table", aws.ToString(params.TableName)),
		zap.Int("offset", offset),
		zap.Int("limit", limit),
		zap.Int("items", len(data)),
	)
	return p.page(data, offset, limit, total), nil
}

func (p *Pager) paginate(ctx context.Context, params *ddbexpr.Params, offset, limit int) ([]Item, int, error) {
	if offset < 0 || limit <= 0 {
		if !p.total {
			return nil, 0, nil
		}
		total, err := p.Total(ctx, params)
		return nil, total, err
	}

	var (
		result []Item
		total  int
		cp     *ddbexpr.Params
	)
	lp := ddbexpr.Clone(params)

	if offset > 0 {
		skipped := 0
		if offset > p.minLimit {
			cp = ddbexpr.CountingParams(params)
			for offset-skipped > p.minLimit {
				cp.Limit = aws.Int32(int32(offset - skipped))
				out, err := p.call(ctx, cp)
				if err != nil {
					return nil, total, err
				}
				total += out.Count
				skipped += out.Count
				if len(out.LastEvaluatedKey) == 0 {
					return result, total, nil
				}
				cp.ExclusiveStartKey = out.LastEvaluatedKey
			}
			cp.Limit = nil
			if cp.ExclusiveStartKey != nil {
				lp.ExclusiveStartKey = cp.ExclusiveStartKey
			}
		}
		for skipped < offset {
			lp.Limit = aws.Int32(int32(p.minLimit))
			out, err := p.call(ctx, lp)
			if err != nil {
				return nil, total, err
			}
			total += out.Count
			if rest := offset - skipped; rest < len(out.Items) {
				result = append(result, out.Items[rest:min(rest+limit, len(out.Items))]...)
				skipped = offset
			} else {
				skipped += out.Count
			}
			lp.ExclusiveStartKey = out.LastEvaluatedKey
			if len(out.LastEvaluatedKey) == 0 {
				return result, total, nil
			}
		}
	}

	for len(result) < limit {
		lp.Limit = aws.Int32(int32(max(p.minLimit, limit-len(result))))
		out, err := p.call(ctx, lp)
		if err != nil {
			return nil, total, err
		}
		total += out.Count
		take := min(len(out.Items), limit-len(result))
		result = append(result, out.Items[:take]...)
		lp.ExclusiveStartKey = out.LastEvaluatedKey
		if len(out.LastEvaluatedKey) == 0 {
			return result, total, nil
		}
	}

	if !p.total {
		return result, total, nil
	}
	if cp == nil {
		cp = ddbexpr.CountingParams(params)
	}
	cp.ExclusiveStartKey = lp.ExclusiveStartKey
	total, err := p.countRest(ctx, cp, total)
	return result, total, err
}

// PaginateNoLimit is the variant for backends where Limit is undesirable,
// for example filtered scans where Limit would make every call return a
// sparse page. Skipping uses full count-only pages and stops on the page
// that would cross the offset; collection reads full pages from there.
func (p *Pager) PaginateNoLimit(ctx context.Context, params *ddbexpr.Params, req Request) (*Page, error) {
	offset, limit := p.normalize(req)
	data, total, err := p.paginateNoLimit(ctx, params, offset, limit)
	if err != nil {
		return nil, err
	}
	return p.page(data, offset, limit, total), nil
}

func (p *Pager) paginateNoLimit(ctx context.Context, params *ddbexpr.Params, offset, limit int) ([]Item, int, error) {
	if offset < 0 || limit <= 0 {
		if !p.total {
			return nil, 0, nil
		}
		total, err := p.Total(ctx, params)
		return nil, total, err
	}

	var (
		result  []Item
		total   int
		skipped int
		cp      *ddbexpr.Params
	)
	lp := ddbexpr.Cleanup(ddbexpr.Clone(params))
	lp.Limit = nil

	if offset > 0 {
		cp = ddbexpr.CountingParams(params)
		for skipped < offset {
			out, err := p.call(ctx, cp)
			if err != nil {
				return nil, total, err
			}
			if skipped+out.Count > offset {
				break
			}
			total += out.Count
			skipped += out.Count
			if len(out.LastEvaluatedKey) == 0 {
				return result, total, nil
			}
			cp.ExclusiveStartKey = out.LastEvaluatedKey
		}
		if cp.ExclusiveStartKey != nil {
			lp.ExclusiveStartKey = cp.ExclusiveStartKey
		}
	}

	for len(result) < limit {
		out, err := p.call(ctx, lp)
		if err != nil {
			return nil, total, err
		}
		total += out.Count
		items := out.Items
		if skipped < offset {
			items = items[min(offset-skipped, len(items)):]
			skipped = offset
		}
		result = append(result, items[:min(len(items), limit-len(result))]...)
		lp.ExclusiveStartKey = out.LastEvaluatedKey
		if len(out.LastEvaluatedKey) == 0 {
			return result, total, nil
		}
	}

	if !p.total {
		return result, total, nil
	}
	cp = ddbexpr.CountingParams(params)
	cp.ExclusiveStartKey = lp.ExclusiveStartKey
	total, err := p.countRest(ctx, cp, total)
	return result, total, err
}
