package ddbbatch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Write applies put and delete items in as few BatchWriteItem calls as the
// per-call limit allows. Consecutive items share a chunk even when they
// target different tables. Unprocessed requests are resubmitted on their
// own after a backoff delay. The returned count is the number of items
// applied; it is 0 with a nil error when there was nothing to write.
//
// Submission order inside a chunk is not preserved.
func (e *Executor) Write(ctx context.Context, items ...Item) (int, error) {
	reqs := make([]types.WriteRequest, len(items))
	for i, it := range items {
		wr, err := it.writeRequest()
		if err != nil {
			return 0, err
		}
		reqs[i] = wr
	}

	var (
		total int
		size  int
		chunk map[string][]types.WriteRequest
	)
	flush := func() error {
		if size == 0 {
			return nil
		}
		if err := e.WriteRequests(ctx, chunk); err != nil {
			return err
		}
		total += size
		size, chunk = 0, nil
		return nil
	}
	for i, it := range items {
		if chunk == nil {
			chunk = make(map[string][]types.WriteRequest)
		}
		chunk[it.Table] = append(chunk[it.Table], reqs[i])
		size++
		if size >= e.opts.writeLimit {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// WriteRequests submits one BatchWriteItem payload and retries until every
// request is processed.
func (e *Executor) WriteRequests(ctx context.Context, requests map[string][]types.WriteRequest) error {
	pending := requests
	return e.retry(ctx, "batch write", func() (int, error) {
		out, err := e.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return countWrites(pending), err
		}
		if len(out.UnprocessedItems) == 0 {
			return 0, nil
		}
		pending = out.UnprocessedItems
		return countWrites(pending), nil
	})
}

func countWrites(m map[string][]types.WriteRequest) int {
	var n int
	for _, reqs := range m {
		n += len(reqs)
	}
	return n
}
