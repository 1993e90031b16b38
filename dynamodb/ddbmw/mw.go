// Package ddbmw decorates a [ddbiface.Client] with per-call middleware:
// logging, Prometheus metrics, OpenTelemetry spans and a circuit breaker.
package ddbmw

import (
	"context"
	"slices"
	"strings"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Request describes one wire call as seen by middleware.
type Request struct {
	// Op is the API operation name, e.g. "Query".
	Op string
	// Table lists the tables the call touches, comma-separated and sorted.
	Table string
	Input any

	send func(ctx context.Context) (any, error)
}

// Call performs a wire call and returns its output.
type Call func(ctx context.Context, req *Request) (any, error)

type Middleware func(next Call) Call

type client struct {
	next  ddbiface.Client
	chain Call
}

var _ ddbiface.Client = (*client)(nil)

// Wrap returns a client whose calls pass through middlewares. The first
// middleware is the outermost.
func Wrap(next ddbiface.Client, middlewares ...Middleware) ddbiface.Client {
	chain := Call(func(ctx context.Context, req *Request) (any, error) {
		return req.send(ctx)
	})
	for _, mw := range slices.Backward(middlewares) {
		chain = mw(chain)
	}
	return &client{next: next, chain: chain}
}

func invoke[O any](c *client, ctx context.Context, op, table string, in any, send func(context.Context) (O, error)) (O, error) {
	req := &Request{Op: op, Table: table, Input: in, send: func(ctx context.Context) (any, error) {
		return send(ctx)
	}}
	out, err := c.chain(ctx, req)
	v, _ := out.(O)
	return v, err
}

func tables[V any](m map[string]V) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

func transactTables(items []types.TransactWriteItem) string {
	set := map[string]bool{}
	for _, it := range items {
		switch {
		case it.Put != nil:
			set[aws.ToString(it.Put.TableName)] = true
		case it.Delete != nil:
			set[aws.ToString(it.Delete.TableName)] = true
		case it.Update != nil:
			set[aws.ToString(it.Update.TableName)] = true
		case it.ConditionCheck != nil:
			set[aws.ToString(it.ConditionCheck.TableName)] = true
		}
	}
	return tables(set)
}

func transactGetTables(items []types.TransactGetItem) string {
	set := map[string]bool{}
	for _, it := range items {
		if it.Get != nil {
			set[aws.ToString(it.Get.TableName)] = true
		}
	}
	return tables(set)
}

func (c *client) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return invoke(c, ctx, "BatchGetItem", tables(in.RequestItems), in, func(ctx context.Context) (*dynamodb.BatchGetItemOutput, error) {
		return c.next.BatchGetItem(ctx, in, optFns...)
	})
}

func (c *client) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return invoke(c, ctx, "BatchWriteItem", tables(in.RequestItems), in, func(ctx context.Context) (*dynamodb.BatchWriteItemOutput, error) {
		return c.next.BatchWriteItem(ctx, in, optFns...)
	})
}

func (c *client) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return invoke(c, ctx, "DeleteItem", aws.ToString(in.TableName), in, func(ctx context.Context) (*dynamodb.DeleteItemOutput, error) {
		return c.next.DeleteItem(ctx, in, optFns...)
	})
}

func (c *client) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return invoke(c, ctx, "GetItem", aws.ToString(in.TableName), in, func(ctx context.Context) (*dynamodb.GetItemOutput, error) {
		return c.next.GetItem(ctx, in, optFns...)
	})
}

func (c *client) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return invoke(c, ctx, "PutItem", aws.ToString(in.TableName), in, func(ctx context.Context) (*dynamodb.PutItemOutput, error) {
		return c.next.PutItem(ctx, in, optFns...)
	})
}

func (c *client) TransactGetItems(ctx context.Context, in *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	return invoke(c, ctx, "TransactGetItems", transactGetTables(in.TransactItems), in, func(ctx context.Context) (*dynamodb.TransactGetItemsOutput, error) {
		return c.next.TransactGetItems(ctx, in, optFns...)
	})
}

func (c *client) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return invoke(c, ctx, "TransactWriteItems", transactTables(in.TransactItems), in, func(ctx context.Context) (*dynamodb.TransactWriteItemsOutput, error) {
		return c.next.TransactWriteItems(ctx, in, optFns...)
	})
}

func (c *client) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return invoke(c, ctx, "Query", aws.ToString(in.TableName), in, func(ctx context.Context) (*dynamodb.QueryOutput, error) {
		return c.next.Query(ctx, in, optFns...)
	})
}

func (c *client) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return invoke(c, ctx, "Scan", aws.ToString(in.TableName), in, func(ctx context.Context) (*dynamodb.ScanOutput, error) {
		return c.next.Scan(ctx, in, optFns...)
	})
}

func (c *client) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return invoke(c, ctx, "UpdateItem", aws.ToString(in.TableName), in, func(ctx context.Context) (*dynamodb.UpdateItemOutput, error) {
		return c.next.UpdateItem(ctx, in, optFns...)
	})
}

// status buckets an error for logs and metric labels.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isThrottle(err):
		return "throttled"
	case isConditionFailed(err):
		return "condition_failed"
	case isCanceled(err):
		return "canceled"
	}
	return "error"
}
