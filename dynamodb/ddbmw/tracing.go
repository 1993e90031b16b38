package ddbmw

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/acksell/dynamodb-toolkit/dynamodb/ddbmw"

// Tracing starts a client span per call. A nil tracer uses the global
// provider.
func Tracing(tracer trace.Tracer) Middleware {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return func(next Call) Call {
		return func(ctx context.Context, req *Request) (any, error) {
			ctx, span := tracer.Start(ctx, "DynamoDB."+req.Op,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("db.system", "dynamodb"),
					attribute.String("db.operation", req.Op),
					attribute.StringSlice("aws.dynamodb.table_names", strings.Split(req.Table, ",")),
				))
			defer span.End()

			out, err := next(ctx, req)
			span.SetAttributes(attribute.String("dynamodb.status", status(err)))
			if !expected(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return out, err
		}
	}
}
