package ddbmw

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging logs every call at Debug and unexpected failures at Warn.
func Logging(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Call) Call {
		return func(ctx context.Context, req *Request) (any, error) {
			start := time.Now()
			out, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("op", req.Op),
				zap.String("table", req.Table),
				zap.String("status", status(err)),
				zap.Duration("took", time.Since(start)),
			}
			if expected(err) {
				log.Debug("dynamodb call", fields...)
			} else {
				log.Warn("dynamodb call failed", append(fields, zap.Error(err))...)
			}
			return out, err
		}
	}
}
