// Package ddbbatch executes bulk writes, reads and transactions against a
// DynamoDB wire client. Requests are chunked to the per-call ceilings and
// partial failures are retried with full-jitter exponential backoff.
package ddbbatch

import (
	"context"
	"fmt"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Executor struct {
	client ddbiface.Client
	opts   options
}

type options struct {
	backoff    Backoff
	logger     *zap.Logger
	writeLimit int
	getLimit   int
	sleep      func(ctx context.Context, d time.Duration) error
	token      func() string
}

type Option func(*options)

// WithBackoff replaces [DefaultBackoff].
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWriteLimit lowers the number of write requests per call.
func WithWriteLimit(n int) Option {
	return func(o *options) {
		if n > 0 && n <= ddbiface.MaxBatchWrite {
			o.writeLimit = n
		}
	}
}

// WithGetLimit lowers the number of keys per call.
func WithGetLimit(n int) Option {
	return func(o *options) {
		if n > 0 && n <= ddbiface.MaxBatchGet {
			o.getLimit = n
		}
	}
}

// WithSleep replaces the delay between retries. Tests use it to run
// without waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = fn
	}
}

// WithIdempotencyToken sets the ClientRequestToken generator used for
// transactional writes.
func WithIdempotencyToken(fn func() string) Option {
	return func(o *options) {
		o.token = fn
	}
}

func New(client ddbiface.Client, opts ...Option) *Executor {
	e := &Executor{
		client: client,
		opts: options{
			backoff:    DefaultBackoff,
			logger:     zap.NewNop(),
			writeLimit: ddbiface.MaxBatchWrite,
			getLimit:   ddbiface.MaxBatchGet,
			sleep:      sleepCtx,
			token:      uuid.NewString,
		},
	}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

// Client returns the wire client the executor writes to.
func (e *Executor) Client() ddbiface.Client {
	return e.client
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs attempt until it reports nothing left, fails with a
// non-throttle error, or the backoff is exhausted. attempt returns the
// number of requests still outstanding.
func (e *Executor) retry(ctx context.Context, op string, attempt func() (int, error)) error {
	var (
		lastErr   error
		remaining int
		n         int
	)
	for delay := range e.opts.backoff.Delays() {
		n++
		left, err := attempt()
		switch {
		case err == nil && left == 0:
			return nil
		case err != nil && !IsThrottle(err):
			return fmt.Errorf("%s failed: %w", op, err)
		}
		lastErr, remaining = err, left
		e.opts.logger.Debug("retrying "+op,
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.Int("unprocessed", left),
			zap.Error(err),
		)
		if err := e.opts.sleep(ctx, delay); err != nil {
			return err
		}
	}
	e.opts.logger.Warn(op+" abandoned", zap.Int("attempts", n), zap.Int("unprocessed", remaining))
	if lastErr != nil {
		return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, n, lastErr)
	}
	return fmt.Errorf("%s: %w after %d attempts: %d requests unprocessed", op, ErrRetriesExhausted, n, remaining)
}
