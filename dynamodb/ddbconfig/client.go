package ddbconfig

import (
	"context"
	"fmt"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbbatch"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddblocal"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbmw"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbpage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// Client is the configured wire client with its middleware applied.
type Client struct {
	ddbiface.Client
	// Local is set when the client is backed by a local store.
	Local *ddblocal.Store
	// Metrics is set when metrics are enabled.
	Metrics *ddbmw.Collector

	cfg Config
	log *zap.Logger
}

// NewClient connects to DynamoDB, or opens a local store when
// local.enabled is set, and wraps it in logging, tracing and the optional
// metrics and breaker middleware.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{cfg: cfg, log: log}

	var base ddbiface.Client
	if cfg.Local.Enabled {
		store, err := ddblocal.New(ddblocal.Options{
			Path:     cfg.Local.Path,
			InMemory: cfg.Local.InMemory,
			Logger:   log.Named("local"),
		}, cfg.Tables...)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		c.Local = store
		base = store
	} else {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		base = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
	}

	mws := []ddbmw.Middleware{ddbmw.Logging(log.Named("wire")), ddbmw.Tracing(nil)}
	if cfg.Metrics.Enabled {
		c.Metrics = ddbmw.NewCollector(cfg.Metrics.Namespace)
		mws = append(mws, ddbmw.Metrics(c.Metrics))
	}
	if cfg.Breaker.Enabled {
		mws = append(mws, ddbmw.Breaker(cfg.BreakerSettings(), log))
	}
	c.Client = ddbmw.Wrap(base, mws...)
	return c, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return awsCfg, nil
}

// Executor returns a batch executor using the configured backoff.
func (c *Client) Executor() *ddbbatch.Executor {
	return ddbbatch.New(c.Client,
		ddbbatch.WithBackoff(c.cfg.BatchBackoff()),
		ddbbatch.WithLogger(c.log.Named("batch")))
}

// Pager returns a pager using the configured limits.
func (c *Client) Pager() *ddbpage.Pager {
	return ddbpage.New(c.Client, append(c.cfg.PagerOptions(), ddbpage.WithLogger(c.log.Named("page")))...)
}

func (c *Client) Close() error {
	if c.Local != nil {
		return c.Local.Close()
	}
	return nil
}
