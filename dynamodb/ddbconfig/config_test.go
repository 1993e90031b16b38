package ddbconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbadapter"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbbatch"
	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
region: eu-north-1
profile: dev
endpoint: http://localhost:8000
table: users
wireStyle: raw
backoff:
  base: 20ms
  cap: 2s
  finite: true
pagination:
  minLimit: 5
  maxLimit: 50
log:
  level: debug
  format: console
metrics:
  enabled: true
local:
  enabled: true
  inMemory: true
tables:
  - name: users
    ttl: expires
    keys:
      partition: {name: pk, kind: S}
      sort: {name: sk, kind: S}
    gsis:
      - name: byEmail
        keys:
          partition: {name: email, kind: S}
`

func TestParse(t *testing.T) {
	t.Run("overlays the defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(sample))
		require.NoError(t, err)
		assert.Equal(t, "eu-north-1", cfg.Region)
		assert.Equal(t, 20*time.Millisecond, cfg.Backoff.Base)
		assert.Equal(t, 2*time.Second, cfg.Backoff.Cap)
		assert.True(t, cfg.Backoff.Finite)
		assert.Equal(t, 5, cfg.Pagination.MinLimit)
		assert.True(t, cfg.Pagination.Total, "unset keys keep their defaults")
		assert.Equal(t, "ddbtk", cfg.Metrics.Namespace)
		assert.Equal(t, 0.8, cfg.Breaker.FailureThreshold)

		require.Len(t, cfg.Tables, 1)
		users, ok := cfg.TableDefinition("users")
		require.True(t, ok)
		assert.Equal(t, "expires", users.TimeToLiveKey)
		assert.Equal(t, table.KeyKindS, users.KeyDefinitions.SortKey.Kind)
		assert.Equal(t, "email", users.GSIs[0].KeyDefinitions.PartitionKey.Name)

		style, err := cfg.Style()
		require.NoError(t, err)
		assert.Equal(t, ddbadapter.Raw, style)
	})
	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, Default().Validate())
		cfg, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	invalid := map[string]string{
		"unknown wire style":       "wireStyle: json",
		"cap below base":           "backoff: {base: 2s, cap: 1s}",
		"min limit above page cap": "pagination: {minLimit: 500, maxLimit: 500}",
		"max below min limit":      "pagination: {minLimit: 20, maxLimit: 10}",
		"unknown log level":        "log: {level: loud}",
		"bad endpoint":             "endpoint: not a url",
		"threshold above one":      "breaker: {failureThreshold: 2}",
		"table without a name":     "tables: [{keys: {partition: {name: pk, kind: S}}}]",
		"unknown key kind":         "tables: [{name: t, keys: {partition: {name: pk, kind: X}}}]",
		"bad sort key kind":        "tables: [{name: t, keys: {partition: {name: pk, kind: S}, sort: {name: sk, kind: BOOL}}}]",
		"malformed yaml":           "backoff: [",
	}
	for name, doc := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	assert.Empty(t, Find(nested))

	path := filepath.Join(root, "a", FileName)
	require.NoError(t, os.WriteFile(path, []byte("table: found\n"), 0o644))
	assert.Equal(t, path, Find(nested))

	cfg, err := LoadFile(Find(nested))
	require.NoError(t, err)
	assert.Equal(t, "found", cfg.Table)

	_, err = LoadFile(filepath.Join(root, "missing.yaml"))
	require.Error(t, err)
}

func TestHelpers(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	t.Run("backoff follows the config", func(t *testing.T) {
		b := cfg.BatchBackoff()
		assert.True(t, b.IsFinite())
		for d := range b.Delays() {
			assert.LessOrEqual(t, d, 2*time.Second)
		}
	})
	t.Run("logger honors the level", func(t *testing.T) {
		log, err := cfg.Logger()
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(-1), "debug is enabled")

		cfg.Log.Level = "warn"
		log, err = cfg.Logger()
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(0), "info is disabled")
	})
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	c, err := NewClient(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NotNil(t, c.Local)
	require.NotNil(t, c.Metrics)

	key := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "u"},
		"sk": &types.AttributeValueMemberS{Value: "1"},
	}
	n, err := c.Executor().Write(ctx, putItem(key))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := c.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("users"), Key: key})
	require.NoError(t, err)
	assert.Equal(t, key, out.Item)

	families, err := c.Metrics.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families, "calls went through the metrics middleware")
}

func putItem(item map[string]types.AttributeValue) ddbbatch.Item {
	return ddbbatch.PutItem("users", item)
}
