package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbadapter"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbconfig"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbexpr"
	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

type Item = map[string]types.AttributeValue

// common holds the flags every command shares.
type common struct {
	configPath string
	memory     bool
	db         string
	table      string
	region     string
	profile    string
	endpoint   string
	search     string
	pkName     string
	skName     string
}

func addCommon(fs *flag.FlagSet) *common {
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "config file (default: nearest "+ddbconfig.FileName+")")
	fs.BoolVar(&c.memory, "memory", false, "use an in-memory local store")
	fs.StringVar(&c.db, "db", "", "use a local store in this directory")
	fs.StringVar(&c.table, "table", "", "table name")
	fs.StringVar(&c.region, "region", "", "AWS region")
	fs.StringVar(&c.profile, "profile", "", "AWS shared config profile")
	fs.StringVar(&c.endpoint, "endpoint", "", "DynamoDB endpoint URL")
	fs.StringVar(&c.search, "search", "", "comma-separated fields with search shadow copies")
	fs.StringVar(&c.pkName, "pk-name", "", "partition key attribute (default from config, else pk)")
	fs.StringVar(&c.skName, "sk-name", "", "sort key attribute (default from config, else sk)")
	return c
}

// listing adds the flags that select items for scan or query commands.
type listing struct {
	index    string
	pk       string
	skPrefix string
}

func addListing(fs *flag.FlagSet) *listing {
	l := &listing{}
	fs.StringVar(&l.index, "index", "", "global secondary index to read")
	fs.StringVar(&l.pk, "pk", "", "partition key value; query instead of scan")
	fs.StringVar(&l.skPrefix, "sk-prefix", "", "sort key prefix, requires --pk")
	return l
}

type env struct {
	cfg     ddbconfig.Config
	client  *ddbconfig.Client
	log     *zap.Logger
	def     table.TableDefinition
	adapter *ddbadapter.Adapter[Item]
}

func (c *common) config() (ddbconfig.Config, error) {
	var (
		cfg ddbconfig.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = ddbconfig.LoadFile(c.configPath)
	} else {
		cfg, err = ddbconfig.Load()
	}
	if err != nil {
		return cfg, err
	}
	override(&cfg.Table, c.table)
	override(&cfg.Region, c.region)
	override(&cfg.Profile, c.profile)
	override(&cfg.Endpoint, c.endpoint)
	if c.memory {
		cfg.Local = ddbconfig.LocalConfig{Enabled: true, InMemory: true}
	} else if c.db != "" {
		cfg.Local = ddbconfig.LocalConfig{Enabled: true, Path: c.db}
	}
	if cfg.Table == "" {
		return cfg, errors.New("no table: pass --table or set table in " + ddbconfig.FileName)
	}
	return cfg, cfg.Validate()
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// definition returns the configured table, or one derived from the key
// name flags. Local stores need the table registered.
func (c *common) definition(cfg ddbconfig.Config) table.TableDefinition {
	def, ok := cfg.TableDefinition(cfg.Table)
	if !ok {
		def = table.TableDefinition{
			Name: cfg.Table,
			KeyDefinitions: table.PrimaryKeyDefinition{
				PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
				SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
			},
		}
	}
	if c.pkName != "" {
		def.KeyDefinitions.PartitionKey.Name = c.pkName
	}
	if c.skName != "" {
		def.KeyDefinitions.SortKey.Name = c.skName
	}
	return def
}

func (c *common) open(ctx context.Context) (*env, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	def := c.definition(cfg)
	if _, ok := cfg.TableDefinition(def.Name); !ok && cfg.Local.Enabled {
		cfg.Tables = append(cfg.Tables, def)
	}
	style, err := cfg.Style()
	if err != nil {
		return nil, err
	}
	if style == ddbadapter.Marshalled {
		return nil, errors.New("the command line works on raw items; use wireStyle auto or raw")
	}
	client, err := ddbconfig.NewClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	searchable := map[string]bool{}
	for _, f := range ddbexpr.SplitFields(c.search) {
		searchable[f] = true
	}
	a, err := ddbadapter.New[Item](client, ddbadapter.Config{
		Table:     def.Name,
		KeyFields: def.KeyDefinitions.KeyNames(),
		Style:     style,
		Search:    ddbexpr.Search{Searchable: searchable},
	}, ddbadapter.WithExecutor(client.Executor()), ddbadapter.WithPager(client.Pager()), ddbadapter.WithLogger(log))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &env{cfg: cfg, client: client, log: log, def: def, adapter: a}, nil
}

func (e *env) Close() error {
	_ = e.log.Sync()
	return e.client.Close()
}

// keyNames returns the key attributes of the table or of the index.
func (e *env) keyNames(index string) (table.PrimaryKeyDefinition, error) {
	if index == "" {
		return e.def.KeyDefinitions, nil
	}
	for _, g := range e.def.GSIs {
		if g.Name == index {
			return g.KeyDefinitions, nil
		}
	}
	return table.PrimaryKeyDefinition{}, fmt.Errorf("table %s has no index %q in the config", e.def.Name, index)
}

// params builds the scan, or the query when a partition is given.
func (e *env) params(l *listing) (*ddbexpr.Params, error) {
	p := &ddbexpr.Params{TableName: aws.String(e.def.Name)}
	if l.index != "" {
		p.IndexName = aws.String(l.index)
	}
	if l.pk == "" {
		if l.skPrefix != "" {
			return nil, errors.New("--sk-prefix requires --pk")
		}
		return p, nil
	}
	keys, err := e.keyNames(l.index)
	if err != nil {
		return nil, err
	}
	cond := expression.Key(keys.PartitionKey.Name).Equal(expression.Value(keyValue(keys.PartitionKey.Kind, l.pk)))
	if l.skPrefix != "" {
		if keys.SortKey.Name == "" {
			return nil, errors.New("--sk-prefix needs a table with a sort key")
		}
		cond = cond.And(expression.Key(keys.SortKey.Name).BeginsWith(l.skPrefix))
	}
	built, err := expression.NewBuilder().WithKeyCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}
	return ddbexpr.NewCompiler(p).MergeBuilt(built), nil
}

func keyValue(kind table.KeyKind, v string) any {
	if kind == table.KeyKindN {
		return attributevalue.Number(v)
	}
	return v
}

// parseItem reads a JSON object into a wire item.
func parseItem(s string) (Item, error) {
	if s == "" {
		return nil, errors.New("missing JSON object")
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// writeItems prints one JSON object per line.
func writeItems(w io.Writer, items []Item) error {
	enc := json.NewEncoder(w)
	for _, it := range items {
		var doc map[string]any
		if err := attributevalue.UnmarshalMap(it, &doc); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return nil
}

var stdout io.Writer = os.Stdout
