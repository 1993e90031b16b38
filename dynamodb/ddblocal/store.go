// Package ddblocal is a DynamoDB emulator backed by BadgerDB. It implements
// ddbiface.Client so the toolkit can run against it in tests, in the CLI's
// --memory mode or as an embedded single-process database.
package ddblocal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/acksell/dynamodb-toolkit/dynamodb/ddbiface"
	"github.com/acksell/dynamodb-toolkit/dynamodb/ddblocal/ddbeval"
	"github.com/acksell/dynamodb-toolkit/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var _ ddbiface.Client = (*Store)(nil)

// tokenTTL is how long a transaction's ClientRequestToken stays idempotent.
const tokenTTL = 10 * time.Minute

// Options configures the store.
type Options struct {
	// Path to the database directory. Empty means in-memory.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger receives request and badger logs. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Store is a DynamoDB-compatible store backed by BadgerDB.
type Store struct {
	db  *badger.DB
	log *zap.Logger

	// writeMu serializes write transactions so conditions are evaluated
	// against a stable view.
	writeMu sync.Mutex

	mu     sync.RWMutex
	tables map[string]*schema
	tokens map[string]time.Time
}

type schema struct {
	def  table.TableDefinition
	gsis map[string]table.GSIDefinition
}

// New opens a store holding the given tables.
func New(opts Options, defs ...table.TableDefinition) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(badgerLogger{log.Named("badger").Sugar()})
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	s := &Store{
		db:     db,
		log:    log,
		tables: make(map[string]*schema),
		tokens: make(map[string]time.Time),
	}
	for _, def := range defs {
		if err := s.AddTable(def); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// AddTable registers a table definition. Re-adding a table replaces its
// definition but keeps its data.
func (s *Store) AddTable(def table.TableDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if def.KeyDefinitions.PartitionKey.Name == "" {
		return fmt.Errorf("table %s: partition key is required", def.Name)
	}
	sc := &schema{def: def, gsis: make(map[string]table.GSIDefinition, len(def.GSIs))}
	for _, g := range def.GSIs {
		if g.Name == "" || g.KeyDefinitions.PartitionKey.Name == "" {
			return fmt.Errorf("table %s: index name and partition key are required", def.Name)
		}
		sc.gsis[g.Name] = g
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[def.Name] = sc
	return nil
}

// Tables lists the registered table definitions.
func (s *Store) Tables() []table.TableDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]table.TableDefinition, 0, len(s.tables))
	for _, sc := range s.tables {
		out = append(out, sc.def)
	}
	return out
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) schema(name *string) (*schema, error) {
	if name == nil || *name == "" {
		return nil, validationError("table name is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.tables[*name]
	if !ok {
		return nil, resourceNotFound(*name)
	}
	return sc, nil
}

// itemKey encodes the primary key of item, which must carry the table's key
// attributes with the declared types.
func (sc *schema) itemKey(item map[string]types.AttributeValue) ([]byte, error) {
	k, err := appendKey(keyPrefix(sc.def.Name, ""), sc.def.KeyDefinitions, item)
	if err != nil {
		return nil, validationError("one or more parameter values were invalid: %v", err)
	}
	return k, nil
}

// exactKey validates that key holds only the primary key attributes.
func (sc *schema) exactKey(key map[string]types.AttributeValue) ([]byte, error) {
	want := 1
	if sc.def.KeyDefinitions.SortKey.Name != "" {
		want = 2
	}
	if len(key) != want {
		return nil, validationError("the provided key element does not match the schema")
	}
	return sc.itemKey(key)
}

// indexKey encodes the entry of item in index g. ok is false when the item
// lacks the index keys and so is absent from the sparse index.
func (sc *schema) indexKey(g table.GSIDefinition, item map[string]types.AttributeValue) (key []byte, ok bool, err error) {
	if _, has := item[g.KeyDefinitions.PartitionKey.Name]; !has {
		return nil, false, nil
	}
	if sk := g.KeyDefinitions.SortKey.Name; sk != "" {
		if _, has := item[sk]; !has {
			return nil, false, nil
		}
	}
	k, err := appendKey(keyPrefix(sc.def.Name, g.Name), g.KeyDefinitions, item)
	if err != nil {
		return nil, false, validationError("one or more parameter values were invalid: index %s: %v", g.Name, err)
	}
	k = append(k, keySeparator)
	k, err = appendKey(k, sc.def.KeyDefinitions, item)
	if err != nil {
		return nil, false, validationError("one or more parameter values were invalid: %v", err)
	}
	return k, true, nil
}

func (sc *schema) isKeyAttribute(name string) bool {
	k := sc.def.KeyDefinitions
	return name == k.PartitionKey.Name || name == k.SortKey.Name
}

// expiresAt reads the TTL attribute as epoch seconds.
func (sc *schema) expiresAt(item map[string]types.AttributeValue) uint64 {
	if sc.def.TimeToLiveKey == "" {
		return 0
	}
	n, ok := item[sc.def.TimeToLiveKey].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	secs, err := strconv.ParseFloat(n.Value, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return uint64(secs)
}

// load reads the item stored under key. A missing item is nil.
func (s *Store) load(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	entry, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	val, err := entry.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read item: %w", err)
	}
	return decodeItem(val)
}

// store writes item under key and moves its index entries from old.
func (s *Store) store(txn *badger.Txn, sc *schema, key []byte, old, item map[string]types.AttributeValue) error {
	if err := s.unindex(txn, sc, old); err != nil {
		return err
	}
	val, err := encodeItem(item)
	if err != nil {
		return err
	}
	expires := sc.expiresAt(item)
	set := func(k []byte) error {
		e := badger.NewEntry(k, val)
		e.ExpiresAt = expires
		return txn.SetEntry(e)
	}
	if err := set(key); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	for _, g := range sc.def.GSIs {
		ik, ok, err := sc.indexKey(g, item)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := set(ik); err != nil {
			return fmt.Errorf("put index entry: %w", err)
		}
	}
	return nil
}

func (s *Store) remove(txn *badger.Txn, sc *schema, key []byte, old map[string]types.AttributeValue) error {
	if old == nil {
		return nil
	}
	if err := s.unindex(txn, sc, old); err != nil {
		return err
	}
	if err := txn.Delete(key); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *Store) unindex(txn *badger.Txn, sc *schema, old map[string]types.AttributeValue) error {
	if old == nil {
		return nil
	}
	for _, g := range sc.def.GSIs {
		ik, ok, err := sc.indexKey(g, old)
		if err != nil || !ok {
			continue
		}
		if err := txn.Delete(ik); err != nil {
			return fmt.Errorf("delete index entry: %w", err)
		}
	}
	return nil
}

// update runs fn in a serialized read-write transaction.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(fn)
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// seenToken reports whether token was committed within tokenTTL.
func (s *Store) seenToken(token string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, at := range s.tokens {
		if now.Sub(at) > tokenTTL {
			delete(s.tokens, t)
		}
	}
	_, ok := s.tokens[token]
	return ok
}

func (s *Store) rememberToken(token string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = now
}

// expressions parses the expressions of one request against a shared
// placeholder environment and rejects unused placeholders.
type expressions struct {
	env        *ddbeval.Env
	condition  *ddbeval.Condition
	filter     *ddbeval.Condition
	keyCond    *ddbeval.Condition
	update     *ddbeval.Update
	projection *ddbeval.Projection
}

type exprInput struct {
	Names      map[string]string
	Values     map[string]types.AttributeValue
	Condition  *string
	Filter     *string
	KeyCond    *string
	Update     *string
	Projection *string
}

func parseExpressions(in exprInput) (*expressions, error) {
	x := &expressions{env: ddbeval.NewEnv(in.Names, in.Values)}
	var err error
	parseCond := func(kind string, src *string) *ddbeval.Condition {
		if err != nil || src == nil {
			return nil
		}
		var c *ddbeval.Condition
		if c, err = ddbeval.ParseCondition(*src, x.env); err != nil {
			err = validationError("invalid %s: %v", kind, err)
		}
		return c
	}
	x.condition = parseCond("ConditionExpression", in.Condition)
	x.filter = parseCond("FilterExpression", in.Filter)
	x.keyCond = parseCond("KeyConditionExpression", in.KeyCond)
	if err != nil {
		return nil, err
	}
	if in.Update != nil {
		if x.update, err = ddbeval.ParseUpdate(*in.Update, x.env); err != nil {
			return nil, validationError("invalid UpdateExpression: %v", err)
		}
	}
	if in.Projection != nil {
		if x.projection, err = ddbeval.ParseProjection(*in.Projection, x.env); err != nil {
			return nil, validationError("invalid ProjectionExpression: %v", err)
		}
	}
	if err := x.env.Unused(); err != nil {
		return nil, validationError("%v", err)
	}
	return x, nil
}

// check evaluates the condition expression against the current item.
func (x *expressions) check(item map[string]types.AttributeValue) (bool, error) {
	ok, err := x.condition.Match(item)
	if err != nil {
		return false, validationError("invalid ConditionExpression: %v", err)
	}
	return ok, nil
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
