package cache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"
)

// Connector caches the record reads of a connector.Connector. Writes
// invalidate the entries of the models they may affect. Reads inside a
// transaction bypass the cache and the entries touched by the transaction
// are invalidated on commit.
type Connector struct {
	connector.Connector
	cache  qengine.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a caching connector.
type Option func(*Connector)

// WithTTL sets the lifetime of cached reads. Zero keeps them until they are
// invalidated or evicted.
func WithTTL(ttl time.Duration) Option {
	return func(c *Connector) { c.ttl = ttl }
}

// WithLogger sets the logger reporting cache failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// NewConnector wraps conn with a read cache.
func NewConnector(conn connector.Connector, cache qengine.Cache, opts ...Option) *Connector {
	c := &Connector{Connector: conn, cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type (
	cachedRecord struct {
		Found  bool     `msgpack:"f"`
		Fields []string `msgpack:"c"`
		Values []any    `msgpack:"v"`
	}
	cachedRecords struct {
		Fields []string `msgpack:"c"`
		Rows   [][]any  `msgpack:"r"`
		Keys   [][]any  `msgpack:"k,omitempty"`
	}
)

// GetSingleRecord implements connector.ReadOperations.
func (c *Connector) GetSingleRecord(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.SingleRecord, error) {
	key := readKey(m, "one", args, sel).String()
	var cached cachedRecord
	if c.load(ctx, key, &cached) {
		if !cached.Found {
			return nil, nil
		}
		recs, err := decodeRecords(m, cachedRecords{Fields: cached.Fields, Rows: [][]any{cached.Values}})
		if err == nil && recs.Len() == 1 {
			return recs.Record(0), nil
		}
	}
	rec, err := c.Connector.GetSingleRecord(ctx, m, args, sel)
	if err != nil {
		return nil, err
	}
	cached = cachedRecord{Found: rec != nil}
	if rec != nil {
		cached.Fields, cached.Values = rec.Fields.Names(), rec.Values
	}
	c.store(ctx, key, cached)
	return rec, nil
}

// GetManyRecords implements connector.ReadOperations.
func (c *Connector) GetManyRecords(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, error) {
	key := readKey(m, "many", args, sel).String()
	var cached cachedRecords
	if c.load(ctx, key, &cached) {
		if recs, err := decodeRecords(m, cached); err == nil {
			return recs, nil
		}
	}
	recs, err := c.Connector.GetManyRecords(ctx, m, args, sel)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, cachedRecords{Fields: recs.Fields.Names(), Rows: recs.Rows})
	return recs, nil
}

// GetRelatedRecords implements connector.ReadOperations.
func (c *Connector) GetRelatedRecords(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error) {
	k := readKey(rf.Related, "related:"+rf.String(), args, sel)
	ps := make([]string, len(parents))
	for i, p := range parents {
		ps[i] = p.Key()
	}
	k.Filter += "|" + strings.Join(ps, "|")
	key := k.String()
	var cached cachedRecords
	if c.load(ctx, key, &cached) {
		if recs, keys, err := decodeRelated(rf, cached); err == nil {
			return recs, keys, nil
		}
	}
	recs, keys, err := c.Connector.GetRelatedRecords(ctx, rf, parents, args, sel)
	if err != nil {
		return nil, nil, err
	}
	cached = cachedRecords{Fields: recs.Fields.Names(), Rows: recs.Rows, Keys: make([][]any, len(keys))}
	for i, k := range keys {
		cached.Keys[i] = k.Values()
	}
	c.store(ctx, key, cached)
	return recs, keys, nil
}

// Aggregate implements connector.ReadOperations.
func (c *Connector) Aggregate(ctx context.Context, m *schema.Model, args query.QueryArguments, sels []query.AggregationSelection) ([]query.AggregationValue, error) {
	names := make([]string, len(sels))
	for i, s := range sels {
		names[i] = s.Kind.String() + "." + s.Name()
	}
	key := readKey(m, "aggregate", args, nil)
	key.Selection = names
	var cached []any
	if c.load(ctx, key.String(), &cached) && len(cached) == len(sels) {
		if values, err := decodeAggregates(sels, cached); err == nil {
			return values, nil
		}
	}
	values, err := c.Connector.Aggregate(ctx, m, args, sels)
	if err != nil {
		return nil, err
	}
	cached = make([]any, len(values))
	for i, v := range values {
		cached[i] = v.Value
	}
	c.store(ctx, key.String(), cached)
	return values, nil
}

// CreateRecord implements connector.WriteOperations.
func (c *Connector) CreateRecord(ctx context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	defer c.invalidate(ctx, m)
	return c.Connector.CreateRecord(ctx, m, args, sel)
}

// CreateRecords implements connector.WriteOperations.
func (c *Connector) CreateRecords(ctx context.Context, m *schema.Model, args []*query.WriteArgs, skipDuplicates bool) (int, error) {
	defer c.invalidate(ctx, m)
	return c.Connector.CreateRecords(ctx, m, args, skipDuplicates)
}

// UpdateRecord implements connector.WriteOperations.
func (c *Connector) UpdateRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	defer c.invalidate(ctx, reachable(m)...)
	return c.Connector.UpdateRecord(ctx, m, rf, args, sel)
}

// UpdateRecords implements connector.WriteOperations.
func (c *Connector) UpdateRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs) (int, error) {
	defer c.invalidate(ctx, reachable(m)...)
	return c.Connector.UpdateRecords(ctx, m, rf, args)
}

// DeleteRecord implements connector.WriteOperations.
func (c *Connector) DeleteRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, sel query.FieldSelection) (*query.SingleRecord, error) {
	defer c.invalidate(ctx, reachable(m)...)
	return c.Connector.DeleteRecord(ctx, m, rf, sel)
}

// DeleteRecords implements connector.WriteOperations.
func (c *Connector) DeleteRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter) (int, error) {
	defer c.invalidate(ctx, reachable(m)...)
	return c.Connector.DeleteRecords(ctx, m, rf)
}

// ConnectRecords implements connector.WriteOperations.
func (c *Connector) ConnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	defer c.invalidate(ctx, rf.Model, rf.Related)
	return c.Connector.ConnectRecords(ctx, rf, parent, children)
}

// DisconnectRecords implements connector.WriteOperations.
func (c *Connector) DisconnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	defer c.invalidate(ctx, rf.Model, rf.Related)
	return c.Connector.DisconnectRecords(ctx, rf, parent, children)
}

// NativeUpsert implements connector.WriteOperations.
func (c *Connector) NativeUpsert(ctx context.Context, u *query.NativeUpsert) (*query.SingleRecord, error) {
	defer c.invalidate(ctx, reachable(u.Model)...)
	return c.Connector.NativeUpsert(ctx, u)
}

// ExecuteRaw implements connector.WriteOperations. Raw statements may write
// anything, so the whole cache is cleared.
func (c *Connector) ExecuteRaw(ctx context.Context, stmt string, params []any) (int, error) {
	defer func() {
		if err := c.cache.Clear(ctx); err != nil {
			c.logger.WarnContext(ctx, "cache clear failed", "error", err)
		}
	}()
	return c.Connector.ExecuteRaw(ctx, stmt, params)
}

// Begin implements connector.Connector.
func (c *Connector) Begin(ctx context.Context) (connector.Transaction, error) {
	tx, err := c.Connector.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{Transaction: tx, conn: c, ctx: context.WithoutCancel(ctx), touched: make(map[string]struct{})}, nil
}

func (c *Connector) load(ctx context.Context, key string, v any) bool {
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		return false
	}
	if b == nil {
		return false
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		c.logger.WarnContext(ctx, "cache decode failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Connector) store(ctx context.Context, key string, v any) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

func (c *Connector) invalidate(ctx context.Context, models ...*schema.Model) {
	for _, m := range models {
		c.invalidatePrefix(ctx, qengine.CachePrefix(m.Name))
	}
}

func (c *Connector) invalidatePrefix(ctx context.Context, prefix string) {
	if err := c.cache.DeletePrefix(ctx, prefix); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed", "prefix", prefix, "error", err)
	}
}

// Tx is a transaction of a caching connector. It reads and writes through
// the underlying transaction.
type Tx struct {
	connector.Transaction
	conn *Connector
	ctx  context.Context

	mu      sync.Mutex
	touched map[string]struct{}
	raw     bool
}

// CreateRecord implements connector.WriteOperations.
func (tx *Tx) CreateRecord(ctx context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	tx.touch(m)
	return tx.Transaction.CreateRecord(ctx, m, args, sel)
}

// CreateRecords implements connector.WriteOperations.
func (tx *Tx) CreateRecords(ctx context.Context, m *schema.Model, args []*query.WriteArgs, skipDuplicates bool) (int, error) {
	tx.touch(m)
	return tx.Transaction.CreateRecords(ctx, m, args, skipDuplicates)
}

// UpdateRecord implements connector.WriteOperations.
func (tx *Tx) UpdateRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	tx.touch(reachable(m)...)
	return tx.Transaction.UpdateRecord(ctx, m, rf, args, sel)
}

// UpdateRecords implements connector.WriteOperations.
func (tx *Tx) UpdateRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs) (int, error) {
	tx.touch(reachable(m)...)
	return tx.Transaction.UpdateRecords(ctx, m, rf, args)
}

// DeleteRecord implements connector.WriteOperations.
func (tx *Tx) DeleteRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, sel query.FieldSelection) (*query.SingleRecord, error) {
	tx.touch(reachable(m)...)
	return tx.Transaction.DeleteRecord(ctx, m, rf, sel)
}

// DeleteRecords implements connector.WriteOperations.
func (tx *Tx) DeleteRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter) (int, error) {
	tx.touch(reachable(m)...)
	return tx.Transaction.DeleteRecords(ctx, m, rf)
}

// ConnectRecords implements connector.WriteOperations.
func (tx *Tx) ConnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	tx.touch(rf.Model, rf.Related)
	return tx.Transaction.ConnectRecords(ctx, rf, parent, children)
}

// DisconnectRecords implements connector.WriteOperations.
func (tx *Tx) DisconnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	tx.touch(rf.Model, rf.Related)
	return tx.Transaction.DisconnectRecords(ctx, rf, parent, children)
}

// NativeUpsert implements connector.WriteOperations.
func (tx *Tx) NativeUpsert(ctx context.Context, u *query.NativeUpsert) (*query.SingleRecord, error) {
	tx.touch(reachable(u.Model)...)
	return tx.Transaction.NativeUpsert(ctx, u)
}

// ExecuteRaw implements connector.WriteOperations.
func (tx *Tx) ExecuteRaw(ctx context.Context, stmt string, params []any) (int, error) {
	tx.mu.Lock()
	tx.raw = true
	tx.mu.Unlock()
	return tx.Transaction.ExecuteRaw(ctx, stmt, params)
}

// Commit commits the transaction and invalidates the entries it touched.
func (tx *Tx) Commit() error {
	if err := tx.Transaction.Commit(); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.raw {
		if err := tx.conn.cache.Clear(tx.ctx); err != nil {
			tx.conn.logger.WarnContext(tx.ctx, "cache clear failed", "error", err)
		}
		return nil
	}
	for prefix := range tx.touched {
		tx.conn.invalidatePrefix(tx.ctx, prefix)
	}
	return nil
}

func (tx *Tx) touch(models ...*schema.Model) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for _, m := range models {
		tx.touched[qengine.CachePrefix(m.Name)] = struct{}{}
	}
}

// reachable returns m and the models reachable from it through relations.
// Referential actions may propagate an update or a delete to any of them.
func reachable(m *schema.Model) []*schema.Model {
	seen := map[*schema.Model]bool{m: true}
	models := []*schema.Model{m}
	for i := 0; i < len(models); i++ {
		for _, rf := range models[i].Relations() {
			if !seen[rf.Related] {
				seen[rf.Related] = true
				models = append(models, rf.Related)
			}
		}
	}
	return models
}

func readKey(m *schema.Model, op string, args query.QueryArguments, sel query.FieldSelection) qengine.CacheKey {
	k := qengine.CacheKey{
		Model:     m.Name,
		Operation: op,
		Filter:    "TRUE",
		Selection: sel.Names(),
		Distinct:  args.Distinct.Names(),
		Take:      args.Take,
		Skip:      args.Skip,
	}
	if args.Filter != nil {
		k.Filter = args.Filter.String()
	}
	order := make([]string, len(args.OrderBy))
	for i, o := range args.OrderBy {
		order[i] = o.Field.Name
		if o.Desc {
			order[i] += " desc"
		}
	}
	k.OrderBy = strings.Join(order, ",")
	return k
}

func decodeRecords(m *schema.Model, cached cachedRecords) (*query.ManyRecords, error) {
	fields := make(query.FieldSelection, len(cached.Fields))
	for i, name := range cached.Fields {
		f, ok := m.Field(name)
		if !ok {
			return nil, fmt.Errorf("cache: unknown field %s.%s", m.Name, name)
		}
		fields[i] = f
	}
	for _, row := range cached.Rows {
		if len(row) != len(fields) {
			return nil, fmt.Errorf("cache: row of %s has %d values, want %d", m.Name, len(row), len(fields))
		}
	}
	recs := &query.ManyRecords{Fields: fields, Rows: cached.Rows}
	if err := recs.Normalize(); err != nil {
		return nil, err
	}
	return recs, nil
}

func decodeRelated(rf *schema.RelationField, cached cachedRecords) (*query.ManyRecords, []query.SelectionResult, error) {
	recs, err := decodeRecords(rf.Related, cached)
	if err != nil {
		return nil, nil, err
	}
	linking := rf.LinkingFields()
	keys := make([]query.SelectionResult, len(cached.Keys))
	for i, values := range cached.Keys {
		if len(values) != len(linking) {
			return nil, nil, fmt.Errorf("cache: parent key of %s has %d values", rf, len(values))
		}
		if keys[i], err = query.NewSelectionResult(linking, values).Rebind(linking); err != nil {
			return nil, nil, err
		}
	}
	return recs, keys, nil
}

func decodeAggregates(sels []query.AggregationSelection, cached []any) ([]query.AggregationValue, error) {
	values := make([]query.AggregationValue, len(sels))
	for i, s := range sels {
		t := field.TypeInt
		switch {
		case s.Kind == query.AggAvg:
			t = field.TypeFloat
		case s.Kind != query.AggCount:
			t = s.Field.Type
		}
		v, err := t.Normalize(cached[i])
		if err != nil {
			return nil, err
		}
		values[i] = query.AggregationValue{Selection: s, Value: v}
	}
	return values, nil
}

var (
	_ connector.Connector   = (*Connector)(nil)
	_ connector.Transaction = (*Tx)(nil)
)
