package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoSeqField     = "rowstore_seq"
	mongoUniquePrefix = "uniq_"
)

type MongoDriver struct {
	a *MongoAdapter
}

func newMongoDriver(adapter Adapter) (Driver, error) {
	a, ok := adapter.(*MongoAdapter)
	if !ok {
		return nil, fmt.Errorf("mongo driver expects *MongoAdapter, got %T", adapter)
	}
	return &MongoDriver{a: a}, nil
}

func (d *MongoDriver) Dialect() string { return "mongodb" }

func (d *MongoDriver) Migrate(ctx context.Context) error {
	if d.a == nil || d.a.DB == nil {
		return ErrNoConnection
	}
	return d.migrateMongo(ctx)
}

type mongoCatalogDoc struct {
	Name        string    `bson:"name"`
	Columns     []Column  `bson:"columns"`
	DateCreated time.Time `bson:"date_created"`
}

func (d *MongoDriver) CreateTable(ctx context.Context, def TableDef) (bool, error) {
	catalog := d.db().Collection(catalogTable)
	_, err := catalog.InsertOne(ctx, mongoCatalogDoc{
		Name:        def.Name,
		Columns:     def.Columns,
		DateCreated: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record table %s: %w", def.Name, err)
	}

	indexes := []mongo.IndexModel{{
		Keys: bson.D{{Key: mongoSeqField, Value: 1}},
	}}
	for _, c := range def.Columns {
		if !c.Distinct() {
			continue
		}
		// Sparse so that rows storing NULL (an absent field) do not collide.
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: c.Name, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName(mongoUniquePrefix + c.Name),
		})
	}
	if _, err := d.db().Collection(def.Name).Indexes().CreateMany(ctx, indexes); err != nil {
		_, _ = catalog.DeleteOne(ctx, bson.M{"name": def.Name})
		return false, fmt.Errorf("create indexes for %s: %w", def.Name, err)
	}
	return true, nil
}

func (d *MongoDriver) LookupTable(ctx context.Context, name string) (*TableDef, error) {
	var doc mongoCatalogDoc
	err := d.db().Collection(catalogTable).FindOne(ctx, bson.M{"name": name},
		options.FindOne().SetCollation(nameCollation)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return &TableDef{Name: doc.Name, Columns: doc.Columns}, nil
}

func (d *MongoDriver) ListTables(ctx context.Context) ([]string, error) {
	cur, err := d.db().Collection(catalogTable).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetProjection(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, doc.Name)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (d *MongoDriver) Insert(ctx context.Context, table TableDef, values []any) error {
	_, err := d.insert(ctx, table, values)
	return err
}

func (d *MongoDriver) insert(ctx context.Context, table TableDef, values []any) (any, error) {
	if len(values) != len(table.Columns) {
		return nil, fmt.Errorf("insert into %s: %d values for %d columns", table.Name, len(values), len(table.Columns))
	}

	seq, err := nextSeq(ctx, d.db(), table.Name)
	if err != nil {
		return nil, err
	}

	doc := bson.D{{Key: mongoSeqField, Value: seq}}
	for i, c := range table.Columns {
		if values[i] == nil {
			continue
		}
		doc = append(doc, bson.E{Key: c.Name, Value: values[i]})
	}

	res, err := d.db().Collection(table.Name).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &ConstraintViolation{Table: table.Name, Column: parseMongoDuplicate(err.Error()), Err: err}
		}
		return nil, fmt.Errorf("insert into %s: %w", table.Name, err)
	}
	return res.InsertedID, nil
}

// parseMongoDuplicate reads the index name out of
// "E11000 duplicate key error collection: db.employees index: uniq_id dup key: { id: 2 }".
func parseMongoDuplicate(msg string) string {
	const marker = "index: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimPrefix(rest, mongoUniquePrefix)
}

// Atomic undoes the inserts made through w when fn fails. Standalone servers
// have no multi-document transactions, so this compensates rather than
// isolates: concurrent readers may briefly observe the batch.
func (d *MongoDriver) Atomic(ctx context.Context, fn func(w Writer) error) error {
	w := &mongoBatchWriter{d: d, inserted: make(map[string][]any)}
	err := fn(w)
	if err == nil {
		return nil
	}
	for table, ids := range w.inserted {
		if _, undoErr := d.db().Collection(table).DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}}); undoErr != nil {
			return errors.Join(err, fmt.Errorf("undo batch in %s: %w", table, undoErr))
		}
	}
	return err
}

type mongoBatchWriter struct {
	d        *MongoDriver
	inserted map[string][]any
}

func (w *mongoBatchWriter) Insert(ctx context.Context, table TableDef, values []any) error {
	id, err := w.d.insert(ctx, table, values)
	if err != nil {
		return err
	}
	w.inserted[table.Name] = append(w.inserted[table.Name], id)
	return nil
}

func (d *MongoDriver) Scan(ctx context.Context, table TableDef, filter *Filter) (Cursor, error) {
	query := bson.M{}
	if filter != nil {
		query[filter.Column] = filter.Value
	}

	projection := bson.M{"_id": 0}
	for _, c := range table.Columns {
		projection[c.Name] = 1
	}

	cur, err := d.db().Collection(table.Name).Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: mongoSeqField, Value: 1}}).SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table.Name, err)
	}
	return &mongoCursor{ctx: ctx, cur: cur, columns: table.ColumnNames()}, nil
}

type mongoCursor struct {
	ctx     context.Context
	cur     *mongo.Cursor
	columns []string
	closed  bool
}

func (c *mongoCursor) Next() bool {
	if c.closed {
		return false
	}
	return c.cur.Next(c.ctx)
}

func (c *mongoCursor) Values() ([]any, error) {
	var doc bson.M
	if err := c.cur.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	out := make([]any, len(c.columns))
	for i, name := range c.columns {
		out[i] = normalizeBSON(doc[name])
	}
	return out, nil
}

func (c *mongoCursor) Err() error { return c.cur.Err() }

func (c *mongoCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.cur.Close(context.WithoutCancel(c.ctx))
}

func normalizeBSON(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case primitive.Null, primitive.Undefined:
		return nil
	default:
		return normalize(v)
	}
}

func (d *MongoDriver) db() *mongo.Database { return d.a.DB }
