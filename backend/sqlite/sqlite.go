// Package sqlite is a backend that keeps every table in a SQLite database.
//
// Each declared table maps to one SQLite table holding the row as a JSON
// document keyed by its ID. Rows are coerced against the model again when
// they are read, so the stored text round-trips to the same Go values the
// memory backend holds. Numbers are decoded from their JSON text, so int64
// values keep every digit.
//
// Queries run through the same engine as the memory backend. Mutations run
// inside one SQL transaction and read the table by key: an upsert without a
// where costs one primary key lookup plus one indexed MAX(seq). Selects and
// mutations with a where read the whole table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/internal/engine"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Name is the configuration name of this backend.
const Name = "sqlite"

const memoryPath = ":memory:"

// Backend implements backend.Backend on SQLite.
type Backend struct {
	path       string
	persistent bool

	mu     sync.RWMutex
	db     *sql.DB
	models map[string]*schema.Model
	locks  map[string]*sync.Mutex
}

// New creates a SQLite backend. When persistent is false the database lives
// in memory and path is ignored.
func New(path string, persistent bool) *Backend {
	return &Backend{
		path:       path,
		persistent: persistent,
		models:     make(map[string]*schema.Model),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Path returns the database file, or ":memory:".
func (b *Backend) Path() string {
	if !b.persistent || b.path == "" {
		return memoryPath
	}
	return b.path
}

// Connect opens the database and creates a table per model. The "path" and
// "persistent" keys of cfg.Config override the constructor arguments.
func (b *Backend) Connect(ctx context.Context, cfg backend.ConnectConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return errors.ErrAlreadyConnected
	}
	if v, ok := cfg.Config["path"]; ok {
		b.path = cast.ToString(v)
	}
	if v, ok := cfg.Config["persistent"]; ok {
		b.persistent = cast.ToBool(v)
	}

	dsn := memoryPath
	if p := b.Path(); p != memoryPath {
		dsn = "file:" + p + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return errors.Backend(err, "open sqlite")
	}
	// one connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for name, m := range cfg.Models {
		for _, stmt := range []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, seq INTEGER NOT NULL, data TEXT NOT NULL)`, quote(name)),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (seq)`, quote(name+"_seq"), quote(name)),
		} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				db.Close()
				return errors.Backend(err, "create table "+name)
			}
		}
		b.models[name] = m
		b.locks[name] = &sync.Mutex{}
	}
	b.db = db
	logger.Info("sqlite backend connected", "path", b.Path(), "tables", len(cfg.Models))
	return nil
}

func (b *Backend) handle() (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, errors.ErrNotConnected
	}
	return b.db, nil
}

// Exec runs one query.
func (b *Backend) Exec(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	plan, err := engine.Compile(req)
	if err != nil {
		return nil, err
	}
	db, err := b.handle()
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	lock, ok := b.locks[req.Table]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.Schema("unknown table %q", req.Table)
	}

	if !req.Query.Action.Mutates() {
		var snap, js *engine.Snapshot
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			snap, err = load(gctx, db, plan.Model)
			return err
		})
		if plan.JoinModel != nil {
			g.Go(func() error {
				var err error
				js, err = load(gctx, db, plan.JoinModel)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		var joinRows []schema.Row
		if js != nil {
			joinRows = js.Rows()
		}
		resp, _, err := plan.Run(snap, joinRows)
		return resp, err
	}

	lock.Lock()
	defer lock.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Backend(err, "begin")
	}
	defer tx.Rollback()

	resp, cs, err := plan.Run(&txStore{ctx: ctx, tx: tx, model: plan.Model}, nil)
	if err != nil {
		return nil, err
	}
	if err := write(ctx, tx, req.Table, cs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Backend(err, "commit")
	}
	return resp, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// txStore reads one table inside a write transaction.
type txStore struct {
	ctx   context.Context
	tx    *sql.Tx
	model *schema.Model
}

func (s *txStore) Lookup(id any) (schema.Row, bool, error) {
	key, err := json.Marshal(id)
	if err != nil {
		return nil, false, errors.Backend(err, "encode key")
	}
	var data string
	err = s.tx.QueryRowContext(s.ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, quote(s.model.Table)), string(key)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Backend(err, "lookup in "+s.model.Table)
	}
	row, err := decodeRow(s.model, data)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (s *txStore) NextKey() (int64, error) {
	var top sql.NullInt64
	if err := s.tx.QueryRowContext(s.ctx, fmt.Sprintf(`SELECT MAX(seq) FROM %s`, quote(s.model.Table))).Scan(&top); err != nil {
		return 0, errors.Backend(err, "next key of "+s.model.Table)
	}
	if !top.Valid || top.Int64 < 0 {
		return 1, nil
	}
	return top.Int64 + 1, nil
}

func (s *txStore) Scan() ([]engine.Record, error) {
	snap, err := load(s.ctx, s.tx, s.model)
	if err != nil {
		return nil, err
	}
	return snap.Records(), nil
}

func load(ctx context.Context, q querier, m *schema.Model) (*engine.Snapshot, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT seq, data FROM %s`, quote(m.Table)))
	if err != nil {
		return nil, errors.Backend(err, "load "+m.Table)
	}
	defer rows.Close()

	pk := m.PKKey()
	var records []engine.Record
	for rows.Next() {
		var seq int64
		var data string
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, errors.Backend(err, "scan "+m.Table)
		}
		row, err := decodeRow(m, data)
		if err != nil {
			return nil, err
		}
		var id any = seq
		if pk != "" {
			id = row[pk]
		}
		records = append(records, engine.Record{ID: id, Row: row})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(err, "load "+m.Table)
	}
	return engine.NewSnapshot(records), nil
}

// decodeRow turns stored JSON back into a coerced row.
func decodeRow(m *schema.Model, data string) (schema.Row, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Backend(err, "decode "+m.Table)
	}
	for k, v := range raw {
		raw[k] = plainNumbers(v)
	}
	row, _, err := m.CoerceRow(raw, true)
	if err != nil {
		return nil, errors.Backend(err, "decode "+m.Table)
	}
	return row, nil
}

// plainNumbers replaces json.Number values, nested ones included, with int64
// or float64.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		return schema.NumberValue(x)
	case []any:
		for i, e := range x {
			x[i] = plainNumbers(e)
		}
	case map[string]any:
		for k, e := range x {
			x[k] = plainNumbers(e)
		}
	}
	return v
}

func write(ctx context.Context, tx *sql.Tx, table string, cs *engine.ChangeSet) error {
	for _, id := range cs.Deletes {
		key, err := json.Marshal(id)
		if err != nil {
			return errors.Backend(err, "encode key")
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quote(table)), string(key)); err != nil {
			return errors.Backend(err, "delete from "+table)
		}
	}
	for _, r := range cs.Puts {
		key, err := json.Marshal(r.ID)
		if err != nil {
			return errors.Backend(err, "encode key")
		}
		data, err := json.Marshal(r.Row)
		if err != nil {
			return errors.Backend(err, "encode row")
		}
		seq, _ := r.ID.(int64)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, seq, data) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
			quote(table)), string(key), seq, string(data)); err != nil {
			return errors.Backend(err, "write to "+table)
		}
	}
	return nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Close closes the database.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Extend exposes backend operations:
//
//	vacuum         compact the database file
//	path           database file or ":memory:"
//	count <table>  number of rows in table
func (b *Backend) Extend(ctx context.Context, op string, args ...any) (any, error) {
	switch op {
	case "path":
		return b.Path(), nil
	case "vacuum":
		db, err := b.handle()
		if err != nil {
			return nil, err
		}
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return nil, errors.Backend(err, "vacuum")
		}
		return nil, nil
	case "count":
		if len(args) != 1 {
			return nil, errors.Compile("count needs a table name")
		}
		name := cast.ToString(args[0])
		b.mu.RLock()
		_, ok := b.models[name]
		b.mu.RUnlock()
		if !ok {
			return nil, errors.Schema("unknown table %q", name)
		}
		db, err := b.handle()
		if err != nil {
			return nil, err
		}
		var n int
		if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quote(name))).Scan(&n); err != nil {
			return nil, errors.Backend(err, "count "+name)
		}
		return n, nil
	}
	return nil, errors.Compile("sqlite backend has no operation %q", op)
}
