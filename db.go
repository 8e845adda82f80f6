// Package buntable is an embeddable, in-process table engine.
//
// Tables are declared with a typed model, then queried through builder
// chains that run on a pluggable backend:
//
//	db, _ := buntable.New()
//	users := db.Table("users")
//	users.Model(
//		buntable.Column{Key: "id", Type: schema.TypeInt, Props: []string{schema.PropPK}},
//		buntable.Column{Key: "name", Type: schema.TypeString},
//	)
//	db.Connect(ctx)
//	users.Upsert(buntable.Row{"name": "ada"}).Exec(ctx)
//	rows, _ := users.Select().Where(query.Cond("name", "LIKE", "a%")).Exec(ctx)
//
// Every exec runs the same fixed pipeline: join, where, orderBy,
// offset/limit, filters. Listeners registered with Table.On are notified
// after each exec, before its result is released to the caller.
package buntable

import (
	"context"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/backend/memory"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/filter"
	"github.com/kartikbazzad/bunbase/buntable/internal/broker"
	"github.com/kartikbazzad/bunbase/buntable/internal/dispatch"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Row is one table row.
type Row = schema.Row

// Column declares one model column.
type Column = schema.Column

// FilterFunc is a user filter; see DB.AddFilter.
type FilterFunc = filter.Func

// Options configures a database.
type Options struct {
	Backend       backend.Backend // defaults to the memory backend
	Workers       int             // exec pool size
	ExprCacheSize int             // compiled expression cache entries
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		Workers:       1024,
		ExprCacheSize: 256,
	}
}

// Option mutates Options.
type Option func(*Options)

// WithBackend selects the storage backend.
func WithBackend(b backend.Backend) Option {
	return func(o *Options) { o.Backend = b }
}

// WithWorkers sets the exec pool size.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithExprCacheSize bounds the compiled expression cache.
func WithExprCacheSize(n int) Option {
	return func(o *Options) { o.ExprCacheSize = n }
}

type tableDecl struct {
	model     *schema.Model
	actions   map[string]*Procedure
	views     map[string]*Procedure
	rowFilter func(Row) Row
	always    []query.FilterCall
}

// DB is a database: the declared tables, the filter registry, the event bus
// and the active backend.
type DB struct {
	mu        sync.RWMutex
	backend   backend.Backend
	filters   *filter.Registry
	dispatch  *dispatch.Dispatcher
	events    *broker.Broker
	tables    map[string]*tableDecl
	config    map[string]any
	connected bool
	closed    bool
}

// New creates a database. Tables are declared on it and then activated
// together by Connect.
func New(opts ...Option) (*DB, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Backend == nil {
		o.Backend = memory.New()
	}
	filters, err := filter.NewRegistry(o.ExprCacheSize)
	if err != nil {
		return nil, err
	}
	d, err := dispatch.New(o.Workers)
	if err != nil {
		return nil, err
	}
	db := &DB{
		backend:  o.Backend,
		filters:  filters,
		dispatch: d,
		tables:   make(map[string]*tableDecl),
		config:   make(map[string]any),
	}
	db.events = broker.New(db.listenerPanic)
	return db, nil
}

// UUID returns a new random (version 4) identifier.
func UUID() string {
	return schema.UUID()
}

// Table returns the handle of the named table. Handles are cheap; the
// table only has to be declared (Model) before Connect.
func (db *DB) Table(name string) *Table {
	return &Table{db: db, name: name}
}

// Tables lists the tables with a declared model, sorted.
func (db *DB) Tables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.tables))
	for name, d := range db.tables {
		if d.model != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Config merges settings into the configuration handed to the backend at
// connect time.
func (db *DB) Config(settings map[string]any) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.connected {
		return errors.ErrAlreadyConnected
	}
	for k, v := range settings {
		db.config[k] = v
	}
	return nil
}

// AddFilter registers a database-wide filter usable by Query.Filter and
// Table.AlwaysApplyFilter.
func (db *DB) AddFilter(name string, fn FilterFunc) error {
	db.mu.RLock()
	connected := db.connected
	db.mu.RUnlock()
	if connected {
		return errors.ErrAlreadyConnected
	}
	return db.filters.Register(name, fn)
}

// decl returns the declaration of table, creating it. Caller holds mu.
func (db *DB) decl(table string) *tableDecl {
	d, ok := db.tables[table]
	if !ok {
		d = &tableDecl{
			actions: make(map[string]*Procedure),
			views:   make(map[string]*Procedure),
		}
		db.tables[table] = d
	}
	return d
}

// declare runs fn on the declaration of table unless the database is
// already connected.
func (db *DB) declare(table string, fn func(d *tableDecl) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.connected {
		return errors.ErrAlreadyConnected
	}
	if table == "" {
		return errors.Schema("table name is required")
	}
	return fn(db.decl(table))
}

// Connect activates every declared table on the backend. After Connect no
// further declarations are accepted.
func (db *DB) Connect(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errors.ErrClosed
	}
	if db.connected {
		return errors.ErrAlreadyConnected
	}

	cfg := backend.ConnectConfig{
		Models:  make(map[string]*schema.Model),
		Actions: make(map[string][]string),
		Views:   make(map[string][]string),
		Filters: db.filters,
		Config:  make(map[string]any, len(db.config)),
	}
	for k, v := range db.config {
		cfg.Config[k] = v
	}
	for name, d := range db.tables {
		if d.model == nil {
			return errors.Schema("table %q has no model", name)
		}
		if err := db.filters.Validate(d.always); err != nil {
			return err
		}
		cfg.Models[name] = d.model.Clone()
		cfg.Actions[name] = procNames(d.actions)
		cfg.Views[name] = procNames(d.views)
	}
	if err := db.backend.Connect(ctx, cfg); err != nil {
		return errors.Backend(err, "connect")
	}
	db.connected = true
	logger.Info("database connected", "tables", len(cfg.Models))
	return nil
}

// Close stops the exec pool and closes the backend.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if err := db.dispatch.Close(); err != nil {
		logger.Warn("exec pool did not drain", "err", err)
	}
	return db.backend.Close()
}

// Extend calls a custom backend operation.
func (db *DB) Extend(ctx context.Context, op string, args ...any) (any, error) {
	ext, ok := db.backend.(backend.Extender)
	if !ok {
		return nil, errors.New(errors.KindBackend, "backend has no extensions", nil)
	}
	return ext.Extend(ctx, op, args...)
}

// state returns the declaration of table for an exec.
func (db *DB) state(table string) (*tableDecl, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, errors.ErrClosed
	}
	if !db.connected {
		return nil, errors.ErrNotConnected
	}
	d, ok := db.tables[table]
	if !ok || d.model == nil {
		return nil, errors.New(errors.KindSchema, "unknown table "+table, errors.ErrUnknownTable)
	}
	return d, nil
}
