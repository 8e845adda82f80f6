// Package memory is the reference backend: every table lives in process
// memory as an ordered, primary-key indexed row collection.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spf13/cast"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/internal/engine"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Name is the configuration name of this backend.
const Name = "memory"

// Backend implements backend.Backend in memory.
type Backend struct {
	mu     sync.RWMutex
	tables map[string]*table
	closed bool
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{tables: make(map[string]*table)}
}

// Connect creates one empty table per declared model.
func (b *Backend) Connect(ctx context.Context, cfg backend.ConnectConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.ErrClosed
	}
	for name, m := range cfg.Models {
		if _, ok := b.tables[name]; ok {
			continue
		}
		b.tables[name] = newTable(m)
	}
	logger.Debug("memory backend connected", "tables", len(cfg.Models))
	return nil
}

func (b *Backend) table(name string) (*table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.ErrClosed
	}
	t, ok := b.tables[name]
	if !ok {
		return nil, errors.Schema("unknown table %q", name)
	}
	return t, nil
}

// Exec runs one query. Mutations on a table are serialized; selects read a
// copy of the table taken when they start.
func (b *Backend) Exec(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	plan, err := engine.Compile(req)
	if err != nil {
		return nil, err
	}
	t, err := b.table(req.Table)
	if err != nil {
		return nil, err
	}

	if !req.Query.Action.Mutates() {
		var joinRows []schema.Row
		if plan.JoinModel != nil {
			jt, err := b.table(plan.JoinModel.Table)
			if err != nil {
				return nil, err
			}
			joinRows = jt.snapshot().Rows()
		}
		resp, _, err := plan.Run(t.snapshot(), joinRows)
		return resp, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	resp, cs, err := plan.Run(t.data, nil)
	if err != nil {
		return nil, err
	}
	if !cs.Empty() {
		t.data.Apply(cs)
	}
	return resp, nil
}

// Close drops every table.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.tables = nil
	return nil
}

// Extend exposes backend operations:
//
//	tables         sorted table names
//	count <table>  number of rows in table
func (b *Backend) Extend(ctx context.Context, op string, args ...any) (any, error) {
	switch op {
	case "tables":
		b.mu.RLock()
		defer b.mu.RUnlock()
		names := make([]string, 0, len(b.tables))
		for name := range b.tables {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	case "count":
		if len(args) != 1 {
			return nil, errors.Compile("count needs a table name")
		}
		name, err := cast.ToStringE(args[0])
		if err != nil {
			return nil, errors.Compile("count needs a table name: %v", err)
		}
		t, err := b.table(name)
		if err != nil {
			return nil, err
		}
		return t.count(), nil
	}
	return nil, errors.Compile("memory backend has no operation %q", op)
}
