package buntable

import (
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Table is a handle on one table of a database.
type Table struct {
	db   *DB
	name string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// DB returns the database the table belongs to.
func (t *Table) DB() *DB { return t.db }

// Model declares the table's columns. It may be called once, before Connect.
func (t *Table) Model(cols ...Column) error {
	m, err := schema.NewModel(t.name, cols)
	if err != nil {
		return err
	}
	return t.db.declare(t.name, func(d *tableDecl) error {
		if d.model != nil {
			return errors.Schema("table %q already has a model", t.name)
		}
		d.model = m
		return nil
	})
}

// Schema returns a copy of the declared model, or nil.
func (t *Table) Schema() *schema.Model {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	d, ok := t.db.tables[t.name]
	if !ok || d.model == nil {
		return nil
	}
	return d.model.Clone()
}

// RowFilter sets a transform applied to every row written by upsert, after
// coercion. The returned row is coerced again; its primary key is kept.
func (t *Table) RowFilter(fn func(Row) Row) error {
	return t.db.declare(t.name, func(d *tableDecl) error {
		d.rowFilter = fn
		return nil
	})
}

// AlwaysApplyFilter appends a filter call to every select on the table,
// after the chain's own filters.
func (t *Table) AlwaysApplyFilter(name string, args ...any) error {
	return t.db.declare(t.name, func(d *tableDecl) error {
		d.always = append(d.always, query.FilterCall{Name: name, Args: args})
		return nil
	})
}

// Query starts a chain with the given base operation. args depend on op:
//
//	select  optional column names to project
//	upsert  one Row (or map[string]any) to write
//	delete  optional column names to clear
//	drop    none
//
// Argument problems surface as a QueryCompileError from Exec.
func (t *Table) Query(op query.Action, args ...any) *Query {
	q := &Query{table: t}
	q.start(op, args)
	return q
}

// Select starts a select chain projecting columns (all when empty).
func (t *Table) Select(columns ...string) *Query {
	return t.Query(query.Select, stringsToAny(columns)...)
}

// Upsert starts an upsert chain writing row.
func (t *Table) Upsert(row map[string]any) *Query {
	return t.Query(query.Upsert, row)
}

// Delete starts a delete chain. With columns only those columns are reset
// to their default on matched rows; without, matched rows are removed.
func (t *Table) Delete(columns ...string) *Query {
	return t.Query(query.Delete, stringsToAny(columns)...)
}

// Drop starts a drop chain removing every row (or the matched rows, with
// Where).
func (t *Table) Drop() *Query {
	return t.Query(query.Drop)
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
