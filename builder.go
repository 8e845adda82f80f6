package buntable

import (
	"context"
	"sync"

	"github.com/spf13/cast"

	"github.com/kartikbazzad/bunbase/buntable/codec"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
)

// Query is one builder chain. Modifiers may be called in any order; the
// engine always evaluates join, where, orderBy, offset/limit, filters.
// A chain is consumed by Exec and reset, so the handle can start over with
// Query.Reuse.
//
// A chain is not safe for concurrent use; start one chain per goroutine.
type Query struct {
	table *Table
	mu    sync.Mutex
	desc  query.Query
	err   error // first argument error, reported by Exec
}

func (q *Query) start(op query.Action, args []any) {
	q.desc = query.Query{Table: q.table.name, Action: op}
	q.err = nil
	q.step(query.StepAction, args)
	if !op.Valid() {
		q.fail(errors.Compile("unknown action %q", op))
		return
	}
	switch op {
	case query.Select, query.Delete:
		cols, err := cast.ToStringSliceE(flatten(args))
		if err != nil {
			q.fail(errors.Compile("%s takes column names: %v", op, err))
			return
		}
		q.desc.Columns = cols
	case query.Upsert:
		if len(args) != 1 {
			q.fail(errors.Compile("upsert takes exactly one row, got %d arguments", len(args)))
			return
		}
		arg := args[0]
		if r, ok := arg.(Row); ok {
			arg = map[string]any(r)
		}
		row, err := cast.ToStringMapE(arg)
		if err != nil {
			q.fail(errors.Compile("upsert takes a row: %v", err))
			return
		}
		q.desc.Row = row
	case query.Drop:
		if len(args) != 0 {
			q.fail(errors.Compile("drop takes no arguments"))
		}
	}
}

// flatten accepts both Select("a", "b") and Query(op, []string{"a", "b"}).
func flatten(args []any) []any {
	if len(args) == 1 {
		if s, ok := args[0].([]string); ok {
			return stringsToAny(s)
		}
	}
	return args
}

func (q *Query) step(kind query.StepKind, args any) {
	q.desc.Steps = append(q.desc.Steps, query.Step{Kind: kind, Args: args})
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Reuse starts a new chain on the same handle.
func (q *Query) Reuse(op query.Action, args ...any) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.start(op, args)
	return q
}

// Where attaches the condition tree, replacing any previous one.
func (q *Query) Where(c query.Condition) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.step(query.StepWhere, c)
	q.desc.Where = c
	return q
}

// WhereList attaches a condition tree written as nested lists, such as
// []any{[]any{"a", "=", 1}, "and", []any{"b", ">", 0}}.
func (q *Query) WhereList(v any) *Query {
	c, err := query.Parse(v)
	if err != nil {
		q.mu.Lock()
		q.fail(err)
		q.mu.Unlock()
		return q
	}
	return q.Where(c)
}

// OrderBy sets the sort keys, highest priority first. A second call
// replaces the first.
func (q *Query) OrderBy(orders ...query.Order) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.step(query.StepOrderBy, orders)
	q.desc.OrderBy = append([]query.Order(nil), orders...)
	return q
}

// Join joins the chain's table with table. Only one join per chain is
// supported; a second call makes Exec fail.
func (q *Query) Join(typ query.JoinType, table string, on query.Condition) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	spec := &query.JoinSpec{Type: typ, Table: table, On: on}
	q.step(query.StepJoin, spec)
	q.desc.Joins++
	if q.desc.Join == nil {
		q.desc.Join = spec
	}
	return q
}

// Limit caps the number of returned rows; 0 means no limit.
func (q *Query) Limit(n int) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.step(query.StepLimit, n)
	q.desc.Limit = n
	return q
}

// Offset skips the first n matched rows.
func (q *Query) Offset(n int) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.step(query.StepOffset, n)
	q.desc.Offset = n
	return q
}

// Filter appends a filter call to the chain's pipeline.
func (q *Query) Filter(name string, args ...any) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	call := query.FilterCall{Name: name, Args: args}
	q.step(query.StepFilter, call)
	q.desc.Filters = append(q.desc.Filters, call)
	return q
}

// freeze takes the accumulated descriptor and resets the chain.
func (q *Query) freeze() (*query.Query, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	desc, err := q.desc, q.err
	q.desc = query.Query{Table: q.table.name}
	q.err = nil
	if err != nil {
		return &desc, err
	}
	if desc.Action == "" {
		return &desc, errors.Compile("query chain is empty")
	}
	return &desc, nil
}

// ExecAsync dispatches the chain and returns its pending result.
func (q *Query) ExecAsync(ctx context.Context) *Pending {
	desc, err := q.freeze()
	if err != nil {
		q.table.db.failed(ctx, desc, err)
		return rejected(err)
	}
	return q.table.db.submit(ctx, desc)
}

// Exec runs the chain and returns the result rows.
func (q *Query) Exec(ctx context.Context) ([]Row, error) {
	res, err := q.ExecAsync(ctx).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// ToCSV runs the chain and renders its result rows as CSV.
func (q *Query) ToCSV(ctx context.Context, headers bool) (string, error) {
	q.mu.Lock()
	preferred := q.csvColumns()
	q.mu.Unlock()
	rows, err := q.Exec(ctx)
	if err != nil {
		return "", err
	}
	return codec.CSVString(codec.Columns(preferred, rows), rows, headers)
}

// csvColumns is the natural column order of the chain's result. Caller
// holds mu.
func (q *Query) csvColumns() []string {
	if q.desc.Action == query.Select && len(q.desc.Columns) > 0 {
		return append([]string(nil), q.desc.Columns...)
	}
	var cols []string
	if m := q.table.Schema(); m != nil {
		if q.desc.Join == nil {
			return m.Keys()
		}
		for _, k := range m.Keys() {
			cols = append(cols, m.Table+"."+k)
		}
	}
	if q.desc.Join != nil {
		if m := q.table.db.Table(q.desc.Join.Table).Schema(); m != nil {
			for _, k := range m.Keys() {
				cols = append(cols, m.Table+"."+k)
			}
		}
	}
	return cols
}
