// Package filter implements the post-processing pipeline applied to query
// results: named transforms from a row sequence to a row sequence, run in
// the order they were attached.
package filter

import (
	"sync"

	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Func transforms the rows produced by the previous stage. Aggregates return
// a single row.
type Func func(rows []schema.Row, args ...any) ([]schema.Row, error)

// Checker validates filter arguments before any row is touched.
type Checker func(args []any) error

type entry struct {
	fn    Func
	check Checker
}

// Registry holds the filters known to one database: the built-ins plus
// user filters registered before connect.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]entry
	expr  *ExprEngine
}

// NewRegistry creates a registry with the built-in filters. exprCacheSize
// bounds the compiled expression cache of the expr filter.
func NewRegistry(exprCacheSize int) (*Registry, error) {
	engine, err := NewExprEngine(exprCacheSize)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		funcs: make(map[string]entry),
		expr:  engine,
	}
	r.funcs["count"] = entry{fn: Count, check: optionalColumn}
	r.funcs["sum"] = entry{fn: Sum, check: requireColumn}
	r.funcs["min"] = entry{fn: Min, check: requireColumn}
	r.funcs["max"] = entry{fn: Max, check: requireColumn}
	r.funcs["average"] = entry{fn: Average, check: requireColumn}
	r.funcs["expr"] = entry{fn: engine.Filter, check: engine.Check}
	return r, nil
}

// Register adds a user filter. Names are global to the database and may not
// shadow an existing filter.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return errors.Schema("filter needs a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return errors.Schema("filter %q is already registered", name)
	}
	r.funcs[name] = entry{fn: fn}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names lists the registered filters.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	return out
}

// Validate checks that every call names a registered filter with
// acceptable arguments.
func (r *Registry) Validate(calls []query.FilterCall) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range calls {
		e, ok := r.funcs[c.Name]
		if !ok {
			return errors.Compile("unknown filter %q", c.Name)
		}
		if e.check != nil {
			if err := e.check(c.Args); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run applies calls left to right; each filter's output feeds the next.
func (r *Registry) Run(rows []schema.Row, calls []query.FilterCall) ([]schema.Row, error) {
	for _, c := range calls {
		r.mu.RLock()
		e, ok := r.funcs[c.Name]
		r.mu.RUnlock()
		if !ok {
			return nil, errors.Compile("unknown filter %q", c.Name)
		}
		out, err := e.fn(rows, c.Args...)
		if err != nil {
			return nil, err
		}
		rows = out
	}
	return rows, nil
}
