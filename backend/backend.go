// Package backend defines the capability interface between the buntable
// engine and a storage implementation.
//
// A backend receives every declared model at connect time and then one
// Request per exec. The reference implementation lives in backend/memory;
// backend/sqlite persists tables to a SQLite file. Both honor the same
// observable contract, so a database can switch between them through
// configuration alone.
package backend

import (
	"context"

	"github.com/kartikbazzad/bunbase/buntable/filter"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// ConnectConfig is everything registered on a database before connect.
type ConnectConfig struct {
	Models  map[string]*schema.Model
	Actions map[string][]string // table -> action names
	Views   map[string][]string // table -> view names
	Filters *filter.Registry
	Config  map[string]any // free-form backend configuration
}

// Request is one exec call.
type Request struct {
	Table     string
	Query     *query.Query
	Model     *schema.Model
	JoinModel *schema.Model // model of Query.Join.Table, when joined
	Filters   *filter.Registry
	RowFilter func(schema.Row) schema.Row // applied to rows written by upsert
	Procedure string                      // originating action/view, if any
}

// Response is the outcome of a successful exec.
type Response struct {
	Rows    []schema.Row // result rows after ordering, pagination and filters
	Changed []schema.Row // rows actually written or removed
	Issues  []error      // tolerated per-column coercion problems
}

// Backend stores tables and executes compiled queries against them.
// Exec calls against one table must not interleave their mutations.
type Backend interface {
	Connect(ctx context.Context, cfg ConnectConfig) error
	Exec(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// Extender is implemented by backends exposing custom operations.
type Extender interface {
	Extend(ctx context.Context, op string, args ...any) (any, error)
}
