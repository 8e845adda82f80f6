// Package engine is the execution pipeline shared by the in-module backends.
//
// A Plan is compiled once per exec from a backend.Request. Evaluation order
// is fixed regardless of how the chain was written: join, where, orderBy,
// offset/limit, projection, filters.
package engine

import (
	"strings"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/filter"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

type orderKey struct {
	key  string
	desc bool
}

// Plan is the executable form of one query.
type Plan struct {
	Query     *query.Query
	Model     *schema.Model
	JoinModel *schema.Model
	Where     query.Predicate
	On        query.Predicate

	filters   *filter.Registry
	rowFilter func(schema.Row) schema.Row
	order     []orderKey
	tieBreak  []string
	columns   []string
}

// Compile validates req and builds its plan. Every error it returns is
// detected before any row is read or written.
func Compile(req *backend.Request) (*Plan, error) {
	q := req.Query
	if q == nil {
		return nil, errors.Compile("no query")
	}
	if !q.Action.Valid() {
		return nil, errors.Compile("unknown action %q", q.Action)
	}
	if req.Model == nil {
		return nil, errors.Schema("table %q has no model", req.Table)
	}
	if q.Joins > 1 {
		return nil, errors.Compile("only one join per query is supported")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, errors.Compile("limit and offset must not be negative")
	}

	p := &Plan{
		Query:     q,
		Model:     req.Model,
		filters:   req.Filters,
		rowFilter: req.RowFilter,
		Where:     query.MatchAll,
		On:        query.MatchAll,
	}

	if q.Join != nil {
		if q.Action != query.Select {
			return nil, errors.Compile("join is only supported on select")
		}
		if q.Join.Table == "" || req.JoinModel == nil {
			return nil, errors.Compile("join target table %q is not declared", q.Join.Table)
		}
		if !q.Join.Type.Valid() {
			return nil, errors.Compile("unknown join type %q", q.Join.Type)
		}
		if q.Join.On == nil && q.Join.Type != query.CrossJoin {
			return nil, errors.Compile("%s join needs a condition", q.Join.Type)
		}
		p.JoinModel = req.JoinModel
		on, err := query.Compile(q.Join.On, p.resolve)
		if err != nil {
			return nil, err
		}
		p.On = on
	}

	where, err := query.Compile(q.Where, p.resolve)
	if err != nil {
		return nil, err
	}
	p.Where = where

	for _, o := range q.OrderBy {
		key, _, err := p.resolve(o.Column)
		if err != nil {
			return nil, err
		}
		p.order = append(p.order, orderKey{key: key, desc: o.Desc})
	}
	p.tieBreak = p.primaryKeys()

	switch q.Action {
	case query.Select:
		for _, c := range q.Columns {
			key, _, err := p.resolve(c)
			if err != nil {
				return nil, err
			}
			p.columns = append(p.columns, key)
		}
	case query.Delete:
		for _, c := range q.Columns {
			key, _, err := p.resolve(c)
			if err != nil {
				return nil, err
			}
			if key == p.Model.PKKey() {
				return nil, errors.Schema("primary key %q cannot be cleared", key)
			}
			p.columns = append(p.columns, key)
		}
	case query.Upsert:
		if len(q.Row) == 0 && q.Where == nil {
			return nil, errors.Compile("upsert needs a row")
		}
	}

	if req.Filters != nil {
		if err := req.Filters.Validate(q.Filters); err != nil {
			return nil, err
		}
	} else if len(q.Filters) > 0 {
		return nil, errors.Compile("unknown filter %q", q.Filters[0].Name)
	}
	return p, nil
}

// resolve maps a column reference to its key in evaluated rows. Without a
// join, rows are keyed by bare column names and "table.column" of the query
// table is accepted too. With a join every reference must be qualified.
func (p *Plan) resolve(ref string) (string, schema.Type, error) {
	table, col, qualified := strings.Cut(ref, ".")
	if !qualified {
		table, col = "", ref
	}

	if p.JoinModel == nil {
		if qualified && table != p.Model.Table {
			return "", "", errors.Schema("column %q does not belong to table %q", ref, p.Model.Table)
		}
		c, ok := p.Model.Column(col)
		if !ok {
			return "", "", errors.Schema("unknown column %q on table %q", col, p.Model.Table)
		}
		return col, c.Type, nil
	}

	if !qualified {
		return "", "", errors.Compile("column %q must be qualified as table.column in a joined query", ref)
	}
	var m *schema.Model
	switch table {
	case p.Model.Table:
		m = p.Model
	case p.JoinModel.Table:
		m = p.JoinModel
	default:
		return "", "", errors.Schema("column %q references a table outside the join", ref)
	}
	c, ok := m.Column(col)
	if !ok {
		return "", "", errors.Schema("unknown column %q on table %q", col, m.Table)
	}
	return ref, c.Type, nil
}

func (p *Plan) primaryKeys() []string {
	var keys []string
	if pk := p.Model.PKKey(); pk != "" {
		if p.JoinModel != nil {
			keys = append(keys, p.Model.Table+"."+pk)
		} else {
			keys = append(keys, pk)
		}
	}
	if p.JoinModel != nil {
		if pk := p.JoinModel.PKKey(); pk != "" {
			keys = append(keys, p.JoinModel.Table+"."+pk)
		}
	}
	return keys
}
