// Package join combines the rows of two tables into one virtual row set.
//
// Combined rows are keyed by dot-qualified column names (table.column) so
// columns with the same name on both sides never collide. The algorithm is
// a nested loop; no index is assumed.
package join

import (
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Side is one input of a join.
type Side struct {
	Table string
	Model *schema.Model
	Rows  []schema.Row
}

// Qualify returns a copy of row with every key prefixed by "table.".
func Qualify(table string, row schema.Row) schema.Row {
	out := make(schema.Row, len(row))
	for k, v := range row {
		out[table+"."+k] = v
	}
	return out
}

// padding is the qualified row used for the unmatched side of an outer join:
// every column holds its default.
func (s Side) padding() schema.Row {
	out := make(schema.Row, len(s.Model.Columns))
	for _, c := range s.Model.Columns {
		out[s.Table+"."+c.Key] = c.DefaultValue()
	}
	return out
}

func combine(a, b schema.Row) schema.Row {
	out := make(schema.Row, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Run joins left with right. on is evaluated against the combined row; for
// a cross join it only post-filters the Cartesian product.
func Run(typ query.JoinType, left, right Side, on query.Predicate) ([]schema.Row, error) {
	if on == nil {
		on = query.MatchAll
	}
	lq := qualifyAll(left)
	rq := qualifyAll(right)

	var out []schema.Row
	switch typ {
	case query.InnerJoin, query.CrossJoin:
		for _, l := range lq {
			for _, r := range rq {
				if row := combine(l, r); on(row) {
					out = append(out, row)
				}
			}
		}
	case query.LeftJoin:
		pad := right.padding()
		for _, l := range lq {
			matched := false
			for _, r := range rq {
				if row := combine(l, r); on(row) {
					out = append(out, row)
					matched = true
				}
			}
			if !matched {
				out = append(out, combine(l, pad))
			}
		}
	case query.RightJoin:
		pad := left.padding()
		for _, r := range rq {
			matched := false
			for _, l := range lq {
				if row := combine(l, r); on(row) {
					out = append(out, row)
					matched = true
				}
			}
			if !matched {
				out = append(out, combine(pad, r))
			}
		}
	default:
		return nil, errors.Compile("unknown join type %q", typ)
	}
	return out, nil
}

func qualifyAll(s Side) []schema.Row {
	out := make([]schema.Row, len(s.Rows))
	for i, r := range s.Rows {
		out[i] = Qualify(s.Table, r)
	}
	return out
}
