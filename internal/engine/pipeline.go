package engine

import (
	"sort"

	"github.com/kartikbazzad/bunbase/buntable/internal/join"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Select evaluates the plan against a table snapshot. joinRows is the
// snapshot of the join target and is ignored when the query has no join.
func (p *Plan) Select(rows, joinRows []schema.Row) ([]schema.Row, error) {
	candidates := rows
	if p.JoinModel != nil {
		var err error
		candidates, err = join.Run(
			p.Query.Join.Type,
			join.Side{Table: p.Model.Table, Model: p.Model, Rows: rows},
			join.Side{Table: p.JoinModel.Table, Model: p.JoinModel, Rows: joinRows},
			p.On,
		)
		if err != nil {
			return nil, err
		}
	}

	matched := make([]schema.Row, 0, len(candidates))
	for _, r := range candidates {
		if p.Where(r) {
			matched = append(matched, r)
		}
	}
	return p.Shape(matched, true)
}

// Shape runs the post-match stages: orderBy, offset/limit, projection and
// filters. project is false for mutations, whose column list is not a
// projection.
func (p *Plan) Shape(rows []schema.Row, project bool) ([]schema.Row, error) {
	p.sort(rows)
	rows = p.page(rows)

	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		if project && len(p.columns) > 0 {
			pr := make(schema.Row, len(p.columns))
			for _, c := range p.columns {
				pr[c] = schema.CloneValue(r[c])
			}
			out[i] = pr
			continue
		}
		out[i] = r.DeepClone()
	}

	if len(p.Query.Filters) == 0 || p.filters == nil {
		return out, nil
	}
	return p.filters.Run(out, p.Query.Filters)
}

// sort orders rows by the orderBy keys in declaration order. Rows equal on
// every key fall back to primary key ascending.
func (p *Plan) sort(rows []schema.Row) {
	if len(p.order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range p.order {
			c := query.CompareValues(rows[i][o.key], rows[j][o.key])
			if c == 0 {
				continue
			}
			if o.desc {
				return c > 0
			}
			return c < 0
		}
		for _, k := range p.tieBreak {
			if c := query.CompareValues(rows[i][k], rows[j][k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func (p *Plan) page(rows []schema.Row) []schema.Row {
	if off := p.Query.Offset; off > 0 {
		if off >= len(rows) {
			return nil
		}
		rows = rows[off:]
	}
	if n := p.Query.Limit; n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}
