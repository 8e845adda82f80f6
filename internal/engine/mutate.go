package engine

import (
	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// ChangeSet is the effect of one mutation.
type ChangeSet struct {
	Puts    []Record // inserted or updated rows, by ID
	Deletes []any    // removed IDs
	Changed []schema.Row
	Issues  []error
}

// Empty reports whether the change set writes nothing.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Puts) == 0 && len(cs.Deletes) == 0
}

// Run executes the plan against the main table (and the join target's rows,
// for joined selects). For mutations the returned change set must be
// persisted by the caller before the response is released.
func (p *Plan) Run(main Store, joinRows []schema.Row) (*backend.Response, *ChangeSet, error) {
	if p.Query.Action == query.Select {
		records, err := main.Scan()
		if err != nil {
			return nil, nil, err
		}
		rows, err := p.Select(rowsOf(records), joinRows)
		if err != nil {
			return nil, nil, err
		}
		return &backend.Response{Rows: rows}, nil, nil
	}

	cs, err := p.Mutate(main)
	if err != nil {
		return nil, nil, err
	}
	rows, err := p.Shape(append([]schema.Row(nil), cs.Changed...), false)
	if err != nil {
		return nil, nil, err
	}
	changed := make([]schema.Row, len(cs.Changed))
	for i, r := range cs.Changed {
		changed[i] = r.DeepClone()
	}
	return &backend.Response{Rows: rows, Changed: changed, Issues: cs.Issues}, cs, nil
}

// Mutate computes the change set of an upsert, delete or drop.
func (p *Plan) Mutate(s Store) (*ChangeSet, error) {
	switch p.Query.Action {
	case query.Upsert:
		return p.upsert(s)
	case query.Delete:
		return p.delete(s)
	case query.Drop:
		return p.drop(s)
	}
	return nil, errors.Compile("%s does not mutate", p.Query.Action)
}

func (p *Plan) matched(s Store) ([]Record, error) {
	records, err := s.Scan()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if p.Where(r.Row) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *Plan) upsert(s Store) (*ChangeSet, error) {
	m := p.Model
	pk := m.PKKey()
	partial, issues, err := m.CoerceRow(p.Query.Row, false)
	if err != nil {
		return nil, err
	}
	cs := &ChangeSet{Issues: issues}

	if p.Query.Where != nil {
		matched, err := p.matched(s)
		if err != nil {
			return nil, err
		}
		for _, rec := range matched {
			if v, ok := partial[pk]; ok && pk != "" && !query.Equal(v, rec.ID) {
				return nil, errors.Constraint("table %q: primary key %q cannot be changed by an update", m.Table, pk)
			}
			row, err := p.finish(merge(rec.Row, partial), rec.ID, cs)
			if err != nil {
				return nil, err
			}
			cs.Puts = append(cs.Puts, Record{ID: rec.ID, Row: row})
			cs.Changed = append(cs.Changed, row)
		}
		return cs, nil
	}

	if pk != "" {
		if id := partial[pk]; id != nil {
			prev, ok, err := s.Lookup(id)
			if err != nil {
				return nil, err
			}
			if ok {
				row, err := p.finish(merge(prev, partial), id, cs)
				if err != nil {
					return nil, err
				}
				cs.Puts = append(cs.Puts, Record{ID: id, Row: row})
				cs.Changed = append(cs.Changed, row)
				return cs, nil
			}
		}
	}

	row := partial
	for _, c := range m.Columns {
		if row[c.Key] == nil {
			row[c.Key] = c.DefaultValue()
		}
	}
	var id any
	if pk == "" {
		if id, err = s.NextKey(); err != nil {
			return nil, err
		}
	} else {
		if row[pk] == nil {
			col, _ := m.PK()
			switch col.Type {
			case schema.TypeInt:
				next, err := s.NextKey()
				if err != nil {
					return nil, err
				}
				row[pk] = next
			case schema.TypeUUID:
				row[pk] = schema.UUID()
			default:
				return nil, errors.Constraint("table %q: primary key %q is required", m.Table, pk)
			}
		}
		id = row[pk]
	}
	row, err = p.finish(row, id, cs)
	if err != nil {
		return nil, err
	}
	cs.Puts = append(cs.Puts, Record{ID: id, Row: row})
	cs.Changed = append(cs.Changed, row)
	return cs, nil
}

// finish applies the table row filter, re-coerces its output, pins the
// primary key and enforces notnull.
func (p *Plan) finish(row schema.Row, id any, cs *ChangeSet) (schema.Row, error) {
	m := p.Model
	if p.rowFilter != nil {
		filtered := p.rowFilter(row.DeepClone())
		if filtered == nil {
			return nil, errors.Constraint("table %q: row filter rejected the row", m.Table)
		}
		out, issues, err := m.CoerceRow(filtered, true)
		if err != nil {
			return nil, err
		}
		cs.Issues = append(cs.Issues, issues...)
		row = out
	}
	if pk := m.PKKey(); pk != "" {
		row[pk] = id
	}
	for _, c := range m.Columns {
		if c.Has(schema.PropNotNull) && row[c.Key] == nil {
			return nil, errors.Constraint("table %q: column %q must not be null", m.Table, c.Key)
		}
	}
	return row, nil
}

func merge(prev, partial schema.Row) schema.Row {
	out := prev.Clone()
	for k, v := range partial {
		out[k] = v
	}
	return out
}

func (p *Plan) delete(s Store) (*ChangeSet, error) {
	matched, err := p.matched(s)
	if err != nil {
		return nil, err
	}
	cs := &ChangeSet{}
	for _, rec := range matched {
		if len(p.columns) == 0 {
			cs.Deletes = append(cs.Deletes, rec.ID)
			cs.Changed = append(cs.Changed, rec.Row)
			continue
		}
		row := rec.Row.Clone()
		for _, key := range p.columns {
			col, _ := p.Model.Column(key)
			if col.Default != nil {
				row[key] = col.DefaultValue()
			} else {
				row[key] = col.Type.Zero()
			}
		}
		cs.Puts = append(cs.Puts, Record{ID: rec.ID, Row: row})
		cs.Changed = append(cs.Changed, row)
	}
	return cs, nil
}

// drop removes every row, or only the matched rows when a where is attached.
func (p *Plan) drop(s Store) (*ChangeSet, error) {
	matched, err := p.matched(s)
	if err != nil {
		return nil, err
	}
	cs := &ChangeSet{}
	for _, rec := range matched {
		cs.Deletes = append(cs.Deletes, rec.ID)
		cs.Changed = append(cs.Changed, rec.Row)
	}
	return cs, nil
}
