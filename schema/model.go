package schema

import (
	"github.com/kartikbazzad/bunbase/buntable/errors"
)

// Column props.
const (
	PropPK      = "pk"
	PropAI      = "ai"
	PropNotNull = "notnull"
)

// Column declares one column of a table model.
type Column struct {
	Key     string   `json:"key"`
	Type    Type     `json:"type"`
	Default any      `json:"default,omitempty"`
	Props   []string `json:"props,omitempty"`
}

// Has reports whether the column carries prop.
func (c Column) Has(prop string) bool {
	for _, p := range c.Props {
		if p == prop {
			return true
		}
	}
	return false
}

// DefaultValue returns a private copy of the column default, so rows filled
// from it never share an array or map.
func (c Column) DefaultValue() any {
	return CloneValue(c.Default)
}

// Model is the ordered column schema of a table.
type Model struct {
	Table   string
	Columns []Column
	index   map[string]int
	pk      int
}

// NewModel validates a column list and builds the model for table.
func NewModel(table string, cols []Column) (*Model, error) {
	if table == "" {
		return nil, errors.Schema("table name is required")
	}
	if len(cols) == 0 {
		return nil, errors.Schema("table %q: model has no columns", table)
	}
	m := &Model{
		Table:   table,
		Columns: make([]Column, len(cols)),
		index:   make(map[string]int, len(cols)),
		pk:      -1,
	}
	copy(m.Columns, cols)

	for i, c := range m.Columns {
		if c.Key == "" {
			return nil, errors.Schema("table %q: column %d has no key", table, i)
		}
		if _, dup := m.index[c.Key]; dup {
			return nil, errors.Schema("table %q: duplicate column %q", table, c.Key)
		}
		if c.Type == "" {
			return nil, errors.Schema("table %q: column %q has no type", table, c.Key)
		}
		m.index[c.Key] = i

		if c.Has(PropPK) {
			if m.pk >= 0 {
				return nil, errors.Schema("table %q: more than one primary key", table)
			}
			switch c.Type {
			case TypeInt, TypeFloat, TypeString, TypeUUID:
			default:
				return nil, errors.Schema("table %q: primary key %q cannot be of type %s", table, c.Key, c.Type)
			}
			m.pk = i
		}
		if c.Has(PropAI) && (!c.Has(PropPK) || c.Type != TypeInt) {
			return nil, errors.Schema("table %q: auto-increment requires an int primary key (%q)", table, c.Key)
		}
		if c.Default != nil {
			v, err := Coerce(c.Type, c.Default)
			if err != nil {
				return nil, errors.Schema("table %q: default of %q does not fit %s", table, c.Key, c.Type)
			}
			m.Columns[i].Default = v
		}
	}
	return m, nil
}

// PK returns the primary key column, if one is declared.
func (m *Model) PK() (Column, bool) {
	if m.pk < 0 {
		return Column{}, false
	}
	return m.Columns[m.pk], true
}

// PKKey returns the primary key column name or "".
func (m *Model) PKKey() string {
	if m.pk < 0 {
		return ""
	}
	return m.Columns[m.pk].Key
}

// Column looks up a column by key.
func (m *Model) Column(key string) (Column, bool) {
	i, ok := m.index[key]
	if !ok {
		return Column{}, false
	}
	return m.Columns[i], true
}

// Keys returns the column names in declaration order.
func (m *Model) Keys() []string {
	keys := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		keys[i] = c.Key
	}
	return keys
}

// Clone returns a deep enough copy that callers can hold it while the
// original is mutated.
func (m *Model) Clone() *Model {
	out := &Model{
		Table:   m.Table,
		Columns: make([]Column, len(m.Columns)),
		index:   make(map[string]int, len(m.index)),
		pk:      m.pk,
	}
	for i, c := range m.Columns {
		c.Props = append([]string(nil), c.Props...)
		out.Columns[i] = c
	}
	for k, v := range m.index {
		out.index[k] = v
	}
	return out
}
