package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/kartikbazzad/bunbase/buntable/errors"
)

// Coerce casts v to the Go representation of t:
// string/uuid -> string, int -> int64, float -> float64, bool -> bool,
// arrays -> []any, map -> map[string]any, blob -> []byte.
// A nil value, or a blank string for a non-string type, coerces to nil.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if n, ok := v.(json.Number); ok {
		if t == TypeString {
			return string(n), nil
		}
		v = NumberValue(n)
	}
	if s, ok := v.(string); ok && t != TypeString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch {
	case t == TypeString:
		return cast.ToStringE(v)
	case t == TypeInt:
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		return cast.ToInt64E(v)
	case t == TypeFloat:
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		return cast.ToFloat64E(v)
	case t == TypeBool:
		return cast.ToBoolE(v)
	case t == TypeUUID:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case t == TypeMap:
		return cast.ToStringMapE(v)
	case t.IsArray():
		return coerceArray(t.Elem(), v)
	case t == TypeBlob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return base64.StdEncoding.DecodeString(b)
		}
		return nil, fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
	}
	return v, nil
}

// NumberValue converts decoded JSON number text to int64 when it is a whole
// number that fits, and to float64 otherwise.
func NumberValue(n json.Number) any {
	if !strings.ContainsAny(string(n), ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return string(n)
}

func coerceArray(elem Type, v any) ([]any, error) {
	if s, ok := v.(string); ok {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, err
		}
		v = decoded
	}
	list, err := toList(v)
	if err != nil {
		return nil, err
	}
	if elem == TypeAny {
		return list, nil
	}
	out := make([]any, len(list))
	for i, item := range list {
		c, err := Coerce(elem, item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func toList(v any) ([]any, error) {
	if list, ok := v.([]any); ok {
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unable to cast %#v of type %T to []any", v, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// CoerceRow casts the model columns present in in and drops keys the model
// does not declare. When fill is set, columns that are missing (or nil) get
// their default.
//
// A value that fails to cast is replaced by the column default and reported
// in issues; a primary key that fails to cast aborts the row with err.
func (m *Model) CoerceRow(in map[string]any, fill bool) (row Row, issues []error, err error) {
	row = make(Row, len(m.Columns))
	for _, c := range m.Columns {
		raw, present := in[c.Key]
		if !present {
			if fill {
				row[c.Key] = c.DefaultValue()
			}
			continue
		}
		v, cerr := Coerce(c.Type, raw)
		if cerr != nil {
			if c.Has(PropPK) {
				return nil, nil, errors.Coercion(cerr, "table %q: primary key %q", m.Table, c.Key)
			}
			issues = append(issues, errors.Coercion(cerr, "table %q: column %q", m.Table, c.Key))
			v = c.DefaultValue()
		}
		if v == nil && fill {
			v = c.DefaultValue()
		}
		row[c.Key] = v
	}
	return row, issues, nil
}
