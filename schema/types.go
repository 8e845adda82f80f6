// Package schema holds the table model declarations used by buntable: column
// types, defaults and constraint props, plus the coercion rules that turn
// loosely typed input into values of the declared type.
package schema

import "strings"

// Type is the logical type tag of a column. Tags outside the built-in set are
// accepted and their values are stored unchanged.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeArray  Type = "array"
	TypeMap    Type = "map"
	TypeUUID   Type = "uuid"
	TypeBlob   Type = "blob"
	TypeAny    Type = "any"
)

// IsArray reports whether values of t are lists, either untyped ("array") or
// typed ("int[]").
func (t Type) IsArray() bool {
	return t == TypeArray || strings.HasSuffix(string(t), "[]")
}

// Elem returns the element type of a typed array, or TypeAny.
func (t Type) Elem() Type {
	if strings.HasSuffix(string(t), "[]") {
		return Type(strings.TrimSuffix(string(t), "[]"))
	}
	return TypeAny
}

// IsComposite reports whether t is encoded as a nested literal in CSV cells.
func (t Type) IsComposite() bool {
	return t.IsArray() || t == TypeMap
}

// IsNumeric reports whether t compares numerically.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Known reports whether t is one of the built-in tags.
func (t Type) Known() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeArray, TypeMap, TypeUUID, TypeBlob, TypeAny:
		return true
	}
	return t.IsArray() && t.Elem().Known()
}

// Zero returns the type default used when a column is cleared.
func (t Type) Zero() any {
	switch {
	case t == TypeString, t == TypeUUID:
		return ""
	case t == TypeInt:
		return int64(0)
	case t == TypeFloat:
		return float64(0)
	case t == TypeBool:
		return false
	case t.IsArray():
		return []any{}
	case t == TypeMap:
		return map[string]any{}
	}
	return nil
}

// Row maps column names to coerced values.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DeepClone copies r together with every array, map and blob value in it.
func (r Row) DeepClone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue copies array, map and blob values recursively. Scalars are
// returned as is.
func CloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = CloneValue(e)
		}
		return out
	case []byte:
		if x == nil {
			return x
		}
		return append([]byte{}, x...)
	}
	return v
}
