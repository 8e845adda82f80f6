package query

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Predicate reports whether a row satisfies a compiled condition.
type Predicate func(row schema.Row) bool

// Resolver maps a column reference to the key it has in evaluated rows and
// to its declared type. It rejects unknown (or, once a join is active,
// unqualified) references.
type Resolver func(ref string) (key string, typ schema.Type, err error)

// MatchAll is the predicate of a query without a where clause.
func MatchAll(schema.Row) bool { return true }

// Compile validates a condition tree and turns it into a predicate. Every
// operator, column reference and operand is checked here, so evaluation
// itself never fails. A nil condition matches every row.
func Compile(c Condition, resolve Resolver) (Predicate, error) {
	switch n := c.(type) {
	case nil:
		return MatchAll, nil
	case Leaf:
		return compileLeaf(n, resolve)
	case *Leaf:
		return compileLeaf(*n, resolve)
	case Group:
		return compileGroup(n, resolve)
	case *Group:
		return compileGroup(*n, resolve)
	}
	return nil, errors.Compile("unsupported condition node %T", c)
}

func compileGroup(g Group, resolve Resolver) (Predicate, error) {
	if len(g.Terms) == 0 {
		return nil, errors.Compile("empty condition group")
	}
	if len(g.Conns) != len(g.Terms)-1 {
		return nil, errors.Compile("condition group has %d terms but %d connectors", len(g.Terms), len(g.Conns))
	}
	preds := make([]Predicate, len(g.Terms))
	for i, t := range g.Terms {
		p, err := Compile(t, resolve)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	for _, c := range g.Conns {
		if c != And && c != Or {
			return nil, errors.Compile("unknown connector %q", c)
		}
	}
	conns := append([]Connector(nil), g.Conns...)

	return func(row schema.Row) bool {
		acc := preds[0](row)
		for i, conn := range conns {
			switch conn {
			case And:
				if acc {
					acc = preds[i+1](row)
				}
			case Or:
				if !acc {
					acc = preds[i+1](row)
				}
			}
		}
		return acc
	}, nil
}

func compileLeaf(l Leaf, resolve Resolver) (Predicate, error) {
	op := normalizeOp(string(l.Op))
	if !op.Valid() {
		return nil, errors.Compile("unknown operator %q on %q", l.Op, l.Column)
	}
	key, typ, err := resolve(l.Column)
	if err != nil {
		return nil, err
	}

	if ref, ok := l.Value.(Ref); ok {
		other, _, err := resolve(string(ref))
		if err != nil {
			return nil, err
		}
		cmp, err := scalarOp(op)
		if err != nil {
			return nil, err
		}
		return func(row schema.Row) bool {
			a, b := row[key], row[other]
			if a == nil || b == nil {
				return false
			}
			return cmp(a, b)
		}, nil
	}

	if l.Value == nil {
		switch op {
		case OpEq:
			return func(row schema.Row) bool { return row[key] == nil }, nil
		case OpNe:
			return func(row schema.Row) bool { return row[key] != nil }, nil
		}
		return nil, errors.Compile("operator %s on %q needs a value", op, l.Column)
	}

	match, err := compileMatch(op, typ, l)
	if err != nil {
		return nil, err
	}
	return func(row schema.Row) bool {
		v := row[key]
		if v == nil {
			return false
		}
		return match(v)
	}, nil
}

func scalarOp(op Operator) (func(a, b any) bool, error) {
	switch op {
	case OpEq:
		return Equal, nil
	case OpNe:
		return func(a, b any) bool { return !Equal(a, b) }, nil
	case OpGt:
		return func(a, b any) bool { return CompareValues(a, b) > 0 }, nil
	case OpGte:
		return func(a, b any) bool { return CompareValues(a, b) >= 0 }, nil
	case OpLt:
		return func(a, b any) bool { return CompareValues(a, b) < 0 }, nil
	case OpLte:
		return func(a, b any) bool { return CompareValues(a, b) <= 0 }, nil
	}
	return nil, errors.Compile("operator %s cannot compare two columns", op)
}

func compileMatch(op Operator, typ schema.Type, l Leaf) (func(v any) bool, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		want, err := operand(typ, l)
		if err != nil {
			return nil, err
		}
		cmp, _ := scalarOp(op)
		return func(v any) bool { return cmp(v, want) }, nil

	case OpIn, OpNotIn:
		list, err := operandList(typ, l)
		if err != nil {
			return nil, err
		}
		negate := op == OpNotIn
		return func(v any) bool {
			for _, item := range list {
				if Equal(v, item) {
					return !negate
				}
			}
			return negate
		}, nil

	case OpBetween:
		list, err := operandList(typ, l)
		if err != nil {
			return nil, err
		}
		if len(list) != 2 {
			return nil, errors.Compile("BETWEEN on %q needs exactly two bounds", l.Column)
		}
		lo, hi := list[0], list[1]
		return func(v any) bool {
			return CompareValues(v, lo) >= 0 && CompareValues(v, hi) <= 0
		}, nil

	case OpLike, OpNotLike:
		pattern, ok := l.Value.(string)
		if !ok {
			return nil, errors.Compile("LIKE on %q needs a string pattern", l.Column)
		}
		like := compileLike(pattern)
		negate := op == OpNotLike
		return func(v any) bool { return like(stringOf(v)) != negate }, nil

	case OpRegex:
		pattern, ok := l.Value.(string)
		if !ok {
			return nil, errors.Compile("REGEX on %q needs a string pattern", l.Column)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.New(errors.KindCompile, fmt.Sprintf("REGEX on %q", l.Column), err)
		}
		return func(v any) bool { return re.MatchString(stringOf(v)) }, nil

	case OpHave:
		elem := schema.TypeAny
		if typ.IsArray() {
			elem = typ.Elem()
		}
		want, err := operand(elem, Leaf{Column: l.Column, Value: l.Value})
		if err != nil {
			return nil, err
		}
		return func(v any) bool {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return false
			}
			for i := 0; i < rv.Len(); i++ {
				if Equal(rv.Index(i).Interface(), want) {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, errors.Compile("unknown operator %q on %q", op, l.Column)
}

// operand casts a comparison value to the column type so that "30" matches
// an int column holding 30. An int column keeps whole operands as int64 and
// compares against fractional ones ("30.5") as float64.
func operand(typ schema.Type, l Leaf) (any, error) {
	target := typ
	switch {
	case typ.IsNumeric():
		if typ == schema.TypeInt && !fractional(l.Value) {
			if v, err := schema.Coerce(schema.TypeInt, l.Value); err == nil {
				return v, nil
			}
		}
		target = schema.TypeFloat
	case typ == schema.TypeString, typ == schema.TypeBool, typ == schema.TypeUUID:
	default:
		return l.Value, nil
	}
	v, err := schema.Coerce(target, l.Value)
	if err != nil {
		return nil, errors.New(errors.KindCompile, fmt.Sprintf("value %v does not fit column %q (%s)", l.Value, l.Column, typ), err)
	}
	return v, nil
}

func fractional(v any) bool {
	switch f := v.(type) {
	case float64:
		return f != math.Trunc(f)
	case float32:
		return float64(f) != math.Trunc(float64(f))
	}
	return false
}

func operandList(typ schema.Type, l Leaf) ([]any, error) {
	rv := reflect.ValueOf(l.Value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Compile("%s on %q needs a list, got %T", l.Op, l.Column, l.Value)
	}
	out := make([]any, rv.Len())
	for i := range out {
		v, err := operand(typ, Leaf{Column: l.Column, Value: rv.Index(i).Interface()})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// compileLike returns a matcher for a LIKE pattern. Patterns with % or _
// follow SQL wildcard rules; plain patterns match as substrings. Both are
// case-insensitive.
func compileLike(pattern string) func(string) bool {
	if !strings.ContainsAny(pattern, "%_") {
		needle := strings.ToLower(pattern)
		return func(s string) bool {
			return strings.Contains(strings.ToLower(s), needle)
		}
	}
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re := regexp.MustCompile(b.String())
	return re.MatchString
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
