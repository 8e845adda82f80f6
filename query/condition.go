// Package query describes buntable queries: the condition tree evaluated by
// where clauses and joins, and the compiled query descriptor a backend
// receives.
//
// A condition is either a Leaf comparison or a Group of conditions joined by
// AND/OR connectors. Groups evaluate strictly left to right without operator
// precedence, so grouping is expressed by nesting:
//
//	query.Chain(query.Cond("a", "=", 1), query.And, query.Cond("b", ">", 0))
package query

import (
	"fmt"
	"strings"

	"github.com/kartikbazzad/bunbase/buntable/errors"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpIn      Operator = "IN"
	OpNotIn   Operator = "NOT IN"
	OpLike    Operator = "LIKE"
	OpNotLike Operator = "NOT LIKE"
	OpBetween Operator = "BETWEEN"
	OpHave    Operator = "HAVE"
	OpRegex   Operator = "REGEX"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpLike, OpNotLike, OpBetween, OpHave, OpRegex:
		return true
	}
	return false
}

// Connector joins sibling conditions of a Group.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// Condition is a node of the where tree: a Leaf or a Group.
type Condition interface {
	condition()
}

// Leaf compares one column of the row against Value.
type Leaf struct {
	Column string
	Op     Operator
	Value  any
}

// Group is a left-associative list of conditions. Conns[i] joins Terms[i]
// and Terms[i+1].
type Group struct {
	Terms []Condition
	Conns []Connector
}

func (Leaf) condition()  {}
func (Group) condition() {}

// Ref is a leaf value naming another column of the same (joined) row.
type Ref string

// Cond builds a leaf. The operator is case-insensitive.
func Cond(column string, op string, value any) Leaf {
	return Leaf{Column: column, Op: normalizeOp(op), Value: value}
}

// All joins terms with AND.
func All(terms ...Condition) Group {
	return joinTerms(And, terms)
}

// Any joins terms with OR.
func Any(terms ...Condition) Group {
	return joinTerms(Or, terms)
}

func joinTerms(conn Connector, terms []Condition) Group {
	g := Group{Terms: terms}
	for i := 1; i < len(terms); i++ {
		g.Conns = append(g.Conns, conn)
	}
	return g
}

// Chain builds a group from alternating conditions and connectors:
// Chain(c1, And, c2, Or, c3) evaluates as ((c1 AND c2) OR c3).
func Chain(items ...any) (Group, error) {
	var g Group
	for i, item := range items {
		if i%2 == 0 {
			c, ok := item.(Condition)
			if !ok {
				return Group{}, errors.Compile("chain position %d: expected condition, got %T", i, item)
			}
			g.Terms = append(g.Terms, c)
			continue
		}
		conn, err := toConnector(item)
		if err != nil {
			return Group{}, errors.Compile("chain position %d: %v", i, err)
		}
		g.Conns = append(g.Conns, conn)
	}
	if len(g.Terms) == 0 || len(g.Conns) != len(g.Terms)-1 {
		return Group{}, errors.Compile("chain must alternate conditions and connectors")
	}
	return g, nil
}

// Parse converts the nested-list form used by JSON clients into a Condition:
//
//	["a", "=", 1]                              a leaf
//	[["a", "=", 1], "and", ["b", ">", 0]]      a group
//
// Groups nest: any term of a group may itself be a group.
func Parse(v any) (Condition, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errors.Compile("condition must be a list, got %T", v)
	}
	if len(list) == 3 {
		if col, ok := list[0].(string); ok {
			op, ok := list[1].(string)
			if !ok {
				return nil, errors.Compile("operator of %q must be a string", col)
			}
			return Cond(col, op, list[2]), nil
		}
	}

	items := make([]any, len(list))
	for i, item := range list {
		if i%2 == 1 {
			items[i] = item
			continue
		}
		c, err := Parse(item)
		if err != nil {
			return nil, err
		}
		items[i] = c
	}
	g, err := Chain(items...)
	if err != nil {
		return nil, err
	}
	if len(g.Terms) == 1 {
		return g.Terms[0], nil
	}
	return g, nil
}

func toConnector(v any) (Connector, error) {
	switch c := v.(type) {
	case Connector:
		v = string(c)
	case string:
	default:
		return "", fmt.Errorf("expected connector, got %T", v)
	}
	switch strings.ToUpper(v.(string)) {
	case "AND":
		return And, nil
	case "OR":
		return Or, nil
	}
	return "", fmt.Errorf("unknown connector %q", v)
}

func normalizeOp(op string) Operator {
	return Operator(strings.Join(strings.Fields(strings.ToUpper(op)), " "))
}

// Columns returns every column a condition references, Ref values included.
func Columns(c Condition) []string {
	var out []string
	var walk func(Condition)
	walk = func(c Condition) {
		switch n := c.(type) {
		case Leaf:
			out = append(out, n.Column)
			if r, ok := n.Value.(Ref); ok {
				out = append(out, string(r))
			}
		case Group:
			for _, t := range n.Terms {
				walk(t)
			}
		}
	}
	if c != nil {
		walk(c)
	}
	return out
}
