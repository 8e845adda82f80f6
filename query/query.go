package query

// Action is the base operation of a query.
type Action string

const (
	Select Action = "select"
	Upsert Action = "upsert"
	Delete Action = "delete"
	Drop   Action = "drop"
)

// Valid reports whether a is one of the four base operations.
func (a Action) Valid() bool {
	switch a {
	case Select, Upsert, Delete, Drop:
		return true
	}
	return false
}

// Mutates reports whether a changes table state.
func (a Action) Mutates() bool {
	return a == Upsert || a == Delete || a == Drop
}

// StepKind names a step of a compiled query.
type StepKind string

const (
	StepAction  StepKind = "action"
	StepWhere   StepKind = "where"
	StepOrderBy StepKind = "orderBy"
	StepJoin    StepKind = "join"
	StepLimit   StepKind = "limit"
	StepOffset  StepKind = "offset"
	StepFilter  StepKind = "filter"
)

// Step is one call of a builder chain, in call order.
type Step struct {
	Kind StepKind
	Args any
}

// Order is one sort key.
type Order struct {
	Column string
	Desc   bool
}

// Asc sorts column ascending.
func Asc(column string) Order { return Order{Column: column} }

// Desc sorts column descending.
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// JoinType selects the join algorithm.
type JoinType string

const (
	LeftJoin  JoinType = "left"
	RightJoin JoinType = "right"
	InnerJoin JoinType = "inner"
	CrossJoin JoinType = "cross"
)

// Valid reports whether t is a known join type.
func (t JoinType) Valid() bool {
	switch t {
	case LeftJoin, RightJoin, InnerJoin, CrossJoin:
		return true
	}
	return false
}

// JoinSpec joins the query table with Table under On. Column references in
// On, and everywhere else in a joined query, are dot-qualified (table.column).
type JoinSpec struct {
	Type  JoinType
	Table string
	On    Condition
}

// FilterCall is one entry of the post-processing pipeline.
type FilterCall struct {
	Name string
	Args []any
}

// Query is the compiled query descriptor handed to a backend. Steps keeps
// the chain as written; the remaining fields are the normalized view the
// engine evaluates in its fixed order: join, where, orderBy, offset/limit,
// projection, filters.
type Query struct {
	Table   string
	Action  Action
	Columns []string       // select projection or delete column list
	Row     map[string]any // upsert argument
	Where   Condition
	OrderBy []Order
	Join    *JoinSpec
	Joins   int // number of join calls on the chain
	Limit   int // 0 means no limit
	Offset  int
	Filters []FilterCall
	Steps   []Step
}

// HasJoin reports whether a join target is attached.
func (q *Query) HasJoin() bool {
	return q.Join != nil
}
