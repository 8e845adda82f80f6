package filter

import (
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Count returns {"count": n}. With a column argument only rows holding a
// value in that column are counted.
func Count(rows []schema.Row, args ...any) ([]schema.Row, error) {
	if len(args) == 0 {
		return []schema.Row{{"count": int64(len(rows))}}, nil
	}
	if err := requireColumn(args); err != nil {
		return nil, err
	}
	col := args[0].(string)
	var n int64
	for _, r := range rows {
		if r[col] != nil {
			n++
		}
	}
	return []schema.Row{{"count": n}}, nil
}

// Sum returns {"sum": total} over the numeric values of a column.
func Sum(rows []schema.Row, args ...any) ([]schema.Row, error) {
	if err := requireColumn(args); err != nil {
		return nil, err
	}
	total, _ := sum(rows, args[0].(string))
	return []schema.Row{{"sum": total}}, nil
}

// Average returns {"average": mean}; the mean of no values is nil.
func Average(rows []schema.Row, args ...any) ([]schema.Row, error) {
	if err := requireColumn(args); err != nil {
		return nil, err
	}
	total, n := sum(rows, args[0].(string))
	if n == 0 {
		return []schema.Row{{"average": nil}}, nil
	}
	return []schema.Row{{"average": total / float64(n)}}, nil
}

// Min returns {"min": v}, ignoring missing values.
func Min(rows []schema.Row, args ...any) ([]schema.Row, error) {
	if err := requireColumn(args); err != nil {
		return nil, err
	}
	return []schema.Row{{"min": extreme(rows, args[0].(string), -1)}}, nil
}

// Max returns {"max": v}, ignoring missing values.
func Max(rows []schema.Row, args ...any) ([]schema.Row, error) {
	if err := requireColumn(args); err != nil {
		return nil, err
	}
	return []schema.Row{{"max": extreme(rows, args[0].(string), 1)}}, nil
}

func sum(rows []schema.Row, col string) (float64, int) {
	var total float64
	var n int
	for _, r := range rows {
		v, err := schema.Coerce(schema.TypeFloat, r[col])
		if err != nil || v == nil {
			continue
		}
		total += v.(float64)
		n++
	}
	return total, n
}

func extreme(rows []schema.Row, col string, sign int) any {
	var best any
	for _, r := range rows {
		v := r[col]
		if v == nil {
			continue
		}
		if best == nil || query.CompareValues(v, best)*sign > 0 {
			best = v
		}
	}
	return best
}

func requireColumn(args []any) error {
	if len(args) != 1 {
		return errors.Compile("filter needs exactly one column argument, got %d", len(args))
	}
	if _, ok := args[0].(string); !ok {
		return errors.Compile("filter column must be a string, got %T", args[0])
	}
	return nil
}

func optionalColumn(args []any) error {
	if len(args) == 0 {
		return nil
	}
	return requireColumn(args)
}
