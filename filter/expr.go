package filter

import (
	"fmt"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

const defaultExprCacheSize = 256

// ExprEngine compiles and evaluates CEL row expressions such as
// `row.age > 30 && row.name.startsWith("A")`. The evaluated row is bound to
// the variable `row`.
type ExprEngine struct {
	env   *cel.Env
	cache *lru.Cache[string, cel.Program]
}

// NewExprEngine creates an engine caching up to cacheSize compiled programs.
func NewExprEngine(cacheSize int) (*ExprEngine, error) {
	if cacheSize <= 0 {
		cacheSize = defaultExprCacheSize
	}
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("expr environment: %w", err)
	}
	cache, err := lru.New[string, cel.Program](cacheSize)
	if err != nil {
		return nil, err
	}
	return &ExprEngine{env: env, cache: cache}, nil
}

// Program returns the compiled program for expression, compiling it on a
// cache miss.
func (e *ExprEngine) Program(expression string) (cel.Program, error) {
	if prg, ok := e.cache.Get(expression); ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.New(errors.KindCompile, fmt.Sprintf("expression %q", expression), issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.New(errors.KindCompile, fmt.Sprintf("expression %q", expression), err)
	}
	e.cache.Add(expression, prg)
	return prg, nil
}

// Match evaluates a compiled program against row. Rows on which evaluation
// fails (a missing key, a type mismatch) do not match.
func (e *ExprEngine) Match(prg cel.Program, row schema.Row) (bool, error) {
	out, _, err := prg.Eval(map[string]any{"row": map[string]any(row)})
	if err != nil {
		return false, nil
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Compile("expression must return a boolean, got %T", out.Value())
	}
	return result, nil
}

// Check validates the arguments of an expr filter call.
func (e *ExprEngine) Check(args []any) error {
	if len(args) != 1 {
		return errors.Compile("expr filter needs exactly one expression, got %d arguments", len(args))
	}
	expression, ok := args[0].(string)
	if !ok {
		return errors.Compile("expr filter needs a string expression, got %T", args[0])
	}
	_, err := e.Program(expression)
	return err
}

// Filter keeps the rows for which the expression in args[0] is true.
func (e *ExprEngine) Filter(rows []schema.Row, args ...any) ([]schema.Row, error) {
	if err := e.Check(args); err != nil {
		return nil, err
	}
	prg, err := e.Program(args[0].(string))
	if err != nil {
		return nil, err
	}
	out := make([]schema.Row, 0, len(rows))
	for _, r := range rows {
		ok, err := e.Match(prg, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
