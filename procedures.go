package buntable

import (
	"context"
	"sort"
	"strings"

	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Args are the coerced arguments of a procedure call, by declared name.
type Args map[string]any

// Procedure is a named stored procedure bound to a table. Args declares the
// positional arguments as "name" or "name:type"; a trailing "?" on the
// name ("limit?:int") makes the argument optional. Call may issue further
// queries through t.
type Procedure struct {
	Name string
	Args []string
	Call func(ctx context.Context, t *Table, args Args) (any, error)
}

type param struct {
	name     string
	typ      schema.Type
	optional bool
}

func parseParams(p *Procedure) ([]param, error) {
	out := make([]param, 0, len(p.Args))
	seen := make(map[string]bool)
	for _, a := range p.Args {
		name, typ, _ := strings.Cut(a, ":")
		name = strings.TrimSpace(name)
		pr := param{typ: schema.Type(strings.TrimSpace(typ))}
		if strings.HasSuffix(name, "?") {
			pr.optional = true
			name = strings.TrimSuffix(name, "?")
		}
		if name == "" {
			return nil, errors.Schema("procedure %q: argument without a name", p.Name)
		}
		if seen[name] {
			return nil, errors.Schema("procedure %q: duplicate argument %q", p.Name, name)
		}
		if pr.typ == "" {
			pr.typ = schema.TypeAny
		}
		if !pr.typ.Known() {
			return nil, errors.Schema("procedure %q: argument %q has unknown type %q", p.Name, name, pr.typ)
		}
		seen[name] = true
		pr.name = name
		out = append(out, pr)
	}
	return out, nil
}

func (p *Procedure) bind(params []param, values []any) (Args, error) {
	if len(values) > len(params) {
		return nil, errors.Compile("%s takes %d arguments, got %d", p.Name, len(params), len(values))
	}
	args := make(Args, len(params))
	for i, pr := range params {
		if i >= len(values) {
			if !pr.optional {
				return nil, errors.Compile("%s: missing argument %q", p.Name, pr.name)
			}
			args[pr.name] = nil
			continue
		}
		v, err := schema.Coerce(pr.typ, values[i])
		if err != nil {
			return nil, errors.Coercion(err, "%s: argument %q is not %s", p.Name, pr.name, pr.typ)
		}
		args[pr.name] = v
	}
	return args, nil
}

// Actions declares the table's actions. Before Connect only.
func (t *Table) Actions(procs ...Procedure) error {
	return t.register(procs, func(d *tableDecl) map[string]*Procedure { return d.actions })
}

// Views declares the table's views. Views are expected not to mutate data;
// nothing enforces it.
func (t *Table) Views(procs ...Procedure) error {
	return t.register(procs, func(d *tableDecl) map[string]*Procedure { return d.views })
}

func (t *Table) register(procs []Procedure, pick func(*tableDecl) map[string]*Procedure) error {
	for i := range procs {
		if procs[i].Name == "" || procs[i].Call == nil {
			return errors.Schema("table %q: procedure needs a name and a body", t.name)
		}
		if _, err := parseParams(&procs[i]); err != nil {
			return err
		}
	}
	return t.db.declare(t.name, func(d *tableDecl) error {
		m := pick(d)
		for i := range procs {
			if _, dup := m[procs[i].Name]; dup {
				return errors.Schema("table %q: procedure %q is already declared", t.name, procs[i].Name)
			}
		}
		for i := range procs {
			p := procs[i]
			m[p.Name] = &p
		}
		return nil
	})
}

// DoAction calls an action with positional arguments.
func (t *Table) DoAction(ctx context.Context, name string, args ...any) (any, error) {
	return t.call(ctx, "action", name, args, func(d *tableDecl) map[string]*Procedure { return d.actions })
}

// GetView calls a view with positional arguments.
func (t *Table) GetView(ctx context.Context, name string, args ...any) (any, error) {
	return t.call(ctx, "view", name, args, func(d *tableDecl) map[string]*Procedure { return d.views })
}

func (t *Table) call(ctx context.Context, kind, name string, values []any, pick func(*tableDecl) map[string]*Procedure) (any, error) {
	d, err := t.db.state(t.name)
	if err != nil {
		return nil, err
	}
	p, ok := pick(d)[name]
	if !ok {
		return nil, errors.Schema("table %q has no %s %q", t.name, kind, name)
	}
	params, err := parseParams(p)
	if err != nil {
		return nil, err
	}
	args, err := p.bind(params, values)
	if err != nil {
		return nil, err
	}
	return p.Call(withProcedure(ctx, name), t, args)
}

// ActionNames lists the declared actions, sorted.
func (t *Table) ActionNames() []string {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if d, ok := t.db.tables[t.name]; ok {
		return procNames(d.actions)
	}
	return nil
}

// ViewNames lists the declared views, sorted.
func (t *Table) ViewNames() []string {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if d, ok := t.db.tables[t.name]; ok {
		return procNames(d.views)
	}
	return nil
}

func procNames(m map[string]*Procedure) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
