package buntable

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/backend/memory"
	"github.com/kartikbazzad/bunbase/buntable/backend/sqlite"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

var userColumns = []Column{
	{Key: "id", Type: schema.TypeInt, Props: []string{schema.PropPK, schema.PropAI}},
	{Key: "name", Type: schema.TypeString},
	{Key: "age", Type: schema.TypeInt},
	{Key: "tags", Type: schema.Type("string[]"), Default: []any{}},
}

// forEachBackend runs fn once per built-in backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, be backend.Backend)) {
	t.Run("memory", func(t *testing.T) { fn(t, memory.New()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, sqlite.New("", false)) })
}

// open declares the users table, runs declare for anything else, and
// connects.
func open(t *testing.T, be backend.Backend, declare func(db *DB)) *DB {
	t.Helper()
	db, err := New(WithBackend(be), WithWorkers(8))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Table("users").Model(userColumns...); err != nil {
		t.Fatalf("Model failed: %v", err)
	}
	if declare != nil {
		declare(db)
	}
	if err := db.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return db
}

func mustExec(t *testing.T, q *Query) []Row {
	t.Helper()
	rows, err := q.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	return rows
}

func seedUsers(t *testing.T, users *Table) {
	t.Helper()
	for _, r := range []Row{
		{"name": "ann", "age": 31, "tags": []string{"admin"}},
		{"name": "bob", "age": 25},
		{"name": "cat", "age": 47, "tags": []string{"x", "y"}},
		{"name": "dan", "age": 19},
		{"name": "eve", "age": 38},
	} {
		mustExec(t, users.Upsert(r))
	}
}

func TestUpsertTwiceMerges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		ctx := context.Background()

		mustExec(t, users.Upsert(Row{"id": 7, "name": "ann", "age": 30}))
		mustExec(t, users.Upsert(Row{"id": "7", "age": 31}))

		rows := mustExec(t, users.Select())
		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}
		want := Row{"id": int64(7), "name": "ann", "age": int64(31), "tags": []any{}}
		if !reflect.DeepEqual(rows[0], want) {
			t.Errorf("row = %#v, want %#v", rows[0], want)
		}
		if n, err := db.Extend(ctx, "count", "users"); err != nil || n != 1 {
			t.Errorf("count = %v, %v", n, err)
		}
	})
}

func TestCSVRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		ctx := context.Background()
		seedUsers(t, users)
		mustExec(t, users.Upsert(Row{"name": "has, comma \"quoted\""}))
		before := mustExec(t, users.Select())

		text, err := users.Select().ToCSV(ctx, true)
		if err != nil {
			t.Fatalf("ToCSV failed: %v", err)
		}
		if !strings.HasPrefix(text, "id,name,age,tags\n") {
			t.Errorf("unexpected header: %q", text)
		}

		mustExec(t, users.Drop())
		res, err := users.LoadCSV(ctx, text)
		if err != nil {
			t.Fatalf("LoadCSV failed: %v", err)
		}
		if len(res.Rows) != len(before) || res.Skipped != 0 {
			t.Errorf("loaded %d rows, skipped %d", len(res.Rows), res.Skipped)
		}
		after := mustExec(t, users.Select())
		if !reflect.DeepEqual(after, before) {
			t.Errorf("round trip mismatch:\n got %v\nwant %v", after, before)
		}
	})
}

func TestDropIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		seedUsers(t, users)
		for i := 0; i < 2; i++ {
			mustExec(t, users.Drop())
			if rows := mustExec(t, users.Select()); len(rows) != 0 {
				t.Fatalf("drop #%d left %d rows", i+1, len(rows))
			}
		}
	})
}

func TestWhereTrees(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, func(db *DB) {
			if err := db.Table("ab").Model(
				Column{Key: "id", Type: schema.TypeInt, Props: []string{schema.PropPK, schema.PropAI}},
				Column{Key: "a", Type: schema.TypeInt},
				Column{Key: "b", Type: schema.TypeInt},
			); err != nil {
				t.Fatal(err)
			}
		})
		ab := db.Table("ab")
		for _, r := range [][2]int{{1, 1}, {1, 0}, {2, 5}, {2, 0}} {
			mustExec(t, ab.Upsert(Row{"a": r[0], "b": r[1]}))
		}

		and := mustExec(t, ab.Select("id").WhereList([]any{[]any{"a", "=", 1}, "and", []any{"b", ">", 0}}))
		if len(and) != 1 || and[0]["id"] != int64(1) {
			t.Errorf("and = %v, want id 1", and)
		}
		or := mustExec(t, ab.Select("id").WhereList([]any{[]any{"a", "=", 1}, "or", []any{"b", ">", 0}}))
		ids := make([]any, len(or))
		for i, r := range or {
			ids[i] = r["id"]
		}
		if !reflect.DeepEqual(ids, []any{int64(1), int64(2), int64(3)}) {
			t.Errorf("or ids = %v, want [1 2 3]", ids)
		}

		if _, err := ab.Select().WhereList([]any{"a", "~", 1}).Exec(context.Background()); !errors.Is(err, errors.KindCompile) {
			t.Errorf("bad operator: expected QueryCompileError, got %v", err)
		}
	})
}

func TestJoin(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, func(db *DB) {
			db.Table("a").Model(Column{Key: "id", Type: schema.TypeInt, Props: []string{schema.PropPK}})
			db.Table("b").Model(
				Column{Key: "id", Type: schema.TypeInt, Props: []string{schema.PropPK, schema.PropAI}},
				Column{Key: "aid", Type: schema.TypeInt},
				Column{Key: "val", Type: schema.TypeString},
			)
		})
		a, b := db.Table("a"), db.Table("b")
		mustExec(t, a.Upsert(Row{"id": 1}))
		mustExec(t, a.Upsert(Row{"id": 2}))
		mustExec(t, b.Upsert(Row{"aid": 1, "val": "x"}))
		on := query.Cond("a.id", "=", query.Ref("b.aid"))

		inner := mustExec(t, a.Select().Join(query.InnerJoin, "b", on))
		if len(inner) != 1 || inner[0]["a.id"] != int64(1) || inner[0]["b.val"] != "x" {
			t.Errorf("inner join = %v", inner)
		}

		left := mustExec(t, a.Select().Join(query.LeftJoin, "b", on))
		if len(left) != 2 {
			t.Fatalf("left join returned %d rows, want 2", len(left))
		}
		if left[1]["a.id"] != int64(2) || left[1]["b.val"] != nil {
			t.Errorf("unmatched left row = %v", left[1])
		}

		text, err := a.Select().Join(query.LeftJoin, "b", on).ToCSV(context.Background(), true)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(text, "a.id,b.id,b.aid,b.val\n") {
			t.Errorf("joined CSV header: %q", text)
		}

		_, err = a.Select().
			Join(query.InnerJoin, "b", on).
			Join(query.LeftJoin, "b", on).
			Exec(context.Background())
		if !errors.Is(err, errors.KindCompile) {
			t.Errorf("second join: expected QueryCompileError, got %v", err)
		}

		_, err = a.Select().Join(query.InnerJoin, "b", query.Cond("id", "=", query.Ref("b.aid"))).Exec(context.Background())
		if !errors.Is(err, errors.KindCompile) {
			t.Errorf("unqualified column: expected QueryCompileError, got %v", err)
		}
	})
}

func TestOrderLimitOffset(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		seedUsers(t, users)

		rows := mustExec(t, users.Select("name", "age").OrderBy(query.Desc("age")).Limit(2).Offset(1))
		want := []Row{{"name": "eve", "age": int64(38)}, {"name": "ann", "age": int64(31)}}
		if !reflect.DeepEqual(rows, want) {
			t.Errorf("rows = %v, want %v", rows, want)
		}

		// modifiers apply in a fixed order whatever the chain order
		rows = mustExec(t, users.Select("name").Offset(1).Limit(2).OrderBy(query.Desc("age")))
		if len(rows) != 2 || rows[0]["name"] != "eve" {
			t.Errorf("reordered chain = %v", rows)
		}

		if _, err := users.Select().Limit(-1).Exec(context.Background()); !errors.Is(err, errors.KindCompile) {
			t.Errorf("negative limit: expected QueryCompileError, got %v", err)
		}
	})
}

func TestConcurrentExec(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		g, ctx := errgroup.WithContext(context.Background())
		for i := 1; i <= 20; i++ {
			g.Go(func() error {
				if _, err := users.Upsert(Row{"id": i, "name": fmt.Sprint("u", i), "age": i}).Exec(ctx); err != nil {
					return err
				}
				rows, err := users.Select().Where(query.Cond("id", "=", i)).Exec(ctx)
				if err != nil {
					return err
				}
				if len(rows) != 1 || rows[0]["name"] != fmt.Sprint("u", i) || rows[0]["age"] != int64(i) {
					return fmt.Errorf("read after write saw %v", rows)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
		if rows := mustExec(t, users.Select().Filter("count")); rows[0]["count"] != int64(20) {
			t.Errorf("count = %v, want 20", rows[0]["count"])
		}
	})
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) names() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func TestEvents(t *testing.T) {
	db := open(t, memory.New(), nil)
	users := db.Table("users")
	ctx := context.Background()

	all := &recorder{}
	l := users.On(all.add)
	errs := &recorder{}
	users.On(errs.add, EventError)

	mustExec(t, users.Upsert(Row{"name": "ann"}))
	mustExec(t, users.Select())
	users.Select("nope").Exec(ctx)

	want := []EventKind{EventUpsert, EventChange, EventSelect, EventError}
	if got := all.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	up := all.events[0]
	if up.Table != "users" || up.ChangeType != query.Upsert || len(up.Changed) != 1 || up.Changed[0]["name"] != "ann" {
		t.Errorf("upsert event = %+v", up)
	}
	if len(errs.events) != 1 || !errors.Is(errs.events[0].Err, errors.KindSchema) {
		t.Errorf("error events = %+v", errs.events)
	}

	if !users.Off(l) || users.Off(l) {
		t.Error("Off should succeed exactly once")
	}
	mustExec(t, users.Drop())
	if len(all.names()) != 4 {
		t.Errorf("removed listener still notified: %v", all.names())
	}
}

func TestListenerPanic(t *testing.T) {
	db := open(t, memory.New(), nil)
	users := db.Table("users")
	errs := &recorder{}
	users.On(func(Event) { panic("listener bug") }, EventSelect)
	users.On(errs.add, EventError)

	if _, err := users.Select().Exec(context.Background()); err != nil {
		t.Fatalf("a panicking listener must not fail the exec: %v", err)
	}
	if len(errs.events) != 1 || !strings.Contains(errs.events[0].Err.Error(), "listener bug") {
		t.Errorf("error events = %+v", errs.events)
	}
}

func TestListenersGetPrivateRows(t *testing.T) {
	db := open(t, memory.New(), nil)
	users := db.Table("users")
	users.On(func(ev Event) {
		for _, r := range ev.Result {
			r["name"] = "scribbled"
			r["tags"].([]any)[0] = "scribbled"
		}
	}, EventUpsert, EventSelect)
	var seen []string
	users.On(func(ev Event) {
		for _, r := range ev.Result {
			seen = append(seen, r["name"].(string))
		}
	}, EventSelect)

	res, err := users.Upsert(Row{"name": "ann", "tags": []string{"a"}}).ExecAsync(context.Background()).Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows[0]["name"] != "ann" {
		t.Errorf("upsert result changed by a listener: %v", res.Rows[0])
	}
	rows := mustExec(t, users.Select())
	if rows[0]["name"] != "ann" || rows[0]["tags"].([]any)[0] != "a" {
		t.Errorf("select result changed by a listener: %v", rows[0])
	}
	if len(seen) != 1 || seen[0] != "ann" {
		t.Errorf("second listener saw %v", seen)
	}
}

func TestLargeIntegerKeys(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		const big = int64(1) << 53
		mustExec(t, users.Upsert(Row{"id": big, "name": "a"}))
		mustExec(t, users.Upsert(Row{"id": big + 1, "name": "b"}))

		rows := mustExec(t, users.Select())
		if len(rows) != 2 || rows[0]["id"] != big || rows[1]["id"] != big+1 {
			t.Fatalf("rows = %v", rows)
		}
		rows = mustExec(t, users.Select().Where(query.Cond("id", "=", big+1)))
		if len(rows) != 1 || rows[0]["name"] != "b" {
			t.Errorf("select by key = %v", rows)
		}
	})
}

func TestActionsAndViews(t *testing.T) {
	var seen []string
	db := open(t, memory.New(), func(db *DB) {
		users := db.Table("users")
		err := users.Actions(Procedure{
			Name: "birthday",
			Args: []string{"id:int", "years?:int"},
			Call: func(ctx context.Context, t *Table, args Args) (any, error) {
				rows, err := t.Select("age").Where(query.Cond("id", "=", args["id"])).Exec(ctx)
				if err != nil || len(rows) == 0 {
					return nil, err
				}
				add := int64(1)
				if y, ok := args["years"].(int64); ok {
					add = y
				}
				return t.Upsert(Row{"id": args["id"], "age": rows[0]["age"].(int64) + add}).Exec(ctx)
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		err = users.Views(Procedure{
			Name: "older",
			Args: []string{"min:int"},
			Call: func(ctx context.Context, t *Table, args Args) (any, error) {
				return t.Select("name").Where(query.Cond("age", ">", args["min"])).OrderBy(query.Asc("age")).Exec(ctx)
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		users.On(func(ev Event) { seen = append(seen, ev.Procedure) }, EventUpsert)
	})
	users := db.Table("users")
	ctx := context.Background()
	seedUsers(t, users)
	seen = nil

	if _, err := users.DoAction(ctx, "birthday", "2", 5); err != nil {
		t.Fatalf("DoAction failed: %v", err)
	}
	if _, err := users.DoAction(ctx, "birthday", 2); err != nil {
		t.Fatalf("DoAction failed: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"birthday", "birthday"}) {
		t.Errorf("procedure on events = %v", seen)
	}

	out, err := users.GetView(ctx, "older", "30")
	if err != nil {
		t.Fatalf("GetView failed: %v", err)
	}
	rows := out.([]Row)
	var names []string
	for _, r := range rows {
		names = append(names, r["name"].(string))
	}
	if strings.Join(names, ",") != "ann,bob,eve,cat" {
		t.Errorf("older than 30 = %v", names)
	}

	if got := users.ActionNames(); !reflect.DeepEqual(got, []string{"birthday"}) {
		t.Errorf("ActionNames = %v", got)
	}
	if got := users.ViewNames(); !reflect.DeepEqual(got, []string{"older"}) {
		t.Errorf("ViewNames = %v", got)
	}

	tests := []struct {
		name string
		call func() error
		kind errors.Kind
	}{
		{"missing argument", func() error { _, err := users.DoAction(ctx, "birthday"); return err }, errors.KindCompile},
		{"too many arguments", func() error { _, err := users.DoAction(ctx, "birthday", 1, 2, 3); return err }, errors.KindCompile},
		{"uncoercible argument", func() error { _, err := users.GetView(ctx, "older", "many"); return err }, errors.KindCoercion},
		{"unknown action", func() error { _, err := users.DoAction(ctx, "nope"); return err }, errors.KindSchema},
		{"view is not an action", func() error { _, err := users.DoAction(ctx, "older", 1); return err }, errors.KindSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestProcedureDeclarationErrors(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	users := db.Table("users")
	noop := func(context.Context, *Table, Args) (any, error) { return nil, nil }

	bad := []Procedure{
		{Name: "", Call: noop},
		{Name: "x"},
		{Name: "x", Args: []string{"a", "a"}, Call: noop},
		{Name: "x", Args: []string{"a:weird"}, Call: noop},
	}
	for _, p := range bad {
		if err := users.Actions(p); !errors.Is(err, errors.KindSchema) {
			t.Errorf("Actions(%+v): expected SchemaError, got %v", p, err)
		}
	}
	if err := users.Actions(Procedure{Name: "x", Call: noop}); err != nil {
		t.Fatal(err)
	}
	if err := users.Actions(Procedure{Name: "x", Call: noop}); !errors.Is(err, errors.KindSchema) {
		t.Errorf("duplicate action: expected SchemaError, got %v", err)
	}
}

func TestBulkLoads(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be backend.Backend) {
		db := open(t, be, nil)
		users := db.Table("users")
		ctx := context.Background()

		res, err := users.LoadJS(ctx, []map[string]any{
			{"id": 1, "name": "ann", "extra": "ignored"},
			{"id": "x", "name": "bad key"},
			{"id": 3, "name": "cat", "age": "old"},
		})
		if err == nil {
			t.Fatal("expected an error for the row with a bad key")
		}
		if !strings.Contains(err.Error(), "row 1") {
			t.Errorf("error does not name the skipped row: %v", err)
		}
		if len(res.Rows) != 2 || res.Skipped != 1 || len(res.Issues) != 1 {
			t.Errorf("LoadJS result: rows=%d skipped=%d issues=%d", len(res.Rows), res.Skipped, len(res.Issues))
		}
		if _, ok := res.Rows[0]["extra"]; ok {
			t.Error("undeclared column was stored")
		}

		res, err = users.LoadCSV(ctx, "id,name,age\n10,jo,30\n11,al\n12,ed,40\n")
		if err == nil {
			t.Fatal("expected an error for the short record")
		}
		if len(res.Rows) != 2 || res.Skipped != 1 {
			t.Errorf("LoadCSV result: rows=%d skipped=%d", len(res.Rows), res.Skipped)
		}

		res, err = users.LoadCSV(ctx, "id,name\n20,ok\n")
		if err != nil || len(res.Rows) != 1 {
			t.Errorf("clean LoadCSV: rows=%v err=%v", res, err)
		}
		if rows := mustExec(t, users.Select().Filter("count")); rows[0]["count"] != int64(5) {
			t.Errorf("count = %v, want 5", rows[0]["count"])
		}
	})
}

func TestFilters(t *testing.T) {
	db := open(t, memory.New(), func(db *DB) {
		err := db.AddFilter("names", func(rows []Row, args ...any) ([]Row, error) {
			out := make([]Row, len(rows))
			for i, r := range rows {
				out[i] = Row{"name": r["name"]}
			}
			return out, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := db.Table("users").AlwaysApplyFilter("names"); err != nil {
			t.Fatal(err)
		}
	})
	users := db.Table("users")
	seedUsers(t, users)

	rows := mustExec(t, users.Select().Filter("expr", "row.age < 30"))
	want := []Row{{"name": "bob"}, {"name": "dan"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}

	// always-apply filters run on selects only
	changed := mustExec(t, users.Upsert(Row{"id": 1, "age": 32}))
	if changed[0]["age"] != int64(32) {
		t.Errorf("upsert result = %v", changed)
	}

	if _, err := users.Select().Filter("nope").Exec(context.Background()); !errors.Is(err, errors.KindCompile) {
		t.Errorf("unknown filter: expected QueryCompileError, got %v", err)
	}
	if err := db.AddFilter("late", nil); err != errors.ErrAlreadyConnected {
		t.Errorf("AddFilter after Connect = %v", err)
	}
}

func TestRowFilter(t *testing.T) {
	db := open(t, memory.New(), func(db *DB) {
		db.Table("users").RowFilter(func(r Row) Row {
			r["name"] = strings.ToUpper(fmt.Sprint(r["name"]))
			return r
		})
	})
	rows := mustExec(t, db.Table("users").Upsert(Row{"name": "ann"}))
	if rows[0]["name"] != "ANN" {
		t.Errorf("row filter not applied: %v", rows[0])
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	db, err := New()
	if err != nil {
		t.Fatal(err)
	}
	users := db.Table("users")
	if err := users.Model(userColumns...); err != nil {
		t.Fatal(err)
	}
	if err := users.Model(userColumns...); !errors.Is(err, errors.KindSchema) {
		t.Errorf("second Model: expected SchemaError, got %v", err)
	}
	if _, err := users.Select().Exec(ctx); err != errors.ErrNotConnected {
		t.Errorf("exec before Connect = %v, want ErrNotConnected", err)
	}

	if err := db.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := db.Connect(ctx); err != errors.ErrAlreadyConnected {
		t.Errorf("second Connect = %v", err)
	}
	if err := db.Table("late").Model(userColumns...); err != errors.ErrAlreadyConnected {
		t.Errorf("Model after Connect = %v", err)
	}
	if _, err := db.Table("ghosts").Select().Exec(ctx); !stderrors.Is(err, errors.ErrUnknownTable) {
		t.Errorf("unknown table = %v", err)
	}
	if got := db.Tables(); !reflect.DeepEqual(got, []string{"users"}) {
		t.Errorf("Tables = %v", got)
	}

	q := users.Select()
	if _, err := q.Exec(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Exec(ctx); !errors.Is(err, errors.KindCompile) {
		t.Errorf("consumed chain: expected QueryCompileError, got %v", err)
	}
	if _, err := q.Reuse(query.Select, "name").Exec(ctx); err != nil {
		t.Errorf("Reuse failed: %v", err)
	}
	if _, err := users.Query(query.Upsert).Exec(ctx); !errors.Is(err, errors.KindCompile) {
		t.Errorf("upsert without row: expected QueryCompileError, got %v", err)
	}
	if _, err := users.Query(query.Drop, "x").Exec(ctx); !errors.Is(err, errors.KindCompile) {
		t.Errorf("drop with argument: expected QueryCompileError, got %v", err)
	}

	p := users.Upsert(Row{"name": "zoe"}).ExecAsync(ctx)
	first, err := p.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := p.Wait(ctx)
	if first != second || len(first.Changed) != 1 {
		t.Errorf("Pending resolved twice or without a changed row")
	}

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := users.Select().Exec(ctx); err != errors.ErrClosed {
		t.Errorf("exec after Close = %v, want ErrClosed", err)
	}
}

func TestConnectRequiresModels(t *testing.T) {
	db, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.Table("users").Model(userColumns...)
	db.Table("orphans").AlwaysApplyFilter("count")
	if err := db.Connect(context.Background()); !errors.Is(err, errors.KindSchema) {
		t.Errorf("table without model: expected SchemaError, got %v", err)
	}
}
