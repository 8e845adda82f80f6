package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

func model(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.NewModel("notes", []schema.Column{
		{Key: "id", Type: schema.TypeUUID, Props: []string{schema.PropPK}},
		{Key: "title", Type: schema.TypeString},
		{Key: "tags", Type: schema.Type("string[]"), Default: []any{}},
		{Key: "meta", Type: schema.TypeMap},
		{Key: "views", Type: schema.TypeInt, Default: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func open(t *testing.T, b *Backend, m *schema.Model) {
	t.Helper()
	err := b.Connect(context.Background(), backend.ConnectConfig{Models: map[string]*schema.Model{m.Table: m}})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

func exec(t *testing.T, b *Backend, m *schema.Model, q *query.Query) *backend.Response {
	t.Helper()
	q.Table = m.Table
	resp, err := b.Exec(context.Background(), &backend.Request{Table: m.Table, Query: q, Model: m})
	if err != nil {
		t.Fatalf("Exec %s failed: %v", q.Action, err)
	}
	return resp
}

func TestInMemory(t *testing.T) {
	m := model(t)
	b := New("", false)
	open(t, b, m)
	defer b.Close()

	if p, _ := b.Extend(context.Background(), "path"); p != ":memory:" {
		t.Errorf("path = %v", p)
	}

	resp := exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{
		"title": "hello",
		"tags":  []string{"x", "y"},
		"meta":  map[string]any{"k": "v"},
	}})
	id := resp.Changed[0]["id"].(string)
	if !schema.IsUUID(id) {
		t.Fatalf("generated id %q is not a uuid", id)
	}

	exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{"id": id, "views": "3"}})
	rows := exec(t, b, m, &query.Query{Action: query.Select}).Rows
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r["title"] != "hello" || r["views"] != int64(3) {
		t.Errorf("row = %v", r)
	}
	if tags, ok := r["tags"].([]any); !ok || len(tags) != 2 || tags[1] != "y" {
		t.Errorf("tags = %#v", r["tags"])
	}
	if meta, ok := r["meta"].(map[string]any); !ok || meta["k"] != "v" {
		t.Errorf("meta = %#v", r["meta"])
	}

	exec(t, b, m, &query.Query{Action: query.Delete, Where: query.Cond("id", "=", id)})
	if n, _ := b.Extend(context.Background(), "count", "notes"); n != 0 {
		t.Errorf("count after delete = %v", n)
	}
}

func TestPersistentReopen(t *testing.T) {
	m := model(t)
	path := filepath.Join(t.TempDir(), "notes.db")

	b := New(path, true)
	open(t, b, m)
	for _, title := range []string{"one", "two", "three"} {
		exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{"title": title}})
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b2 := New(path, true)
	open(t, b2, m)
	defer b2.Close()
	rows := exec(t, b2, m, &query.Query{Action: query.Select, OrderBy: []query.Order{query.Asc("title")}}).Rows
	if len(rows) != 3 || rows[0]["title"] != "one" || rows[2]["title"] != "two" {
		t.Fatalf("rows after reopen = %v", rows)
	}
	if p, _ := b2.Extend(context.Background(), "path"); p != path {
		t.Errorf("path = %v, want %s", p, path)
	}
	if _, err := b2.Extend(context.Background(), "vacuum"); err != nil {
		t.Errorf("vacuum failed: %v", err)
	}
}

func TestConnectConfigOverrides(t *testing.T) {
	m := model(t)
	path := filepath.Join(t.TempDir(), "cfg.db")
	b := New("", false)
	err := b.Connect(context.Background(), backend.ConnectConfig{
		Models: map[string]*schema.Model{m.Table: m},
		Config: map[string]any{"path": path, "persistent": "true"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Path() != path {
		t.Errorf("Path = %q, want %q", b.Path(), path)
	}
	if err := b.Connect(context.Background(), backend.ConnectConfig{}); err != errors.ErrAlreadyConnected {
		t.Errorf("second Connect: got %v, want ErrAlreadyConnected", err)
	}
}

func TestNotConnected(t *testing.T) {
	m := model(t)
	b := New("", false)
	_, err := b.Exec(context.Background(), &backend.Request{Table: "notes", Query: &query.Query{Table: "notes", Action: query.Select}, Model: m})
	if err != errors.ErrNotConnected {
		t.Errorf("Exec before Connect: got %v, want ErrNotConnected", err)
	}
}

func countersModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.NewModel("counters", []schema.Column{
		{Key: "id", Type: schema.TypeInt, Props: []string{schema.PropPK, schema.PropAI}},
		{Key: "n", Type: schema.TypeInt},
		{Key: "samples", Type: schema.Type("int[]"), Default: []any{}},
		{Key: "raw", Type: schema.TypeMap},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestLargeIntegersRoundTrip(t *testing.T) {
	m := countersModel(t)
	b := New("", false)
	open(t, b, m)
	defer b.Close()

	const big = int64(1) << 53
	exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{"id": big, "n": big}})
	exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{
		"id":      big + 1,
		"n":       big + 1,
		"samples": []any{big + 1},
		"raw":     map[string]any{"k": big + 1},
	}})

	rows := exec(t, b, m, &query.Query{Action: query.Select}).Rows
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["id"] != big || rows[1]["id"] != big+1 {
		t.Fatalf("ids = %v, %v", rows[0]["id"], rows[1]["id"])
	}
	if rows[1]["n"] != big+1 {
		t.Errorf("n = %v, want %d", rows[1]["n"], big+1)
	}
	if s := rows[1]["samples"].([]any); s[0] != big+1 {
		t.Errorf("samples = %v", s)
	}
	if raw := rows[1]["raw"].(map[string]any); raw["k"] != big+1 {
		t.Errorf("raw = %#v", raw)
	}

	// merging by the larger key must not touch its neighbour
	exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{"id": big + 1, "n": 7}})
	rows = exec(t, b, m, &query.Query{Action: query.Select, Where: query.Cond("id", "=", big)}).Rows
	if len(rows) != 1 || rows[0]["n"] != big {
		t.Errorf("row %d = %v", big, rows)
	}
	if n, _ := b.Extend(context.Background(), "count", "counters"); n != 2 {
		t.Errorf("count = %v, want 2", n)
	}

	resp := exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{"n": 1}})
	if resp.Changed[0]["id"] != big+2 {
		t.Errorf("generated id = %v, want %d", resp.Changed[0]["id"], big+2)
	}
}

func TestTxStorePointReads(t *testing.T) {
	m := countersModel(t)
	b := New("", false)
	open(t, b, m)
	defer b.Close()
	ctx := context.Background()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := &txStore{ctx: ctx, tx: tx, model: m}
	if next, err := s.NextKey(); err != nil || next != 1 {
		t.Errorf("NextKey on empty table = %d, %v", next, err)
	}
	tx.Rollback()

	exec(t, b, m, &query.Query{Action: query.Upsert, Row: map[string]any{"id": 7, "n": 1}})

	tx, err = b.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	s = &txStore{ctx: ctx, tx: tx, model: m}
	if next, err := s.NextKey(); err != nil || next != 8 {
		t.Errorf("NextKey = %d, %v; want 8", next, err)
	}
	row, ok, err := s.Lookup(int64(7))
	if err != nil || !ok || row["n"] != int64(1) {
		t.Errorf("Lookup(7) = %v, %v, %v", row, ok, err)
	}
	if _, ok, err := s.Lookup(int64(8)); err != nil || ok {
		t.Errorf("Lookup(8) = %v, %v; want missing", ok, err)
	}
}
