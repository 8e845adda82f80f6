package engine

import (
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/buntable/query"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Record is one stored row. ID is the primary key value, or a sequence
// number assigned at insert for tables without a primary key.
type Record struct {
	ID  any
	Row schema.Row
}

// Store is the table state a plan reads while it runs. Lookup and NextKey
// are point operations; Scan returns every record in ID order and is only
// used when a where clause has to visit the whole table.
type Store interface {
	Lookup(id any) (schema.Row, bool, error)
	NextKey() (int64, error)
	Scan() ([]Record, error)
}

// Snapshot is an immutable, ID-ordered view of one table. The key index is
// built on first lookup, so a snapshot that is only scanned never pays for it.
type Snapshot struct {
	records []Record

	once   sync.Once
	index  map[any]int
	maxInt int64
}

// NewSnapshot indexes records that arrive in no particular order. The slice
// is sorted in place and must not be modified afterwards.
func NewSnapshot(records []Record) *Snapshot {
	sortRecords(records)
	return &Snapshot{records: records}
}

func (s *Snapshot) buildIndex() {
	s.once.Do(func() {
		s.index = make(map[any]int, len(s.records))
		for i, r := range s.records {
			s.index[r.ID] = i
			if n, ok := r.ID.(int64); ok && n > s.maxInt {
				s.maxInt = n
			}
		}
	})
}

// Records returns the stored records in ID order.
func (s *Snapshot) Records() []Record { return s.records }

// Rows returns the stored rows in ID order.
func (s *Snapshot) Rows() []schema.Row { return rowsOf(s.records) }

// Len returns the number of rows.
func (s *Snapshot) Len() int { return len(s.records) }

// Get looks a row up by ID.
func (s *Snapshot) Get(id any) (schema.Row, bool) {
	s.buildIndex()
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.records[i].Row, true
}

// NextInt is the next auto-increment value: one past the largest integer ID.
func (s *Snapshot) NextInt() int64 {
	s.buildIndex()
	return s.maxInt + 1
}

func (s *Snapshot) Lookup(id any) (schema.Row, bool, error) {
	row, ok := s.Get(id)
	return row, ok, nil
}

func (s *Snapshot) NextKey() (int64, error) { return s.NextInt(), nil }

func (s *Snapshot) Scan() ([]Record, error) { return s.records, nil }

// Table is a mutable row collection keyed by ID. Lookups and updates of an
// existing ID touch only the key map; the ID order is kept incrementally, so
// inserting past the current largest ID is an append. Table is not safe for
// concurrent use; callers guard it.
type Table struct {
	rows   map[any]schema.Row
	order  []any
	maxInt int64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{rows: make(map[any]schema.Row)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Get looks a row up by ID.
func (t *Table) Get(id any) (schema.Row, bool) {
	row, ok := t.rows[id]
	return row, ok
}

// NextInt is the next auto-increment value: one past the largest integer ID.
func (t *Table) NextInt() int64 { return t.maxInt + 1 }

// Records returns the stored records in ID order. The slice is a fresh copy;
// the rows are shared and never modified in place.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.order))
	for i, id := range t.order {
		out[i] = Record{ID: id, Row: t.rows[id]}
	}
	return out
}

// Rows returns the stored rows in ID order.
func (t *Table) Rows() []schema.Row { return rowsOf(t.Records()) }

// Snapshot copies the current state into an immutable view.
func (t *Table) Snapshot() *Snapshot { return &Snapshot{records: t.Records()} }

func (t *Table) Lookup(id any) (schema.Row, bool, error) {
	row, ok := t.rows[id]
	return row, ok, nil
}

func (t *Table) NextKey() (int64, error) { return t.NextInt(), nil }

func (t *Table) Scan() ([]Record, error) { return t.Records(), nil }

// Apply writes a change set. Deletes are compacted out of the ID order in a
// single pass.
func (t *Table) Apply(cs *ChangeSet) {
	if len(cs.Deletes) > 0 {
		gone := make(map[any]struct{}, len(cs.Deletes))
		recount := false
		for _, id := range cs.Deletes {
			if _, ok := t.rows[id]; !ok {
				continue
			}
			delete(t.rows, id)
			gone[id] = struct{}{}
			if n, ok := id.(int64); ok && n == t.maxInt {
				recount = true
			}
		}
		if len(gone) > 0 {
			kept := t.order[:0]
			for _, id := range t.order {
				if _, ok := gone[id]; !ok {
					kept = append(kept, id)
				}
			}
			clear(t.order[len(kept):])
			t.order = kept
		}
		if recount {
			t.maxInt = 0
			for id := range t.rows {
				if n, ok := id.(int64); ok && n > t.maxInt {
					t.maxInt = n
				}
			}
		}
	}
	for _, r := range cs.Puts {
		t.put(r.ID, r.Row)
	}
}

func (t *Table) put(id any, row schema.Row) {
	if _, ok := t.rows[id]; !ok {
		t.insertKey(id)
	}
	t.rows[id] = row
	if n, ok := id.(int64); ok && n > t.maxInt {
		t.maxInt = n
	}
}

func (t *Table) insertKey(id any) {
	n := len(t.order)
	if n == 0 || query.CompareValues(t.order[n-1], id) < 0 {
		t.order = append(t.order, id)
		return
	}
	i := sort.Search(n, func(i int) bool {
		return query.CompareValues(t.order[i], id) > 0
	})
	t.order = append(t.order, nil)
	copy(t.order[i+1:], t.order[i:])
	t.order[i] = id
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return query.CompareValues(records[i].ID, records[j].ID) < 0
	})
}

func rowsOf(records []Record) []schema.Row {
	out := make([]schema.Row, len(records))
	for i, r := range records {
		out[i] = r.Row
	}
	return out
}
