package memory

import (
	"sync"

	"github.com/kartikbazzad/bunbase/buntable/internal/engine"
	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// table owns the rows of one declared table.
//
// Mutations hold mu for writing and update the keyed store in place, so one
// upsert by primary key touches only that key. Reads take a copy of the ID
// order under the read lock and then run without holding it; stored rows
// are replaced, never modified, so the copy stays consistent.
type table struct {
	model *schema.Model
	mu    sync.RWMutex
	data  *engine.Table
}

func newTable(model *schema.Model) *table {
	return &table{model: model, data: engine.NewTable()}
}

// snapshot copies the current state for a reader.
func (t *table) snapshot() *engine.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.Snapshot()
}

func (t *table) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data.Len()
}
