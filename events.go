package buntable

import (
	"fmt"
	"time"

	"github.com/kartikbazzad/bunbase/buntable/internal/broker"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
	"github.com/kartikbazzad/bunbase/buntable/internal/metrics"
	"github.com/kartikbazzad/bunbase/buntable/query"
)

// EventKind names a table notification.
type EventKind string

const (
	EventSelect EventKind = "select"
	EventUpsert EventKind = "upsert"
	EventDelete EventKind = "delete"
	EventDrop   EventKind = "drop"
	EventChange EventKind = "change"
	EventError  EventKind = "error"
)

// Event is delivered to listeners after an exec on their table.
type Event struct {
	Table      string
	Query      *query.Query
	Time       time.Time
	Result     []Row
	Name       EventKind    // the kind this delivery was published as
	Procedure  string       // originating action or view, if any
	ChangeType query.Action // operation that produced the event
	Changed    []Row        // rows written or removed
	Err        error        // set on error events
}

// Listener is a registered event handler; pass it to Off to remove it.
type Listener struct {
	table string
	sub   *broker.Subscription
}

// Table returns the table the listener is registered on.
func (l *Listener) Table() string { return l.table }

// On registers fn for the given kinds on the table. With no kinds fn
// receives every event. Listeners run synchronously in registration order
// and each gets private copies of the event rows; a panicking listener is
// recovered and reported as an error event.
func (t *Table) On(fn func(Event), kinds ...EventKind) *Listener {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	if len(names) == 0 {
		names = append(names, broker.Wildcard)
	}
	sub := t.db.events.Subscribe(t.name, names, broker.SubscriberFunc(func(msg *broker.Message) {
		ev := *msg.Payload.(*Event)
		ev.Name = EventKind(msg.Kind)
		ev.Result = cloneRows(ev.Result)
		ev.Changed = cloneRows(ev.Changed)
		fn(ev)
	}))
	return &Listener{table: t.name, sub: sub}
}

// cloneRows gives each listener its own copy of the event rows.
func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.DeepClone()
	}
	return out
}

// Off removes a listener registered with On. It reports whether the
// listener was still registered.
func (t *Table) Off(l *Listener) bool {
	if l == nil {
		return false
	}
	return t.db.events.Unsubscribe(l.sub)
}

// publish delivers ev to the listeners of its table under each kind.
func (db *DB) publish(ev *Event, kinds ...EventKind) {
	for _, k := range kinds {
		db.events.Publish(&broker.Message{Topic: ev.Table, Kind: string(k), Payload: ev})
	}
}

func (db *DB) listenerPanic(msg *broker.Message, recovered any) {
	metrics.IncListenerPanics()
	logger.Error("listener panicked", "table", msg.Topic, "event", msg.Kind, "panic", recovered)
	if EventKind(msg.Kind) == EventError {
		return
	}
	src := msg.Payload.(*Event)
	db.publish(&Event{
		Table:      src.Table,
		Query:      src.Query,
		Time:       time.Now(),
		Procedure:  src.Procedure,
		ChangeType: src.ChangeType,
		Err:        fmt.Errorf("listener for %s event panicked: %v", msg.Kind, recovered),
	}, EventError)
}
