package buntable

import (
	"context"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/buntable/backend"
	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/internal/dispatch"
	"github.com/kartikbazzad/bunbase/buntable/internal/engine"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
	"github.com/kartikbazzad/bunbase/buntable/internal/metrics"
	"github.com/kartikbazzad/bunbase/buntable/query"
)

// Result is the resolved value of an exec.
type Result struct {
	Rows    []Row   // result rows after ordering, pagination and filters
	Changed []Row   // rows written or removed by a mutation
	Issues  []error // tolerated coercion problems (CoercionError)
}

// Pending is the future of an exec. It resolves exactly once.
type Pending struct {
	task *dispatch.Task

	mu       sync.Mutex
	resolved bool
	res      *Result
	err      error
}

func rejected(err error) *Pending {
	return &Pending{resolved: true, err: err}
}

// Wait blocks until the exec resolves or ctx is done. The exec itself is
// not cancelled by ctx; a later Wait still observes its outcome.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.res, p.err
	}
	r, err := p.task.Wait(ctx)
	if err != nil {
		return nil, err
	}
	p.resolved = true
	p.err = r.Err
	if r.Err == nil {
		p.res = r.Value.(*Result)
	}
	return p.res, p.err
}

type procedureKey struct{}

func withProcedure(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, procedureKey{}, name)
}

func procedureFrom(ctx context.Context) string {
	name, _ := ctx.Value(procedureKey{}).(string)
	return name
}

// submit hands desc to the exec pool.
func (db *DB) submit(ctx context.Context, desc *query.Query) *Pending {
	ctx = context.WithoutCancel(ctx)
	task := dispatch.NewTask(func() (any, error) {
		return db.run(ctx, desc)
	})
	if err := db.dispatch.Submit(task); err != nil {
		db.failed(ctx, desc, err)
		return rejected(err)
	}
	return &Pending{task: task}
}

// request builds the backend request for desc.
func (db *DB) request(ctx context.Context, desc *query.Query) (*backend.Request, error) {
	d, err := db.state(desc.Table)
	if err != nil {
		return nil, err
	}
	req := &backend.Request{
		Table:     desc.Table,
		Query:     desc,
		Model:     d.model,
		Filters:   db.filters,
		RowFilter: d.rowFilter,
		Procedure: procedureFrom(ctx),
	}
	if desc.Action == query.Select && len(d.always) > 0 {
		desc.Filters = append(append([]query.FilterCall(nil), desc.Filters...), d.always...)
	}
	if desc.Join != nil && desc.Join.Table != "" {
		if jd, err := db.state(desc.Join.Table); err == nil {
			req.JoinModel = jd.model
		}
	}
	return req, nil
}

// run executes desc on the backend, then notifies listeners. Events are
// published before the result is handed back, so a caller that sees the
// result also sees its listeners' effects.
func (db *DB) run(ctx context.Context, desc *query.Query) (*Result, error) {
	start := time.Now()
	req, err := db.request(ctx, desc)
	if err == nil {
		// reject malformed chains before the backend sees them
		_, err = engine.Compile(req)
	}
	var resp *backend.Response
	if err == nil {
		resp, err = db.backend.Exec(ctx, req)
		err = errors.Backend(err, "exec")
	}
	metrics.ObserveExec(desc.Table, string(desc.Action), err, time.Since(start))
	if err != nil {
		db.failed(ctx, desc, err)
		return nil, err
	}

	log := logger.ForTable(desc.Table, string(desc.Action))
	log.Debug("exec", "rows", len(resp.Rows), "changed", len(resp.Changed), "elapsed", time.Since(start))
	if len(resp.Issues) > 0 {
		log.Warn("values replaced by column defaults", "issues", len(resp.Issues))
	}

	ev := &Event{
		Table:      desc.Table,
		Query:      desc,
		Time:       time.Now(),
		Result:     resp.Rows,
		Procedure:  req.Procedure,
		ChangeType: desc.Action,
		Changed:    resp.Changed,
	}
	if desc.Action == query.Select {
		db.publish(ev, EventSelect)
	} else {
		db.publish(ev, EventKind(desc.Action), EventChange)
	}
	return &Result{Rows: resp.Rows, Changed: resp.Changed, Issues: resp.Issues}, nil
}

// failed logs an exec failure and publishes it as an error event.
func (db *DB) failed(ctx context.Context, desc *query.Query, err error) {
	logger.ForTable(desc.Table, string(desc.Action)).Warn("exec failed", "err", err)
	db.publish(&Event{
		Table:      desc.Table,
		Query:      desc,
		Time:       time.Now(),
		Procedure:  procedureFrom(ctx),
		ChangeType: desc.Action,
		Err:        err,
	}, EventError)
}
