package buntable

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/kartikbazzad/bunbase/buntable/codec"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
)

// LoadResult reports a bulk load.
type LoadResult struct {
	Rows    []Row   // rows actually written, in input order
	Issues  []error // tolerated coercion problems
	Skipped int     // input rows that were not written
}

// LoadJS upserts each row in turn. Columns outside the model are ignored and
// values are coerced to their column type. A row that fails is skipped;
// the returned error is a *multierror.Error listing every skipped row and
// is nil when all rows were written.
func (t *Table) LoadJS(ctx context.Context, rows []map[string]any) (*LoadResult, error) {
	res := &LoadResult{}
	var merr *multierror.Error
	for i, row := range rows {
		out, err := t.Upsert(row).ExecAsync(ctx).Wait(ctx)
		if err != nil {
			res.Skipped++
			merr = multierror.Append(merr, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		res.Rows = append(res.Rows, out.Changed...)
		res.Issues = append(res.Issues, out.Issues...)
	}
	t.logLoad(res, merr)
	return res, merr.ErrorOrNil()
}

// LoadCSV parses text (a header row, then one row per line) and upserts
// every row like LoadJS. Lines that cannot be parsed are skipped and
// reported in the returned error alongside rows the upsert rejected.
func (t *Table) LoadCSV(ctx context.Context, text string) (*LoadResult, error) {
	rows, skipped, err := codec.DecodeCSV(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	res := &LoadResult{}
	merr := skipped
	if skipped != nil {
		res.Skipped = len(skipped.Errors)
	}
	for i, row := range rows {
		out, err := t.Upsert(row).ExecAsync(ctx).Wait(ctx)
		if err != nil {
			res.Skipped++
			merr = multierror.Append(merr, fmt.Errorf("record %d: %w", i+1, err))
			continue
		}
		res.Rows = append(res.Rows, out.Changed...)
		res.Issues = append(res.Issues, out.Issues...)
	}
	t.logLoad(res, merr)
	return res, merr.ErrorOrNil()
}

func (t *Table) logLoad(res *LoadResult, merr *multierror.Error) {
	if merr == nil && len(res.Issues) == 0 {
		logger.Debug("bulk load", "table", t.name, "rows", len(res.Rows))
		return
	}
	logger.Warn("bulk load incomplete", "table", t.name,
		"rows", len(res.Rows), "skipped", res.Skipped, "issues", len(res.Issues))
}
