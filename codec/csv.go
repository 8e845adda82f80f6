// Package codec converts row collections to and from CSV and JSON text.
//
// In CSV, composite cells (arrays and maps) hold their JSON literal and blob
// cells hold standard base64, which is exactly what schema coercion accepts
// when the text is loaded back.
package codec

import (
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"

	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// Columns returns the CSV column order for rows: the preferred keys that
// occur in at least one row, then any remaining keys sorted.
func Columns(preferred []string, rows []schema.Row) []string {
	seen := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for _, k := range preferred {
		if seen[k] {
			out = append(out, k)
			delete(seen, k)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// EncodeCSV writes rows as CSV with the given column order.
func EncodeCSV(w io.Writer, columns []string, rows []schema.Row, headers bool) error {
	cw := csv.NewWriter(w)
	if headers {
		if err := cw.Write(columns); err != nil {
			return err
		}
	}
	record := make([]string, len(columns))
	for i, r := range rows {
		for j, c := range columns {
			cell, err := Cell(r[c])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, c, err)
			}
			record[j] = cell
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVString is EncodeCSV into a string.
func CSVString(columns []string, rows []schema.Row, headers bool) (string, error) {
	var sb strings.Builder
	if err := EncodeCSV(&sb, columns, rows, headers); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Cell renders one value as CSV cell text. nil is the empty cell.
func Cell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		// typed slices and maps of other element types
		b, jerr := json.Marshal(v)
		if jerr != nil {
			return "", err
		}
		return string(b), nil
	}
	return s, nil
}

// RowError reports a CSV line that could not be read.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// DecodeCSV reads CSV whose first record is the header. Each following
// record becomes a map from header name to cell text. Records that fail to
// parse are skipped and reported in the returned *multierror.Error; the
// remaining records are still returned. err is set only when the header
// itself cannot be read.
func DecodeCSV(r io.Reader) (rows []map[string]any, skipped *multierror.Error, err error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	cr.FieldsPerRecord = len(header)

	for {
		record, rerr := cr.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			line := 0
			if pe, ok := rerr.(*csv.ParseError); ok {
				line = pe.Line
			}
			skipped = multierror.Append(skipped, &RowError{Line: line, Err: rerr})
			continue
		}
		row := make(map[string]any, len(header))
		for i, h := range header {
			row[h] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}
