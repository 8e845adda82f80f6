package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kartikbazzad/bunbase/buntable/schema"
)

// DecodeJSON reads a JSON array of objects.
func DecodeJSON(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("json rows: %w", err)
	}
	return rows, nil
}

// EncodeJSON writes rows as an indented JSON array. Blobs are encoded as
// base64 strings.
func EncodeJSON(w io.Writer, rows []schema.Row) error {
	if rows == nil {
		rows = []schema.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
