package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/bunbase/buntable/errors"
)

// declarationSchema is the JSON Schema a model declaration file must satisfy.
const declarationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tables"],
  "properties": {
    "tables": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "model"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "model": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["key", "type"],
              "properties": {
                "key": {"type": "string", "minLength": 1},
                "type": {"type": "string", "minLength": 1},
                "default": {},
                "props": {"type": "array", "items": {"type": "string"}}
              },
              "additionalProperties": false
            }
          }
        }
      }
    }
  }
}`

var compiledDeclarationSchema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(declarationSchema))
	if err != nil {
		panic(fmt.Sprintf("schema: invalid declaration schema: %v", err))
	}
	compiledDeclarationSchema = s
}

// Declaration is one table entry of a declaration file.
type Declaration struct {
	Name  string   `json:"name"`
	Model []Column `json:"model"`
}

// Declarations is the content of a model declaration file.
type Declarations struct {
	Tables []Declaration `json:"tables"`
}

// LoadDeclarations reads a JSON declaration file, validates it against the
// declaration schema and checks every model.
func LoadDeclarations(r io.Reader) (*Declarations, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read declarations: %w", err)
	}

	result, err := compiledDeclarationSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.New(errors.KindSchema, "declarations are not valid JSON", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.Schema("invalid declarations: %s", strings.Join(msgs, "; "))
	}

	var decl Declarations
	if err := json.Unmarshal(data, &decl); err != nil {
		return nil, errors.New(errors.KindSchema, "decode declarations", err)
	}
	for _, t := range decl.Tables {
		if _, err := NewModel(t.Name, t.Model); err != nil {
			return nil, err
		}
	}
	return &decl, nil
}
