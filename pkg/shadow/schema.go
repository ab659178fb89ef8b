package shadow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ShapeSchema is the JSON Schema every account record, genuine or decoy,
// must satisfy.
const ShapeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["status", "transaction_id", "timestamp", "data", "meta"],
  "additionalProperties": false,
  "properties": {
    "status": {"type": "string"},
    "transaction_id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "integer"},
    "data": {
      "type": "object",
      "required": ["account_type", "balance", "currency", "flags"],
      "additionalProperties": false,
      "properties": {
        "account_type": {"type": "string"},
        "balance": {"type": "number"},
        "currency": {"type": "string", "minLength": 3, "maxLength": 3},
        "flags": {"type": "array", "items": {"type": "string"}}
      }
    },
    "meta": {
      "type": "object",
      "required": ["processing_time_ms", "region"],
      "additionalProperties": false,
      "properties": {
        "processing_time_ms": {"type": "integer", "minimum": 0},
        "region": {"type": "string"}
      }
    }
  }
}`

const shapeSchemaURL = "https://triad.schemas.local/shadow/account_record.schema.json"

var (
	shapeOnce   sync.Once
	shapeSchema *jsonschema.Schema
	shapeErr    error
)

func compiledShape() (*jsonschema.Schema, error) {
	shapeOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(shapeSchemaURL, strings.NewReader(ShapeSchema)); err != nil {
			shapeErr = fmt.Errorf("shape schema load failed: %w", err)
			return
		}
		shapeSchema, shapeErr = c.Compile(shapeSchemaURL)
		if shapeErr != nil {
			shapeErr = fmt.Errorf("shape schema compile failed: %w", shapeErr)
		}
	})
	return shapeSchema, shapeErr
}

// ValidateShape checks that raw JSON has the account record layout.
func ValidateShape(raw []byte) error {
	schema, err := compiledShape()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("shape: invalid json: %w", err)
	}
	if t, _ := dec.Token(); t != nil {
		return fmt.Errorf("shape: invalid json: invalid character %v after top-level value", t)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("shape: %w", err)
	}
	return nil
}
