package keymap

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// wireSchema validates configuration payloads before they are compiled, so
// a malformed front-end message is rejected with a precise path instead of
// surfacing as a half-compiled keymap.
const wireSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["contexts"],
  "additionalProperties": false,
  "properties": {
    "logical_keys": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "left", "right"],
        "additionalProperties": false,
        "properties": {
          "name":  {"type": "string", "minLength": 1},
          "left":  {"type": "string", "minLength": 1},
          "right": {"type": "string", "minLength": 1}
        }
      }
    },
    "commands": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "contexts": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "class":       {"type": "string"},
          "title":       {"type": "string"},
          "path":        {"type": "string"},
          "device":      {"type": "string"},
          "modifier":    {"type": "array", "items": {"type": "string", "minLength": 1}},
          "fallthrough": {"type": "boolean"},
          "mappings":    {"type": "array", "items": {"$ref": "#/$defs/mapping"}}
        }
      }
    },
    "exit_sequence": {"type": "array", "items": {"$ref": "#/$defs/event"}}
  },
  "$defs": {
    "mapping": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "input":   {"type": "array", "items": {"$ref": "#/$defs/event"}},
        "output":  {"type": "array", "items": {"$ref": "#/$defs/event"}},
        "command": {"type": "string"}
      }
    },
    "event": {
      "type": "object",
      "required": ["key"],
      "additionalProperties": false,
      "properties": {
        "key":        {"type": "string", "minLength": 1},
        "state":      {"enum": ["down", "up", "not", "down_matched"]},
        "timeout_ms": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("keymap.json", wireSchema)

// Parse validates and compiles a configuration payload.
func Parse(data []byte) (*Config, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("keymap: decode: %w", err)
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("keymap: schema: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("keymap: decode: %w", err)
	}
	return compile(&doc)
}
