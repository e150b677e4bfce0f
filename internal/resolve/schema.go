package resolve

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["requests"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "enum": [1]},
    "requests": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/entry"}
    }
  },
  "definitions": {
    "path": {"type": "string", "minLength": 1},
    "entry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "single": {"$ref": "#/definitions/path"},
        "alternatives": {"type": "array", "items": {"$ref": "#/definitions/path"}},
        "keyed": {"type": "object", "additionalProperties": {"$ref": "#/definitions/path"}},
        "special": {"type": "string", "enum": ["empty", "ignore", "external"]},
        "unresolvable": {"type": "boolean", "enum": [true]},
        "references": {"type": "array", "items": {"$ref": "#/definitions/path"}}
      },
      "oneOf": [
        {"required": ["single"]},
        {"required": ["alternatives"]},
        {"required": ["keyed"]},
        {"required": ["special"]},
        {"required": ["unresolvable"]}
      ]
    }
  }
}`
