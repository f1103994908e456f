package corrlog

// JSON Schemas the stores validate records against on read. Validation
// is per element, so one malformed record cannot take the whole log
// down.

const correctionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["text", "filename_entities", "manual_entities", "timestamp"],
  "properties": {
    "text": {"type": "string"},
    "filename_entities": {
      "type": "object",
      "properties": {
        "absender": {"type": "string"},
        "empfänger": {"type": "string"},
        "betreff": {"type": "string"}
      }
    },
    "manual_entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["start", "end", "label"],
        "properties": {
          "start": {"type": "integer", "minimum": 0},
          "end": {"type": "integer", "minimum": 0},
          "label": {"type": "string"},
          "substring": {"type": "string"}
        }
      }
    },
    "timestamp": {"type": "string"}
  }
}`

const trainingSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["text", "entities"],
  "properties": {
    "text": {"type": "string"},
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["start", "end", "label"],
        "properties": {
          "start": {"type": "integer", "minimum": 0},
          "end": {"type": "integer", "minimum": 0},
          "label": {"type": "string"},
          "soll": {"type": "string"},
          "ist": {"type": "string"}
        }
      }
    },
    "filename_entities": {
      "type": "object",
      "properties": {
        "absender": {"type": "string"},
        "empfänger": {"type": "string"},
        "betreff": {"type": "string"}
      }
    }
  }
}`
