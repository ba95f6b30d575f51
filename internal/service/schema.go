package service

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const segmentSchemaURL = "kvpedit://service/segment.schema.json"

const segmentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["segmented", "kvp", "ipa"],
  "properties": {
    "segmented": {"type": "string"},
    "kvp": {"type": "string"},
    "ipa": {"type": "string"}
  }
}`

const phoneticSchemaURL = "kvpedit://service/phoneticize.schema.json"

const phoneticSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kvp", "ipa"],
  "properties": {
    "kvp": {"type": "string"},
    "ipa": {"type": "string"}
  }
}`

func compileSchema(url, doc string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
