package capability

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema returns the JSON schema document describing the operation
// parameters.
func (o *Operation) Schema() []byte {
	b, _ := json.Marshal(o.schemaDoc(true))
	return b
}

// schemaDoc builds the schema document. Required parameters are only listed
// when withRequired is set: inline arguments are validated for kind and
// choice, required values may still come from free text.
func (o *Operation) schemaDoc(withRequired bool) map[string]any {
	props := make(map[string]any, len(o.Parameters))
	var required []any
	for _, p := range o.Parameters {
		prop := map[string]any{}
		switch p.Kind {
		case KindNumber:
			prop["type"] = "number"
		case KindBoolean:
			prop["type"] = "boolean"
		case KindEnum:
			prop["type"] = "string"
			choices := make([]any, len(p.Choices))
			for i, c := range p.Choices {
				choices[i] = c
			}
			prop["enum"] = choices
		default:
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if withRequired && len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// compileSchema compiles the validation schema of an operation.
func compileSchema(capID string, op *Operation) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("%s.%s.json", capID, op.ID)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, op.schemaDoc(false)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
