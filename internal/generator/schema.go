package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

const searchResponseSchema = `{
  "type": "object",
  "required": ["content", "links"],
  "properties": {
    "content": {"type": "string", "minLength": 1},
    "flash_summary": {"type": "string"},
    "links": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["uri"],
        "properties": {
          "uri": {"type": "string", "minLength": 1},
          "title": {"type": "string"}
        }
      }
    }
  }
}`

// responseValidator checks provider responses before they are decoded into
// typed results.
type responseValidator struct {
	search *jsonschema.Schema
}

func newResponseValidator() (*responseValidator, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(searchResponseSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile search response schema: %w", err)
	}
	return &responseValidator{search: schema}, nil
}

func (v *responseValidator) validateSearch(body []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to decode search response: %w", err)
	}

	result := v.search.Validate(doc)
	if !result.IsValid() {
		var errorMessages []string
		for field, evalErr := range result.Errors {
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		return fmt.Errorf("search response validation failed: %s", strings.Join(errorMessages, "; "))
	}
	return nil
}
