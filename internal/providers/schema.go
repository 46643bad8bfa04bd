package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	classifySchemaOnce sync.Once
	classifySchema     *jsonschema.Schema
	classifySchemaErr  error
)

// validateClassification checks model output against the canonical
// classification schema. The schema is a compile-time constant, so
// compilation happens once and a failure there is a programming error.
func validateClassification(blob json.RawMessage) error {
	classifySchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("classification.json", strings.NewReader(classificationSchema)); err != nil {
			classifySchemaErr = fmt.Errorf("failed to load classification schema: %w", err)
			return
		}
		classifySchema, classifySchemaErr = compiler.Compile("classification.json")
	})
	if classifySchemaErr != nil {
		return classifySchemaErr
	}

	var doc any
	if err := json.Unmarshal(blob, &doc); err != nil {
		return fmt.Errorf("failed to decode classification JSON: %w", err)
	}
	if err := classifySchema.Validate(doc); err != nil {
		return fmt.Errorf("classification does not match schema: %w", err)
	}
	return nil
}
