// Package schema validates collection records against JSON Schemas.
package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stevemurr/restcollection/collection"
)

// ValidationError lists every schema violation of one record.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "; ")
}

// Check reports whether schema is a usable JSON Schema.
func Check(schema []byte) error {
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	return nil
}

// Validate checks a record against a JSON Schema.
// Returns nil if validation passes or the schema is empty.
func Validate(schema []byte, rec *collection.Record) error {
	if len(schema) == 0 {
		return nil
	}
	doc, err := rec.MarshalJSON()
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{}
	for _, re := range result.Errors() {
		ve.Violations = append(ve.Violations, re.String())
	}
	return ve
}
