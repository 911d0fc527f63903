package schema_test

import (
	"errors"
	"testing"

	"github.com/stevemurr/restcollection/collection"
	"github.com/stevemurr/restcollection/schema"
)

func doc(t *testing.T, raw string) *collection.Record {
	t.Helper()
	r, err := collection.ParseRecord([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestValidateEmptySchema(t *testing.T) {
	if err := schema.Validate(nil, doc(t, `{"anything":"goes"}`)); err != nil {
		t.Fatalf("empty schema should pass: %v", err)
	}
}

func TestValidateRequired(t *testing.T) {
	s := []byte(`{"type":"object","required":["name","age"]}`)

	err := schema.Validate(s, doc(t, `{"name":"Alice"}`))
	if err == nil {
		t.Fatal("expected error for missing 'age'")
	}
	var ve *schema.ValidationError
	if !errors.As(err, &ve) || len(ve.Violations) != 1 {
		t.Fatalf("expected one violation, got %v", err)
	}

	if err := schema.Validate(s, doc(t, `{"name":"Alice","age":30}`)); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
}

func TestValidateProperties(t *testing.T) {
	s := []byte(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"age": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`)

	if err := schema.Validate(s, doc(t, `{"name":"Bob","age":25}`)); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
	if err := schema.Validate(s, doc(t, `{"name":123}`)); err == nil {
		t.Fatal("expected error for wrong type")
	}
	if err := schema.Validate(s, doc(t, `{"age":-1}`)); err == nil {
		t.Fatal("expected error below minimum")
	}
	if err := schema.Validate(s, doc(t, `{"name":"ok","extra":"bad"}`)); err == nil {
		t.Fatal("expected error for additional properties")
	}
}

func TestCheck(t *testing.T) {
	if err := schema.Check([]byte(`{"type":"object"}`)); err != nil {
		t.Fatalf("expected valid schema: %v", err)
	}
	if err := schema.Check([]byte(`{"type":12}`)); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}
