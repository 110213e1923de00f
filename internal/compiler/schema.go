package compiler

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed pipeline-template.schema.json
var templateSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// templateSchema compiles the embedded document schema once per process.
func templateSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(templateSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("reading embedded template schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("pipeline-template.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("registering template schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("pipeline-template.schema.json")
	})
	return schema, schemaErr
}

// validateDocument checks the JSON form of the template against the schema.
// Schema violations become discovery diagnostics; a non-nil error means the
// validator itself could not run.
func validateDocument(jsonDoc []byte, subject string, diags *Diagnostics) error {
	s, err := templateSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonDoc))
	if err != nil {
		return fmt.Errorf("template is not a valid document: %w", err)
	}
	if err := s.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			diags.Errorf(PhaseDiscovery, subject, "%s", ve.Error())
			return nil
		}
		return err
	}
	return nil
}
