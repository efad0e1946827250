// Package fusionrules checks a completed supplier record against Oracle
// Fusion business rules. Validation is local and deterministic: format and
// enum rules come from an embedded JSON schema, cross-field rules are coded
// below. No network calls, no side effects.
package fusionrules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/agent/fields"

	_ "embed"
)

//go:embed supplier.schema.json
var supplierSchemaJSON []byte

// Validator implements contract.Validator. Violations come back ordered by
// the declared field order so the engine can deterministically point the
// conversation at the first offending field.
type Validator struct {
	schema *gojsonschema.Schema
	fields *fields.Set
}

func New(set *fields.Set) (*Validator, error) {
	if set == nil {
		return nil, fmt.Errorf("field set is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(supplierSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile supplier schema: %w", err)
	}
	return &Validator{schema: schema, fields: set}, nil
}

func (v *Validator) Validate(record contract.Record) []contract.ValidationError {
	violations := v.schemaViolations(record)
	violations = append(violations, v.crossFieldViolations(record)...)

	order := make(map[string]int, len(v.fields.Names()))
	for i, name := range v.fields.Names() {
		order[name] = i
	}
	sort.SliceStable(violations, func(i, j int) bool {
		oi, oj := order[violations[i].Field], order[violations[j].Field]
		if oi != oj {
			return oi < oj
		}
		return violations[i].Message < violations[j].Message
	})
	return violations
}

func (v *Validator) schemaViolations(record contract.Record) []contract.ValidationError {
	payload := make(map[string]any, len(record))
	for name, value := range record {
		// Unfilled optional fields stay out of the document so patterns
		// only apply to values the user actually supplied.
		if value != "" {
			payload[name] = value
		}
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return []contract.ValidationError{{
			Field:   v.fields.Required()[0],
			Message: fmt.Sprintf("supplier record could not be validated: %v", err),
		}}
	}

	var violations []contract.ValidationError
	for _, desc := range result.Errors() {
		violations = append(violations, contract.ValidationError{
			Field:   resolveField(desc),
			Message: messageFor(desc),
		})
	}
	return violations
}

// crossFieldViolations holds the rules a flat schema cannot express.
func (v *Validator) crossFieldViolations(record contract.Record) []contract.ValidationError {
	var violations []contract.ValidationError
	if record["TaxOrganizationType"] == "Foreign Corporation" &&
		strings.EqualFold(record["TaxpayerCountry"], "US") {
		violations = append(violations, contract.ValidationError{
			Field:   "TaxpayerCountry",
			Message: "TaxpayerCountry must not be US for a Foreign Corporation",
		})
	}
	return violations
}

// resolveField recovers the offending field name from a schema error. For
// missing-required errors the field lives in the error details, not in
// Field(), which points at the parent object.
func resolveField(desc gojsonschema.ResultError) string {
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			return prop
		}
	}
	field := desc.Field()
	if i := strings.IndexByte(field, '.'); i > 0 {
		field = field[:i]
	}
	if field == "(root)" {
		return ""
	}
	return field
}

func messageFor(desc gojsonschema.ResultError) string {
	field := resolveField(desc)
	switch desc.Type() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "enum":
		return fmt.Sprintf("%s: %s", field, desc.Description())
	case "pattern":
		return fmt.Sprintf("%s has an invalid format", field)
	case "string_gte", "string_lte":
		return fmt.Sprintf("%s: %s", field, desc.Description())
	default:
		return fmt.Sprintf("%s: %s", field, desc.Description())
	}
}
