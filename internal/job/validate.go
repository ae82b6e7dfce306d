package job

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/job.schema.json
var schemaJSON []byte

var (
	canonicalSchema = mustCompileSchema(schemaJSON)
	knownFields     = mustDeclaredFields(schemaJSON)
)

// ValidationError reports the fields of a record that failed their type
// constraints.
type ValidationError struct {
	Fields  []string
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid job record: " + strings.Join(e.Details, "; ")
}

// Validate resolves legacy aliases and checks raw against the listing schema.
// Missing fields are never an error; only type mismatches are.
func Validate(raw map[string]any) (Record, error) {
	if raw == nil {
		return Record{}, &ValidationError{
			Fields:  []string{"(root)"},
			Details: []string{"(root): record is not a JSON object"},
		}
	}
	canonical := resolveAliases(raw)

	res, err := canonicalSchema.Validate(gojsonschema.NewGoLoader(canonical))
	if err != nil {
		return Record{}, fmt.Errorf("validate job record: %w", err)
	}
	if !res.Valid() {
		return Record{}, newValidationError(res.Errors())
	}

	rec := Record{fields: make(map[string]any), Extra: make(map[string]any)}
	for key, value := range canonical {
		if _, ok := knownFields[key]; ok {
			rec.fields[key] = value
			continue
		}
		rec.Extra[key] = value
	}
	return rec, nil
}

func newValidationError(errs []gojsonschema.ResultError) *ValidationError {
	seen := make(map[string]struct{})
	verr := &ValidationError{}
	for _, e := range errs {
		field := e.Field()
		verr.Details = append(verr.Details, field+": "+e.Description())
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		verr.Fields = append(verr.Fields, field)
	}
	sort.Strings(verr.Fields)
	sort.Strings(verr.Details)
	return verr
}

func mustCompileSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile job schema: %v", err))
	}
	return schema
}

func mustDeclaredFields(raw []byte) map[string]struct{} {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("decode job schema: %v", err))
	}
	out := make(map[string]struct{}, len(doc.Properties))
	for name := range doc.Properties {
		out[name] = struct{}{}
	}
	return out
}
