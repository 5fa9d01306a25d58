package metadata

import (
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

var (
	documentSchemaOnce sync.Once
	documentSchema     *openapi3.Schema
)

// Schema returns the structural schema every description must satisfy. The
// typed rules applied after it live in validate.go.
func Schema() *openapi3.Schema {
	documentSchemaOnce.Do(func() {
		documentSchema = buildDocumentSchema()
	})
	return documentSchema
}

func buildDocumentSchema() *openapi3.Schema {
	ioType := openapi3.NewStringSchema().WithEnum(string(TypeFloat32), string(TypeString))
	// Shape entries and defaults accept several forms; validate.go checks them.
	anyValue := &openapi3.Schema{Nullable: true}
	shape := openapi3.NewArraySchema().WithItems(anyValue)

	input := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("type", ioType).
		WithProperty("shape", shape).
		WithProperty("min", openapi3.NewFloat64Schema().WithNullable()).
		WithProperty("max", openapi3.NewFloat64Schema().WithNullable()).
		WithProperty("step", openapi3.NewFloat64Schema().WithNullable()).
		WithProperty("default", anyValue).
		WithRequired([]string{"name", "type", "shape"}).
		WithoutAdditionalProperties()

	output := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("type", ioType).
		WithProperty("shape", shape).
		WithRequired([]string{"name", "type", "shape"}).
		WithoutAdditionalProperties()

	return openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("description", openapi3.NewStringSchema().WithNullable()).
		WithProperty("inputs", openapi3.NewObjectSchema().WithAdditionalProperties(input)).
		WithProperty("outputs", openapi3.NewObjectSchema().WithAdditionalProperties(output)).
		WithRequired([]string{"name", "inputs", "outputs"}).
		WithoutAdditionalProperties()
}

func structuralIssues(doc any) []Issue {
	err := Schema().VisitJSON(doc, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	var issues []Issue
	collectSchemaIssues(err, &issues)
	return issues
}

func collectSchemaIssues(err error, dest *[]Issue) {
	switch e := err.(type) {
	case openapi3.MultiError:
		for _, inner := range e {
			collectSchemaIssues(inner, dest)
		}
	case *openapi3.SchemaError:
		*dest = append(*dest, issueFromSchemaError(e))
	default:
		*dest = append(*dest, Issue{Message: strings.TrimSpace(err.Error())})
	}
}

func issueFromSchemaError(err *openapi3.SchemaError) Issue {
	path := err.JSONPointer()
	message := strings.TrimSpace(err.Reason)

	switch err.SchemaField {
	case "required":
		message = "field is required"
	case "properties":
		// Unsupported-property errors are reported against the parent object.
		if name, ok := quotedProperty(err.Reason); ok {
			path = child(path, name)
			message = "unknown field"
		}
	case "enum":
		message = "must be one of " + strconv.Quote(string(TypeFloat32)) + " or " + strconv.Quote(string(TypeString))
	case "nullable":
		message = "must not be null"
	}
	if message == "" {
		message = strings.TrimSpace(err.Error())
	}
	return newIssue(path, "%s", message)
}

func quotedProperty(reason string) (string, bool) {
	_, rest, ok := strings.Cut(reason, "property ")
	if !ok {
		return "", false
	}
	end := strings.LastIndex(rest, `"`)
	if end <= 0 {
		return "", false
	}
	name, err := strconv.Unquote(rest[:end+1])
	if err != nil {
		return "", false
	}
	return name, true
}
