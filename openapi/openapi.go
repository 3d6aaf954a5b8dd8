// Package openapi builds an OpenAPI 3 document from a mapper's live
// dispatch table. Wire Describe into mapper.WithDescribeFunc to serve the
// document on the reserved openapi.json route, or call Document directly
// to export it at build time.
package openapi

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/drblury/restweaver/mapper"
	"github.com/drblury/restweaver/pathcodec"
)

// Option configures document generation.
type Option func(*settings)

type settings struct {
	title   string
	version string
}

// WithTitle sets the document's info title.
func WithTitle(title string) Option {
	return func(s *settings) { s.title = title }
}

// WithVersion sets the document's info version.
func WithVersion(version string) Option {
	return func(s *settings) { s.version = version }
}

// Describe returns a DescribeFunc that regenerates the document from the
// dispatch table on every request, with the server URL derived from the
// request being served.
func Describe(opts ...Option) mapper.DescribeFunc {
	return func(r *http.Request, ops []mapper.OperationInfo) (any, error) {
		return Document(baseURL(r), ops, opts...)
	}
}

// Document builds the OpenAPI document for the given operations. Paths are
// produced with pathcodec.Encode, so every canonical operation name maps
// back to a URL-safe segment unambiguously.
func Document(server string, ops []mapper.OperationInfo, opts ...Option) (*openapi3.T, error) {
	s := &settings{title: "REST resources", version: "1"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: s.title, Version: s.version},
		Paths:   openapi3.NewPaths(),
	}
	if server != "" {
		doc.Servers = openapi3.Servers{&openapi3.Server{URL: server}}
	}

	gen := openapi3gen.NewGenerator()
	for _, info := range ops {
		op, err := describeOperation(gen, info)
		if err != nil {
			return nil, err
		}
		doc.AddOperation(pathTemplate(info), httpMethod(info.Verb), op)
	}
	return doc, nil
}

func describeOperation(gen *openapi3gen.Generator, info mapper.OperationInfo) (*openapi3.Operation, error) {
	op := openapi3.NewOperation()
	op.OperationID = fmt.Sprintf("%s-%s-%d", info.Verb, info.Name, info.Arity)

	for i := 1; i <= info.Arity; i++ {
		p := openapi3.NewPathParameter(segmentName(i)).WithSchema(openapi3.NewStringSchema())
		op.AddParameter(p)
	}
	for _, name := range info.Named {
		op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()))
	}

	if info.BodyType != nil {
		schema, err := schemaFor(gen, info.BodyType)
		if err != nil {
			return nil, fmt.Errorf("openapi: body schema for %s %s: %w", info.Verb, info.Name, err)
		}
		body := openapi3.NewRequestBody().WithJSONSchemaRef(schema)
		op.RequestBody = &openapi3.RequestBodyRef{Value: body}
	}

	response := openapi3.NewResponse().WithDescription("operation result")
	if info.ResultType != nil {
		schema, err := schemaFor(gen, info.ResultType)
		if err != nil {
			return nil, fmt.Errorf("openapi: result schema for %s %s: %w", info.Verb, info.Name, err)
		}
		response = response.WithJSONSchemaRef(schema)
	}
	op.AddResponse(http.StatusOK, response)

	if info.VariableTail {
		op.Description = "Accepts additional trailing path segments."
	}
	return op, nil
}

func schemaFor(gen *openapi3gen.Generator, t reflect.Type) (*openapi3.SchemaRef, error) {
	return gen.NewSchemaRefForValue(reflect.New(t).Elem().Interface(), nil)
}

func pathTemplate(info mapper.OperationInfo) string {
	var sb strings.Builder
	sb.WriteByte('/')
	sb.WriteString(pathcodec.Encode(info.Name))
	for i := 1; i <= info.Arity; i++ {
		sb.WriteString("/{")
		sb.WriteString(segmentName(i))
		sb.WriteByte('}')
	}
	return sb.String()
}

func segmentName(i int) string {
	return fmt.Sprintf("arg%d", i)
}

// httpMethod maps a dispatch verb to its HTTP method name.
func httpMethod(verb string) string {
	if verb == "option" {
		return http.MethodOptions
	}
	return strings.ToUpper(verb)
}

func baseURL(r *http.Request) string {
	if r == nil {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
