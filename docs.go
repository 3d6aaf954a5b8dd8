// Package restweaver maps incoming HTTP requests onto the methods of
// registered resource objects, without static route tables. Routes are
// discovered at registration time by inspecting each resource's exported
// methods: a method named GetPerson answers GET /person, PostOrder answers
// POST /order, and so on. Trailing path segments become positional
// arguments, query parameters and headers bind to the fields of an options
// struct, and JSON request bodies decode straight into a Body field.
//
// The mapper package is the core dispatch engine. The pathcodec package
// translates between URL path segments and Go identifiers, jsonutil wraps
// sonic for fast JSON, openapi generates an OpenAPI 3 document from the
// live dispatch table, and router mounts a mapper behind logging, CORS,
// timeout, and validation middleware. The probe and health packages ship a
// ready-made health resource that is dispatched through the mapper like any
// other.
//
// # Quick Start
//
//	type People struct{ store map[string]Person }
//
//	type PersonOptions struct {
//	    mapper.Request
//	    Expand bool `json:"expand"`
//	}
//
//	func (p *People) GetPerson(opts PersonOptions, id string) (Person, error) {
//	    person, ok := p.store[id]
//	    if !ok {
//	        return Person{}, fs.ErrNotExist
//	    }
//	    return person, nil
//	}
//
//	m := mapper.New("/rest")
//	m.Register(&People{store: load()}, 100)
//	http.ListenAndServe(":8080", m)
//
// GET /rest/person/42 now invokes GetPerson with id "42"; GET
// /rest/openapi.json describes every registered operation when an openapi
// DescribeFunc is configured.
package restweaver
