package mapper

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/drblury/restweaver/pathcodec"
)

// Response is the sanctioned short-circuit mechanism for operations that
// need to control status, headers, and body explicitly. Embed it in your
// own struct to add headers: every exported field of the outer struct whose
// value is non-zero becomes a response header, named after the decoded,
// upper-cased field name. A *Response (or a struct embedding one) may be
// returned either as the operation's value or as its error; both produce
// identical output.
//
//	type created struct {
//	    mapper.Response
//	    Location string
//	}
//
//	return nil, &created{Response: mapper.Response{StatusCode: 201}, Location: "/thing/42"}
type Response struct {
	StatusCode  int
	ContentType string
	Value       any
}

// Error lets a *Response travel the error return path.
func (r *Response) Error() string {
	return fmt.Sprintf("response status %d", r.status())
}

func (r *Response) response() *Response { return r }

func (r *Response) status() int {
	if r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

var responseType = reflect.TypeOf(Response{})

// structured is satisfied by *Response and by pointers to structs embedding
// Response.
type structured interface {
	error
	response() *Response
}

// emitStructured writes a structured response: headers derived from the
// carrier's exported fields, the content type, the status code, and the
// serialized body value. Body serialization failures downgrade to an
// internal error with no body.
func (m *Mapper) emitStructured(w http.ResponseWriter, r *http.Request, sc structured) {
	resp := sc.response()

	// Serialize ahead of the status line so a failure can still downgrade
	// the response.
	var body []byte
	if resp.Value != nil && !rawResult(resp.Value) {
		var err error
		body, err = marshalResult(resp.Value)
		if err != nil {
			m.logger().Error("failed to serialize structured response value",
				"error", err, "traceId", newTraceID(), "path", r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	emitHeaders(w, sc)
	ct := resp.ContentType
	if ct == "" {
		ct = jsonContentType
	}
	w.Header().Set("Content-Type", ct)

	switch {
	case resp.Value == nil:
		w.WriteHeader(resp.status())
	case body != nil:
		m.writeEncoded(w, r, resp.Value, body, resp.status())
	default:
		m.writeRaw(w, r, resp.Value, resp.status())
	}
}

// emitHeaders turns the exported fields of the carrier struct into response
// headers. Sequence values emit one header occurrence per element.
func emitHeaders(w http.ResponseWriter, sc structured) {
	v := reflect.ValueOf(sc)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	if t == responseType {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		if fv.IsZero() {
			continue
		}
		name := strings.ToUpper(pathcodec.Decode(f.Name, true))
		switch fv.Kind() {
		case reflect.Slice, reflect.Array:
			for j := 0; j < fv.Len(); j++ {
				w.Header().Add(name, fmt.Sprint(fv.Index(j).Interface()))
			}
		default:
			w.Header().Add(name, fmt.Sprint(fv.Interface()))
		}
	}
}
