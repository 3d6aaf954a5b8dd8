package mapper

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/drblury/restweaver/pathcodec"
)

var methodNameRE = regexp.MustCompile(`^(Get|Post|Put|Delete|Option|Head)(.*)$`)

var (
	requestType = reflect.TypeOf(Request{})
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// operation is one dispatchable unit derived from a resource method. All
// introspection happens here, once, at registration time; request handling
// only reads the descriptor.
type operation struct {
	verb    string // lower case: get, post, put, delete, option, head
	name    string // canonical path name, decoded and lower-cased
	owner   any
	fn      reflect.Value // bound method value
	ranking int
	seq     uint64 // registration order, breaks ranking ties

	optsType  reflect.Type // nil when the method takes no options struct
	ctxIndex  []int        // embedded Request field within optsType
	bodyField *fieldSpec
	named     []fieldSpec

	segTypes     []reflect.Type // positional path-segment parameter types
	tailType     reflect.Type   // element type of the variadic tail
	arity        int
	variableTail bool

	numOut int
	hasErr bool // last result is an error
}

// fieldSpec describes one named input of the options struct together with
// its rename table: the argument names tried, in order, at bind time.
type fieldSpec struct {
	name  string
	index []int
	typ   reflect.Type
	keys  []string
}

func (op *operation) keys() []string {
	base := op.verb + op.name
	return []string{base + "/" + strconv.Itoa(op.arity), base}
}

// scanResource enumerates the exported methods of resource whose names carry
// an HTTP verb prefix and builds an operation descriptor for each one.
func scanResource(resource any, ranking int) ([]*operation, error) {
	rv := reflect.ValueOf(resource)
	rt := reflect.TypeOf(resource)
	if rt == nil {
		return nil, fmt.Errorf("mapper: cannot register a nil resource")
	}

	var ops []*operation
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		match := methodNameRE.FindStringSubmatch(m.Name)
		if match == nil {
			continue
		}

		op := &operation{
			verb:    strings.ToLower(match[1]),
			name:    pathcodec.Decode(match[2], true),
			owner:   resource,
			fn:      rv.Method(i),
			ranking: ranking,
		}
		if err := op.describeInputs(rt.Name(), m.Name); err != nil {
			return nil, err
		}
		if err := op.describeOutputs(rt.Name(), m.Name); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (op *operation) describeInputs(recvName, methodName string) error {
	ft := op.fn.Type()
	start := 0
	if ft.NumIn() > 0 && ft.In(0).Kind() == reflect.Struct && !segmentType(ft.In(0)) {
		if err := op.describeOptions(ft.In(0), recvName, methodName); err != nil {
			return err
		}
		start = 1
	}

	for i := start; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			if !segmentType(pt.Elem()) {
				return fmt.Errorf("mapper: %s.%s: variadic parameter %s cannot bind path segments", recvName, methodName, pt.Elem())
			}
			op.tailType = pt.Elem()
			op.variableTail = true
			break
		}
		if !segmentType(pt) {
			return fmt.Errorf("mapper: %s.%s: parameter %s cannot bind a path segment", recvName, methodName, pt)
		}
		op.segTypes = append(op.segTypes, pt)
	}
	op.arity = len(op.segTypes)
	return nil
}

func (op *operation) describeOptions(t reflect.Type, recvName, methodName string) error {
	op.optsType = t
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == requestType {
			op.ctxIndex = f.Index
			continue
		}
		if !f.IsExported() {
			continue
		}
		spec := fieldSpec{name: f.Name, index: f.Index, typ: f.Type}
		if f.Name == "Body" {
			op.bodyField = &spec
			continue
		}
		spec.keys = lookupKeys(f)
		op.named = append(op.named, spec)
	}
	if op.ctxIndex == nil {
		return fmt.Errorf("mapper: %s.%s: options struct %s must embed mapper.Request", recvName, methodName, t)
	}
	return nil
}

func (op *operation) describeOutputs(recvName, methodName string) error {
	ft := op.fn.Type()
	op.numOut = ft.NumOut()
	switch ft.NumOut() {
	case 0:
	case 1:
		op.hasErr = ft.Out(0) == errorType
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("mapper: %s.%s: second result must be error, have %s", recvName, methodName, ft.Out(1))
		}
		op.hasErr = true
	default:
		return fmt.Errorf("mapper: %s.%s: too many results", recvName, methodName)
	}
	return nil
}

// lookupKeys builds the rename table for a named input: the json tag name,
// the Go field name, and the decoded canonical form of the field name.
// Decoding is lossy (it lower-cases), so the canonical entry restores values
// supplied under the URL-friendly spelling.
func lookupKeys(f reflect.StructField) []string {
	keys := make([]string, 0, 3)
	if tag, ok := f.Tag.Lookup("json"); ok {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			keys = append(keys, name)
		}
	}
	keys = append(keys, f.Name)
	if canonical := pathcodec.Decode(f.Name, true); canonical != keys[len(keys)-1] {
		keys = append(keys, canonical)
	}
	return keys
}

// segmentType reports whether values of type t can be produced from a single
// path segment.
func segmentType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}
