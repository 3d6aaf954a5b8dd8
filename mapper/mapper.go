// Package mapper is the core dispatch engine of restweaver. A Mapper turns
// registered resource objects into a verb/path/arity-indexed dispatch
// table, matches incoming requests against it, binds query parameters,
// headers, path segments, and JSON bodies onto method inputs, and
// serializes the result.
package mapper

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DescribePath is the reserved first path segment that always routes to the
// API-description generator, never to a registered operation.
const DescribePath = "openapi.json"

// DescribeFunc produces a machine-readable description document for the
// current dispatch table. The openapi package provides an implementation.
type DescribeFunc func(r *http.Request, ops []OperationInfo) (any, error)

// Option configures a Mapper via the functional options pattern.
type Option func(*Mapper)

// Mapper maps web requests onto the methods of registered resources. It
// implements http.Handler; the zero prefix mounts at the server root.
//
// The dispatch table is safe for concurrent use: registration and
// deregistration serialize behind a writer lock, and in-flight lookups see
// either the pre- or post-mutation table, never a partial one. Request
// handling itself never holds the lock.
type Mapper struct {
	prefix   string
	log      *slog.Logger
	describe DescribeFunc
	classify ErrorClassifierFunc

	mu    sync.RWMutex
	table map[string][]*operation
	ops   []*operation
	seq   uint64
}

// New creates a Mapper serving requests under the given path prefix
// (typically "/rest"; empty for the root).
func New(prefix string, opts ...Option) *Mapper {
	m := &Mapper{
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    slog.Default(),
		table:  make(map[string][]*operation),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithLogger injects a structured logger for failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithDescribeFunc installs the generator served on the reserved
// openapi.json route.
func WithDescribeFunc(fn DescribeFunc) Option {
	return func(m *Mapper) {
		m.describe = fn
	}
}

// WithErrorClassifier installs a classifier consulted before the fixed
// failure-category table when mapping raised errors to status codes.
func WithErrorClassifier(classifier ErrorClassifierFunc) Option {
	return func(m *Mapper) {
		m.classify = classifier
	}
}

func (m *Mapper) logger() *slog.Logger {
	if m.log == nil {
		return slog.Default()
	}
	return m.log
}

// Prefix returns the path prefix the mapper is mounted under.
func (m *Mapper) Prefix() string { return m.prefix }

// Register scans the resource's exported methods for operations and inserts
// them into the dispatch table. Lower rankings win when several operations
// share a dispatch key; equal rankings keep registration order. Returns an
// error when a candidate method has a signature the binder cannot serve.
func (m *Mapper) Register(resource any, ranking int) error {
	// Deregister matches owners by equality; a non-comparable value could
	// never be removed and would panic the comparison.
	if t := reflect.TypeOf(resource); t != nil && !t.Comparable() {
		return fmt.Errorf("mapper: %T is not comparable, register a pointer to it instead", resource)
	}
	ops, err := scanResource(resource, ranking)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return fmt.Errorf("mapper: %T exposes no operations", resource)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		op.seq = m.seq
		m.seq++
		for _, key := range op.keys() {
			m.table[key] = insertRanked(m.table[key], op)
		}
	}
	m.ops = append(m.ops, ops...)
	return nil
}

// Deregister removes the resource and purges every operation derived from
// it, from every dispatch key.
func (m *Mapper) Deregister(resource any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, list := range m.table {
		kept := withoutOwner(list, resource)
		if kept == nil {
			delete(m.table, key)
			continue
		}
		m.table[key] = kept
	}
	if kept := withoutOwner(m.ops, resource); kept != nil {
		m.ops = kept
	} else {
		m.ops = nil
	}
}

// insertRanked returns a fresh candidate list with op added, ordered by
// ranking ascending with registration order breaking ties. Lists are
// replaced rather than mutated so concurrent readers keep a coherent
// snapshot.
func insertRanked(list []*operation, op *operation) []*operation {
	out := make([]*operation, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, op)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ranking != out[j].ranking {
			return out[i].ranking < out[j].ranking
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func withoutOwner(list []*operation, resource any) []*operation {
	out := make([]*operation, 0, len(list))
	for _, op := range list {
		if op.owner != resource {
			out = append(out, op)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ServeHTTP implements http.Handler.
func (m *Mapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Execute(w, r)
}

// Execute routes one request. It returns true once a routing attempt,
// successful or not, has produced a response.
func (m *Mapper) Execute(w http.ResponseWriter, r *http.Request) bool {
	path := r.URL.Path
	if m.prefix != "" {
		// The prefix must end on a segment boundary; /restperson must not
		// dispatch inside the /rest namespace.
		rest, found := strings.CutPrefix(path, m.prefix)
		if !found || (rest != "" && rest[0] != '/') {
			m.failWithProblem(w, r, http.StatusNotFound,
				fmt.Sprintf("path %q is outside the %s namespace", path, m.prefix))
			return true
		}
		path = rest
	}
	path = strings.TrimPrefix(path, "/")

	segments := strings.Split(path, "/")
	if strings.EqualFold(segments[0], DescribePath) {
		m.serveDescription(w, r)
		return true
	}

	rest := segments[1:]
	key := strings.ToLower(r.Method + segments[0])
	op, known := m.lookup(key, len(rest))
	if op == nil {
		m.failWithProblem(w, r, http.StatusNotFound, notFoundDetail(key, len(rest), known))
		return true
	}

	args := buildArgs(w, r)
	params, err := op.bind(args, rest, w, r)
	if err != nil {
		// Binding failure is surfaced, not swallowed, and lower-ranked
		// candidates are not retried.
		m.failWithProblem(w, r, http.StatusBadRequest, err.Error(), "operation", key)
		return true
	}

	m.run(w, r, op, params)
	return true
}

// lookup consults the arity-qualified key first, then falls back to the
// unqualified key where variable-tail operations of compatible arity live.
// On a miss it returns the known keys as a diagnostic aid.
func (m *Mapper) lookup(key string, nseg int) (*operation, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if list := m.table[key+"/"+strconv.Itoa(nseg)]; len(list) > 0 {
		return list[0], nil
	}
	for _, op := range m.table[key] {
		if op.variableTail && nseg >= op.arity {
			return op, nil
		}
	}

	known := make([]string, 0, len(m.table))
	for k := range m.table {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, known
}

// run invokes the bound operation and writes its outcome. Panics inside an
// operation are contained and mapped like any other failure.
func (m *Mapper) run(w http.ResponseWriter, r *http.Request, op *operation, params []reflect.Value) {
	defer func() {
		if rec := recover(); rec != nil {
			m.failWith(w, r, http.StatusInternalServerError,
				fmt.Errorf("operation panic: %v", rec), "operation panicked")
		}
	}()

	result, err := op.invoke(params)
	if err != nil {
		if sc, ok := asStructured(err); ok {
			m.emitStructured(w, r, sc)
			return
		}
		m.failWith(w, r, m.failureStatus(err), err, "operation failed")
		return
	}
	if sc, ok := asStructured(result); ok {
		m.emitStructured(w, r, sc)
		return
	}
	m.writeResult(w, r, result)
}

func (op *operation) invoke(params []reflect.Value) (any, error) {
	out := op.fn.Call(params)
	switch {
	case op.numOut == 0:
		return nil, nil
	case op.numOut == 1 && op.hasErr:
		return nil, asError(out[0])
	case op.numOut == 1:
		return out[0].Interface(), nil
	default:
		return out[0].Interface(), asError(out[1])
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// asStructured matches a value or raised error that carries a structured
// response, directly or wrapped.
func asStructured(v any) (structured, bool) {
	if v == nil {
		return nil, false
	}
	if sc, ok := v.(structured); ok {
		return sc, true
	}
	// A Response (or a struct embedding one) returned by value only has the
	// structured methods on its address.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Struct {
		pv := reflect.New(rv.Type())
		pv.Elem().Set(rv)
		if sc, ok := pv.Interface().(structured); ok {
			return sc, true
		}
	}
	if err, ok := v.(error); ok {
		var sc structured
		if errors.As(err, &sc) {
			return sc, true
		}
	}
	return nil, false
}

func (m *Mapper) serveDescription(w http.ResponseWriter, r *http.Request) {
	if m.describe == nil {
		m.failWithProblem(w, r, http.StatusNotFound, "no API description generator configured")
		return
	}
	doc, err := m.describe(r, m.Operations())
	if err != nil {
		m.failWith(w, r, http.StatusInternalServerError, err, "failed to build API description")
		return
	}
	m.writeResult(w, r, doc)
}

// OperationInfo is the read-only view of one dispatch-table entry, consumed
// by description generators.
type OperationInfo struct {
	Verb         string
	Name         string
	Arity        int
	VariableTail bool
	Ranking      int
	Named        []string     // canonical names of query-bindable inputs
	BodyType     reflect.Type // nil when the operation takes no body
	ResultType   reflect.Type // nil for bare error or empty returns
}

// Operations returns a snapshot of the dispatch table's metadata in a
// stable order.
func (m *Mapper) Operations() []OperationInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]OperationInfo, 0, len(m.ops))
	for _, op := range m.ops {
		infos = append(infos, op.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Name != infos[j].Name {
			return infos[i].Name < infos[j].Name
		}
		if infos[i].Verb != infos[j].Verb {
			return infos[i].Verb < infos[j].Verb
		}
		return infos[i].Arity < infos[j].Arity
	})
	return infos
}

func (op *operation) info() OperationInfo {
	info := OperationInfo{
		Verb:         op.verb,
		Name:         op.name,
		Arity:        op.arity,
		VariableTail: op.variableTail,
		Ranking:      op.ranking,
	}
	for _, f := range op.named {
		info.Named = append(info.Named, f.keys[len(f.keys)-1])
	}
	if op.bodyField != nil {
		info.BodyType = op.bodyField.typ
	}
	ft := op.fn.Type()
	if ft.NumOut() > 0 && ft.Out(0) != errorType {
		info.ResultType = ft.Out(0)
	}
	return info
}
