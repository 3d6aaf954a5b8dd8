package mapper_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drblury/restweaver/mapper"

	"github.com/klauspost/compress/gzip"
)

func quiet() mapper.Option {
	return mapper.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type peopleOptions struct {
	mapper.Request
}

type people struct{}

func (people) GetPerson(o peopleOptions, id string) person {
	return person{ID: id, Name: "resolved"}
}

func (people) GetPerson_list(o peopleOptions) []string {
	return []string{"a", "b"}
}

func dispatch(t *testing.T, m *mapper.Mapper, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(method, target, body))
	return rr
}

func TestDispatchBindsPathSegment(t *testing.T) {
	m := mapper.New("/rest", quiet())
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/rest/person/42", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json;charset=UTF-8" {
		t.Fatalf("unexpected content type: %q", got)
	}
	if !strings.Contains(rr.Body.String(), `"id":"42"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestUnderscoreMethodNameMapsToDash(t *testing.T) {
	m := mapper.New("/rest", quiet())
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/rest/person-list", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
}

func TestArityMismatchIsNotFound(t *testing.T) {
	m := mapper.New("/rest", quiet())
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	// Only an arity-1 GetPerson exists; zero segments must miss.
	rr := dispatch(t, m, http.MethodGet, "/rest/person", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Fatalf("unexpected content type: %q", got)
	}
	if !strings.Contains(rr.Body.String(), "getperson/1") {
		t.Fatalf("expected known-operations diagnostic, got %q", rr.Body.String())
	}
}

type rankedA struct{ tag string }

func (r rankedA) GetThing(o peopleOptions) string { return r.tag }

type rankedB struct{ tag string }

func (r rankedB) GetThing(o peopleOptions) string { return r.tag }

func TestLowerRankingWins(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(rankedA{tag: "high"}, 5); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := m.Register(rankedB{tag: "low"}, 1); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/thing", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != `"low"` {
		t.Fatalf("expected lower ranking to win, got %s", got)
	}
}

func TestEqualRankingKeepsRegistrationOrder(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(rankedA{tag: "first"}, 3); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := m.Register(rankedB{tag: "second"}, 3); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/thing", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != `"first"` {
		t.Fatalf("expected registration order to break ties, got %s", got)
	}
}

func TestDeregisterRemovesOperations(t *testing.T) {
	m := mapper.New("/rest", quiet())
	resource := people{}
	if err := m.Register(resource, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	m.Deregister(resource)

	rr := dispatch(t, m, http.MethodGet, "/rest/person/42", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected deregistered operation to miss, got %d", rr.Code)
	}
	if len(m.Operations()) != 0 {
		t.Fatalf("expected empty operation list, got %v", m.Operations())
	}
}

type tailResource struct{}

func (tailResource) GetPath(o peopleOptions, parts ...string) string {
	return strings.Join(parts, "|")
}

func TestVariableTailCollectsSegments(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(tailResource{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/path/a/b/c", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != `"a|b|c"` {
		t.Fatalf("unexpected body: %s", got)
	}

	rr = dispatch(t, m, http.MethodGet, "/path", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected empty tail to match, got %d", rr.Code)
	}
}

type typedSegments struct{}

func (typedSegments) GetSum(o peopleOptions, a, b int) int { return a + b }

func TestTypedSegmentCoercion(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(typedSegments{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/sum/19/23", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != "42" {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestBindingFailureIsBadRequest(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(typedSegments{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/sum/19/zebra", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Fatalf("unexpected content type: %q", got)
	}
}

type failing struct{}

func (failing) GetBroken(o peopleOptions) error {
	return fmt.Errorf("lookup: %w", mapper.ErrBadRequest)
}

func (failing) GetMissing(o peopleOptions) error {
	return errors.New("no such entry")
}

func (failing) GetPanicky(o peopleOptions) string {
	panic("unreachable state")
}

type teapotError struct{}

func (teapotError) Error() string   { return "teapot" }
func (teapotError) StatusCode() int { return http.StatusTeapot }

func (failing) GetTeapot(o peopleOptions) error { return teapotError{} }

func TestFailureStatusMapping(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(failing{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	cases := []struct {
		path string
		want int
	}{
		{"/broken", http.StatusBadRequest},
		{"/missing", http.StatusInternalServerError},
		{"/panicky", http.StatusInternalServerError},
		{"/teapot", http.StatusTeapot},
	}
	for _, tc := range cases {
		rr := dispatch(t, m, http.MethodGet, tc.path, nil)
		if rr.Code != tc.want {
			t.Fatalf("%s: unexpected status: got %d want %d", tc.path, rr.Code, tc.want)
		}
		if rr.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body on failure, got %q", tc.path, rr.Body.String())
		}
	}
}

func TestErrorClassifierRunsFirst(t *testing.T) {
	m := mapper.New("", quiet(), mapper.WithErrorClassifier(func(err error) (int, bool) {
		if strings.Contains(err.Error(), "no such entry") {
			return http.StatusGone, true
		}
		return 0, false
	}))
	if err := m.Register(failing{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/missing", nil)
	if rr.Code != http.StatusGone {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusGone)
	}
}

type created struct {
	mapper.Response
	Location string
}

type makers struct{}

func (makers) PostThing(o peopleOptions) *created {
	return &created{
		Response: mapper.Response{StatusCode: http.StatusCreated},
		Location: "/thing/42",
	}
}

func (makers) PostThing_err(o peopleOptions) error {
	return &created{
		Response: mapper.Response{StatusCode: http.StatusCreated},
		Location: "/thing/42",
	}
}

func TestStructuredResponseValueAndErrorPathsMatch(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(makers{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	for _, path := range []string{"/thing", "/thing-err"} {
		rr := dispatch(t, m, http.MethodPost, path, nil)
		if rr.Code != http.StatusCreated {
			t.Fatalf("%s: unexpected status: got %d want %d", path, rr.Code, http.StatusCreated)
		}
		if got := rr.Header().Get("Location"); got != "/thing/42" {
			t.Fatalf("%s: unexpected location header: %q", path, got)
		}
		if rr.Body.Len() != 0 {
			t.Fatalf("%s: expected empty body, got %q", path, rr.Body.String())
		}
	}
}

type echo struct{}

type echoOptions struct {
	mapper.Request
	Body person
}

func (echo) PostPerson(o echoOptions) person { return o.Body }

func TestBodyDecodesIntoBodySlot(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(echo{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodPost, "/person", strings.NewReader(`{"id":"7","name":"Ada"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"name":"Ada"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestEmptyBodyLeavesSlotZero(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(echo{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodPost, "/person", strings.NewReader("  "))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"id":""`) {
		t.Fatalf("expected zero body slot, got %q", rr.Body.String())
	}
}

type queries struct{}

type queryOptions struct {
	mapper.Request
	V     []string
	Limit int
}

func (queries) GetSearch(o queryOptions) map[string]any {
	return map[string]any{"v": o.V, "limit": o.Limit}
}

func (queries) GetPeek(o peopleOptions) any {
	return o.Args.Get("v")
}

func TestQueryParameterBinding(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(queries{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/search?v=1&v=2&limit=10", nil)
	body := rr.Body.String()
	if !strings.Contains(body, `["1","2"]`) {
		t.Fatalf("expected both values bound, got %q", body)
	}
	if !strings.Contains(body, `"limit":10`) {
		t.Fatalf("expected coerced limit, got %q", body)
	}
}

func TestSingleQueryValueCollapsesToScalar(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(queries{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/peek?v=only", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != `"only"` {
		t.Fatalf("expected collapsed scalar, got %s", got)
	}

	rr = dispatch(t, m, http.MethodGet, "/peek?v=1&v=2", nil)
	if got := strings.TrimSpace(rr.Body.String()); got != `["1","2"]` {
		t.Fatalf("expected string slice, got %s", got)
	}
}

type headerPeek struct{}

func (headerPeek) GetToken(o peopleOptions) any {
	return o.Args.Get("X-TOKEN")
}

func TestHeadersLandUpperCased(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(headerPeek{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	req.Header.Set("x-token", "secret")
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if got := strings.TrimSpace(rr.Body.String()); got != `"secret"` {
		t.Fatalf("expected header under upper-cased name, got %s", got)
	}
}

type rawBytes struct{}

func (rawBytes) GetBlob(o peopleOptions) []byte {
	return []byte{0xDE, 0xAD, 0xBE, 0xEF}
}

func TestByteSliceResultBypassesEncoding(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(rawBytes{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/blob", nil)
	if got := rr.Body.Bytes(); len(got) != 4 || got[0] != 0xDE {
		t.Fatalf("expected raw bytes, got %v", got)
	}
	if rr.Header().Get("Content-Type") == "application/json;charset=UTF-8" {
		t.Fatal("raw results must not claim JSON")
	}
}

type verbose struct{}

func (verbose) GetEssay(o peopleOptions) string {
	return strings.Repeat("all work and no play ", 20)
}

func (verbose) GetWord(o peopleOptions) string { return "short" }

func TestGzipNegotiation(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(verbose{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/essay", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("unexpected gzip error: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !strings.Contains(string(plain), "all work and no play") {
		t.Fatalf("unexpected decompressed body: %q", plain)
	}
}

func TestShortStringSkipsCompression(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(verbose{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/word", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("expected no encoding for short scalar, got %q", got)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `"short"` {
		t.Fatalf("unexpected body: %s", got)
	}
}

func TestDescribeRouteIsReserved(t *testing.T) {
	m := mapper.New("/rest", quiet(), mapper.WithDescribeFunc(
		func(r *http.Request, ops []mapper.OperationInfo) (any, error) {
			names := make([]string, 0, len(ops))
			for _, op := range ops {
				names = append(names, op.Verb+" "+op.Name)
			}
			return map[string]any{"operations": names}, nil
		},
	))
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/rest/openapi.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "get person") {
		t.Fatalf("expected operation listing, got %q", rr.Body.String())
	}
}

func TestDescribeRouteWithoutGeneratorIsNotFound(t *testing.T) {
	m := mapper.New("/rest", quiet())
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/rest/openapi.json", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRegisterRejectsResourceWithoutOperations(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(struct{}{}, 0); err == nil {
		t.Fatal("expected error for resource without operations")
	}
}

func TestOperationsSnapshot(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := m.Register(echo{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	ops := m.Operations()
	if len(ops) != 3 {
		t.Fatalf("unexpected operation count: got %d want 3", len(ops))
	}
	var post mapper.OperationInfo
	for _, op := range ops {
		if op.Verb == "post" && op.Name == "person" {
			post = op
		}
	}
	if post.BodyType == nil {
		t.Fatal("expected post person to report a body type")
	}
}

func TestPrefixRequiresSegmentBoundary(t *testing.T) {
	m := mapper.New("/rest", quiet())
	if err := m.Register(people{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/restperson/42", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected path outside the namespace to miss, got %d", rr.Code)
	}

	rr = dispatch(t, m, http.MethodGet, "/other/person/42", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected foreign namespace to miss, got %d", rr.Code)
	}

	rr = dispatch(t, m, http.MethodGet, "/rest/person/42", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected in-namespace dispatch to succeed, got %d", rr.Code)
	}

	// Bare prefix is inside the namespace: it reaches the table and misses
	// there, it is not rejected as foreign.
	rr = dispatch(t, m, http.MethodGet, "/rest", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected bare prefix to miss in the table, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "known operations") {
		t.Fatalf("expected a table miss, not a namespace reject: %q", rr.Body.String())
	}
}

type cachingResource struct {
	cache map[string]string
}

func (cachingResource) GetEntry(o peopleOptions) string { return "" }

func TestRegisterRejectsUncomparableValueResource(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(cachingResource{cache: map[string]string{}}, 0); err == nil {
		t.Fatal("expected error for non-comparable value resource")
	}

	resource := &cachingResource{cache: map[string]string{}}
	if err := m.Register(resource, 0); err != nil {
		t.Fatalf("unexpected register error for pointer resource: %v", err)
	}
	m.Deregister(resource)
	if len(m.Operations()) != 0 {
		t.Fatalf("expected pointer resource to deregister, got %v", m.Operations())
	}
}

type valueResponder struct{}

func (valueResponder) GetAccepted(o peopleOptions) mapper.Response {
	return mapper.Response{StatusCode: http.StatusAccepted}
}

type valueCreated struct {
	mapper.Response
	Location string
}

func (valueResponder) PostMade(o peopleOptions) valueCreated {
	return valueCreated{
		Response: mapper.Response{StatusCode: http.StatusCreated},
		Location: "/made/1",
	}
}

func TestValueTypedResponseIsHonored(t *testing.T) {
	m := mapper.New("", quiet())
	if err := m.Register(valueResponder{}, 0); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	rr := dispatch(t, m, http.MethodGet, "/accepted", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusAccepted)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rr.Body.String())
	}

	rr = dispatch(t, m, http.MethodPost, "/made", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusCreated)
	}
	if got := rr.Header().Get("Location"); got != "/made/1" {
		t.Fatalf("unexpected location header: %q", got)
	}
}
