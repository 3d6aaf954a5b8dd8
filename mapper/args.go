package mapper

import (
	"net/http"
	"strings"
)

// Reserved argument names, always available to bound operations.
const (
	ArgRequest  = "_request"
	ArgResponse = "_response"
	ArgHost     = "_host"
	ArgBody     = "_body"
)

// Args is the per-request mapping from argument name to value. Query
// parameters and headers land here before binding; single-valued entries are
// collapsed to scalars, multi-valued ones stay []string. An Args value is
// built fresh per request and never shared.
type Args map[string]any

// Get returns the named value, or nil when absent.
func (a Args) Get(name string) any { return a[name] }

// String returns the named value as a scalar, taking the first element of a
// multi-value entry.
func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Strings returns every value bound under name.
func (a Args) Strings(name string) []string {
	switch v := a[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

// Request is the request-context capability available to operations: embed
// it as the first field of an options struct to receive it.
type Request struct {
	HTTP     *http.Request       `json:"-"`
	Response http.ResponseWriter `json:"-"`
	Host     string              `json:"-"`
	Args     Args                `json:"-"`
}

// buildArgs assembles the request arguments: query parameters (singletons
// collapsed), headers (names upper-cased), and the injected context entries.
func buildArgs(w http.ResponseWriter, r *http.Request) Args {
	query := r.URL.Query()
	args := make(Args, len(query)+len(r.Header)+4)

	for name, values := range query {
		args[name] = collapse(values)
	}
	for name, values := range r.Header {
		args[strings.ToUpper(name)] = collapse(values)
	}

	args[ArgRequest] = r
	args[ArgResponse] = w
	args[ArgHost] = r.Host
	return args
}

func collapse(values []string) any {
	if len(values) == 1 {
		return values[0]
	}
	return values
}
