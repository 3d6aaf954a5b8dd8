package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPDoer is the subset of *http.Client an HTTP probe needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRequestMutator adjusts the outbound request before dispatch.
type HTTPRequestMutator func(req *http.Request) error

// HTTPResponseValidator inspects the response and can fail the probe.
type HTTPResponseValidator func(resp *http.Response) error

// HTTPProbeOption configures NewHTTPProbe.
type HTTPProbeOption func(*httpProbe)

type httpProbe struct {
	client     HTTPDoer
	accept     func(status int) bool
	mutators   []HTTPRequestMutator
	validators []HTTPResponseValidator
	drainBody  bool
}

func accept2xx(status int) bool { return status >= 200 && status < 300 }

// NewHTTPProbe builds a probe that issues a request against target and
// succeeds on a 2xx response unless told otherwise.
func NewHTTPProbe(name, method, target string, client HTTPDoer, opts ...HTTPProbeOption) Func {
	p := &httpProbe{
		client:    client,
		accept:    accept2xx,
		drainBody: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.accept == nil {
		p.accept = accept2xx
	}

	return func(ctx context.Context) error {
		url := strings.TrimSpace(target)
		if url == "" {
			return fmt.Errorf("%s probe: target URL is required", name)
		}
		verb := strings.ToUpper(strings.TrimSpace(method))
		if verb == "" {
			verb = http.MethodGet
		}

		req, err := http.NewRequestWithContext(contextOrBackground(ctx), verb, url, nil)
		if err != nil {
			return fmt.Errorf("%s probe: failed to build request: %w", name, err)
		}
		for _, mutate := range p.mutators {
			if mutate == nil {
				continue
			}
			if err := mutate(req); err != nil {
				return fmt.Errorf("%s probe: request mutation failed: %w", name, err)
			}
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s probe request failed: %w", name, err)
		}
		defer resp.Body.Close()

		if !p.accept(resp.StatusCode) {
			return fmt.Errorf("%s probe: unexpected status %d %s", name, resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		for _, validate := range p.validators {
			if validate == nil {
				continue
			}
			if err := validate(resp); err != nil {
				return fmt.Errorf("%s probe: %w", name, err)
			}
		}

		if p.drainBody {
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				return fmt.Errorf("%s probe: failed to drain response body: %w", name, err)
			}
		}
		return nil
	}
}

// WithHTTPClient overrides the HTTP client used by the probe.
func WithHTTPClient(client HTTPDoer) HTTPProbeOption {
	return func(p *httpProbe) {
		p.client = client
	}
}

// WithHTTPStatusExpectation installs a custom status acceptance function.
func WithHTTPStatusExpectation(accept func(status int) bool) HTTPProbeOption {
	return func(p *httpProbe) {
		p.accept = accept
	}
}

// WithHTTPAllowedStatuses accepts only the listed status codes.
func WithHTTPAllowedStatuses(statuses ...int) HTTPProbeOption {
	allowed := make(map[int]struct{}, len(statuses))
	for _, status := range statuses {
		allowed[status] = struct{}{}
	}
	return func(p *httpProbe) {
		p.accept = func(status int) bool {
			if len(allowed) == 0 {
				return accept2xx(status)
			}
			_, ok := allowed[status]
			return ok
		}
	}
}

// WithHTTPRequestMutator registers a mutator run before dispatch.
func WithHTTPRequestMutator(mutator HTTPRequestMutator) HTTPProbeOption {
	return func(p *httpProbe) {
		p.mutators = append(p.mutators, mutator)
	}
}

// WithHTTPResponseValidator registers a validator run on the response.
func WithHTTPResponseValidator(validator HTTPResponseValidator) HTTPProbeOption {
	return func(p *httpProbe) {
		p.validators = append(p.validators, validator)
	}
}

// WithHTTPDrainResponseBody toggles draining of the response body after
// validation.
func WithHTTPDrainResponseBody(enabled bool) HTTPProbeOption {
	return func(p *httpProbe) {
		p.drainBody = enabled
	}
}
