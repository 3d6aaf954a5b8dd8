// Package health exposes liveness, readiness, and build-information
// endpoints as a plain resource dispatched by the mapper. Register it like
// any other resource; the paths become /healthz, /readyz, /status, and
// /version under the mapper's prefix.
package health

import (
	"net/http"
	"time"

	"github.com/drblury/restweaver/mapper"
	"github.com/drblury/restweaver/probe"
)

const defaultProbeTimeout = 2 * time.Second

// VersionProvider returns the payload served by the version endpoint,
// typically build metadata injected at link time.
type VersionProvider func() any

// Option configures a Resource.
type Option func(*Resource)

// Resource answers health and version queries. Its exported Get methods are
// discovered by the mapper at registration time.
type Resource struct {
	timeout   time.Duration
	version   VersionProvider
	liveness  []probe.Check
	readiness []probe.Check
}

// New creates a health resource. Without checks, healthz and readyz always
// report ok.
func New(opts ...Option) *Resource {
	res := &Resource{
		timeout: defaultProbeTimeout,
		version: func() any { return map[string]string{} },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(res)
		}
	}
	return res
}

// WithProbeTimeout bounds each individual check.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(res *Resource) {
		if timeout > 0 {
			res.timeout = timeout
		}
	}
}

// WithLivenessChecks sets the checks behind the healthz endpoint.
func WithLivenessChecks(checks ...probe.Check) Option {
	return func(res *Resource) {
		res.liveness = checks
	}
}

// WithReadinessChecks sets the checks behind the readyz endpoint.
func WithReadinessChecks(checks ...probe.Check) Option {
	return func(res *Resource) {
		res.readiness = checks
	}
}

// WithVersionProvider sets the source of the version payload.
func WithVersionProvider(provider VersionProvider) Option {
	return func(res *Resource) {
		if provider != nil {
			res.version = provider
		}
	}
}

type healthOptions struct {
	mapper.Request
}

// Status is the payload served by the check endpoints.
type Status struct {
	Status string       `json:"status"`
	Checks probe.Report `json:"checks,omitempty"`
}

// GetHealthz reports process liveness.
func (res *Resource) GetHealthz(o healthOptions) *mapper.Response {
	return res.respond(o, res.liveness)
}

// GetReadyz reports readiness of the process and its dependencies.
func (res *Resource) GetReadyz(o healthOptions) *mapper.Response {
	return res.respond(o, res.readiness)
}

// GetStatus reports the combined outcome of every configured check.
func (res *Resource) GetStatus(o healthOptions) *mapper.Response {
	checks := make([]probe.Check, 0, len(res.liveness)+len(res.readiness))
	checks = append(checks, res.liveness...)
	checks = append(checks, res.readiness...)
	return res.respond(o, checks)
}

// GetVersion serves the configured build-information payload.
func (res *Resource) GetVersion(o healthOptions) any {
	return res.version()
}

func (res *Resource) respond(o healthOptions, checks []probe.Check) *mapper.Response {
	report := probe.Run(o.HTTP.Context(), res.timeout, checks)

	status := Status{Status: "ok", Checks: report}
	code := http.StatusOK
	if !report.Healthy() {
		status.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	return &mapper.Response{StatusCode: code, Value: status}
}
