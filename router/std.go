package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapiMW "github.com/oapi-codegen/nethttp-middleware"
)

// Config carries the transport-level settings for a mounted mapper.
type Config struct {
	// Timeout bounds the handling of one request; zero disables it.
	Timeout time.Duration
	// CORS enables cross-origin handling when Origins is non-empty.
	CORS CORSConfig
	// QuietRoutes are paths excluded from dispatch logging.
	QuietRoutes []string
	// HideHeaders are request headers redacted from log records.
	HideHeaders []string
}

// CORSConfig describes the allowed cross-origin surface.
type CORSConfig struct {
	Origins          []string
	Methods          []string
	Headers          []string
	AllowCredentials bool
}

// New mounts the dispatch handler on a fresh *http.ServeMux behind the
// configured middleware chain. When the handler exposes a path prefix (as
// *mapper.Mapper does), it is mounted under that prefix; otherwise at the
// root.
func New(dispatch http.Handler, opts ...Option) *http.ServeMux {
	if dispatch == nil {
		panic("router: dispatch handler cannot be nil")
	}

	settings := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	wrapped := applyMiddlewares(dispatch, settings.middlewareChain())
	mux := http.NewServeMux()
	mux.Handle(mountPattern(dispatch), wrapped)
	return mux
}

type prefixed interface {
	Prefix() string
}

func mountPattern(dispatch http.Handler) string {
	if p, ok := dispatch.(prefixed); ok {
		if prefix := strings.TrimSuffix(p.Prefix(), "/"); prefix != "" {
			return prefix + "/"
		}
	}
	return "/"
}

func applyMiddlewares(handler http.Handler, middlewares []Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		handler = middlewares[i](handler)
	}
	return handler
}

// oapiMiddleware validates incoming requests against the generated OpenAPI
// document before they reach the dispatch engine.
func oapiMiddleware(doc *openapi3.T) Middleware {
	return func(next http.Handler) http.Handler {
		// Server names depend on how the process is reached; skip
		// validating them.
		doc.Servers = nil

		validatorOptions := &oapiMW.Options{
			Options: openapi3filter.Options{
				AuthenticationFunc: func(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
					return nil
				},
			},
		}
		return oapiMW.OapiRequestValidatorWithOptions(doc, validatorOptions)(next)
	}
}

// loggingMiddleware records one line per dispatch attempt with the resolved
// status and duration. Redacted headers are replaced by their byte count.
func loggingMiddleware(logger *slog.Logger, quietRoutes, hideHeaders []string) Middleware {
	quiet := cloneStrings(quietRoutes)
	redacted := cloneStrings(hideHeaders)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietRoute(r.URL.Path, quiet) {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			headers := cloneHeaders(r.Header)
			redactHeaders(headers, redacted)
			logger.Debug("dispatch",
				"Method", r.Method,
				"Path", r.URL.Path,
				"Status", rec.status,
				"Duration", time.Since(start),
				"Header", headers,
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rec *statusRecorder) WriteHeader(status int) {
	if !rec.written {
		rec.status = status
		rec.written = true
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(data []byte) (int, error) {
	rec.written = true
	return rec.ResponseWriter.Write(data)
}

// corsMiddleware adds CORS headers based on the provided configuration.
func corsMiddleware(cfg CORSConfig) Middleware {
	headersCopy := cloneStrings(cfg.Headers)
	methodsCopy := cloneStrings(cfg.Methods)
	originsCopy := cloneStrings(cfg.Origins)

	return func(next http.Handler) http.Handler {
		if len(originsCopy) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if allowedOrigin(origin, originsCopy) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(methodsCopy, ","))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(headersCopy, ","))
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "Timeout")
	}
}

func allowedOrigin(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}
	return false
}

func quietRoute(path string, quietRoutes []string) bool {
	for _, quietPath := range quietRoutes {
		if path == quietPath {
			return true
		}
	}
	return false
}

func cloneHeaders(src http.Header) http.Header {
	headers := make(http.Header, len(src))
	for k, v := range src {
		copied := make([]string, len(v))
		copy(copied, v)
		headers[k] = copied
	}
	return headers
}

func redactHeaders(headers http.Header, hideHeaders []string) {
	for _, header := range hideHeaders {
		canonical := http.CanonicalHeaderKey(header)
		values, exists := headers[canonical]
		if !exists {
			continue
		}

		redactedLen := 0
		for _, value := range values {
			redactedLen += len(value)
		}
		headers[canonical] = []string{fmt.Sprintf("[REDACTED - %d bytes]", redactedLen)}
	}
}
