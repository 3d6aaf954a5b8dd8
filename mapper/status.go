package mapper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/drblury/restweaver/jsonutil"
)

const problemContentType = "application/problem+json"

// Sentinel failure categories for the fixed status lookup. Operations wrap
// these (or fs.ErrNotExist, fs.ErrPermission, the deadline errors) to pick
// a status; anything unrecognized maps to 500.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrNotImplemented = errors.New("not implemented")
)

// ErrorClassifierFunc inspects a failure and returns the HTTP status to
// respond with. The boolean reports whether the error was classified and
// stops the fixed category table from being consulted.
type ErrorClassifierFunc func(err error) (status int, handled bool)

// StatusCoder is implemented by errors that carry their own HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// failureStatus maps a raised failure to a status code: the optional
// classifier first, then StatusCoder, then the fixed category table.
func (m *Mapper) failureStatus(err error) int {
	if m.classify != nil {
		if status, handled := m.classify(err); handled {
			return status
		}
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// failWith logs the failure and terminates the request with a bare status.
// The original error is never echoed to the caller.
func (m *Mapper) failWith(w http.ResponseWriter, r *http.Request, status int, err error, msg string) {
	m.logger().Error(msg,
		"error", err,
		"traceId", newTraceID(),
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	)
	w.WriteHeader(status)
}

// problemDetails is an RFC 9457 problem document, used only for the
// development-time diagnostics on NotFound and BindingFailure responses.
type problemDetails struct {
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	TraceID   string `json:"traceId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// failWithProblem logs the failure and emits a problem document carrying a
// diagnostic detail. Used for NotFound and BindingFailure, where the detail
// helps during development rather than exposing operation internals.
func (m *Mapper) failWithProblem(w http.ResponseWriter, r *http.Request, status int, detail string, logAttrs ...any) {
	traceID := newTraceID()
	attrs := append([]any{
		"traceId", traceID,
		"status", status,
		"method", r.Method,
		"path", r.URL.Path,
	}, logAttrs...)
	m.logger().Warn(http.StatusText(status), attrs...)

	problem := problemDetails{
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.RequestURI(),
		TraceID:   traceID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	body, err := jsonutil.Marshal(problem)
	if err != nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		m.logger().Error("failed to write problem document", "error", err)
	}
}

func notFoundDetail(key string, arity int, known []string) string {
	return fmt.Sprintf("no operation %s/%d, known operations: %v", key, arity, known)
}
