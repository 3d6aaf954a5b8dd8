package mapper

import (
	"io"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/drblury/restweaver/jsonutil"
)

const jsonContentType = "application/json"
const jsonContentTypeUTF8 = "application/json;charset=UTF-8"

// smallScalarLimit: responses at or above this many characters are worth
// compressing; shorter text (and numbers) is not.
const smallScalarLimit = 100

// writeResult serializes an operation's plain return value. Byte slices,
// open files, and readers pass through unmodified; everything else is
// JSON encoded.
func (m *Mapper) writeResult(w http.ResponseWriter, r *http.Request, result any) {
	if result == nil {
		return
	}
	if rawResult(result) {
		m.writeRaw(w, r, result, http.StatusOK)
		return
	}

	body, err := marshalResult(result)
	if err != nil {
		m.failWith(w, r, http.StatusInternalServerError, err, "failed to serialize result")
		return
	}
	w.Header().Set("Content-Type", jsonContentTypeUTF8)
	m.writeEncoded(w, r, result, body, http.StatusOK)
}

// writeEncoded negotiates a content encoding for the already-serialized
// body, writes the status line, and streams the body out.
func (m *Mapper) writeEncoded(w http.ResponseWriter, r *http.Request, value any, body []byte, status int) {
	out := m.negotiate(w, r, value)
	if _, plain := out.(nopCloser); plain {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(status)
	if _, err := out.Write(body); err != nil {
		m.logger().Error("failed to write response body", "error", err)
		return
	}
	if err := out.Close(); err != nil {
		m.logger().Error("failed to flush response body", "error", err)
	}
}

// writeRaw streams byte slices, files, and readers without re-encoding.
// Content-Length is only set when the output is not being compressed.
func (m *Mapper) writeRaw(w http.ResponseWriter, r *http.Request, result any, status int) {
	out := m.negotiate(w, r, result)
	_, plain := out.(nopCloser)

	switch v := result.(type) {
	case []byte:
		if plain {
			w.Header().Set("Content-Length", strconv.Itoa(len(v)))
		}
		w.WriteHeader(status)
		if _, err := out.Write(v); err != nil {
			m.logger().Error("failed to write response body", "error", err)
		}
	case *os.File:
		if info, err := v.Stat(); err == nil && plain {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		}
		w.WriteHeader(status)
		defer v.Close()
		if _, err := io.Copy(out, v); err != nil {
			m.logger().Error("failed to stream file response", "error", err)
		}
	case io.Reader:
		w.WriteHeader(status)
		if _, err := io.Copy(out, v); err != nil {
			m.logger().Error("failed to stream response", "error", err)
		}
	}
	if err := out.Close(); err != nil {
		m.logger().Error("failed to flush response body", "error", err)
	}
}

// rawResult reports whether the value bypasses JSON encoding entirely.
func rawResult(value any) bool {
	switch value.(type) {
	case []byte, *os.File, io.Reader:
		return true
	}
	return false
}

func marshalResult(value any) ([]byte, error) {
	return jsonutil.Marshal(value)
}

// negotiate wraps the response stream in a compressing writer when the
// client advertises support and the payload is not a small scalar. Gzip is
// preferred over deflate.
func (m *Mapper) negotiate(w http.ResponseWriter, r *http.Request, value any) io.WriteCloser {
	if smallScalar(value) {
		return nopCloser{w}
	}
	accept := r.Header.Get("Accept-Encoding")
	switch {
	case strings.Contains(accept, "gzip"):
		w.Header().Set("Content-Encoding", "gzip")
		return gzip.NewWriter(w)
	case strings.Contains(accept, "deflate"):
		w.Header().Set("Content-Encoding", "deflate")
		return zlib.NewWriter(w)
	}
	return nopCloser{w}
}

// smallScalar reports whether the value is a number or a short text value,
// neither of which is worth compressing.
func smallScalar(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return len(s) < smallScalarLimit
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.String:
		return reflect.ValueOf(value).Len() < smallScalarLimit
	}
	return false
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
