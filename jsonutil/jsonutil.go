// Package jsonutil provides thin wrappers around bytedance/sonic for
// high-throughput JSON encoding and decoding. Two frozen configurations are
// exposed: the default one matches encoding/json and writes zero values, the
// null-suppressing one keeps collections out of the null domain. Both are
// immutable; call sites pick one explicitly.
package jsonutil

import (
	"io"

	"github.com/bytedance/sonic"
)

var (
	std = sonic.ConfigStd

	// noNulls encodes nil slices and maps as empty collections instead of
	// null, for payloads whose consumers cannot handle null values.
	noNulls = sonic.Config{
		EscapeHTML:       true,
		SortMapKeys:      true,
		CompactMarshaler: true,
		NoNullSliceOrMap: true,
	}.Froze()
)

// Marshal encodes v using the default configuration.
func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

// MarshalNoNulls encodes v using the null-suppressing configuration.
func MarshalNoNulls(v any) ([]byte, error) {
	return noNulls.Marshal(v)
}

// MarshalIndent encodes v with the given prefix and indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return std.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

// Encode streams the encoding of v to w.
func Encode(w io.Writer, v any) error {
	return std.NewEncoder(w).Encode(v)
}

// Decode reads the next JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return std.NewDecoder(r).Decode(v)
}
