package mapper

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/drblury/restweaver/jsonutil"
)

// bind assembles the positional parameter list for op from the request
// arguments, the remaining path segments, and the decoded body. A nil error
// means every slot was filled; any missing or un-coercible value is a
// binding failure.
func (op *operation) bind(args Args, segments []string, w http.ResponseWriter, r *http.Request) ([]reflect.Value, error) {
	if op.variableTail {
		if len(segments) < op.arity {
			return nil, fmt.Errorf("need at least %d path segments, have %d", op.arity, len(segments))
		}
	} else if len(segments) != op.arity {
		return nil, fmt.Errorf("need %d path segments, have %d", op.arity, len(segments))
	}

	params := make([]reflect.Value, 0, 1+len(segments))
	if op.optsType != nil {
		opts, err := op.bindOptions(args, w, r)
		if err != nil {
			return nil, err
		}
		params = append(params, opts)
	}

	for i, t := range op.segTypes {
		v, err := coerceString(segments[i], t)
		if err != nil {
			return nil, fmt.Errorf("path segment %d: %w", i+1, err)
		}
		params = append(params, v)
	}
	if op.variableTail {
		for _, seg := range segments[op.arity:] {
			v, err := coerceString(seg, op.tailType)
			if err != nil {
				return nil, fmt.Errorf("trailing segment %q: %w", seg, err)
			}
			params = append(params, v)
		}
	}
	return params, nil
}

func (op *operation) bindOptions(args Args, w http.ResponseWriter, r *http.Request) (reflect.Value, error) {
	opts := reflect.New(op.optsType).Elem()
	opts.FieldByIndex(op.ctxIndex).Set(reflect.ValueOf(Request{
		HTTP:     r,
		Response: w,
		Host:     r.Host,
		Args:     args,
	}))

	for i := range op.named {
		f := &op.named[i]
		raw, key, ok := lookupArg(args, f.keys)
		if !ok {
			continue // missing named inputs stay zero
		}
		v, err := coerceValue(raw, f.typ)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("argument %q: %w", f.name, err)
		}
		opts.FieldByIndex(f.index).Set(v)
		if key != f.name {
			args[f.name] = raw // rename: expose under the expected name too
		}
	}

	if op.bodyField != nil {
		if err := op.bindBody(opts, args, r); err != nil {
			return reflect.Value{}, err
		}
	}
	return opts, nil
}

// bindBody decodes the request body, once, into the Body slot. An empty body
// leaves the slot unset and omits the _body entry.
func (op *operation) bindBody(opts reflect.Value, args Args, r *http.Request) error {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	bv := reflect.New(op.bodyField.typ)
	if err := jsonutil.Unmarshal(data, bv.Interface()); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	opts.FieldByIndex(op.bodyField.index).Set(bv.Elem())
	args[ArgBody] = bv.Elem().Interface()
	return nil
}

// lookupArg tries each rename-table key in order and reports the key that
// matched.
func lookupArg(args Args, keys []string) (any, string, bool) {
	for _, key := range keys {
		if v, ok := args[key]; ok {
			return v, key, true
		}
	}
	return nil, "", false
}

// coerceValue converts a request-argument value (string or []string) into
// the declared input type.
func coerceValue(raw any, t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		values := asStrings(raw)
		out := reflect.MakeSlice(t, len(values), len(values))
		for i, s := range values {
			v, err := coerceString(s, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(v)
		}
		return out, nil
	}

	switch v := raw.(type) {
	case string:
		return coerceString(v, t)
	case []string:
		if len(v) == 0 {
			return reflect.Zero(t), nil
		}
		return coerceString(v[0], t)
	}
	rv := reflect.ValueOf(raw)
	if rv.IsValid() && rv.Type().AssignableTo(t) {
		return rv, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot coerce %T to %s", raw, t)
}

// coerceString converts a single textual value into the declared type.
// []byte values are hex decoded, matching the path-segment convention for
// binary identifiers.
func coerceString(s string, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%q is not a bool", s)
		}
		return reflect.ValueOf(b).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%q is not a valid %s", s, t.Kind())
		}
		v := reflect.New(t).Elem()
		v.SetInt(n)
		return v, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%q is not a valid %s", s, t.Kind())
		}
		v := reflect.New(t).Elem()
		v.SetUint(n)
		return v, nil
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%q is not a valid %s", s, t.Kind())
		}
		v := reflect.New(t).Elem()
		v.SetFloat(n)
		return v, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			data, err := hex.DecodeString(s)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%q is not hex", s)
			}
			v := reflect.MakeSlice(t, len(data), len(data))
			reflect.Copy(v, reflect.ValueOf(data))
			return v, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot coerce %q to %s", s, t)
}

func asStrings(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}
