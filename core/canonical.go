package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// CanonicalBytes renders an event payload (or any JSON-marshalable value) as
// canonical structured bytes: object keys in lexicographic UTF-8 codepoint
// order, no insignificant whitespace, decimal integers with no
// fractional/exponent form, minimal string escapes, and array order
// preserved. The result is a total, deterministic function of the payload's
// semantic content, independent of Go struct field order or map iteration
// order.
func CanonicalBytes(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapErr(ErrCanonicalizationError, "", err, "marshal payload")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, wrapErr(ErrCanonicalizationError, "", err, "decode payload")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			return newErr(ErrInvalidPayload, "", "non-integer or exponential number %q is not permitted in canonical encoding", s)
		}
		buf.WriteString(s)
		return nil
	case string:
		return writeCanonicalString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys) // byte-wise order == UTF-8 codepoint order for valid UTF-8
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return newErr(ErrInvalidPayload, "", "unsupported canonical value type %T", v)
	}
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return newErr(ErrCanonicalizationError, "", "string %q is not valid UTF-8", s)
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return nil
}

// CanonicalEqual reports whether two payloads canonicalize to byte-identical
// output, i.e. are semantically equal regardless of in-memory key order.
func CanonicalEqual(a, b interface{}) (bool, error) {
	ab, err := CanonicalBytes(a)
	if err != nil {
		return false, err
	}
	bb, err := CanonicalBytes(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

func mustCanonical(payload interface{}) []byte {
	b, err := CanonicalBytes(payload)
	if err != nil {
		panic(fmt.Sprintf("channelforge/engine: payload failed to canonicalize: %v", err))
	}
	return b
}
