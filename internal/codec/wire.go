// Package codec converts frames between protobuf wire format and the types in
// package models. Decoding is strict about truncation and wire types of known
// fields, and lenient about everything else: unknown fields are skipped and
// absent fields keep their zero value.
package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for any frame that cannot be decoded.
var ErrMalformed = errors.New("malformed frame")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// fieldFunc receives one field. For varint fields v holds the value, for
// length-delimited fields raw holds the payload.
type fieldFunc func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error

// walk iterates over every top-level field in b.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, typ, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, typ, 0, raw); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, typ, 0, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func expect(num protowire.Number, got, want protowire.Type) error {
	if got != want {
		return malformed("field %d: wire type %d, want %d", num, got, want)
	}
	return nil
}

// unpackVarints handles both packed and unpacked repeated scalar encodings.
func unpackVarints(typ protowire.Type, v uint64, raw []byte) ([]uint64, error) {
	if typ == protowire.VarintType {
		return []uint64{v}, nil
	}
	if typ != protowire.BytesType {
		return nil, malformed("repeated scalar: wire type %d", typ)
	}
	var out []uint64
	for len(raw) > 0 {
		x, n := protowire.ConsumeVarint(raw)
		if n < 0 {
			return nil, malformed("packed varint: %v", protowire.ParseError(n))
		}
		out = append(out, x)
		raw = raw[n:]
	}
	return out, nil
}

// --- append helpers; zero values are omitted like proto3 ---

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendPacked[T ~uint32 | ~int32](b []byte, num protowire.Number, vs []T) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendMessage(b, num, packed)
}
