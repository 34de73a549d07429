// Package document defines the flat, JSON-serializable document produced by
// the record extractor and consumed by the storage sinks.
//
// A document is an ordered list of named values. Each value carries an
// explicit Shape (Scalar, Sequence or Count) so that serialization never has
// to guess from the Go type what a field is supposed to look like.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Shape is the declared result shape of a mapping entry.
type Shape int

const (
	// Scalar is a single string, or absent when the query matched nothing.
	Scalar Shape = iota
	// Sequence is an ordered list of strings, possibly empty.
	Sequence
	// Count is a non-negative integer, always present.
	Count
)

// String returns the lower-case name used in mapping files.
func (s Shape) String() string {
	switch s {
	case Scalar:
		return "scalar"
	case Sequence:
		return "sequence"
	case Count:
		return "count"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseShape parses a shape name. The empty string means Scalar.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scalar":
		return Scalar, nil
	case "sequence", "list", "multi":
		return Sequence, nil
	case "count":
		return Count, nil
	default:
		return Scalar, fmt.Errorf("unknown shape %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. It is used by both the
// JSON and YAML mapping file decoders.
func (s *Shape) UnmarshalText(b []byte) error {
	v, err := ParseShape(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value is one extracted field value.
type Value struct {
	Shape   Shape
	Str     string   // Scalar payload
	Present bool     // Scalar only: false means the query matched nothing
	Seq     []string // Sequence payload, in document order
	N       int      // Count payload
}

// ScalarOf returns a present scalar value.
func ScalarOf(s string) Value { return Value{Shape: Scalar, Str: s, Present: true} }

// AbsentScalar returns a scalar value for a query that matched nothing.
func AbsentScalar() Value { return Value{Shape: Scalar} }

// SequenceOf returns a sequence value. A nil or empty input yields an empty,
// non-nil sequence so that it serializes as [].
func SequenceOf(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{Shape: Sequence, Seq: items}
}

// CountOf returns a count value. Negative inputs are clamped to zero.
func CountOf(n int) Value {
	if n < 0 {
		n = 0
	}
	return Value{Shape: Count, N: n}
}

// Empty reports whether the value carries no usable text. Counts are never
// empty; whitespace-only strings are.
func (v Value) Empty() bool {
	switch v.Shape {
	case Scalar:
		return !v.Present || strings.TrimSpace(v.Str) == ""
	case Sequence:
		for _, s := range v.Seq {
			if strings.TrimSpace(s) != "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// First returns the first non-empty string held by the value, or "".
func (v Value) First() string {
	switch v.Shape {
	case Scalar:
		if v.Present {
			return v.Str
		}
	case Sequence:
		for _, s := range v.Seq {
			if strings.TrimSpace(s) != "" {
				return s
			}
		}
	case Count:
		return fmt.Sprint(v.N)
	}
	return ""
}

// MarshalJSON encodes absent scalars as null, sequences as arrays and counts
// as numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Shape {
	case Scalar:
		if !v.Present {
			return []byte("null"), nil
		}
		return json.Marshal(v.Str)
	case Sequence:
		if v.Seq == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Seq)
	case Count:
		return json.Marshal(v.N)
	default:
		return nil, fmt.Errorf("document: cannot marshal %s", v.Shape)
	}
}

// Field is a named value.
type Field struct {
	Name  string
	Value Value
}

// Fields is an ordered set of fields. Order follows the mapping table.
type Fields []Field

// Get returns the value stored under name.
func (f Fields) Get(name string) (Value, bool) {
	for _, fld := range f {
		if fld.Name == name {
			return fld.Value, true
		}
	}
	return Value{}, false
}

// MarshalJSON encodes the fields as a JSON object, preserving order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 * len(f))
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fld.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := fld.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fld.Name, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Document is an extracted record bound to its target index.
type Document struct {
	// Index is the target index name.
	Index string
	// ID is the optional explicit document id. Empty lets the engine assign one.
	ID string
	// Fields holds the extracted values.
	Fields Fields
}

// Body returns the JSON source of the document.
func (d Document) Body() ([]byte, error) {
	return d.Fields.MarshalJSON()
}
