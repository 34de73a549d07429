// Package extract evaluates a compiled mapping table against one record
// element and produces the document fields.
package extract

import (
	"fmt"
	"math"
	"strconv"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/text/unicode/norm"

	"catalogindex/internal/document"
	"catalogindex/internal/mapping"
)

// Extractor projects record elements into document fields. An Extractor
// shares the compiled expressions of its table and is therefore not safe for
// concurrent use.
type Extractor struct {
	compiled *mapping.Compiled
	idField  string
}

// New returns an Extractor for c. idField must be declared by the table.
func New(c *mapping.Compiled, idField string) (*Extractor, error) {
	if c == nil {
		return nil, fmt.Errorf("extract: nil mapping")
	}
	for _, e := range c.Entries() {
		if e.Field == idField {
			return &Extractor{compiled: c, idField: idField}, nil
		}
	}
	return nil, fmt.Errorf("extract: id field %q is not declared by the mapping", idField)
}

// Extract evaluates every entry against record, which must be the record
// element itself (queries are relative to it). It returns false when the id
// field is empty; such records must be skipped.
func (x *Extractor) Extract(record *xmlquery.Node) (document.Fields, bool) {
	fields := x.Eval(record)
	id, _ := fields.Get(x.idField)
	if id.Empty() {
		return nil, false
	}
	return fields, true
}

// Eval evaluates every entry without applying the id check.
func (x *Extractor) Eval(record *xmlquery.Node) document.Fields {
	entries := x.compiled.Entries()
	fields := make(document.Fields, 0, len(entries))
	for _, e := range entries {
		v := evaluate(e.Expr, record, e.Shape)
		if e.Normalize {
			v = normalize(v)
		}
		fields = append(fields, document.Field{Name: e.Field, Value: v})
	}
	return fields
}

func evaluate(expr *xpath.Expr, record *xmlquery.Node, shape document.Shape) document.Value {
	if record == nil {
		return zero(shape)
	}
	switch res := expr.Evaluate(xmlquery.CreateXPathNavigator(record)).(type) {
	case *xpath.NodeIterator:
		var vals []string
		n := 0
		for res.MoveNext() {
			n++
			if shape != document.Count {
				vals = append(vals, res.Current().Value())
			}
		}
		switch shape {
		case document.Count:
			return document.CountOf(n)
		case document.Sequence:
			return document.SequenceOf(vals...)
		default:
			if len(vals) == 0 {
				return document.AbsentScalar()
			}
			return document.ScalarOf(vals[0])
		}
	case float64:
		if shape == document.Count {
			if math.IsNaN(res) {
				return document.CountOf(0)
			}
			return document.CountOf(int(res))
		}
		return fromString(strconv.FormatFloat(res, 'f', -1, 64), shape)
	case string:
		return fromString(res, shape)
	case bool:
		return fromString(strconv.FormatBool(res), shape)
	default:
		return zero(shape)
	}
}

func fromString(s string, shape document.Shape) document.Value {
	switch shape {
	case document.Count:
		n, err := strconv.Atoi(s)
		if err != nil {
			return document.CountOf(0)
		}
		return document.CountOf(n)
	case document.Sequence:
		return document.SequenceOf(s)
	default:
		return document.ScalarOf(s)
	}
}

func zero(shape document.Shape) document.Value {
	switch shape {
	case document.Count:
		return document.CountOf(0)
	case document.Sequence:
		return document.SequenceOf()
	default:
		return document.AbsentScalar()
	}
}

func normalize(v document.Value) document.Value {
	switch v.Shape {
	case document.Scalar:
		if v.Present {
			v.Str = norm.NFC.String(v.Str)
		}
	case document.Sequence:
		out := make([]string, len(v.Seq))
		for i, s := range v.Seq {
			out[i] = norm.NFC.String(s)
		}
		v.Seq = out
	}
	return v
}
