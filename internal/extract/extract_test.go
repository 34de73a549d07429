package extract

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"

	"catalogindex/internal/document"
	"catalogindex/internal/mapping"
)

const sampleProduct = `<products><product>
  <sku>1234</sku>
  <productId>9876</productId>
  <name>Cable</name>
  <categoryPath>
    <category><id>c1</id><name>A</name></category>
    <category><id>c2</id><name>B</name></category>
    <category><id>c3</id><name>C</name></category>
  </categoryPath>
  <features><feature>fast</feature><feature>long</feature></features>
</product></products>`

func parseRecord(t *testing.T, xml string) *xmlquery.Node {
	t.Helper()
	doc, err := xmlquery.Parse(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	n := xmlquery.FindOne(doc, "//product")
	if n == nil {
		t.Fatalf("no product element")
	}
	return n
}

func newExtractor(t *testing.T, tbl mapping.Table, idField string) *Extractor {
	t.Helper()
	c, err := mapping.Compile(tbl)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	x, err := New(c, idField)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return x
}

func TestExtract_Categories(t *testing.T) {
	t.Parallel()

	x := newExtractor(t, mapping.DefaultProducts(), "productId")
	fields, ok := x.Extract(parseRecord(t, sampleProduct))
	if !ok {
		t.Fatalf("Extract rejected a valid record")
	}

	cp, _ := fields.Get("categoryPath")
	if !reflect.DeepEqual(cp.Seq, []string{"A", "B", "C"}) {
		t.Fatalf("categoryPath = %v", cp.Seq)
	}
	ids, _ := fields.Get("categoryPathIds")
	if !reflect.DeepEqual(ids.Seq, []string{"c1", "c2", "c3"}) {
		t.Fatalf("categoryPathIds = %v", ids.Seq)
	}
	n, _ := fields.Get("categoryPathCount")
	if n.Shape != document.Count || n.N != 3 {
		t.Fatalf("categoryPathCount = %+v", n)
	}
	leaf, _ := fields.Get("categoryLeaf")
	if !leaf.Present || leaf.Str != "c3" {
		t.Fatalf("categoryLeaf = %+v", leaf)
	}
	feat, _ := fields.Get("features")
	if !reflect.DeepEqual(feat.Seq, []string{"fast", "long"}) {
		t.Fatalf("features = %v", feat.Seq)
	}
}

func TestExtract_EveryFieldPresent(t *testing.T) {
	t.Parallel()

	tbl := mapping.DefaultProducts()
	x := newExtractor(t, tbl, "productId")
	fields, ok := x.Extract(parseRecord(t, `<products><product><productId>1</productId></product></products>`))
	if !ok {
		t.Fatalf("Extract rejected record with id")
	}
	if len(fields) != len(tbl) {
		t.Fatalf("got %d fields, want %d", len(fields), len(tbl))
	}
	for i, e := range tbl {
		if fields[i].Name != e.Field || fields[i].Value.Shape != e.Shape {
			t.Fatalf("field %d = %s/%s, want %s/%s", i, fields[i].Name, fields[i].Value.Shape, e.Field, e.Shape)
		}
	}

	var m map[string]any
	b, _ := json.Marshal(fields)
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["salePrice"] != nil {
		t.Fatalf("absent scalar should be null, got %v", m["salePrice"])
	}
	if seq, ok := m["categoryPath"].([]any); !ok || len(seq) != 0 {
		t.Fatalf("absent sequence should be [], got %#v", m["categoryPath"])
	}
	if m["categoryPathCount"] != float64(0) {
		t.Fatalf("absent count should be 0, got %v", m["categoryPathCount"])
	}
	if _, ok := m["categoryLeaf"]; !ok {
		t.Fatalf("categoryLeaf missing from document")
	}
}

func TestExtract_MissingOrEmptyID(t *testing.T) {
	t.Parallel()

	x := newExtractor(t, mapping.DefaultProducts(), "productId")
	for _, rec := range []string{
		`<products><product><sku>1</sku></product></products>`,
		`<products><product><productId></productId></product></products>`,
		`<products><product><productId>   </productId></product></products>`,
	} {
		if fields, ok := x.Extract(parseRecord(t, rec)); ok || fields != nil {
			t.Errorf("record %q accepted: %v", rec, fields)
		}
	}
}

func TestExtract_Idempotent(t *testing.T) {
	t.Parallel()

	x := newExtractor(t, mapping.DefaultProducts(), "productId")
	rec := parseRecord(t, sampleProduct)
	a, _ := x.Extract(rec)
	b, _ := x.Extract(rec)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("extraction is not idempotent:\n%v\n%v", a, b)
	}
}

func TestExtract_SequenceIDField(t *testing.T) {
	t.Parallel()

	tbl := mapping.Table{{Query: "codes/*/text()", Field: "codes", Shape: document.Sequence}}
	x := newExtractor(t, tbl, "codes")
	if _, ok := x.Extract(parseRecord(t, `<r><product><codes><c> </c><c>x</c></codes></product></r>`)); !ok {
		t.Fatalf("sequence id with a non-empty element should be accepted")
	}
	if _, ok := x.Extract(parseRecord(t, `<r><product><codes/></product></r>`)); ok {
		t.Fatalf("empty sequence id should be rejected")
	}
}

func TestExtract_Normalize(t *testing.T) {
	t.Parallel()

	tbl := mapping.Table{
		{Query: "productId/text()", Field: "productId"},
		{Query: "name/text()", Field: "name", Normalize: true},
		{Query: "name/text()", Field: "raw"},
	}
	x := newExtractor(t, tbl, "productId")
	fields, ok := x.Extract(parseRecord(t, "<r><product><productId>1</productId><name>Café</name></product></r>"))
	if !ok {
		t.Fatalf("rejected")
	}
	if v, _ := fields.Get("name"); v.Str != "Café" {
		t.Fatalf("normalized name = %q", v.Str)
	}
	if v, _ := fields.Get("raw"); v.Str != "Café" {
		t.Fatalf("raw name = %q", v.Str)
	}
}

func TestNew_UnknownIDField(t *testing.T) {
	t.Parallel()

	c, err := mapping.Compile(mapping.DefaultProducts())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(c, "nope"); err == nil {
		t.Fatalf("expected error for undeclared id field")
	}
}
