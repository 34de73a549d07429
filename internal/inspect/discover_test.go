package inspect

import (
	"strings"
	"testing"

	"catalogindex/internal/config"
	"catalogindex/internal/document"
	"catalogindex/internal/mapping"
)

const sample = `<?xml version="1.0"?>
<products>
  <product>
    <sku>1</sku><productId>10</productId><name>TV &amp; Stand</name>
    <categoryPath>
      <category><id>a</id><name>A</name></category>
      <category><id>b</id><name>B</name></category>
    </categoryPath>
    <image kind="thumb">img1</image>
  </product>
  <product>
    <sku>2</sku><productId>11</productId><name>Radio&nbsp;X</name>
    <categoryPath><category><id>a</id><name>A</name></category></categoryPath>
  </product>
  <product><sku>3</sku><productId>12`

func TestDiscover_TruncatedInput(t *testing.T) {
	t.Parallel()

	rep, err := Discover(strings.NewReader(sample), "product")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if rep.TotalRecords != 2 {
		t.Fatalf("TotalRecords = %d, want 2 (truncated third record ignored)", rep.TotalRecords)
	}
	sku := rep.Paths["sku"]
	if sku.TotalCount != 2 || sku.MaxPerRecord != 1 || len(sku.ExampleTexts) != 2 {
		t.Fatalf("sku agg = %+v", sku)
	}
	cat := rep.Paths["categoryPath/category"]
	if cat.MaxPerRecord != 2 || cat.TotalCount != 3 || cat.RecordsWith != 2 {
		t.Fatalf("category agg = %+v", cat)
	}
	if got := rep.Paths["image"].AttrExamples["kind"]["thumb"]; got != 1 {
		t.Fatalf("attr count = %d", got)
	}
	if got := rep.Paths["name"].ExampleTexts; len(got) != 2 || got[0] != "TV & Stand" {
		t.Fatalf("name examples = %q", got)
	}
}

func TestDiscover_RequiresTag(t *testing.T) {
	t.Parallel()

	if _, err := Discover(strings.NewReader(sample), " "); err == nil {
		t.Fatalf("expected error for empty tag")
	}
}

func TestGuessRecordTag(t *testing.T) {
	t.Parallel()

	got, err := GuessRecordTag(strings.NewReader(sample))
	if err != nil || got != "product" {
		t.Fatalf("GuessRecordTag = %q, %v", got, err)
	}
	if _, err := GuessRecordTag(strings.NewReader("<root/>")); err == nil {
		t.Fatalf("expected error for a childless root")
	}
}

func TestStarterMapping(t *testing.T) {
	t.Parallel()

	rep, err := Discover(strings.NewReader(sample), "product")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	table := StarterMapping(rep)

	want := map[string]mapping.Entry{
		"sku":                       {Query: "sku/text()", Field: "sku", Shape: document.Scalar},
		"categoryPathCategoryName":  {Query: "categoryPath/category/name/text()", Field: "categoryPathCategoryName", Shape: document.Sequence},
		"categoryPathCategoryCount": {Query: "count(categoryPath/category)", Field: "categoryPathCategoryCount", Shape: document.Count},
	}
	got := map[string]mapping.Entry{}
	for _, e := range table {
		got[e.Field] = e
	}
	for field, w := range want {
		if g, ok := got[field]; !ok || g != w {
			t.Errorf("entry %s = %+v, want %+v", field, g, w)
		}
	}
	if _, ok := got["categoryPath"]; ok {
		t.Errorf("single container without text should not be mapped")
	}

	if issues := mapping.Validate(table); config.HasErrors(issues) {
		t.Fatalf("starter mapping does not validate: %v", issues)
	}
}

func TestFieldName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"sku":                   "sku",
		"categoryPath/category": "categoryPathCategory",
		"a-b/c_d":               "aBCD",
		"//":                    "field",
	}
	for in, want := range cases {
		if got := fieldName(in); got != want {
			t.Errorf("fieldName(%q) = %q, want %q", in, got, want)
		}
	}
}
