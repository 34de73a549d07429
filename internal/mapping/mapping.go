// Package mapping holds the declarative field mapping table that projects one
// product record into a flat document.
//
// Each Entry pairs an XPath query, evaluated relative to the record element,
// with an output field name and a declared result Shape. The table is data:
// it can be replaced at startup with a JSON or YAML file.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"catalogindex/internal/document"
)

// Entry maps one query to one output field.
type Entry struct {
	Query     string         `json:"query" yaml:"query"`
	Field     string         `json:"field" yaml:"field"`
	Shape     document.Shape `json:"shape" yaml:"shape"`
	Normalize bool           `json:"normalize,omitempty" yaml:"normalize,omitempty"`
}

// Table is an ordered list of entries. Document fields follow table order.
type Table []Entry

// Has reports whether the table declares field.
func (t Table) Has(field string) bool {
	for _, e := range t {
		if e.Field == field {
			return true
		}
	}
	return false
}

// Fields returns the declared field names in order.
func (t Table) Fields() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.Field
	}
	return out
}

func scalar(q, f string) Entry   { return Entry{Query: q, Field: f, Shape: document.Scalar} }
func sequence(q, f string) Entry { return Entry{Query: q, Field: f, Shape: document.Sequence} }
func count(q, f string) Entry    { return Entry{Query: q, Field: f, Shape: document.Count} }

// DefaultProducts returns the built-in product table. The caller owns the
// returned slice.
func DefaultProducts() Table {
	return Table{
		scalar("sku/text()", "sku"),
		scalar("productId/text()", "productId"),
		scalar("name/text()", "name"),
		scalar("type/text()", "type"),
		scalar("regularPrice/text()", "regularPrice"),
		scalar("salePrice/text()", "salePrice"),
		scalar("onSale/text()", "onSale"),
		scalar("salesRankShortTerm/text()", "salesRankShortTerm"),
		scalar("salesRankMediumTerm/text()", "salesRankMediumTerm"),
		scalar("salesRankLongTerm/text()", "salesRankLongTerm"),
		scalar("bestSellingRank/text()", "bestSellingRank"),
		scalar("url/text()", "url"),
		sequence("categoryPath/*/name/text()", "categoryPath"),
		sequence("categoryPath/*/id/text()", "categoryPathIds"),
		scalar("categoryPath/category[last()]/id/text()", "categoryLeaf"),
		count("count(categoryPath/*/name)", "categoryPathCount"),
		scalar("customerReviewCount/text()", "customerReviewCount"),
		scalar("customerReviewAverage/text()", "customerReviewAverage"),
		scalar("inStoreAvailability/text()", "inStoreAvailability"),
		scalar("onlineAvailability/text()", "onlineAvailability"),
		scalar("releaseDate/text()", "releaseDate"),
		scalar("shortDescription/text()", "shortDescription"),
		scalar("class/text()", "class"),
		scalar("classId/text()", "classId"),
		scalar("department/text()", "department"),
		scalar("departmentId/text()", "departmentId"),
		scalar("bestBuyItemId/text()", "bestBuyItemId"),
		scalar("description/text()", "description"),
		scalar("manufacturer/text()", "manufacturer"),
		scalar("modelNumber/text()", "modelNumber"),
		scalar("image/text()", "image"),
		scalar("longDescription/text()", "longDescription"),
		scalar("longDescriptionHtml/text()", "longDescriptionHtml"),
		sequence("features/*/text()", "features"),
	}
}

// file is the on-disk layout of a mapping file.
type file struct {
	Entries Table `json:"entries" yaml:"entries"`
}

// Load reads a table from a .json, .yaml or .yml file.
func Load(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", path, err)
	}
	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&f)
	default:
		return nil, fmt.Errorf("mapping %s: unsupported extension (want .json, .yaml or .yml)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode mapping %s: %w", path, err)
	}
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("mapping %s: no entries", path)
	}
	return f.Entries, nil
}
