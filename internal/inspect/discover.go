// Package inspect inventories the element paths of sample catalog files and
// synthesizes a starter mapping table from them.
//
// Discovery is tolerant to truncated inputs (e.g., the first N bytes of a
// large export): only fully-closed records are counted, and a syntax error or
// unexpected EOF is treated as end of stream.
package inspect

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/html/charset"

	"catalogindex/internal/document"
	"catalogindex/internal/mapping"
)

// PathAgg aggregates statistics for a relative element path found under the
// record tag.
type PathAgg struct {
	TotalCount   int                       `json:"total_count"`
	RecordsWith  int                       `json:"records_with"`
	MaxPerRecord int                       `json:"max_per_record"`
	ExampleTexts []string                  `json:"example_texts,omitempty"`
	AttrExamples map[string]map[string]int `json:"attr_examples,omitempty"` // attr -> value -> count
}

// Report is the result of Discover.
type Report struct {
	RecordTag    string             `json:"record_tag"`
	TotalRecords int                `json:"total_records"`
	Paths        map[string]PathAgg `json:"paths"`
}

const maxExamples = 3

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// Discover scans r and inventories all element paths under <recordTag>.
// Only data of fully-closed records is merged; truncated tails do not affect
// counts.
func Discover(r io.Reader, recordTag string) (Report, error) {
	if strings.TrimSpace(recordTag) == "" {
		return Report{}, fmt.Errorf("inspect: record tag is required")
	}
	dec := newDecoder(r)

	rep := Report{RecordTag: recordTag, Paths: map[string]PathAgg{}}

	type frame struct {
		attrs []xml.Attr
		text  []byte
	}
	// Per-record aggregation so truncated records don't leak into totals.
	type recAgg struct {
		count      int
		exTexts    []string
		attrCounts map[string]map[string]int
	}

	var (
		inRecord  bool
		relStack  []string
		nodeStack []frame
		perRec    = map[string]*recAgg{}
	)

	merge := func() {
		rep.TotalRecords++
		for path, ra := range perRec {
			ga := rep.Paths[path]
			ga.TotalCount += ra.count
			ga.RecordsWith++
			if ra.count > ga.MaxPerRecord {
				ga.MaxPerRecord = ra.count
			}
			for _, ex := range ra.exTexts {
				ga.ExampleTexts = addExample(ga.ExampleTexts, ex)
			}
			for attr, vm := range ra.attrCounts {
				if ga.AttrExamples == nil {
					ga.AttrExamples = map[string]map[string]int{}
				}
				dst := ga.AttrExamples[attr]
				if dst == nil {
					dst = map[string]int{}
					ga.AttrExamples[attr] = dst
				}
				for val, c := range vm {
					dst[val] += c
				}
			}
			rep.Paths[path] = ga
		}
		perRec = map[string]*recAgg{}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF || isTruncErr(err) {
				return rep, nil
			}
			return rep, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !inRecord {
				if t.Name.Local == recordTag {
					inRecord = true
					relStack = relStack[:0]
					nodeStack = nodeStack[:0]
					perRec = map[string]*recAgg{}
				}
				continue
			}
			relStack = append(relStack, t.Name.Local)
			nodeStack = append(nodeStack, frame{attrs: append([]xml.Attr(nil), t.Attr...)})

		case xml.CharData:
			if inRecord && len(nodeStack) > 0 {
				top := &nodeStack[len(nodeStack)-1]
				top.text = append(top.text, t...)
			}

		case xml.EndElement:
			if !inRecord {
				continue
			}
			if len(relStack) == 0 {
				if t.Name.Local == recordTag {
					merge()
					inRecord = false
				}
				continue
			}
			if relStack[len(relStack)-1] != t.Name.Local {
				continue
			}
			path := strings.Join(relStack, "/")
			fr := nodeStack[len(nodeStack)-1]
			relStack = relStack[:len(relStack)-1]
			nodeStack = nodeStack[:len(nodeStack)-1]

			ra := perRec[path]
			if ra == nil {
				ra = &recAgg{attrCounts: map[string]map[string]int{}}
				perRec[path] = ra
			}
			ra.count++
			ra.exTexts = addExample(ra.exTexts, strings.TrimSpace(string(fr.text)))
			for _, a := range fr.attrs {
				vm := ra.attrCounts[a.Name.Local]
				if vm == nil {
					vm = map[string]int{}
					ra.attrCounts[a.Name.Local] = vm
				}
				vm[a.Value]++
			}
		}
	}
}

func addExample(arr []string, val string) []string {
	if val == "" || len(arr) >= maxExamples {
		return arr
	}
	for _, x := range arr {
		if x == val {
			return arr
		}
	}
	return append(arr, val)
}

// GuessRecordTag returns the most frequent child element name of the root.
func GuessRecordTag(r io.Reader) (string, error) {
	dec := newDecoder(r)
	var (
		depth  int
		counts = map[string]int{}
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF || isTruncErr(err) {
				break
			}
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				counts[t.Name.Local]++
			}
		case xml.EndElement:
			depth--
		}
	}
	best, bestN := "", 0
	for _, k := range sortedKeys(counts) {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	if best == "" {
		return "", fmt.Errorf("inspect: no repeated child element under the root")
	}
	return best, nil
}

// StarterMapping converts a Report into a mapping table. Leaf paths seen at
// most once per record become scalars, repeated leaves become sequences, and
// repeated containers get a count entry. Entries are sorted by path.
func StarterMapping(rep Report) mapping.Table {
	var (
		t    mapping.Table
		used = map[string]int{}
	)
	name := func(base string) string {
		used[base]++
		if n := used[base]; n > 1 {
			return fmt.Sprintf("%s%d", base, n)
		}
		return base
	}
	for _, path := range SortedPaths(rep) {
		a := rep.Paths[path]
		field := fieldName(path)
		switch {
		case len(a.ExampleTexts) > 0 && a.MaxPerRecord <= 1:
			t = append(t, mapping.Entry{Query: path + "/text()", Field: name(field), Shape: document.Scalar})
		case len(a.ExampleTexts) > 0:
			t = append(t, mapping.Entry{Query: path + "/text()", Field: name(field), Shape: document.Sequence})
		case a.MaxPerRecord > 1:
			t = append(t, mapping.Entry{Query: "count(" + path + ")", Field: name(field + "Count"), Shape: document.Count})
		}
	}
	return t
}

// fieldName turns "categoryPath/category/name" into "categoryPathCategoryName".
func fieldName(path string) string {
	var sb strings.Builder
	upper := false
	for _, r := range path {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upper && sb.Len() > 0 {
				r = unicode.ToUpper(r)
			}
			sb.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	if sb.Len() == 0 {
		return "field"
	}
	return sb.String()
}

// isTruncErr reports whether err is a typical encoding/xml truncation error.
func isTruncErr(err error) bool {
	var se *xml.SyntaxError
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &se)
}

// SortedPaths returns deterministic ordering for report paths.
func SortedPaths(rep Report) []string {
	return sortedKeys(rep.Paths)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
