package skiplog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// TestOpen_CreatesDirFileAndHeader verifies that Open creates missing parent
// directories and writes the header row immediately.
func TestOpen_CreatesDirFileAndHeader(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "skipped", "products.csv")
	l, err := Open(target)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rows := readRows(t, target)
	if len(rows) != 1 || !reflect.DeepEqual(rows[0], Header) {
		t.Fatalf("rows = %#v", rows)
	}
}

// TestLog_AddWritesRowsAndCounts checks the tally and the CSV rows,
// including values that need quoting.
func TestLog_AddWritesRowsAndCounts(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "skipped.csv")
	l, err := Open(target)
	if err != nil {
		t.Fatal(err)
	}
	l.Add(ReasonMissingID, "a.xml", 3, "")
	l.Add(ReasonDuplicate, "b, c.xml", 7, `12"34`)
	l.Add(ReasonMissingID, "a.xml", 9, "")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	if l.Count(ReasonMissingID) != 2 || l.Count(ReasonDuplicate) != 1 {
		t.Fatalf("counts: %s", l.Summary())
	}
	if got := l.Summary(); got != "duplicate_id=1 missing_id=2" {
		t.Fatalf("Summary = %q", got)
	}

	rows := readRows(t, target)
	want := [][]string{
		Header,
		{ReasonMissingID, "a.xml", "3", ""},
		{ReasonDuplicate, "b, c.xml", "7", `12"34`},
		{ReasonMissingID, "a.xml", "9", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows mismatch\ngot : %#v\nwant: %#v", rows, want)
	}
}

func TestOpen_EmptyPathCountsOnly(t *testing.T) {
	t.Parallel()

	l, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	l.Add(ReasonMissingID, "a.xml", 0, "")
	if l.Count(ReasonMissingID) != 1 {
		t.Fatalf("count = %d", l.Count(ReasonMissingID))
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open for read: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("readall: %v", err)
	}
	return rows
}
