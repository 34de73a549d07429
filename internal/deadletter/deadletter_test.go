package deadletter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_AppendAndRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rejected.msgpack")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Write(Entry{RunID: "r1", Index: "bbuy_products", Status: 400, Reason: "mapper_parsing_exception", Body: []byte(`{"sku":"1"}`)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// A second writer appends instead of truncating.
	w, err = Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(Entry{RunID: "r2", Index: "bbuy_products", ID: "42", Status: 409, Reason: "version_conflict"}); err != nil {
		t.Fatal(err)
	}
	if w.Count() != 1 {
		t.Fatalf("Count = %d", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].RunID != "r1" || string(got[0].Body) != `{"sku":"1"}` || got[0].At.IsZero() {
		t.Fatalf("entry 0 = %+v", got[0])
	}
	if got[1].ID != "42" || got[1].Status != 409 {
		t.Fatalf("entry 1 = %+v", got[1])
	}
}
