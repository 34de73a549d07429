package file

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReadList_Basic(t *testing.T) {
	t.Parallel()

	content := `
# nightly subset
products_0001_2570_to_430420.xml
   # retry after fix
products_0002_430439_to_518210.xml

   products_0003_518211_to_551972.xml
`
	path := writeTempFile(t, "list.txt", content)

	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList error: %v", err)
	}
	want := []string{
		"products_0001_2570_to_430420.xml",
		"products_0002_430439_to_518210.xml",
		"products_0003_518211_to_551972.xml",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadList(%q) = %#v, want %#v", path, got, want)
	}
}

func TestReadList_EmptyAndMissing(t *testing.T) {
	t.Parallel()

	got, err := ReadList(writeTempFile(t, "list.txt", ""))
	if err != nil || len(got) != 0 {
		t.Fatalf("empty list: got %#v, err %v", got, err)
	}
	if _, err := ReadList(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("expected error for missing file, got nil")
	}
}
