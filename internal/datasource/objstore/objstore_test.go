package objstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"catalogindex/internal/config"
)

type fakeStore struct {
	objs map[string]string
}

func (f *fakeStore) list(_ context.Context, bucket, prefix string) ([]object, error) {
	if bucket != "catalog" {
		return nil, errors.New("NoSuchBucket")
	}
	var out []object
	for k, v := range f.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, object{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeStore) get(_ context.Context, _, key string) (io.ReadCloser, error) {
	v, ok := f.objs[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, bucket, prefix string
		wantErr            bool
	}{
		{"s3://catalog/products", "catalog", "products/", false},
		{"s3://catalog/products/", "catalog", "products/", false},
		{"s3://catalog", "catalog", "", false},
		{"s3:///products", "", "", true},
		{"/data/products", "", "", true},
	}
	for _, c := range cases {
		b, p, err := ParseLocation(c.in)
		if (err != nil) != c.wantErr || b != c.bucket || p != c.prefix {
			t.Errorf("ParseLocation(%q) = %q, %q, %v", c.in, b, p, err)
		}
	}
}

func TestBucket_ListAndOpen(t *testing.T) {
	t.Parallel()

	st := &fakeStore{objs: map[string]string{
		"products/b.xml":         "<b/>",
		"products/a.xml":         "<a/>",
		"products/readme.txt":    "x",
		"products/archive/":      "",
		"products/archive/c.xml": "<c/>",
		"other/d.xml":            "<d/>",
	}}
	b := &Bucket{st: st, bucket: "catalog", prefix: "products/", ext: ".xml"}

	entries, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.xml" || entries[1].Name != "b.xml" {
		t.Fatalf("entries = %+v", entries)
	}

	rc, err := b.Open(context.Background(), "a.xml")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "<a/>" {
		t.Fatalf("data = %q", data)
	}

	if _, err := b.Open(context.Background(), "missing.xml"); err == nil || !strings.Contains(err.Error(), "s3://catalog/products/missing.xml") {
		t.Fatalf("missing object err = %v", err)
	}
}

func TestNew_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New(config.ObjectStore{}, "s3://catalog/products", ".xml"); err == nil {
		t.Fatalf("expected error without endpoint")
	}
	b, err := New(config.ObjectStore{Endpoint: "http://localhost:9000", AccessKey: "k", SecretKey: "s"}, "s3://catalog/products", ".xml")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Location() != "s3://catalog/products/" {
		t.Fatalf("Location = %q", b.Location())
	}
}
