package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecode_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "nightly",
	  "source": { "dir": "/data/products" },
	  "sink": {
	    "kind": "sqlite",
	    "index": "products_v2",
	    "db": { "dsn": "file:catalog.db" },
	    "options": { "compress": false }
	  },
	  "runtime": { "workers": 4 }
	}`

	p, err := Decode(strings.NewReader(js))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Job != "nightly" || p.Source.Dir != "/data/products" {
		t.Fatalf("top-level values not decoded: %+v", p)
	}
	if p.Sink.Kind != "sqlite" || p.Sink.Index != "products_v2" || p.Sink.DB.DSN != "file:catalog.db" {
		t.Fatalf("sink not decoded: %+v", p.Sink)
	}
	// Values the file does not mention keep their defaults.
	if p.Runtime.BatchSize != DefaultBatchSize {
		t.Fatalf("batch_size = %d, want default %d", p.Runtime.BatchSize, DefaultBatchSize)
	}
	if p.Runtime.Workers != 4 {
		t.Fatalf("workers = %d, want 4", p.Runtime.Workers)
	}
	if p.Sink.DB.Table != DefaultTable {
		t.Fatalf("table = %q, want default", p.Sink.DB.Table)
	}
	if p.Source.RecordTag != DefaultRecordTag || p.Mapping.IDField != DefaultIDField {
		t.Fatalf("defaults lost: %+v %+v", p.Source, p.Mapping)
	}
	if p.Sink.Options.Bool("compress", true) {
		t.Fatalf("options.compress should decode as false")
	}
}

func TestDecode_UnknownField(t *testing.T) {
	t.Parallel()

	if _, err := Decode(strings.NewReader(`{"sorce": {}}`)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, []byte(`{"sink":{"index":"x"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Sink.Index != "x" {
		t.Fatalf("index = %q", p.Sink.Index)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestOptions_Typed(t *testing.T) {
	t.Parallel()

	o := Options{"s": "v", "b": true, "f": float64(3), "i": 7}
	if o.String("s", "") != "v" || o.String("missing", "d") != "d" {
		t.Fatalf("String mismatch")
	}
	if !o.Bool("b", false) || o.Bool("s", false) {
		t.Fatalf("Bool mismatch")
	}
	if o.Int("f", 0) != 3 || o.Int("i", 0) != 7 || o.Int("s", 9) != 9 {
		t.Fatalf("Int mismatch")
	}
}
