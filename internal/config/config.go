// Package config defines the canonical, JSON-serializable configuration model
// for the catalog indexer. A Pipeline can be loaded from disk, overridden by
// environment variables and command-line flags, and then passed through the
// program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":     "bbuy_products",
//	  "source":  { "dir": "/data/products", "record_tag": "product" },
//	  "mapping": { "file": "mappings/products.yaml", "id_field": "productId" },
//	  "sink":    { "kind": "opensearch", "index": "bbuy_products",
//	               "opensearch": { "url": "https://localhost:9200" } },
//	  "runtime": { "batch_size": 2000, "workers": 1 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Defaults used when neither the config file, the environment nor a flag
// provide a value.
const (
	DefaultIndex      = "bbuy_products"
	DefaultBatchSize  = 2000
	DefaultRecordTag  = "product"
	DefaultExtension  = ".xml"
	DefaultIDField    = "productId"
	DefaultSinkKind   = "opensearch"
	DefaultURL        = "https://localhost:9200"
	DefaultUsername   = "admin"
	DefaultPassword   = "admin"
	DefaultMaxRetries = 3
	DefaultTable      = "catalog_documents"
)

// Pipeline is the top-level configuration object.
type Pipeline struct {
	// Job names the run for metrics and logs.
	Job string `json:"job"`

	Source  Source        `json:"source"`
	Mapping Mapping       `json:"mapping"`
	Sink    Sink          `json:"sink"`
	Runtime RuntimeConfig `json:"runtime"`
	Output  Output        `json:"output"`
}

// Source describes where product files are read from.
type Source struct {
	// Dir is a local directory or an s3://bucket/prefix location.
	Dir string `json:"dir"`

	// Extension filters file names. Defaults to ".xml".
	Extension string `json:"extension"`

	// RecordTag is the element name of one record under the document root.
	RecordTag string `json:"record_tag"`

	// FileList optionally names a text file listing the only file names to
	// process (one per line, '#' comments allowed).
	FileList string `json:"file_list"`

	// ObjectStore carries connection settings for s3:// sources.
	ObjectStore ObjectStore `json:"object_store"`
}

// ObjectStore configures an S3-compatible object store source.
type ObjectStore struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`
	Region    string `json:"region"`
}

// Mapping selects the field mapping table and identifier fields.
type Mapping struct {
	// File is an optional JSON or YAML mapping table. Empty selects the
	// built-in product table.
	File string `json:"file"`

	// IDField must hold a non-empty value for a record to be indexed.
	IDField string `json:"id_field"`

	// DocIDField, when set, is used as the engine document id.
	DocIDField string `json:"doc_id_field"`
}

// Sink selects where documents are written.
type Sink struct {
	// Kind selects the sink implementation: opensearch, postgres, sqlite, mssql.
	Kind string `json:"kind"`

	// Index is the target index name attached to every document.
	Index string `json:"index"`

	OpenSearch OpenSearch `json:"opensearch"`
	DB         DBConfig   `json:"db"`

	// Options is a free-form map interpreted by the selected sink.
	Options Options `json:"options"`
}

// OpenSearch holds search engine connection settings.
type OpenSearch struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`

	// InsecureSkipVerify disables TLS certificate and hostname verification.
	// Only meant for local development clusters with self-signed certificates.
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// DBConfig configures the relational mirror sinks.
type DBConfig struct {
	DSN             string `json:"dsn"`
	Table           string `json:"table"`
	AutoCreateTable bool   `json:"auto_create_table"`
}

// RuntimeConfig controls batching, concurrency and retry behavior.
type RuntimeConfig struct {
	BatchSize  int     `json:"batch_size"`
	Workers    int     `json:"workers"`
	Queue      int     `json:"queue"`
	MaxRetries int     `json:"max_retries"`
	BulkRPS    float64 `json:"bulk_rps"`
	Dedup      bool    `json:"dedup"`
}

// Output configures side outputs of a run.
type Output struct {
	// SkipLog is an optional CSV path receiving one line per skipped record.
	SkipLog string `json:"skip_log"`

	// DeadLetter is an optional path receiving documents the engine rejected.
	DeadLetter string `json:"dead_letter"`
}

// Defaults returns a Pipeline populated with the built-in defaults.
func Defaults() Pipeline {
	return Pipeline{
		Job: DefaultIndex,
		Source: Source{
			Extension: DefaultExtension,
			RecordTag: DefaultRecordTag,
		},
		Mapping: Mapping{IDField: DefaultIDField},
		Sink: Sink{
			Kind:  DefaultSinkKind,
			Index: DefaultIndex,
			OpenSearch: OpenSearch{
				URL:      DefaultURL,
				Username: DefaultUsername,
				Password: DefaultPassword,
			},
			DB:      DBConfig{Table: DefaultTable},
			Options: Options{},
		},
		Runtime: RuntimeConfig{
			BatchSize:  DefaultBatchSize,
			Workers:    1,
			MaxRetries: DefaultMaxRetries,
		},
	}
}

// Decode reads a JSON pipeline from r on top of the built-in defaults, so a
// file only needs to carry the values it changes.
func Decode(r io.Reader) (Pipeline, error) {
	p := Defaults()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("decode config: %w", err)
	}
	if p.Sink.Options == nil {
		p.Sink.Options = Options{}
	}
	return p, nil
}

// Load opens path and decodes it with Decode.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Defaults(), fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal type coercion and returns provided defaults when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
