package main

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"catalogindex/internal/config"
)

// cliFlags holds raw command-line values. Only flags the user actually set
// override the pipeline (see resolvePipeline).
type cliFlags struct {
	configPath  string
	mappingPath string
	sourceDir   string
	extension   string
	fileList    string
	recordTag   string
	index       string
	idField     string
	docIDField  string

	sink       string
	dsn        string
	table      string
	autoCreate bool
	osURL      string
	osUser     string
	osPassword string
	insecure   bool

	batchSize  int
	workers    int
	queue      int
	maxRetries int
	bulkRPS    float64
	dedup      bool

	skipLog    string
	deadLetter string

	metricsBackend string
	pushGatewayURL string
	datadogAddr    string

	validate bool
	verbose  bool
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "pipeline config JSON path (optional)")
	fs.StringVar(&f.mappingPath, "mapping", "", "field mapping table, JSON or YAML (default: built-in product table)")
	fs.StringVar(&f.sourceDir, "source_dir", "", "directory or s3://bucket/prefix holding product XML files")
	fs.StringVar(&f.extension, "extension", config.DefaultExtension, "file extension to index")
	fs.StringVar(&f.fileList, "file_list", "", "text file naming the only files to process")
	fs.StringVar(&f.recordTag, "record_tag", config.DefaultRecordTag, "element name of one record under the document root")
	fs.StringVar(&f.index, "index_name", config.DefaultIndex, "target index name")
	fs.StringVar(&f.idField, "id_field", config.DefaultIDField, "field that must be non-empty for a record to be indexed")
	fs.StringVar(&f.docIDField, "doc_id_field", "", "field used as the engine document id (default: engine-assigned)")

	fs.StringVar(&f.sink, "sink", config.DefaultSinkKind, "sink kind: opensearch, postgres, sqlite, mssql")
	fs.StringVar(&f.dsn, "dsn", "", "connection string for relational sinks")
	fs.StringVar(&f.table, "table", config.DefaultTable, "table for relational sinks")
	fs.BoolVar(&f.autoCreate, "auto_create_table", false, "create the relational table if missing")
	fs.StringVar(&f.osURL, "opensearch_url", config.DefaultURL, "OpenSearch base URL")
	fs.StringVar(&f.osUser, "opensearch_user", config.DefaultUsername, "OpenSearch user")
	fs.StringVar(&f.osPassword, "opensearch_password", config.DefaultPassword, "OpenSearch password")
	fs.BoolVar(&f.insecure, "insecure_skip_verify", false, "disable TLS certificate and hostname verification (local development only)")

	fs.IntVar(&f.batchSize, "batch_size", config.DefaultBatchSize, "documents per bulk request")
	fs.IntVar(&f.workers, "workers", 1, "record extraction workers per file")
	fs.IntVar(&f.queue, "queue", 0, "extraction queue capacity (default 4*workers)")
	fs.IntVar(&f.maxRetries, "max_retries", config.DefaultMaxRetries, "retries of a failed bulk request")
	fs.Float64Var(&f.bulkRPS, "bulk_rps", 0, "maximum bulk requests per second (0 = unlimited)")
	fs.BoolVar(&f.dedup, "dedup", false, "skip records whose id was already indexed in this run")

	fs.StringVar(&f.skipLog, "skip_log", "", "CSV file receiving one line per skipped record")
	fs.StringVar(&f.deadLetter, "dead_letter", "", "file receiving documents the sink rejected (msgpack)")

	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway, datadog (env CATALOGINDEX_METRICS_BACKEND)")
	fs.StringVar(&f.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	fs.StringVar(&f.datadogAddr, "datadog-addr", "", "DogStatsD address (env DD_DOGSTATSD_ADDR)")

	fs.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&f.verbose, "v", false, "enable verbose logs")
	return f
}

// resolvePipeline builds the effective pipeline. Precedence, highest first:
// explicitly set flags, environment, config file, built-in defaults.
func resolvePipeline(fs *flag.FlagSet, f *cliFlags) (config.Pipeline, error) {
	p := config.Defaults()
	if f.configPath != "" {
		var err error
		if p, err = config.Load(f.configPath); err != nil {
			return p, err
		}
	}

	applyEnv(&p)

	setters := map[string]func(){
		"mapping":              func() { p.Mapping.File = f.mappingPath },
		"source_dir":           func() { p.Source.Dir = f.sourceDir },
		"extension":            func() { p.Source.Extension = f.extension },
		"file_list":            func() { p.Source.FileList = f.fileList },
		"record_tag":           func() { p.Source.RecordTag = f.recordTag },
		"index_name":           func() { p.Sink.Index = f.index },
		"id_field":             func() { p.Mapping.IDField = f.idField },
		"doc_id_field":         func() { p.Mapping.DocIDField = f.docIDField },
		"sink":                 func() { p.Sink.Kind = f.sink },
		"dsn":                  func() { p.Sink.DB.DSN = f.dsn },
		"table":                func() { p.Sink.DB.Table = f.table },
		"auto_create_table":    func() { p.Sink.DB.AutoCreateTable = f.autoCreate },
		"opensearch_url":       func() { p.Sink.OpenSearch.URL = f.osURL },
		"opensearch_user":      func() { p.Sink.OpenSearch.Username = f.osUser },
		"opensearch_password":  func() { p.Sink.OpenSearch.Password = f.osPassword },
		"insecure_skip_verify": func() { p.Sink.OpenSearch.InsecureSkipVerify = f.insecure },
		"batch_size":           func() { p.Runtime.BatchSize = f.batchSize },
		"workers":              func() { p.Runtime.Workers = f.workers },
		"queue":                func() { p.Runtime.Queue = f.queue },
		"max_retries":          func() { p.Runtime.MaxRetries = f.maxRetries },
		"bulk_rps":             func() { p.Runtime.BulkRPS = f.bulkRPS },
		"dedup":                func() { p.Runtime.Dedup = f.dedup },
		"skip_log":             func() { p.Output.SkipLog = f.skipLog },
		"dead_letter":          func() { p.Output.DeadLetter = f.deadLetter },
	}
	fs.Visit(func(fl *flag.Flag) {
		if set, ok := setters[fl.Name]; ok {
			set()
		}
	})

	// The job name follows the index unless configured.
	if strings.TrimSpace(p.Job) == "" || p.Job == config.DefaultIndex {
		p.Job = p.Sink.Index
	}
	return p, nil
}

// applyEnv overlays CATALOGINDEX_* and OPENSEARCH_* variables.
func applyEnv(p *config.Pipeline) {
	p.Source.Dir = getenv("CATALOGINDEX_SOURCE_DIR", p.Source.Dir)
	p.Sink.Index = getenv("CATALOGINDEX_INDEX", p.Sink.Index)
	p.Sink.Kind = getenv("CATALOGINDEX_SINK", p.Sink.Kind)
	p.Sink.DB.DSN = getenv("CATALOGINDEX_DSN", p.Sink.DB.DSN)
	p.Mapping.File = getenv("CATALOGINDEX_MAPPING", p.Mapping.File)
	p.Mapping.IDField = getenv("CATALOGINDEX_ID_FIELD", p.Mapping.IDField)
	p.Runtime.BatchSize = getenvInt("CATALOGINDEX_BATCH_SIZE", p.Runtime.BatchSize)
	p.Runtime.Workers = getenvInt("CATALOGINDEX_WORKERS", p.Runtime.Workers)
	p.Runtime.MaxRetries = getenvInt("CATALOGINDEX_MAX_RETRIES", p.Runtime.MaxRetries)
	p.Sink.OpenSearch.URL = getenv("OPENSEARCH_URL", p.Sink.OpenSearch.URL)
	p.Sink.OpenSearch.Username = getenv("OPENSEARCH_USER", p.Sink.OpenSearch.Username)
	p.Sink.OpenSearch.Password = getenv("OPENSEARCH_PASSWORD", p.Sink.OpenSearch.Password)
	p.Source.ObjectStore.Endpoint = getenv("CATALOGINDEX_S3_ENDPOINT", p.Source.ObjectStore.Endpoint)
	p.Source.ObjectStore.AccessKey = getenv("CATALOGINDEX_S3_ACCESS_KEY", p.Source.ObjectStore.AccessKey)
	p.Source.ObjectStore.SecretKey = getenv("CATALOGINDEX_S3_SECRET_KEY", p.Source.ObjectStore.SecretKey)
}

// getenv reads a string from environment, returning def when unset.
func getenv(k, def string) string {
	if s := os.Getenv(k); s != "" {
		return s
	}
	return def
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}
