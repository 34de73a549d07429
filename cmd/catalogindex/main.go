package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalogindex/internal/config"
	"catalogindex/internal/mapping"
	"catalogindex/internal/metrics"
	"catalogindex/internal/metrics/datadog"
	"catalogindex/internal/metrics/prompush"

	// register all sinks with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "catalogindex/internal/storage/all"
)

// main is the entry point for the indexer binary. It resolves the pipeline
// from flags, environment and an optional config file, validates it,
// optionally initializes a metrics backend, and executes one run.
func main() {
	fs := flag.CommandLine
	f := registerFlags(fs)
	flag.Parse()

	if f.verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	p, err := resolvePipeline(fs, f)
	if err != nil {
		fatalf("config: %v", err)
	}

	if !checkPipeline(p) {
		log.Printf("Configuration is invalid")
		os.Exit(1)
	}
	if f.validate {
		log.Printf("Configuration is valid")
		os.Exit(0)
	}

	flush := setupMetrics(f, p.Job)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, p, f.verbose); err != nil {
		flush()
		fatalf("catalogindex: %v", err)
	}
	flush()
}

// checkPipeline prints every configuration and mapping issue to stderr and
// reports whether the pipeline is usable.
func checkPipeline(p config.Pipeline) bool {
	issues := config.ValidatePipeline(p)

	table := mapping.DefaultProducts()
	if p.Mapping.File != "" {
		t, err := mapping.Load(p.Mapping.File)
		if err != nil {
			issues = append(issues, config.Issue{Severity: config.SeverityError, Path: "mapping.file", Message: err.Error()})
		} else {
			table = t
		}
	}
	issues = append(issues, mapping.Validate(table)...)
	if p.Mapping.IDField != "" && !table.Has(p.Mapping.IDField) {
		issues = append(issues, config.Issue{
			Severity: config.SeverityError,
			Path:     "mapping.id_field",
			Message:  fmt.Sprintf("id_field %q is not a mapped field", p.Mapping.IDField),
		})
	}

	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	return !config.HasErrors(issues)
}

// setupMetrics installs the selected backend and returns its flush function.
// Decision order for every setting: flag → env → default.
func setupMetrics(f *cliFlags, job string) func() {
	backendName := f.metricsBackend
	if backendName == "" {
		backendName = getenv("CATALOGINDEX_METRICS_BACKEND", "none")
	}

	switch backendName {
	case "pushgateway":
		gwURL := f.pushGatewayURL
		if gwURL == "" {
			gwURL = getenv("PUSHGATEWAY_URL", "http://localhost:9091")
		}
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, job)
		metrics.SetBackend(b)

	case "datadog":
		addr := f.datadogAddr
		if addr == "" {
			addr = getenv("DD_DOGSTATSD_ADDR", "127.0.0.1:8125")
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "catalog.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, backendName, job)
		metrics.SetBackend(b)

	case "", "none":
		if f.verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
		return func() {}
	}

	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
