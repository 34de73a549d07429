// Package config provides configuration models and helpers for the indexer.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a resolved Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding.
//
// Path is a dotted path into the config (e.g. "sink.kind",
// "mapping[3].query"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// knownSinks lists the sink kinds compiled into the binary.
var knownSinks = map[string]struct{}{
	"opensearch": {},
	"postgres":   {},
	"sqlite":     {},
	"mssql":      {},
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will be labeled with the index name",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateMapping(p.Mapping)...)
	issues = append(issues, validateSink(p.Sink)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Dir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.dir",
			Message:  "source directory is required (--source_dir)",
		})
	}
	if strings.TrimSpace(s.RecordTag) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.record_tag",
			Message:  "record_tag must not be empty",
		})
	}
	if s.Extension != "" && !strings.HasPrefix(s.Extension, ".") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.extension",
			Message:  fmt.Sprintf("extension %q has no leading dot; it is matched as a plain suffix", s.Extension),
		})
	}
	if strings.HasPrefix(s.Dir, "s3://") && strings.TrimSpace(s.ObjectStore.Endpoint) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.object_store.endpoint",
			Message:  "s3:// sources require an object store endpoint",
		})
	}

	return issues
}

func validateMapping(m Mapping) []Issue {
	var issues []Issue

	if strings.TrimSpace(m.IDField) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "mapping.id_field",
			Message:  "id_field must name the field that identifies a record",
		})
	}

	return issues
}

func validateSink(s Sink) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.kind",
			Message:  "sink.kind must not be empty",
		})
		return issues
	}
	if _, ok := knownSinks[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "sink.kind",
			Message:  fmt.Sprintf("unknown sink kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	switch {
	case strings.TrimSpace(s.Index) == "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.index",
			Message:  "index name must not be empty",
		})
	case s.Index != strings.ToLower(s.Index):
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.index",
			Message:  fmt.Sprintf("index name %q must be lowercase", s.Index),
		})
	case strings.ContainsAny(s.Index, ` "*\<|,>/?#`):
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sink.index",
			Message:  fmt.Sprintf("index name %q contains characters the engine rejects", s.Index),
		})
	}

	switch s.Kind {
	case "opensearch":
		if strings.TrimSpace(s.OpenSearch.URL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sink.opensearch.url",
				Message:  "opensearch sink requires a URL",
			})
		}
		if s.OpenSearch.InsecureSkipVerify {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "sink.opensearch.insecure_skip_verify",
				Message:  "TLS certificate and hostname verification is disabled; use only against local development clusters",
			})
		}
	case "postgres", "sqlite", "mssql":
		if strings.TrimSpace(s.DB.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sink.db.dsn",
				Message:  fmt.Sprintf("%s sink requires a DSN", s.Kind),
			})
		}
		if strings.TrimSpace(s.DB.Table) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sink.db.table",
				Message:  "sink.db.table must not be empty",
			})
		}
	}

	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be positive", r.BatchSize),
		})
	}
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.Queue < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.queue",
			Message:  "queue must not be negative",
		})
	}
	if r.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if r.BulkRPS < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.bulk_rps",
			Message:  "bulk_rps must not be negative",
		})
	}

	return issues
}
