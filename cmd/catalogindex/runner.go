// Package main wires the catalog indexer end to end: list the source files,
// split and extract product records, and hand the resulting documents to the
// batch loader in front of the configured sink. This file keeps the CLI layer
// thin: it depends only on storage-agnostic interfaces and never imports sink
// packages directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"catalogindex/internal/config"
	"catalogindex/internal/datasource"
	"catalogindex/internal/datasource/file"
	"catalogindex/internal/datasource/objstore"
	"catalogindex/internal/deadletter"
	"catalogindex/internal/dedup"
	"catalogindex/internal/document"
	"catalogindex/internal/extract"
	"catalogindex/internal/mapping"
	"catalogindex/internal/metrics"
	xmlparser "catalogindex/internal/parser/xml"
	"catalogindex/internal/skiplog"
	"catalogindex/internal/storage"
	"catalogindex/internal/walk"
)

const (
	// thisMany bounds the skipped-record messages shown in the summary.
	thisMany = 5
)

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newSinkFn = storage.New

	newListerFn = newLister

	newRunID = uuid.NewString
)

// runResult is what a completed run reports.
type runResult struct {
	RunID        string
	Indexed      int64 // documents handed to the loader
	Skipped      int   // records without an id
	Duplicates   int   // records dropped by --dedup
	Files        int
	DeadLettered int
	Loader       storage.Stats
	Elapsed      time.Duration
}

// run executes one indexing pass over p. Any error is fatal for the run; the
// summary is logged only when every file was walked and the final batch was
// written.
func run(ctx context.Context, p config.Pipeline, verbose bool) (runResult, error) {
	res := runResult{RunID: newRunID()}

	table, err := loadMapping(p.Mapping)
	if err != nil {
		return res, err
	}
	newExtract := func() (xmlparser.ExtractFunc, error) {
		c, err := mapping.Compile(table)
		if err != nil {
			return nil, err
		}
		x, err := extract.New(c, p.Mapping.IDField)
		if err != nil {
			return nil, err
		}
		return x.Extract, nil
	}
	// Compile once up front so a broken table fails before any I/O.
	if _, err := newExtract(); err != nil {
		return res, fmt.Errorf("mapping: %w", err)
	}
	if p.Mapping.DocIDField != "" && !table.Has(p.Mapping.DocIDField) {
		return res, fmt.Errorf("mapping: doc_id_field %q is not a mapped field", p.Mapping.DocIDField)
	}

	lister, err := newListerFn(ctx, p.Source)
	if err != nil {
		return res, err
	}
	var only []string
	if p.Source.FileList != "" {
		if only, err = file.ReadList(p.Source.FileList); err != nil {
			return res, fmt.Errorf("file list: %w", err)
		}
	}

	log.Printf("runner: run_id=%s source=%s sink=%s index=%s batch=%d workers=%d mapping_fields=%d",
		res.RunID, lister.Location(), p.Sink.Kind, p.Sink.Index, p.Runtime.BatchSize, p.Runtime.Workers, len(table))
	if verbose {
		log.Printf("runner: mapping fields=%s id_field=%s", strings.Join(table.Fields(), ","), p.Mapping.IDField)
	}

	sink, err := openSink(ctx, p, res.RunID)
	if err != nil {
		return res, err
	}
	defer sink.Close()

	skips, err := skiplog.Open(p.Output.SkipLog)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := skips.Close(); err != nil {
			log.Printf("runner: close skip log: %v", err)
		}
	}()

	var dl *deadletter.Writer
	if p.Output.DeadLetter != "" {
		if dl, err = deadletter.Create(p.Output.DeadLetter); err != nil {
			return res, err
		}
		defer func() {
			if err := dl.Close(); err != nil {
				log.Printf("runner: close dead letter: %v", err)
			}
		}()
	}

	loader, err := storage.NewLoader(sink, storage.LoaderOptions{
		BatchSize:  p.Runtime.BatchSize,
		MaxRetries: p.Runtime.MaxRetries,
		RPS:        p.Runtime.BulkRPS,
		Job:        p.Job,
		OnRejected: deadLetterFn(dl, res.RunID),
	})
	if err != nil {
		return res, err
	}

	var seen *dedup.Set
	if p.Runtime.Dedup {
		seen = dedup.New(4096)
	}
	skipAgg := newErrAgg(thisMany)

	w := walk.New(lister, newExtract, walk.Options{
		RecordTag: p.Source.RecordTag,
		Parser: xmlparser.Options{
			Workers: p.Runtime.Workers,
			Queue:   p.Runtime.Queue,
			Debug:   verbose,
		},
		Only: only,
	})

	start := time.Now()
	walkStart := start
	err = w.Walk(ctx, func(r walk.Record) error {
		if !r.OK {
			skipAgg.add(fmt.Sprintf("%s record #%d: empty %s", r.File, r.Index, p.Mapping.IDField))
			skips.Add(skiplog.ReasonMissingID, r.File, r.Index, "")
			metrics.RecordRow(p.Job, metrics.KindSkipped, 1)
			return nil
		}
		metrics.RecordRow(p.Job, metrics.KindExtracted, 1)

		id := fieldText(r.Fields, p.Mapping.IDField)
		if seen != nil && seen.Seen(id) {
			res.Duplicates++
			skips.Add(skiplog.ReasonDuplicate, r.File, r.Index, id)
			metrics.RecordRow(p.Job, metrics.KindDuplicate, 1)
			if verbose {
				log.Printf("runner: duplicate id=%s file=%s record=%d", id, r.File, r.Index)
			}
			return nil
		}

		doc := document.Document{Index: p.Sink.Index, Fields: r.Fields}
		if p.Mapping.DocIDField != "" {
			doc.ID = fieldText(r.Fields, p.Mapping.DocIDField)
		}
		if err := loader.Add(ctx, doc); err != nil {
			return err
		}
		res.Indexed++
		return nil
	})
	res.Files = w.FilesProcessed()
	res.Skipped = skipAgg.count
	metrics.RecordStep(p.Job, "walk", err, time.Since(walkStart))
	if err != nil {
		return res, err
	}

	if err := loader.FlushRemaining(ctx); err != nil {
		return res, err
	}
	res.Elapsed = time.Since(start)
	res.Loader = loader.Stats()
	if dl != nil {
		res.DeadLettered = dl.Count()
	}

	logSkipSummary(skipAgg, skips)
	logSummary(res)
	return res, nil
}

// openSink opens the configured sink and, when it supports it, checks that
// it is reachable before any file is read.
func openSink(ctx context.Context, p config.Pipeline, runID string) (storage.Sink, error) {
	start := time.Now()
	sink, err := newSinkFn(ctx, storage.ConfigFromPipeline(p, runID))
	if err != nil {
		metrics.RecordStep(p.Job, "connect", err, time.Since(start))
		return nil, fmt.Errorf("open %s sink: %w", p.Sink.Kind, err)
	}
	if pinger, ok := sink.(storage.Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			_ = sink.Close()
			metrics.RecordStep(p.Job, "connect", err, time.Since(start))
			return nil, fmt.Errorf("%s sink unreachable: %w", p.Sink.Kind, err)
		}
	}
	metrics.RecordStep(p.Job, "connect", nil, time.Since(start))
	return sink, nil
}

// newLister selects the object store for s3:// locations and a local
// directory otherwise. A missing local directory is a configuration error.
func newLister(_ context.Context, src config.Source) (datasource.Lister, error) {
	if objstore.IsLocation(src.Dir) {
		return objstore.New(src.ObjectStore, src.Dir, src.Extension)
	}
	fi, err := os.Stat(src.Dir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("source directory: %s is not a directory", src.Dir)
	}
	return file.NewDir(src.Dir, src.Extension), nil
}

func loadMapping(m config.Mapping) (mapping.Table, error) {
	table := mapping.DefaultProducts()
	if m.File != "" {
		var err error
		if table, err = mapping.Load(m.File); err != nil {
			return nil, err
		}
	}
	issues := mapping.Validate(table)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			log.Printf("mapping: %s", iss.Error())
		}
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("mapping: %w", firstError(issues))
	}
	return table, nil
}

func firstError(issues []config.Issue) error {
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			return iss
		}
	}
	return errors.New("invalid")
}

// deadLetterFn returns the loader's rejection hook. Without a writer the
// rejections are only counted by the loader.
func deadLetterFn(dl *deadletter.Writer, runID string) func(document.Document, storage.ItemFailure) {
	if dl == nil {
		return nil
	}
	return func(doc document.Document, f storage.ItemFailure) {
		body, err := doc.Body()
		if err != nil {
			log.Printf("deadletter: encode body id=%s: %v", doc.ID, err)
		}
		if err := dl.Write(deadletter.Entry{
			RunID:  runID,
			Index:  doc.Index,
			ID:     doc.ID,
			Status: f.Status,
			Reason: f.Reason,
			Body:   body,
			At:     time.Now().UTC(),
		}); err != nil {
			log.Printf("deadletter: write id=%s: %v", doc.ID, err)
		}
	}
}

func fieldText(f document.Fields, name string) string {
	v, _ := f.Get(name)
	return strings.TrimSpace(v.First())
}

// logSkipSummary prints aggregated skipped records. Only the first N
// messages are shown.
func logSkipSummary(a *errAgg, skips *skiplog.Log) {
	if a.count == 0 && skips.Count(skiplog.ReasonDuplicate) == 0 {
		return
	}
	log.Printf("skipped records: %d (%s), showing first %d", a.count, skips.Summary(), len(a.first))
	for i, s := range a.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// logSummary prints the final line in the format operators grep for, plus
// one detail line.
func logSummary(r runResult) {
	log.Printf("Done. Total docs: %d.  Total time: %.3f mins.", r.Indexed, r.Elapsed.Minutes())
	log.Printf(
		"summary: run_id=%s files=%d indexed=%s skipped=%d duplicates=%d batches=%d sent=%d accepted=%d rejected=%d dead_lettered=%d",
		r.RunID, r.Files, humanize.Comma(r.Indexed), r.Skipped, r.Duplicates,
		r.Loader.Batches, r.Loader.Sent, r.Loader.Indexed, r.Loader.Rejected, r.DeadLettered,
	)
}

// errAgg counts skipped-record messages and keeps the first limit of them.
// Per-reason counts live in the skip log.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
