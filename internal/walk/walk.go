// Package walk drives the per-file loop: list the source location, split
// every file into records and extract each record, yielding results in file
// order and, within a file, in document order.
package walk

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"catalogindex/internal/datasource"
	"catalogindex/internal/document"
	xmlparser "catalogindex/internal/parser/xml"
)

// ErrParse marks a source file that could not be parsed. The wrapped error
// names the file.
var ErrParse = errors.New("parse source file")

// Record is one extracted record. OK is false when the extractor rejected
// it; Fields is then nil.
type Record struct {
	File   string
	Index  int
	Fields document.Fields
	OK     bool
}

// Options configures a Walker.
type Options struct {
	RecordTag string
	Parser    xmlparser.Options

	// Only restricts the walk to these file names, in listing order.
	Only []string
}

// Walker walks one source location.
type Walker struct {
	lister     datasource.Lister
	newExtract func() (xmlparser.ExtractFunc, error)
	opts       Options

	files int
}

// New returns a Walker. newExtract is called once per extraction worker.
func New(l datasource.Lister, newExtract func() (xmlparser.ExtractFunc, error), opts Options) *Walker {
	return &Walker{lister: l, newExtract: newExtract, opts: opts}
}

// Files returns the files the walk will visit.
func (w *Walker) Files(ctx context.Context) ([]datasource.Entry, error) {
	entries, err := w.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(w.opts.Only) == 0 {
		return entries, nil
	}
	byName := make(map[string]datasource.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	want := make(map[string]bool, len(w.opts.Only))
	for _, name := range w.opts.Only {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("file list names %q, which is not in %s", name, w.lister.Location())
		}
		want[name] = true
	}
	out := entries[:0]
	for _, e := range entries {
		if want[e.Name] {
			out = append(out, e)
		}
	}
	return out, nil
}

// FilesProcessed returns the number of files fully walked so far.
func (w *Walker) FilesProcessed() int { return w.files }

// Walk visits every file and calls yield for every record. A file's records
// are yielded only after the whole file parsed, so nothing from a malformed
// file reaches yield. An error from yield stops the walk and is returned
// unchanged. A file that cannot be opened or parsed stops the walk with an
// error wrapping ErrParse.
func (w *Walker) Walk(ctx context.Context, yield func(Record) error) error {
	entries, err := w.Files(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.walkFile(ctx, e, yield); err != nil {
			return err
		}
		w.files++
	}
	return nil
}

func (w *Walker) walkFile(ctx context.Context, e datasource.Entry, yield func(Record) error) error {
	size := "unknown size"
	if e.Size >= 0 {
		size = humanize.Bytes(uint64(e.Size))
	}
	log.Printf("walk: processing file=%s size=%s", e.Name, size)

	rc, err := w.lister.Open(ctx, e.Name)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrParse, e.Name, err)
	}
	defer rc.Close()

	var recs []Record
	err = xmlparser.ParseStream(ctx, rc, w.opts.RecordTag, w.opts.Parser, w.newExtract, func(r xmlparser.Result) error {
		recs = append(recs, Record{File: e.Name, Index: r.Index, Fields: r.Fields, OK: r.OK})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", ErrParse, e.Name, err)
	}
	for _, r := range recs {
		if err := yield(r); err != nil {
			return err
		}
	}
	return nil
}
