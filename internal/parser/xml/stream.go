package xmlparser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/antchfx/xmlquery"
	"golang.org/x/sync/errgroup"

	"catalogindex/internal/document"
)

// ExtractFunc projects one record element into document fields. It reports
// false when the record must be skipped.
type ExtractFunc func(*xmlquery.Node) (document.Fields, bool)

// Result is the outcome of one record. OK is false for skipped records, in
// which case Fields is nil.
type Result struct {
	Index  int
	Fields document.Fields
	OK     bool
}

// ParseStream parses every <recordTag> child of the root element of r,
// extracts it and passes the Result to emit in document order.
//
// newExtract is called once per worker; the extraction state it returns is
// confined to that worker. With opts.Workers <= 1 everything runs on the
// calling goroutine. Otherwise records are parsed and extracted by a bounded
// pool and re-ordered before emit, which is always called from the calling
// goroutine. At most opts.Queue records are between sharding and emit.
//
// The function returns the first error from the input (wrapping ErrMalformed
// for bad XML), from newExtract or from emit.
func ParseStream(
	ctx context.Context,
	r io.Reader,
	recordTag string,
	opts Options,
	newExtract func() (ExtractFunc, error),
	emit func(Result) error,
) error {
	opts = opts.withDefaults()
	if opts.Workers == 1 {
		return parseSequential(ctx, r, recordTag, opts, newExtract, emit)
	}
	return parseParallel(ctx, r, recordTag, opts, newExtract, emit)
}

func parseSequential(ctx context.Context, r io.Reader, recordTag string, opts Options,
	newExtract func() (ExtractFunc, error), emit func(Result) error) error {
	fn, err := newExtract()
	if err != nil {
		return err
	}
	return Shard(ctx, r, recordTag, opts.BufSize, func(j Job) error {
		res, err := process(j, fn)
		if err != nil {
			return err
		}
		return emit(res)
	})
}

func parseParallel(ctx context.Context, r io.Reader, recordTag string, opts Options,
	newExtract func() (ExtractFunc, error), emit func(Result) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan Job, opts.Queue)
	results := make(chan Result, opts.Queue)
	// inflight caps records sharded but not yet emitted, which bounds the
	// reorder buffer when one record is slow.
	inflight := make(chan struct{}, opts.Queue)

	// Sharder
	g.Go(func() error {
		defer close(jobs)
		return Shard(gctx, r, recordTag, opts.BufSize, func(j Job) error {
			select {
			case inflight <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- j:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	// Workers
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		w := w
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			if opts.Debug {
				log.Printf("xmlparser: worker=%d started", w)
				defer log.Printf("xmlparser: worker=%d finished", w)
			}
			fn, err := newExtract()
			if err != nil {
				return err
			}
			for j := range jobs {
				res, err := process(j, fn)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Reorder and emit on the calling goroutine.
	expect := 0
	pending := make(map[int]Result, opts.Queue)
	var emitErr error
	for res := range results {
		if emitErr != nil {
			continue
		}
		pending[res.Index] = res
		for {
			next, ok := pending[expect]
			if !ok {
				break
			}
			delete(pending, expect)
			expect++
			<-inflight
			if err := emit(next); err != nil {
				emitErr = err
				cancel()
				break
			}
		}
	}

	werr := g.Wait()
	if emitErr != nil {
		return emitErr
	}
	if werr != nil {
		return werr
	}
	if len(pending) > 0 {
		return fmt.Errorf("xmlparser: %d records not emitted", len(pending))
	}
	return nil
}

// process parses one record fragment and runs fn on its root element.
func process(j Job, fn ExtractFunc) (Result, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(j.Bytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: record %d: %v", ErrMalformed, j.Index, err)
	}
	rec := firstElement(doc)
	if rec == nil {
		return Result{}, fmt.Errorf("%w: record %d: empty fragment", ErrMalformed, j.Index)
	}
	fields, ok := fn(rec)
	return Result{Index: j.Index, Fields: fields, OK: ok}, nil
}

func firstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}
