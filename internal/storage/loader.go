package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"catalogindex/internal/document"
	"catalogindex/internal/metrics"
)

// State is the loader's batching state.
type State int

const (
	// Accumulating means the loader is appending documents to the batch.
	Accumulating State = iota
	// Flushing means a bulk write of the batch is in progress.
	Flushing
)

func (s State) String() string {
	if s == Flushing {
		return "flushing"
	}
	return "accumulating"
}

// maxLoggedRejections bounds the per-batch rejection log lines.
const maxLoggedRejections = 5

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// BatchSize is the number of documents per bulk write. Required.
	BatchSize int

	// MaxRetries bounds the retries of a failed bulk request.
	MaxRetries int

	// RPS limits bulk requests per second; 0 means unlimited.
	RPS float64

	// Job labels metrics.
	Job string

	// OnRejected is called for every document the engine rejected.
	OnRejected func(doc document.Document, f ItemFailure)

	// Backoff intervals; zero values pick 500ms and 10s.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Stats are cumulative loader counters.
type Stats struct {
	Batches  int64 // bulk writes that completed
	Sent     int64 // documents submitted in completed bulk writes
	Indexed  int64 // documents the sink accepted
	Rejected int64 // documents the sink rejected individually
}

// Loader accumulates documents and flushes them to a Sink in batches of at
// most BatchSize. It is owned by a single goroutine.
type Loader struct {
	sink    Sink
	opts    LoaderOptions
	limiter *rate.Limiter

	state State
	batch []document.Document
	stats Stats

	start       time.Time
	lastFlushTS time.Time
	lastIndexed int64
}

// NewLoader returns a Loader writing to sink.
func NewLoader(sink Sink, opts LoaderOptions) (*Loader, error) {
	if sink == nil {
		return nil, fmt.Errorf("loader: sink must not be nil")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0")
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 10 * time.Second
	}
	l := &Loader{
		sink:  sink,
		opts:  opts,
		batch: make([]document.Document, 0, opts.BatchSize),
	}
	if opts.RPS > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	l.start = time.Now()
	l.lastFlushTS = l.start
	return l, nil
}

// State returns the current state.
func (l *Loader) State() State { return l.state }

// Pending returns the number of documents waiting in the batch.
func (l *Loader) Pending() int { return len(l.batch) }

// Stats returns the cumulative counters.
func (l *Loader) Stats() Stats { return l.stats }

// Add appends doc and flushes when the batch is full. A flush error is
// returned to the caller; the batch is cleared either way.
func (l *Loader) Add(ctx context.Context, doc document.Document) error {
	l.batch = append(l.batch, doc)
	if len(l.batch) < l.opts.BatchSize {
		return nil
	}
	return l.flush(ctx)
}

// FlushRemaining writes any pending documents. Call it once after the last
// Add.
func (l *Loader) FlushRemaining(ctx context.Context) error {
	if len(l.batch) == 0 {
		log.Printf("loader: input exhausted, final_flush=0 total_indexed=%d", l.stats.Indexed)
		return nil
	}
	n := len(l.batch)
	if err := l.flush(ctx); err != nil {
		return err
	}
	log.Printf("loader: input exhausted, final_flush=%d total_indexed=%d", n, l.stats.Indexed)
	return nil
}

func (l *Loader) flush(ctx context.Context) error {
	l.state = Flushing
	defer func() {
		// Reuse allocated slice; keep capacity to avoid churn.
		clear(l.batch)
		l.batch = l.batch[:0]
		l.state = Accumulating
	}()

	began := time.Now()
	res, err := l.bulkWithRetry(ctx)
	metrics.RecordStep(l.opts.Job, "bulk", err, time.Since(began))
	if err != nil {
		log.Printf("loader: bulk failed batch=%d docs=%d total_indexed=%d err=%v",
			l.stats.Batches+1, len(l.batch), l.stats.Indexed, err)
		return fmt.Errorf("%w: batch #%d (%d docs): %w", ErrBulk, l.stats.Batches+1, len(l.batch), err)
	}

	l.stats.Batches++
	l.stats.Sent += int64(len(l.batch))
	l.stats.Indexed += int64(res.Indexed)
	l.stats.Rejected += int64(len(res.Failures))
	metrics.RecordBatches(l.opts.Job, 1)
	metrics.RecordRow(l.opts.Job, metrics.KindIndexed, int64(res.Indexed))
	metrics.RecordRow(l.opts.Job, metrics.KindRejected, int64(len(res.Failures)))

	for i, f := range res.Failures {
		if i < maxLoggedRejections {
			log.Printf("loader: rejected index=%s id=%s status=%d reason=%q", f.Index, f.ID, f.Status, f.Reason)
		}
		if l.opts.OnRejected != nil && f.Position >= 0 && f.Position < len(l.batch) {
			l.opts.OnRejected(l.batch[f.Position], f)
		}
	}
	if n := len(res.Failures); n > maxLoggedRejections {
		log.Printf("loader: %d more rejections in batch #%d not shown", n-maxLoggedRejections, l.stats.Batches)
	}

	// Progress log per completed batch.
	now := time.Now()
	sinceLast := now.Sub(l.lastFlushTS)
	dps := float64(0)
	if sinceLast > 0 {
		dps = float64(l.stats.Indexed-l.lastIndexed) / sinceLast.Seconds()
	}
	log.Printf(
		"batch #%d: dps=%.0f sent=%d indexed=%d rejected=%d total_indexed=%d elapsed=%s since_last=%s",
		l.stats.Batches,
		dps,
		len(l.batch),
		res.Indexed,
		len(res.Failures),
		l.stats.Indexed,
		now.Sub(l.start).Truncate(time.Millisecond),
		sinceLast.Truncate(time.Millisecond),
	)
	l.lastFlushTS = now
	l.lastIndexed = l.stats.Indexed
	return nil
}

func (l *Loader) bulkWithRetry(ctx context.Context) (BulkResult, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.opts.InitialInterval
	eb.MaxInterval = l.opts.MaxInterval
	eb.MaxElapsedTime = 0

	var (
		res     BulkResult
		attempt int
	)
	op := func() error {
		attempt++
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		r, err := l.sink.Bulk(ctx, l.batch)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return backoff.Permanent(cerr)
			}
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			if attempt <= l.opts.MaxRetries {
				log.Printf("loader: bulk attempt=%d failed, retrying err=%v", attempt, err)
			}
			return err
		}
		res = r
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(l.opts.MaxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return BulkResult{}, err
		}
		return BulkResult{}, fmt.Errorf("after %d attempt(s): %w", attempt, err)
	}
	return res, nil
}
