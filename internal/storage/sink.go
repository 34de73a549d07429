// Package storage contains the sink contract, the sink registry and the
// batch loader that feeds sinks with fixed-size bulk writes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"catalogindex/internal/config"
	"catalogindex/internal/document"
)

// Sink writes batches of documents. One Bulk call is one round trip.
//
// Bulk returns an error only when the request as a whole failed; documents
// the engine rejected individually are reported in BulkResult.Failures.
type Sink interface {
	Bulk(ctx context.Context, docs []document.Document) (BulkResult, error)
	Close() error
}

// Pinger is implemented by sinks that can verify reachability before a run.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BulkResult summarizes one bulk write.
type BulkResult struct {
	Indexed  int
	Failures []ItemFailure
}

// ItemFailure is one document the engine rejected.
type ItemFailure struct {
	Position int // index into the submitted batch
	Index    string
	ID       string
	Status   int
	Reason   string
}

// StatusError is a non-2xx response to a whole bulk request.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// ErrBulk marks a bulk write that failed after all retries.
var ErrBulk = errors.New("bulk write failed")

// TransportError is a request that did not complete a round trip, so the
// server never answered it. Sinks wrap such failures to mark them retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// PermanentError marks a failure that repeating the request cannot fix, or
// that must not be repeated because the server may already have applied it.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err in a PermanentError. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Retryable reports whether a failed bulk request may succeed if repeated.
// Only throttling and gateway statuses, TransportError and net.Error values
// are retryable. PermanentError and a done context never are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Config is everything a sink factory may need.
type Config struct {
	Kind       string
	Index      string
	RunID      string
	OpenSearch config.OpenSearch
	DB         config.DBConfig
	Options    config.Options
}

// ConfigFromPipeline extracts the sink configuration of p.
func ConfigFromPipeline(p config.Pipeline, runID string) Config {
	return Config{
		Kind:       p.Sink.Kind,
		Index:      p.Sink.Index,
		RunID:      runID,
		OpenSearch: p.Sink.OpenSearch,
		DB:         p.Sink.DB,
		Options:    p.Sink.Options,
	}
}

// Factory opens a sink.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a sink kind available to New. It is called from the init
// functions of the sink packages; registering a kind twice panics.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("storage: duplicate sink kind " + kind)
	}
	factories[kind] = f
}

// Kinds lists the registered sink kinds.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a sink of cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown sink kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// DocumentColumns are the columns of the relational mirror table.
var DocumentColumns = []string{"run_id", "index_name", "doc_id", "body"}

// Rows converts docs into rows aligned with DocumentColumns. The body is the
// JSON document; an empty id becomes NULL.
func Rows(runID string, docs []document.Document) ([][]any, error) {
	rows := make([][]any, 0, len(docs))
	for i, d := range docs {
		body, err := d.Body()
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		var id any
		if d.ID != "" {
			id = d.ID
		}
		rows = append(rows, []any{runID, d.Index, id, string(body)})
	}
	return rows, nil
}
