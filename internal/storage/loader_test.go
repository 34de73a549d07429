package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"catalogindex/internal/document"
)

// fakeSink records batch sizes and can fail or reject on demand.
type fakeSink struct {
	sizes  []int
	calls  int
	errs   []error // returned on successive calls while non-empty
	reject func(docs []document.Document) []ItemFailure
	onBulk func()
	closed bool
}

func (f *fakeSink) Bulk(_ context.Context, docs []document.Document) (BulkResult, error) {
	f.calls++
	if f.onBulk != nil {
		f.onBulk()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return BulkResult{}, err
		}
	}
	f.sizes = append(f.sizes, len(docs))
	var fails []ItemFailure
	if f.reject != nil {
		fails = f.reject(docs)
	}
	return BulkResult{Indexed: len(docs) - len(fails), Failures: fails}, nil
}

func (f *fakeSink) Close() error { f.closed = true; return nil }

func doc(i int) document.Document {
	return document.Document{
		Index:  "bbuy_products",
		Fields: document.Fields{{Name: "productId", Value: document.ScalarOf(fmt.Sprint(i))}},
	}
}

func fastOpts(batch int) LoaderOptions {
	return LoaderOptions{BatchSize: batch, MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestLoader_BatchesOfAtMostBatchSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n, batch int
		want     []int
	}{
		{2100, 2000, []int{2000, 100}},
		{4000, 2000, []int{2000, 2000}},
		{1, 2000, []int{1}},
		{0, 2000, nil},
		{7, 3, []int{3, 3, 1}},
	}
	for _, c := range cases {
		fs := &fakeSink{}
		l, err := NewLoader(fs, fastOpts(c.batch))
		if err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()
		for i := 0; i < c.n; i++ {
			if err := l.Add(ctx, doc(i)); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if l.Pending() >= c.batch {
				t.Fatalf("pending %d reached batch size %d", l.Pending(), c.batch)
			}
		}
		if err := l.FlushRemaining(ctx); err != nil {
			t.Fatalf("FlushRemaining: %v", err)
		}
		if fmt.Sprint(fs.sizes) != fmt.Sprint(c.want) {
			t.Fatalf("n=%d batch=%d: sizes = %v, want %v", c.n, c.batch, fs.sizes, c.want)
		}
		st := l.Stats()
		if st.Indexed != int64(c.n) || st.Batches != int64(len(c.want)) || l.Pending() != 0 {
			t.Fatalf("n=%d: stats = %+v pending=%d", c.n, st, l.Pending())
		}
	}
}

func TestLoader_StateDuringFlush(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{}
	l, err := NewLoader(fs, fastOpts(2))
	if err != nil {
		t.Fatal(err)
	}
	var seen []State
	fs.onBulk = func() { seen = append(seen, l.State()) }

	ctx := context.Background()
	_ = l.Add(ctx, doc(1))
	if l.State() != Accumulating {
		t.Fatalf("state = %s", l.State())
	}
	_ = l.Add(ctx, doc(2))
	if len(seen) != 1 || seen[0] != Flushing || l.State() != Accumulating {
		t.Fatalf("seen = %v, state after = %s", seen, l.State())
	}
}

func TestLoader_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{errs: []error{
		&StatusError{Status: http.StatusTooManyRequests},
		&TransportError{Err: errors.New("connection reset by peer")},
	}}
	l, err := NewLoader(fs, fastOpts(2))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = l.Add(ctx, doc(1))
	if err := l.Add(ctx, doc(2)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if fs.calls != 3 || l.Stats().Indexed != 2 {
		t.Fatalf("calls=%d stats=%+v", fs.calls, l.Stats())
	}
}

func TestLoader_PermanentFailureIsFatal(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{errs: []error{&StatusError{Status: http.StatusBadRequest, Body: "bad"}}}
	l, _ := NewLoader(fs, fastOpts(1))
	err := l.Add(context.Background(), doc(1))
	if !errors.Is(err, ErrBulk) {
		t.Fatalf("err = %v, want ErrBulk", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("status error not preserved: %v", err)
	}
	if fs.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", fs.calls)
	}
	if l.Pending() != 0 || l.State() != Accumulating {
		t.Fatalf("batch not cleared after failed flush")
	}
}

func TestLoader_UnclassifiedErrorNotRetried(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{errs: []error{errors.New("duplicate key value violates unique constraint")}}
	l, _ := NewLoader(fs, fastOpts(1))
	if err := l.Add(context.Background(), doc(1)); !errors.Is(err, ErrBulk) {
		t.Fatalf("err = %v, want ErrBulk", err)
	}
	if fs.calls != 1 {
		t.Fatalf("calls = %d, want 1", fs.calls)
	}
}

func TestLoader_RetriesExhausted(t *testing.T) {
	t.Parallel()

	unavailable := &StatusError{Status: http.StatusServiceUnavailable}
	fs := &fakeSink{errs: []error{unavailable, unavailable, unavailable, unavailable, unavailable}}
	opts := fastOpts(1)
	opts.MaxRetries = 2
	l, _ := NewLoader(fs, opts)
	err := l.Add(context.Background(), doc(1))
	if !errors.Is(err, ErrBulk) {
		t.Fatalf("err = %v", err)
	}
	if fs.calls != 3 {
		t.Fatalf("calls = %d, want 3", fs.calls)
	}
}

func TestLoader_Rejections(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{reject: func(docs []document.Document) []ItemFailure {
		return []ItemFailure{{Position: 1, Index: docs[1].Index, Status: 400, Reason: "mapper_parsing_exception"}}
	}}
	var rejected []document.Document
	opts := fastOpts(3)
	opts.OnRejected = func(d document.Document, f ItemFailure) {
		if f.Status != 400 {
			t.Errorf("status = %d", f.Status)
		}
		rejected = append(rejected, d)
	}
	l, _ := NewLoader(fs, opts)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Add(ctx, doc(i)); err != nil {
			t.Fatalf("rejections must not be fatal: %v", err)
		}
	}
	st := l.Stats()
	if st.Indexed != 2 || st.Rejected != 1 || st.Sent != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if len(rejected) != 1 {
		t.Fatalf("rejected = %d", len(rejected))
	}
	if v, _ := rejected[0].Fields.Get("productId"); v.Str != "1" {
		t.Fatalf("wrong document dead-lettered: %v", v)
	}
}

func TestLoader_CanceledContext(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{errs: []error{&TransportError{Err: errors.New("dial tcp: refused")}}}
	l, _ := NewLoader(fs, LoaderOptions{BatchSize: 1, MaxRetries: 5, InitialInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	fs.onBulk = cancel
	err := l.Add(ctx, doc(1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewLoader_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewLoader(nil, LoaderOptions{BatchSize: 1}); err == nil {
		t.Fatalf("nil sink accepted")
	}
	if _, err := NewLoader(&fakeSink{}, LoaderOptions{}); err == nil {
		t.Fatalf("zero batch size accepted")
	}
}

func TestLoader_RateLimit(t *testing.T) {
	t.Parallel()

	fs := &fakeSink{}
	opts := fastOpts(1)
	opts.RPS = 20
	l, _ := NewLoader(fs, opts)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Add(context.Background(), doc(i)); err != nil {
			t.Fatal(err)
		}
	}
	// Burst of 1 at 20/s: the 2nd and 3rd requests each wait ~50ms.
	if el := time.Since(start); el < 80*time.Millisecond {
		t.Fatalf("3 requests took %s; limiter not applied", el)
	}
}
