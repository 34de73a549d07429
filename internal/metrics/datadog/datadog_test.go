package datadog

import (
	"reflect"
	"testing"

	"catalogindex/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls  []call
	closed int
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error { f.closed++; return nil }

func TestBackend_ForwardsWithSortedTags(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RecordsTotal, 2000.9, metrics.Labels{"kind": "indexed", "job": "bbuy_products"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "bulk"})
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []call{
		{"count", metrics.RecordsTotal, 2000, []string{"job:bbuy_products", "kind:indexed"}},
		{"histogram", metrics.StepDuration, 0.25, []string{"step:bulk"}},
	}
	if !reflect.DeepEqual(fc.calls, want) {
		t.Fatalf("calls = %#v", fc.calls)
	}
	if fc.closed != 1 {
		t.Fatalf("closed = %d", fc.closed)
	}
}

func TestBackend_NilClientAndConfig(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("expected error without Addr")
	}
	if labelsToTags(nil) != nil {
		t.Fatalf("nil labels should yield nil tags")
	}
}
