// Package deadletter stores documents the search engine rejected so they can
// be inspected or replayed. Entries are a stream of MessagePack maps.
package deadletter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one rejected document.
type Entry struct {
	RunID  string    `msgpack:"run_id"`
	Index  string    `msgpack:"index"`
	ID     string    `msgpack:"id,omitempty"`
	Status int       `msgpack:"status"`
	Reason string    `msgpack:"reason"`
	Body   []byte    `msgpack:"body"`
	At     time.Time `msgpack:"at"`
}

// Writer appends entries to a file. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	bw  *bufio.Writer
	enc *msgpack.Encoder
	n   int
}

// Create opens path for appending.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("deadletter: %w", err)
	}
	bw := bufio.NewWriter(f)
	return &Writer{f: f, bw: bw, enc: msgpack.NewEncoder(bw)}, nil
}

// Write appends e.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := w.enc.Encode(&e); err != nil {
		return fmt.Errorf("deadletter: encode: %w", err)
	}
	w.n++
	return nil
}

// Count returns the number of entries written by this Writer.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Close flushes buffered entries and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.bw.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadAll decodes every entry in r.
func ReadAll(r io.Reader) ([]Entry, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var out []Entry
	for {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("deadletter: decode entry %d: %w", len(out), err)
		}
		out = append(out, e)
	}
}
