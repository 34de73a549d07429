// Package skiplog writes one CSV row per record that was skipped, with a
// per-reason tally.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
)

// Reasons used by the indexer.
const (
	ReasonMissingID = "missing_id"
	ReasonDuplicate = "duplicate_id"
)

// Header is the first row of every skip log.
var Header = []string{"reason", "file", "record_index", "id"}

// Log is a CSV skip log. A Log opened with an empty path discards rows but
// still counts them. Methods must not be called on a nil *Log.
type Log struct {
	mu      sync.Mutex
	reasons map[string]int
	w       *csv.Writer
	f       *os.File
}

// Open creates path (and its parent directory) and writes the header.
// An empty path returns a Log that only counts.
func Open(path string) (*Log, error) {
	l := &Log{reasons: make(map[string]int)}
	if path == "" {
		return l, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("skiplog: create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("skiplog: %w", err)
	}
	l.f = f
	l.w = csv.NewWriter(f)
	if err := l.w.Write(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("skiplog: write header: %w", err)
	}
	return l, nil
}

// Add records one skipped record.
func (l *Log) Add(reason, file string, index int, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[reason]++
	if l.w != nil {
		_ = l.w.Write([]string{reason, file, strconv.Itoa(index), id})
	}
}

// Count returns the number of rows added for reason.
func (l *Log) Count(reason string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reasons[reason]
}

// Summary renders the tally as "reason=n" pairs in reason order.
func (l *Log) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.reasons))
	for k := range l.reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", k, l.reasons[k])
	}
	return s
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w.Flush()
	err := l.w.Error()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.w = nil
	return err
}
