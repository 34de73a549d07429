// Package dedup suppresses repeated document ids within one run.
package dedup

import "github.com/zeebo/xxh3"

// Set remembers 64-bit xxh3 hashes of ids. Two distinct ids that collide are
// treated as duplicates; at catalog sizes this is negligible.
type Set struct {
	seen map[uint64]struct{}
}

// New returns an empty Set sized for about n ids.
func New(n int) *Set {
	return &Set{seen: make(map[uint64]struct{}, n)}
}

// Seen records id and reports whether it had been recorded before.
func (s *Set) Seen(id string) bool {
	h := xxh3.HashString(id)
	if _, ok := s.seen[h]; ok {
		return true
	}
	s.seen[h] = struct{}{}
	return false
}

// Len returns the number of distinct ids recorded.
func (s *Set) Len() int { return len(s.seen) }
