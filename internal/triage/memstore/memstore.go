// Package memstore provides an in-memory implementation of triage.Store.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// DefaultMaxBatches bounds how many batches are kept before the oldest is evicted.
const DefaultMaxBatches = 256

// Store holds batches in memory for the lifetime of the process.
type Store struct {
	mu      sync.RWMutex
	max     int
	batches map[string]*triage.Batch // batch ID -> batch
	order   []string                 // insertion order, oldest first
}

// New initializes a new in-memory Store. maxBatches <= 0 selects DefaultMaxBatches.
func New(maxBatches int) *Store {
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}
	return &Store{
		max:     maxBatches,
		batches: make(map[string]*triage.Batch),
	}
}

// Get retrieves a batch by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Batch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, false, nil
	}
	return clone(b), true, nil
}

// Put stores a copy of the batch, evicting the oldest batch when full.
func (s *Store) Put(_ context.Context, b *triage.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; !ok {
		s.order = append(s.order, b.ID)
		for len(s.order) > s.max {
			delete(s.batches, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.batches[b.ID] = clone(b)
	return nil
}

// Len reports how many batches are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}

func clone(b *triage.Batch) *triage.Batch {
	cp := *b
	cp.Records = slices.Clone(b.Records)
	return &cp
}
