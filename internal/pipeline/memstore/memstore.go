// Package memstore provides an in-memory implementation of pipeline.Store
// that keeps only the most recent runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/raven/internal/pipeline"
)

// DefaultLimit is used when New is given a non-positive limit.
const DefaultLimit = 50

// Store holds runs in memory, evicting the oldest beyond its limit.
type Store struct {
	mu    sync.RWMutex
	limit int
	runs  map[string]*pipeline.Run // run ID -> run
	order []string                 // IDs, oldest first
}

// New initializes a Store keeping at most limit runs.
func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		runs:  make(map[string]*pipeline.Run),
	}
}

// Get retrieves a run by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*pipeline.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// Put stores a copy of the run.
func (s *Store) Put(_ context.Context, r *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	if _, exists := s.runs[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.runs[r.ID] = &cp

	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// List returns copies of up to limit runs, newest first. A non-positive
// limit returns every run held.
func (s *Store) List(_ context.Context, limit int) ([]*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*pipeline.Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		cp := *s.runs[s.order[i]]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
