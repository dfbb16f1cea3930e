// Package mock provides a test double for the memory.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/orakle-ai/orakle/pkg/memory"
)

// SearchCall records a single invocation of Search.
type SearchCall struct {
	// Embedding is the query vector passed to Search.
	Embedding []float32
	// TopK is the result cap passed to Search.
	TopK int
	// Filter is the filter passed to Search.
	Filter memory.Filter
}

// Store is a mock implementation of memory.Store.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SaveErr, if non-nil, is returned as the error from Save.
	SaveErr error

	// SearchResults is returned by Search. Nil yields an empty slice.
	SearchResults []memory.Result

	// SearchErr, if non-nil, is returned as the error from Search.
	SearchErr error

	// RecentResults is returned by Recent. Nil yields an empty slice.
	RecentResults []memory.Entry

	// RecentErr, if non-nil, is returned as the error from Recent.
	RecentErr error

	// --- Call records ---

	// Saved records every entry passed to Save in order.
	Saved []memory.Entry

	// SearchCalls records every call to Search in order.
	SearchCalls []SearchCall

	// RecentCalls records every userID passed to Recent in order.
	RecentCalls []string
}

// Save records the entry and returns SaveErr.
func (s *Store) Save(ctx context.Context, entry memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saved = append(s.Saved, entry)
	return s.SaveErr
}

// Search records the call and returns the configured results.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter memory.Filter) ([]memory.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]float32, len(embedding))
	copy(cp, embedding)
	s.SearchCalls = append(s.SearchCalls, SearchCall{Embedding: cp, TopK: topK, Filter: filter})
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	if s.SearchResults == nil {
		return []memory.Result{}, nil
	}
	return s.SearchResults, nil
}

// Recent records the call and returns the configured entries.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]memory.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecentCalls = append(s.RecentCalls, userID)
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	if s.RecentResults == nil {
		return []memory.Entry{}, nil
	}
	return s.RecentResults, nil
}

// Reset clears all recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saved = nil
	s.SearchCalls = nil
	s.RecentCalls = nil
}

// Ensure Store implements memory.Store at compile time.
var _ memory.Store = (*Store)(nil)
