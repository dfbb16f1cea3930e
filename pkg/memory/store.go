// Package memory defines the user memory/profile collaborator consulted during
// skill-result interpretation.
//
// Orakle does not own persistent user-profile storage; it invokes a memory
// store to retrieve context relevant to the directive being interpreted (past
// facts, stated preferences, prior skill outcomes) and to record new facts
// worth remembering. The store is embedding-indexed: callers embed text before
// saving or searching, using the same model as the skill catalog so one
// provider serves both.
//
// The production backend is Postgres with pgvector (see the postgres
// subpackage); tests use the mock subpackage. All implementations must be safe
// for concurrent use.
package memory

import (
	"context"
	"time"
)

// Entry is one remembered fact about a user.
type Entry struct {
	// ID is the unique identifier for this entry (e.g., a UUID).
	ID string

	// UserID scopes the entry to one user. Empty means global.
	UserID string

	// Content is the remembered text.
	Content string

	// Embedding is the vector representation of Content. Dimension must match
	// the store configuration.
	Embedding []float32

	// Kind is a coarse category label (e.g., "preference", "fact", "outcome").
	Kind string

	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time
}

// Filter narrows a search to a subset of entries. All non-zero fields are
// applied as AND conditions.
type Filter struct {
	// UserID restricts results to one user. Empty matches all users.
	UserID string

	// Kind restricts results to one category. Empty matches all kinds.
	Kind string

	// After filters entries recorded after this instant (exclusive).
	After time.Time
}

// Result pairs a retrieved entry with its vector-space distance from the query
// embedding. Lower Distance values indicate higher semantic similarity.
type Result struct {
	// Entry is the retrieved record.
	Entry Entry

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// Store is the memory collaborator interface.
type Store interface {
	// Save upserts a pre-embedded entry. If an entry with the same ID already
	// exists it is completely replaced.
	Save(ctx context.Context, entry Entry) error

	// Search finds the topK entries whose embeddings are closest to the query
	// embedding, filtered by filter. Results are ordered by ascending Distance
	// (most similar first). Returns an empty (non-nil) slice when no entries
	// match.
	Search(ctx context.Context, embedding []float32, topK int, filter Filter) ([]Result, error)

	// Recent returns up to limit entries for the given user, newest first.
	// Returns an empty (non-nil) slice when none exist.
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
}
