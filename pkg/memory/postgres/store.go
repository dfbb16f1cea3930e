// Package postgres provides a PostgreSQL-backed implementation of the Orakle
// memory store.
//
// Entries live in a single table with a pgvector HNSW index for approximate
// nearest-neighbour search over entry embeddings. The pgvector extension must
// be available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Save(ctx, entry)
//	results, _ := store.Search(ctx, queryVec, 5, memory.Filter{UserID: "u1"})
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/orakle-ai/orakle/pkg/memory"
)

// Ensure Store implements the memory.Store interface.
var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL-backed memory store. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure the required table and extension exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [memory.Entry.Embedding] values (e.g., 1536 for OpenAI
// text-embedding-3-small). Changing this value after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres memory: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres memory: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Save implements [memory.Store].
func (s *Store) Save(ctx context.Context, entry memory.Entry) error {
	const q = `
		INSERT INTO memories
		    (id, user_id, content, embedding, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    user_id    = EXCLUDED.user_id,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    kind       = EXCLUDED.kind,
		    created_at = EXCLUDED.created_at`

	vec := pgvector.NewVector(entry.Embedding)
	_, err := s.pool.Exec(ctx, q,
		entry.ID,
		entry.UserID,
		entry.Content,
		vec,
		entry.Kind,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres memory: save: %w", err)
	}
	return nil
}

// Search implements [memory.Store]. Results are ordered by ascending cosine
// distance (most similar first).
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter memory.Filter) ([]memory.Result, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = "+next(filter.UserID))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = "+next(filter.Kind))
	}
	if !filter.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(filter.After))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, user_id, content, embedding, kind, created_at,
		       embedding <=> $1 AS distance
		FROM   memories
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Result, error) {
		var (
			r   memory.Result
			vec pgvector.Vector
		)
		if err := row.Scan(
			&r.Entry.ID,
			&r.Entry.UserID,
			&r.Entry.Content,
			&vec,
			&r.Entry.Kind,
			&r.Entry.CreatedAt,
			&r.Distance,
		); err != nil {
			return memory.Result{}, err
		}
		r.Entry.Embedding = vec.Slice()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres memory: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.Result{}
	}
	return results, nil
}

// Recent implements [memory.Store].
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]memory.Entry, error) {
	const q = `
		SELECT id, user_id, content, embedding, kind, created_at
		FROM   memories
		WHERE  user_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres memory: recent: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Entry, error) {
		var (
			e   memory.Entry
			vec pgvector.Vector
		)
		if err := row.Scan(&e.ID, &e.UserID, &e.Content, &vec, &e.Kind, &e.CreatedAt); err != nil {
			return memory.Entry{}, err
		}
		e.Embedding = vec.Slice()
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres memory: scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	return entries, nil
}
