// Package registry caches skill descriptors fetched from the skills host and
// indexes them for exact and embedding-based lookup.
//
// The catalog is immutable once published: Reload builds a complete
// replacement off to the side and swaps it in atomically, so readers never
// observe a partially populated catalog. An empty catalog is a valid state —
// chat turns still serve narrative-only responses against it.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/orakle-ai/orakle/pkg/provider/embeddings"
	"github.com/orakle-ai/orakle/pkg/skills"
)

// Entry pairs a descriptor with the embedding of its description. The
// embedding lives with the descriptor for the lifetime of the catalog.
type Entry struct {
	Descriptor skills.Descriptor
	Embedding  []float32
}

// Match is one search result with its cosine similarity to the query.
type Match struct {
	Descriptor skills.Descriptor

	// Similarity is the cosine similarity in [-1, 1]; higher is closer.
	Similarity float64
}

// Filter narrows a search to descriptors it reports true for. A nil Filter
// matches everything.
type Filter func(skills.Descriptor) bool

// catalog is one published generation of the skill set.
type catalog struct {
	entries []Entry
	byID    map[string]int
	dims    int
}

var emptyCatalog = &catalog{byID: map[string]int{}}

// Registry loads skill descriptors from the skills host and keeps them
// indexed by id and by dense vector. Safe for concurrent use.
type Registry struct {
	host skills.Host

	embMu    sync.RWMutex
	embedder embeddings.Provider

	current atomic.Pointer[catalog]
}

// New constructs a Registry with an empty catalog. Call [Registry.Reload] to
// populate it. embedder may be nil until a model is configured; Reload and
// Search fail cleanly in that state.
func New(host skills.Host, embedder embeddings.Provider) *Registry {
	r := &Registry{host: host, embedder: embedder}
	r.current.Store(emptyCatalog)
	return r
}

// SetEmbedder replaces the embedding backend. Existing entries keep their
// vectors until the next Reload, so callers should reload promptly after a
// model change to avoid mixed-geometry searches.
func (r *Registry) SetEmbedder(e embeddings.Provider) {
	r.embMu.Lock()
	r.embedder = e
	r.embMu.Unlock()
}

func (r *Registry) currentEmbedder() (embeddings.Provider, error) {
	r.embMu.RLock()
	defer r.embMu.RUnlock()
	if r.embedder == nil {
		return nil, fmt.Errorf("registry: no embedding provider configured")
	}
	return r.embedder, nil
}

// Reload fetches all descriptors from the skills host, embeds each
// description, validates the result, and publishes the new catalog
// atomically. On any error the previously published catalog stays in place.
//
// Reload is idempotent: an unchanged skill set produces a catalog with
// identical descriptors and identical embeddings.
func (r *Registry) Reload(ctx context.Context) error {
	embedder, err := r.currentEmbedder()
	if err != nil {
		return err
	}

	descriptors, err := r.host.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("registry: fetch capabilities: %w", err)
	}

	texts := make([]string, len(descriptors))
	for i, d := range descriptors {
		if d.SkillID == "" {
			return fmt.Errorf("registry: descriptor %d has an empty skill_id", i)
		}
		if d.Description == "" {
			return fmt.Errorf("registry: skill %q has an empty description", d.SkillID)
		}
		texts[i] = d.Description
	}

	var vectors [][]float32
	if len(texts) > 0 {
		vectors, err = embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("registry: embed descriptions: %w", err)
		}
		if len(vectors) != len(descriptors) {
			return fmt.Errorf("registry: expected %d embeddings, got %d", len(descriptors), len(vectors))
		}
	}

	next := &catalog{
		entries: make([]Entry, 0, len(descriptors)),
		byID:    make(map[string]int, len(descriptors)),
	}
	for i, d := range descriptors {
		vec := vectors[i]
		if len(vec) == 0 {
			return fmt.Errorf("registry: skill %q has an empty embedding", d.SkillID)
		}
		if next.dims == 0 {
			next.dims = len(vec)
		} else if len(vec) != next.dims {
			return fmt.Errorf("registry: skill %q embedding has %d dimensions, catalog has %d",
				d.SkillID, len(vec), next.dims)
		}
		if _, dup := next.byID[d.SkillID]; dup {
			return fmt.Errorf("registry: duplicate skill_id %q", d.SkillID)
		}
		next.byID[d.SkillID] = len(next.entries)
		next.entries = append(next.entries, Entry{Descriptor: d, Embedding: vec})
	}

	r.current.Store(next)
	slog.Info("skill catalog published",
		"skills", len(next.entries),
		"dimensions", next.dims,
		"model", embedder.ModelID())
	return nil
}

// List returns the descriptors of the current catalog in load order.
func (r *Registry) List() []skills.Descriptor {
	c := r.current.Load()
	out := make([]skills.Descriptor, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Descriptor
	}
	return out
}

// Len reports the number of skills in the current catalog.
func (r *Registry) Len() int {
	return len(r.current.Load().entries)
}

// Find performs an exact lookup by skill id.
func (r *Registry) Find(skillID string) (skills.Descriptor, bool) {
	c := r.current.Load()
	i, ok := c.byID[skillID]
	if !ok {
		return skills.Descriptor{}, false
	}
	return c.entries[i].Descriptor, true
}

// Search embeds query with the catalog's model and returns the top-k entries
// by cosine similarity, optionally restricted by filter. Ties are broken by
// ascending skill id so results are deterministic. k values below 1 return an
// empty result.
func (r *Registry) Search(ctx context.Context, query string, k int, filter Filter) ([]Match, error) {
	c := r.current.Load()
	if len(c.entries) == 0 || k < 1 {
		return nil, nil
	}

	embedder, err := r.currentEmbedder()
	if err != nil {
		return nil, err
	}
	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("registry: embed query: %w", err)
	}
	if len(queryVec) != c.dims {
		return nil, fmt.Errorf("registry: query embedding has %d dimensions, catalog has %d",
			len(queryVec), c.dims)
	}

	matches := make([]Match, 0, len(c.entries))
	for _, e := range c.entries {
		if filter != nil && !filter(e.Descriptor) {
			continue
		}
		matches = append(matches, Match{
			Descriptor: e.Descriptor,
			Similarity: cosineSimilarity(queryVec, e.Embedding),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Descriptor.SkillID < matches[j].Descriptor.SkillID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// cosineSimilarity computes the cosine of the angle between a and b. Vectors
// with zero magnitude yield 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
