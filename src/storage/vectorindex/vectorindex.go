package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Entry pairs a chunk's embedding vector with enough article metadata to
// answer a query without a second store round-trip.
type Entry struct {
	ChunkID          int64
	ArticleID        int64
	Ordinal          int
	Text             string
	Title            string
	URL              string
	Vector           []float32
	ArticleUpdatedAt time.Time
}

// Result is a single nearest-neighbor match.
type Result struct {
	ChunkID   int64
	ArticleID int64
	Ordinal   int
	Text      string
	Title     string
	URL       string
	Score     float64
}

// Memory is an in-memory vector index over a full linear cosine scan.
// Entries are grouped per article and replaced wholesale: a concurrent
// Query observes either the complete old set or the complete new set for
// an article, never a mix and never a transient empty set.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu      sync.RWMutex
	dims    int
	entries map[int64][]Entry
}

// NewMemory creates an index that accepts only vectors of exactly dims
// components.
func NewMemory(dims int) (*Memory, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dims)
	}
	return &Memory{
		dims:    dims,
		entries: make(map[int64][]Entry),
	}, nil
}

// Dims returns the fixed vector dimension of the index.
func (m *Memory) Dims() int {
	return m.dims
}

// UpsertArticle atomically replaces all index entries for articleID with the
// given set. Validation happens before any mutation, so a rejected call
// leaves the previous entries fully intact.
func (m *Memory) UpsertArticle(articleID int64, entries []Entry) error {
	for _, e := range entries {
		if e.ArticleID != articleID {
			return fmt.Errorf("entry for chunk %d belongs to article %d, not %d", e.ChunkID, e.ArticleID, articleID)
		}
		if len(e.Vector) != m.dims {
			return fmt.Errorf("chunk %d has %d vector components, index requires %d", e.ChunkID, len(e.Vector), m.dims)
		}
	}

	replacement := make([]Entry, len(entries))
	copy(replacement, entries)

	m.mu.Lock()
	m.entries[articleID] = replacement
	m.mu.Unlock()
	return nil
}

// DeleteArticle removes all entries for the article. Unknown articles are a
// no-op.
func (m *Memory) DeleteArticle(articleID int64) {
	m.mu.Lock()
	delete(m.entries, articleID)
	m.mu.Unlock()
}

// Load bulk-inserts entries grouped per article, used to rebuild the index
// from the chunk table at startup.
func (m *Memory) Load(entries []Entry) error {
	grouped := make(map[int64][]Entry)
	for _, e := range entries {
		grouped[e.ArticleID] = append(grouped[e.ArticleID], e)
	}
	for articleID, group := range grouped {
		if err := m.UpsertArticle(articleID, group); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the total number of indexed entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, group := range m.entries {
		n += len(group)
	}
	return n
}

// Query returns up to k entries with the highest cosine similarity to
// vector, descending by score. Ties are broken by the most recently updated
// owning article. k <= 0 returns an empty result set.
func (m *Memory) Query(vector []float32, k int) ([]Result, error) {
	if len(vector) != m.dims {
		return nil, fmt.Errorf("query vector has %d components, index requires %d", len(vector), m.dims)
	}
	if k <= 0 {
		return []Result{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		entry Entry
		score float64
	}
	matches := make([]scored, 0, 64)
	for _, group := range m.entries {
		for _, e := range group {
			matches = append(matches, scored{entry: e, score: cosine(vector, e.Vector)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entry.ArticleUpdatedAt.After(matches[j].entry.ArticleUpdatedAt)
	})

	if k > len(matches) {
		k = len(matches)
	}
	results := make([]Result, 0, k)
	for _, s := range matches[:k] {
		results = append(results, Result{
			ChunkID:   s.entry.ChunkID,
			ArticleID: s.entry.ArticleID,
			Ordinal:   s.entry.Ordinal,
			Text:      s.entry.Text,
			Title:     s.entry.Title,
			URL:       s.entry.URL,
			Score:     s.score,
		})
	}
	return results, nil
}

// cosine computes the cosine similarity of two equal-length vectors in
// [-1, 1]. A zero vector scores 0 against everything.
func cosine(a, b []float32) float64 {
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
