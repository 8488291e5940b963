package retrieval

import (
	"context"
	"fmt"

	"supportkb/src/log"
	"supportkb/src/storage/vectorindex"
)

// DefaultThreshold is the minimum cosine similarity a chunk must reach to be
// considered relevant to a query. Below it the orchestrator returns an empty
// context instead of forcing weak matches into the prompt.
const DefaultThreshold = 0.7

// Embedder embeds a query text. It must be the same generator (same model,
// same dimension) used during ingestion; mixing embedding spaces silently
// corrupts ranking.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index answers nearest-neighbor queries over the indexed chunks.
type Index interface {
	Query(vector []float32, k int) ([]vectorindex.Result, error)
}

// ContextChunk is one entry of the assembled chat context, carrying its
// source so the assistant can cite the article.
type ContextChunk struct {
	ChunkID   int64   `json:"chunk_id"`
	ArticleID int64   `json:"article_id"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// Retriever assembles a ranked, token-budgeted context for a chat query.
type Retriever struct {
	embedder  Embedder
	index     Index
	threshold float64
}

// NewRetriever creates a Retriever. A non-positive threshold falls back to
// DefaultThreshold.
func NewRetriever(embedder Embedder, index Index, threshold float64) *Retriever {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
	}
}

// Retrieve embeds the query, fetches the top k candidates and assembles a
// context in score order. Assembly stops before the chunk whose estimated
// token count would exceed tokenBudget; chunks are never truncated mid-text.
// A tokenBudget <= 0 means no budget. Candidates below the relevance
// threshold are dropped; when nothing clears it the context is empty.
func (r *Retriever) Retrieve(ctx context.Context, query string, k, tokenBudget int) ([]ContextChunk, error) {
	if query == "" {
		return []ContextChunk{}, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.index.Query(vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	assembled := make([]ContextChunk, 0, len(results))
	used := 0
	for _, res := range results {
		if res.Score < r.threshold {
			// Results are sorted by score, everything after is weaker still.
			break
		}
		cost := EstimateTokens(res.Text)
		if tokenBudget > 0 && used+cost > tokenBudget {
			log.Debug("token budget reached", "used", used, "next_chunk_tokens", cost, "budget", tokenBudget)
			break
		}
		used += cost
		assembled = append(assembled, ContextChunk{
			ChunkID:   res.ChunkID,
			ArticleID: res.ArticleID,
			Title:     res.Title,
			URL:       res.URL,
			Text:      res.Text,
			Score:     res.Score,
		})
	}

	return assembled, nil
}
