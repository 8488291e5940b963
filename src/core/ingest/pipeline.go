package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"supportkb/src/core/chunker"
	"supportkb/src/infrastructure/integrations/zendesk"
	"supportkb/src/log"
	"supportkb/src/storage/postgres/articlectrl"
	"supportkb/src/storage/postgres/chunkctrl"
	"supportkb/src/storage/vectorindex"
)

// ArticleStore persists support articles.
type ArticleStore interface {
	GetByID(ctx context.Context, id int64) (*articlectrl.Article, error)
	UpsertByURL(ctx context.Context, title, content, url, category string) (*articlectrl.Article, bool, error)
	List(ctx context.Context) ([]articlectrl.Article, error)
	ListURLs(ctx context.Context) (map[string]int64, error)
	SoftDelete(ctx context.Context, id int64) error
	Touch(ctx context.Context, id int64) error
}

// ChunkStore persists the chunks derived from articles.
type ChunkStore interface {
	NewChunk(articleID int64, ordinal int, text, contentHash string, vector []float32) (*chunkctrl.Chunk, error)
	ReplaceForArticle(ctx context.Context, articleID int64, chunks []*chunkctrl.Chunk) error
	GetByArticleID(ctx context.Context, articleID int64) ([]chunkctrl.Chunk, error)
	DeleteByArticleID(ctx context.Context, articleID int64) error
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index serves similarity queries over the ingested chunks.
type Index interface {
	UpsertArticle(articleID int64, entries []vectorindex.Entry) error
	DeleteArticle(articleID int64)
}

// Service runs articles through the chunk, embed and index stages.
type Service struct {
	articles ArticleStore
	chunks   ChunkStore
	embedder Embedder
	index    Index
	window   int
	overlap  int
}

func NewService(articles ArticleStore, chunks ChunkStore, embedder Embedder, index Index, window, overlap int) (*Service, error) {
	if window <= 0 {
		window = chunker.DefaultWindow
	}
	if overlap < 0 {
		overlap = chunker.DefaultOverlap
	}
	if overlap >= window {
		return nil, fmt.Errorf("overlap %d must be smaller than window %d", overlap, window)
	}
	return &Service{
		articles: articles,
		chunks:   chunks,
		embedder: embedder,
		index:    index,
		window:   window,
		overlap:  overlap,
	}, nil
}

// IngestArticle chunks the article's current content, embeds the chunks
// whose text changed since the last run and replaces the stored chunk set
// and the index entries. Chunks whose content hash matches the stored row
// at the same position keep their stored vector, so an unchanged article
// costs zero provider calls.
func (s *Service) IngestArticle(ctx context.Context, articleID int64) error {
	return s.ingest(ctx, articleID, true)
}

func (s *Service) ingest(ctx context.Context, articleID int64, reuseVectors bool) error {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("failed to load article %d: %w", articleID, err)
	}
	if article == nil {
		return fmt.Errorf("article %d not found", articleID)
	}

	pieces, err := chunker.Chunk(article.Content, s.window, s.overlap)
	if err != nil {
		return fmt.Errorf("failed to chunk article %d: %w", articleID, err)
	}

	var stored map[int]chunkctrl.Chunk
	if reuseVectors {
		existing, err := s.chunks.GetByArticleID(ctx, articleID)
		if err != nil {
			return fmt.Errorf("failed to load existing chunks for article %d: %w", articleID, err)
		}
		stored = make(map[int]chunkctrl.Chunk, len(existing))
		for _, c := range existing {
			stored[c.Ordinal] = c
		}
	}

	vectors := make([][]float32, len(pieces))
	hashes := make([]string, len(pieces))
	var pending []int
	for i, piece := range pieces {
		hashes[i] = chunker.Hash(piece.Text)
		if prev, ok := stored[piece.Ordinal]; ok && prev.ContentHash == hashes[i] {
			v, err := prev.Vector()
			if err == nil {
				vectors[i] = v
				continue
			}
			log.Debug("stored vector unreadable, re-embedding",
				"articleId", articleID, "ordinal", piece.Ordinal, "error", err)
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, idx := range pending {
			texts[i] = pieces[idx].Text
		}
		embedded, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed article %d: %w", articleID, err)
		}
		for i, idx := range pending {
			vectors[idx] = embedded[i]
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([]*chunkctrl.Chunk, len(pieces))
	entries := make([]vectorindex.Entry, len(pieces))
	for i, piece := range pieces {
		row, err := s.chunks.NewChunk(articleID, piece.Ordinal, piece.Text, hashes[i], vectors[i])
		if err != nil {
			return fmt.Errorf("failed to build chunk %d for article %d: %w", piece.Ordinal, articleID, err)
		}
		rows[i] = row
		entries[i] = vectorindex.Entry{
			ChunkID:          row.ID,
			ArticleID:        articleID,
			Ordinal:          piece.Ordinal,
			Text:             piece.Text,
			Title:            article.Title,
			URL:              article.URL,
			Vector:           vectors[i],
			ArticleUpdatedAt: article.UpdatedAt,
		}
	}

	if err := s.chunks.ReplaceForArticle(ctx, articleID, rows); err != nil {
		return fmt.Errorf("failed to store chunks for article %d: %w", articleID, err)
	}
	if err := s.index.UpsertArticle(articleID, entries); err != nil {
		return fmt.Errorf("failed to index article %d: %w", articleID, err)
	}
	// Freshly ingested articles win similarity ties over stale ones.
	if err := s.articles.Touch(ctx, articleID); err != nil {
		log.Debug("failed to touch article", "articleId", articleID, "error", err)
	}

	log.Info("article ingested",
		"articleId", articleID, "chunks", len(pieces), "embedded", len(pending))
	return nil
}

// RemoveArticle takes an article out of retrieval: its index entries and
// stored chunks go away and the article row is soft-deleted.
func (s *Service) RemoveArticle(ctx context.Context, articleID int64) error {
	s.index.DeleteArticle(articleID)
	if err := s.chunks.DeleteByArticleID(ctx, articleID); err != nil {
		return fmt.Errorf("failed to delete chunks for article %d: %w", articleID, err)
	}
	if err := s.articles.SoftDelete(ctx, articleID); err != nil {
		return fmt.Errorf("failed to delete article %d: %w", articleID, err)
	}
	return nil
}

// SyncSummary reports what one scrape synchronization did.
type SyncSummary struct {
	Ingested  int
	Unchanged int
	Removed   int
	Failed    int
	Failures  []ArticleFailure
}

// SyncScrape reconciles the store with a fresh scrape result. New and
// changed articles are ingested, articles that no longer appear on the
// help center are removed. A failing article is recorded in the summary
// and never stops the remaining articles or the removal pass; only
// context cancellation aborts the run.
func (s *Service) SyncScrape(ctx context.Context, scraped []zendesk.Article) (SyncSummary, error) {
	var summary SyncSummary

	known, err := s.articles.ListURLs(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list known articles: %w", err)
	}

	seen := make(map[string]bool, len(scraped))
	for _, a := range scraped {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		seen[a.URL] = true

		row, changed, err := s.articles.UpsertByURL(ctx, a.Title, a.Content, a.URL, a.Category)
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, ArticleFailure{
				Title:  a.Title,
				Reason: err.Error(),
			})
			log.Error(err, "failed to upsert article", "url", a.URL)
			continue
		}
		if !changed {
			summary.Unchanged++
			continue
		}
		if err := s.IngestArticle(ctx, row.ID); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			summary.Failures = append(summary.Failures, ArticleFailure{
				ArticleID: row.ID,
				Title:     a.Title,
				Reason:    err.Error(),
			})
			log.Error(err, "failed to ingest article", "articleId", row.ID, "url", a.URL)
			continue
		}
		summary.Ingested++
	}

	for url, id := range known {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if seen[url] {
			continue
		}
		// Ad-hoc articles have no source page to vanish from.
		if strings.HasPrefix(url, articlectrl.InternalURLPrefix) {
			continue
		}
		if err := s.RemoveArticle(ctx, id); err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, ArticleFailure{
				ArticleID: id,
				Reason:    err.Error(),
			})
			log.Error(err, "failed to remove vanished article", "articleId", id, "url", url)
			continue
		}
		log.Info("article vanished from help center, removed", "articleId", id, "url", url)
		summary.Removed++
	}

	return summary, nil
}

// ArticleFailure records one article a bulk run could not process.
type ArticleFailure struct {
	ArticleID int64
	Title     string
	Reason    string
}

// ReembedSummary reports the outcome of a full re-embedding run.
type ReembedSummary struct {
	Succeeded int
	Failed    int
	Failures  []ArticleFailure
}

// ReembedAll regenerates every article's vectors from scratch, ignoring
// stored content hashes. Use it after switching embedding models. Articles
// are processed by up to concurrency workers; a failing article is recorded
// and the run continues. progress, when non-nil, is called once per
// finished article.
func (s *Service) ReembedAll(ctx context.Context, concurrency int, progress func()) (ReembedSummary, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	articles, err := s.articles.List(ctx)
	if err != nil {
		return ReembedSummary{}, fmt.Errorf("failed to list articles: %w", err)
	}

	var (
		mu      sync.Mutex
		summary ReembedSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, article := range articles {
		g.Go(func() error {
			err := s.ingest(gctx, article.ID, false)

			mu.Lock()
			if err != nil {
				summary.Failed++
				summary.Failures = append(summary.Failures, ArticleFailure{
					ArticleID: article.ID,
					Title:     article.Title,
					Reason:    err.Error(),
				})
				log.Error(err, "failed to re-embed article", "articleId", article.ID)
			} else {
				summary.Succeeded++
			}
			mu.Unlock()

			if progress != nil {
				progress()
			}
			// Individual failures are reported in the summary; only a
			// cancelled context stops the run.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}
