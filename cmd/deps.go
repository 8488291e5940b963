package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"supportkb/src/core/embedding"
	"supportkb/src/core/ingest"
	"supportkb/src/core/retrieval"
	"supportkb/src/core/vault"
	"supportkb/src/infrastructure/integrations/ollama"
	"supportkb/src/log"
	"supportkb/src/storage/postgres/articlectrl"
	"supportkb/src/storage/postgres/chunkctrl"
	"supportkb/src/storage/postgres/secretctrl"
	"supportkb/src/storage/vectorindex"
	weaviatestore "supportkb/src/storage/weaviate"
)

func openDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

type bearerTransport struct {
	key  string
	base http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.key)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// newOllamaClient builds the embedding provider client. When a vault key is
// configured and a credential is stored for the provider, requests carry it
// as a bearer token (the provider may sit behind an authenticating proxy).
// A stored credential that fails to decrypt aborts startup.
func newOllamaClient(ctx context.Context, db *gorm.DB) (*ollama.Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if keyHex := viper.GetString("vault.key"); keyHex != "" && db != nil {
		v, err := vault.New(keyHex)
		if err != nil {
			return nil, fmt.Errorf("failed to open vault: %w", err)
		}
		apiKey, err := secretctrl.NewSecretService(db, v).Get(ctx, "ollama")
		switch {
		case err == nil:
			httpClient.Transport = &bearerTransport{key: apiKey}
		case errors.Is(err, secretctrl.ErrNoCredential):
			// No credential stored, talk to the provider unauthenticated.
		default:
			return nil, err
		}
	}

	return ollama.NewClient(
		viper.GetString("ollama.url"),
		viper.GetString("ollama.model"),
		httpClient,
	)
}

func newGenerator(oc *ollama.Client) (*embedding.Generator, error) {
	return embedding.NewGenerator(
		oc,
		viper.GetInt("embedding.dims"),
		viper.GetInt("embedding.concurrency"),
	)
}

// weaviateIngestIndex adapts the Weaviate store to the pipeline's
// context-free index methods.
type weaviateIngestIndex struct {
	store *weaviatestore.Store
}

func (w weaviateIngestIndex) UpsertArticle(articleID int64, entries []vectorindex.Entry) error {
	return w.store.UpsertArticle(context.Background(), articleID, entries)
}

func (w weaviateIngestIndex) DeleteArticle(articleID int64) {
	if err := w.store.DeleteArticle(context.Background(), articleID); err != nil {
		log.Error(err, "failed to delete article from weaviate", "articleId", articleID)
	}
}

type weaviateQueryIndex struct {
	store *weaviatestore.Store
}

func (w weaviateQueryIndex) Query(vector []float32, k int) ([]vectorindex.Result, error) {
	return w.store.Query(context.Background(), vector, k)
}

// buildIndexes returns the write side and the read side of the vector index.
// With Weaviate enabled both sides hit the remote instance; otherwise an
// in-memory index is rebuilt from the stored chunks.
func buildIndexes(ctx context.Context, articles *articlectrl.ArticleService, chunks *chunkctrl.ChunkService, dims int) (ingest.Index, retrieval.Index, error) {
	if viper.GetBool("weaviate.enabled") {
		wc := weaviateClient.New(weaviateClient.Config{
			Host:   viper.GetString("weaviate.host"),
			Scheme: "http",
		})
		store := weaviatestore.NewStore(wc, dims)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return weaviateIngestIndex{store: store}, weaviateQueryIndex{store: store}, nil
	}

	memory, err := vectorindex.NewMemory(dims)
	if err != nil {
		return nil, nil, err
	}
	if err := rebuildMemoryIndex(ctx, memory, articles, chunks); err != nil {
		return nil, nil, err
	}
	return memory, memory, nil
}

// rebuildMemoryIndex reloads every stored chunk whose embedding still
// decodes and matches the configured dimensionality. Stale rows are skipped
// and logged, a reembed run repairs them.
func rebuildMemoryIndex(ctx context.Context, memory *vectorindex.Memory, articles *articlectrl.ArticleService, chunks *chunkctrl.ChunkService) error {
	all, err := articles.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list articles: %w", err)
	}
	byID := make(map[int64]articlectrl.Article, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}

	rows, err := chunks.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}

	var entries []vectorindex.Entry
	skipped := 0
	for _, row := range rows {
		article, ok := byID[row.ArticleID]
		if !ok {
			continue
		}
		vector, err := row.Vector()
		if err != nil || len(vector) != memory.Dims() {
			log.Debug("skipping chunk with unusable embedding",
				"chunkId", row.ID, "articleId", row.ArticleID, "error", err)
			skipped++
			continue
		}
		entries = append(entries, vectorindex.Entry{
			ChunkID:          row.ID,
			ArticleID:        row.ArticleID,
			Ordinal:          row.Ordinal,
			Text:             row.Text,
			Title:            article.Title,
			URL:              article.URL,
			Vector:           vector,
			ArticleUpdatedAt: article.UpdatedAt,
		})
	}

	if err := memory.Load(entries); err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	log.Info("vector index rebuilt", "entries", len(entries), "skipped", skipped)
	return nil
}

// pipelineDeps bundles the services a command needs to run the pipeline.
type pipelineDeps struct {
	ingest    *ingest.Service
	articles  *articlectrl.ArticleService
	chunks    *chunkctrl.ChunkService
	generator *embedding.Generator
	ollama    *ollama.Client
	readIndex retrieval.Index
}

func buildPipeline(ctx context.Context, db *gorm.DB) (*pipelineDeps, error) {
	articleService, err := articlectrl.NewArticleService(db)
	if err != nil {
		return nil, err
	}
	chunkService, err := chunkctrl.NewChunkService(db)
	if err != nil {
		return nil, err
	}

	oc, err := newOllamaClient(ctx, db)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(oc)
	if err != nil {
		return nil, err
	}

	writeIndex, readIndex, err := buildIndexes(ctx, articleService, chunkService, generator.Dims())
	if err != nil {
		return nil, err
	}

	svc, err := ingest.NewService(
		articleService,
		chunkService,
		generator,
		writeIndex,
		viper.GetInt("chunk.window"),
		viper.GetInt("chunk.overlap"),
	)
	if err != nil {
		return nil, err
	}

	return &pipelineDeps{
		ingest:    svc,
		articles:  articleService,
		chunks:    chunkService,
		generator: generator,
		ollama:    oc,
		readIndex: readIndex,
	}, nil
}
