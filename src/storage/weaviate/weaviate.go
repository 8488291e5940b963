package weaviate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"supportkb/src/storage/vectorindex"
)

const ClassName = "SupportChunk"

// Store keeps chunk vectors in a Weaviate instance. It mirrors the
// in-memory index contract so the retriever can run against either, with
// one caveat: replacing an article's chunks is delete-then-insert, not a
// single atomic swap, so a concurrent query may briefly see neither set.
type Store struct {
	client *weaviate.Client
	dims   int
}

func NewStore(client *weaviate.Client, dims int) *Store {
	return &Store{
		client: client,
		dims:   dims,
	}
}

func (s *Store) Dims() int {
	return s.dims
}

// EnsureSchema creates the chunk class if it is missing. Vectorizer is
// "none" because embeddings are generated by the pipeline, not Weaviate.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema: %v", err)
	}
	for _, class := range schema.Classes {
		if class.Class == ClassName {
			return nil
		}
	}

	class := &models.Class{
		Class:      ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "chunkId", DataType: []string{"text"}},
			{Name: "articleId", DataType: []string{"text"}},
			{Name: "ordinal", DataType: []string{"int"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "url", DataType: []string{"text"}},
			{Name: "chunkText", DataType: []string{"text"}},
			{Name: "articleUpdatedAt", DataType: []string{"date"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %v", ClassName, err)
	}
	return nil
}

// UpsertArticle replaces all stored chunks for an article with the given
// entries. Every entry must belong to articleID and carry a vector of the
// configured dimensionality.
func (s *Store) UpsertArticle(ctx context.Context, articleID int64, entries []vectorindex.Entry) error {
	for _, e := range entries {
		if e.ArticleID != articleID {
			return fmt.Errorf("entry for chunk %d belongs to article %d, not %d", e.ChunkID, e.ArticleID, articleID)
		}
		if len(e.Vector) != s.dims {
			return fmt.Errorf("entry for chunk %d has %d dimensions, want %d", e.ChunkID, len(e.Vector), s.dims)
		}
	}

	if err := s.deleteByArticle(ctx, articleID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	objs := make([]*models.Object, len(entries))
	for i, e := range entries {
		objs[i] = &models.Object{
			Class:  ClassName,
			Vector: e.Vector,
			Properties: map[string]interface{}{
				"chunkId":          strconv.FormatInt(e.ChunkID, 10),
				"articleId":        strconv.FormatInt(e.ArticleID, 10),
				"ordinal":          e.Ordinal,
				"title":            e.Title,
				"url":              e.URL,
				"chunkText":        e.Text,
				"articleUpdatedAt": e.ArticleUpdatedAt.Format(time.RFC3339),
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add chunks: %v", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch operation returned no results")
	}
	return nil
}

// DeleteArticle removes all stored chunks for an article.
func (s *Store) DeleteArticle(ctx context.Context, articleID int64) error {
	return s.deleteByArticle(ctx, articleID)
}

func (s *Store) deleteByArticle(ctx context.Context, articleID int64) error {
	where := filters.Where().
		WithPath([]string{"articleId"}).
		WithOperator(filters.Equal).
		WithValueText(strconv.FormatInt(articleID, 10))

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for article %d: %v", articleID, err)
	}
	return nil
}

// Query runs a near-vector search and returns the k nearest chunks by
// cosine similarity, best first.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorindex.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d", len(vector), s.dims)
	}

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "articleId"},
		{Name: "ordinal"},
		{Name: "title"},
		{Name: "url"},
		{Name: "chunkText"},
		{Name: "articleUpdatedAt"},
		{Name: "_additional { certainty }"},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}

	var results []vectorindex.Result
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return results, nil
	}
	objects, ok := data[ClassName].([]interface{})
	if !ok {
		return results, nil
	}

	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		match := vectorindex.Result{
			Title: asString(objMap["title"]),
			URL:   asString(objMap["url"]),
			Text:  asString(objMap["chunkText"]),
		}
		match.ChunkID, _ = strconv.ParseInt(asString(objMap["chunkId"]), 10, 64)
		match.ArticleID, _ = strconv.ParseInt(asString(objMap["articleId"]), 10, 64)
		if ord, ok := objMap["ordinal"].(float64); ok {
			match.Ordinal = int(ord)
		}

		if additional, ok := objMap["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				// Weaviate reports certainty in [0, 1]; cosine is 2c-1.
				match.Score = 2*certainty - 1
			}
		}

		results = append(results, match)
	}

	return results, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
