package chunkctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Chunk is one fragment of an article's content together with its stored
// embedding. Ordinal is unique within an article and defines display order.
// ContentHash detects whether the text at this position changed since the
// last ingestion; an unchanged hash means the stored vector can be reused.
type Chunk struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ArticleID   int64     `gorm:"not null;uniqueIndex:idx_article_ordinal" json:"article_id"`
	Ordinal     int       `gorm:"not null;uniqueIndex:idx_article_ordinal" json:"ordinal"`
	Text        string    `gorm:"not null" json:"text"`
	ContentHash string    `gorm:"not null;column:content_hash" json:"content_hash"`
	Embedding   string    `gorm:"not null" json:"-"` // JSON-encoded []float32
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Vector decodes the stored embedding.
func (c *Chunk) Vector() ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(c.Embedding), &vector); err != nil {
		return nil, fmt.Errorf("failed to decode embedding for chunk %d: %v", c.ID, err)
	}
	return vector, nil
}

// ChunkService persists chunk rows and their embeddings.
type ChunkService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewChunkService(db *gorm.DB) (*ChunkService, error) {
	node, err := snowflake.NewNode(2) // Node number 2 for chunks
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ChunkService{
		db:        db,
		snowflake: node,
	}, nil
}

// NewChunk builds an unsaved chunk row with a fresh ID and encoded vector.
func (s *ChunkService) NewChunk(articleID int64, ordinal int, text, contentHash string, vector []float32) (*Chunk, error) {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %v", err)
	}

	return &Chunk{
		ID:          s.snowflake.Generate().Int64(),
		ArticleID:   articleID,
		Ordinal:     ordinal,
		Text:        text,
		ContentHash: contentHash,
		Embedding:   string(encoded),
	}, nil
}

// ReplaceForArticle swaps all chunk rows of an article for the given set in
// a single transaction, so the table never holds a partially replaced set.
func (s *ChunkService) ReplaceForArticle(ctx context.Context, articleID int64, chunks []*Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", articleID).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete old chunks: %v", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.Create(chunks).Error; err != nil {
			return fmt.Errorf("failed to create chunks: %v", err)
		}
		return nil
	})
}

// GetByArticleID returns an article's chunks in ordinal order.
func (s *ChunkService) GetByArticleID(ctx context.Context, articleID int64) ([]Chunk, error) {
	var chunks []Chunk
	result := s.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("ordinal ASC").
		Find(&chunks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get chunks: %v", result.Error)
	}
	return chunks, nil
}

// ListAll returns every stored chunk, used to rebuild the vector index at
// startup.
func (s *ChunkService) ListAll(ctx context.Context) ([]Chunk, error) {
	var chunks []Chunk
	result := s.db.WithContext(ctx).Order("article_id ASC, ordinal ASC").Find(&chunks)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list chunks: %v", result.Error)
	}
	return chunks, nil
}

// DeleteByArticleID removes all chunk rows of an article.
func (s *ChunkService) DeleteByArticleID(ctx context.Context, articleID int64) error {
	result := s.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&Chunk{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete chunks: %v", result.Error)
	}
	return nil
}
