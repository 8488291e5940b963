package articlectrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Article is a scraped source document. Articles removed from the source
// site are soft-deleted so chunk references never dangle mid-update.
type Article struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Content   string         `gorm:"not null" json:"content"`
	URL       string         `gorm:"uniqueIndex;not null" json:"url"`
	Category  string         `json:"category"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ArticleService is the durable store of scraped articles.
type ArticleService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewArticleService(db *gorm.DB) (*ArticleService, error) {
	node, err := snowflake.NewNode(1) // Node number 1 for articles
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ArticleService{
		db:        db,
		snowflake: node,
	}, nil
}

// InternalURLPrefix marks articles created through the API rather than
// scraped from the help center. They have no source page, so scrape
// synchronization must never treat them as vanished.
const InternalURLPrefix = "urn:supportkb:article:"

// Create stores a new article. URL uniqueness is enforced by the schema;
// an ad-hoc article without a source URL gets a stable internal one derived
// from its ID.
func (s *ArticleService) Create(ctx context.Context, title, content, url, category string) (*Article, error) {
	id := s.snowflake.Generate().Int64()
	if url == "" {
		url = fmt.Sprintf("%s%d", InternalURLPrefix, id)
	}

	article := &Article{
		ID:       id,
		Title:    title,
		Content:  content,
		URL:      url,
		Category: category,
	}

	result := s.db.WithContext(ctx).Create(article)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create article: %v", result.Error)
	}

	return article, nil
}

// UpsertByURL creates the article or updates the existing row with the same
// URL. The second return value reports whether the stored content changed,
// which is what decides if the article needs re-ingestion.
func (s *ArticleService) UpsertByURL(ctx context.Context, title, content, url, category string) (*Article, bool, error) {
	existing, err := s.GetByURL(ctx, url)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		article, err := s.Create(ctx, title, content, url, category)
		if err != nil {
			return nil, false, err
		}
		return article, true, nil
	}

	changed := existing.Content != content || existing.Title != title
	existing.Title = title
	existing.Content = content
	existing.Category = category

	result := s.db.WithContext(ctx).Save(existing)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to update article: %v", result.Error)
	}

	return existing, changed, nil
}

func (s *ArticleService) GetByID(ctx context.Context, id int64) (*Article, error) {
	var article Article
	result := s.db.WithContext(ctx).First(&article, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get article: %v", result.Error)
	}
	return &article, nil
}

func (s *ArticleService) GetByURL(ctx context.Context, url string) (*Article, error) {
	var article Article
	result := s.db.WithContext(ctx).Where("url = ?", url).First(&article)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get article by url: %v", result.Error)
	}
	return &article, nil
}

// List returns all live articles, newest first.
func (s *ArticleService) List(ctx context.Context) ([]Article, error) {
	var articles []Article
	result := s.db.WithContext(ctx).Order("updated_at DESC").Find(&articles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list articles: %v", result.Error)
	}
	return articles, nil
}

// ListURLs returns the URLs of all live articles, used to detect articles
// that disappeared from the source site.
func (s *ArticleService) ListURLs(ctx context.Context) (map[string]int64, error) {
	var articles []Article
	result := s.db.WithContext(ctx).Select("id", "url").Find(&articles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list article urls: %v", result.Error)
	}

	urls := make(map[string]int64, len(articles))
	for _, a := range articles {
		urls[a.URL] = a.ID
	}
	return urls, nil
}

// SoftDelete marks an article as removed without dropping the row.
func (s *ArticleService) SoftDelete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&Article{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete article: %v", result.Error)
	}
	return nil
}

// Touch refreshes an article's updated_at, used after re-indexing so query
// tie-breaking reflects ingestion recency.
func (s *ArticleService) Touch(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Model(&Article{}).Where("id = ?", id).
		Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return fmt.Errorf("failed to touch article: %v", result.Error)
	}
	return nil
}
