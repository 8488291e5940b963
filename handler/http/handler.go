package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"supportkb/src/core/retrieval"
	"supportkb/src/infrastructure/job"
	"supportkb/src/storage/postgres/articlectrl"
)

// Embedder serves ad-hoc embedding requests.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever assembles chat context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k, tokenBudget int) ([]retrieval.ContextChunk, error)
}

// ArticleService exposes the stored articles.
type ArticleService interface {
	List(ctx context.Context) ([]articlectrl.Article, error)
	Create(ctx context.Context, title, content, url, category string) (*articlectrl.Article, error)
	GetByID(ctx context.Context, id int64) (*articlectrl.Article, error)
}

// JobService enqueues background ingestion work.
type JobService interface {
	EnqueueIngest(ctx context.Context, articleID int64) (*job.Job, error)
	EnqueueRemove(ctx context.Context, articleID int64) (*job.Job, error)
	GetJob(ctx context.Context, id int) (*job.Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]job.Job, error)
}

type Handler struct {
	embedder  Embedder
	retriever Retriever
	articles  ArticleService
	jobs      JobService
	model     string
}

func NewHandler(embedder Embedder, retriever Retriever, articles ArticleService, jobs JobService, model string) *Handler {
	return &Handler{
		embedder:  embedder,
		retriever: retriever,
		articles:  articles,
		jobs:      jobs,
		model:     model,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	v1.POST("/embeddings", h.CreateEmbedding)

	v1.GET("/articles", h.ListArticles)
	v1.POST("/articles", h.CreateArticle)
	v1.DELETE("/articles/:id", h.DeleteArticle)

	v1.POST("/search", h.Search)

	v1.GET("/jobs", h.ListJobs)
	v1.GET("/jobs/:id", h.GetJob)

	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var errNotFound = errors.New("not found")

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch status {
	case http.StatusBadRequest:
		code = "INVALID_REQUEST"
	case http.StatusNotFound:
		code = "NOT_FOUND"
	case http.StatusBadGateway:
		code = "PROVIDER_UNAVAILABLE"
	default:
		code = "INTERNAL_ERROR"
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// CheckHealth handles GET /api/v1/health
func (h *Handler) CheckHealth(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
