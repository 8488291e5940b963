package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type createArticleRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// ListArticles handles GET /api/v1/articles
func (h *Handler) ListArticles(c *gin.Context) {
	articles, err := h.articles.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{"items": articles})
}

// CreateArticle handles POST /api/v1/articles. The article is stored
// immediately; chunking and embedding run as a background job, so the
// response carries the job to poll.
func (h *Handler) CreateArticle(c *gin.Context) {
	var req createArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	article, err := h.articles.Create(c.Request.Context(), req.Title, req.Content, req.URL, req.Category)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	queued, err := h.jobs.EnqueueIngest(c.Request.Context(), article.ID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusCreated, gin.H{
		"article": article,
		"job":     queued,
	})
}

// DeleteArticle handles DELETE /api/v1/articles/:id
func (h *Handler) DeleteArticle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	article, err := h.articles.GetByID(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if article == nil {
		sendError(c, http.StatusNotFound, errNotFound)
		return
	}

	queued, err := h.jobs.EnqueueRemove(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, gin.H{"job": queued})
}

// ListJobs handles GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	jobs, err := h.jobs.ListRecentJobs(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, gin.H{"items": jobs})
}

// GetJob handles GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	queued, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if queued == nil {
		sendError(c, http.StatusNotFound, errNotFound)
		return
	}

	sendJSON(c, http.StatusOK, queued)
}
