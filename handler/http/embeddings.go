package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type embeddingRequest struct {
	Text string `json:"text" binding:"required"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// CreateEmbedding handles POST /api/v1/embeddings
func (h *Handler) CreateEmbedding(c *gin.Context) {
	var req embeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	vector, err := h.embedder.EmbedQuery(c.Request.Context(), req.Text)
	if err != nil {
		sendError(c, http.StatusBadGateway, err)
		return
	}

	sendJSON(c, http.StatusOK, embeddingResponse{
		Embedding: vector,
		Model:     h.model,
	})
}
