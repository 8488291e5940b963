package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"supportkb/src/core/retrieval"
	"supportkb/src/log"
)

const defaultTopK = 5

type searchRequest struct {
	Query       string `json:"query" binding:"required"`
	TopK        int    `json:"top_k"`
	TokenBudget int    `json:"token_budget"`
}

type searchResponse struct {
	Results []retrieval.ContextChunk `json:"results"`
}

// Search handles POST /api/v1/search. A retrieval failure degrades to an
// empty context instead of an error: the chatbot answers without grounding
// rather than not answering at all.
func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	results, err := h.retriever.Retrieve(c.Request.Context(), req.Query, req.TopK, req.TokenBudget)
	if err != nil {
		log.Error(err, "retrieval failed, returning empty context", "query", req.Query)
		sendJSON(c, http.StatusOK, searchResponse{Results: []retrieval.ContextChunk{}})
		return
	}

	sendJSON(c, http.StatusOK, searchResponse{Results: results})
}
