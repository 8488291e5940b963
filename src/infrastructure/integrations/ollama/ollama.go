package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultURL is the local Ollama daemon; the api client appends the
	// endpoint paths itself.
	DefaultURL = "http://localhost:11434"

	// DefaultModel matches the model the support corpus was originally
	// embedded with. Changing it invalidates every stored vector.
	DefaultModel = "mistral"
)

// Client generates embeddings through a running Ollama instance.
type Client struct {
	api   *api.Client
	model string
}

// NewClient creates an embedding client for the given base URL and model.
// An empty baseURL falls back to DefaultURL, an empty model to DefaultModel.
func NewClient(baseURL, model string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama url %q: %w", baseURL, err)
	}

	return &Client{
		api:   api.NewClient(u, httpClient),
		model: model,
	}, nil
}

// Model returns the embedding model in use.
func (c *Client) Model() string {
	return c.model
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  c.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	vector := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}
