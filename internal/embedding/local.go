package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
)

// LocalProvider implements Provider against a local Ollama server.
type LocalProvider struct {
	endpoint  string
	model     string
	dimension int
	client    *http.Client

	observed atomic.Int64
}

func NewLocalProvider(cfg config.EmbeddingConfig, client *http.Client) *LocalProvider {
	if client == nil {
		client = defaultClient
	}
	return &LocalProvider{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    client,
	}
}

type localRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type localResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed posts the batch to /api/embed.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result localResponse
	if err := postJSON(ctx, p.client, p.endpoint+"/api/embed", "", localRequest{Model: p.model, Input: texts}, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	if n := len(result.Embeddings[0]); n > 0 {
		p.observed.CompareAndSwap(0, int64(n))
	}
	return result.Embeddings, nil
}

func (p *LocalProvider) Dimension() int {
	if n := p.observed.Load(); n > 0 {
		return int(n)
	}
	return p.dimension
}
