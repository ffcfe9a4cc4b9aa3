// Package embedding turns schema documents and lookup phrases into vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"go.uber.org/zap"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// New builds the provider named by cfg.Provider: "api" (OpenAI-compatible
// /embeddings), "local" (Ollama /api/embed) or "hash" (in-process).
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	logger.Info("embedding provider", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
	switch cfg.Provider {
	case "api":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: api provider requires an endpoint")
		}
		return NewAPIProvider(cfg, nil), nil
	case "local":
		if cfg.Endpoint == "" {
			cfg.Endpoint = "http://localhost:11434"
		}
		return NewLocalProvider(cfg, nil), nil
	case "hash", "":
		return NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

var defaultClient = &http.Client{Timeout: 60 * time.Second}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding: %s returned status %d: %s", url, resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}
