package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"go.uber.org/zap"
)

// openAIMaxStop is the most stop sequences the chat completions API accepts.
const openAIMaxStop = 4

// OpenAIProvider talks to OpenAI-compatible chat completion servers.
// Pointing Endpoint at llama.cpp's server or Ollama's /v1 makes it the
// locally hosted backend.
type OpenAIProvider struct {
	config config.ProviderConfig
	http   *jsonTransport
	logger *zap.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *zap.Logger) *OpenAIProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	var auth string
	if cfg.APIKey != "" {
		auth = "Bearer " + cfg.APIKey
	}
	return &OpenAIProvider{
		config: cfg,
		http:   newJSONTransport(cfg.ID, map[string]string{"Authorization": auth}),
		logger: logger,
	}
}

func (p *OpenAIProvider) ID() string   { return p.config.ID }
func (p *OpenAIProvider) Name() string { return p.config.Name }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// chatURL inserts the model into the path when Extra["path_model"] is
// "true", as some gateways route by path.
func (p *OpenAIProvider) chatURL(model string) string {
	if p.config.Extra["path_model"] == "true" && model != "" {
		return p.config.Endpoint + "/" + model + "/chat/completions"
	}
	return p.config.Endpoint + "/chat/completions"
}

// Chat sends a non-streaming chat completion. Stop sequences past the
// API limit are dropped; callers truncate locally as well.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	full := req.resolved(p.config.Model, p.config.Temperature, p.config.MaxTokens)
	body := openAIRequest{
		Model:       full.Model,
		Messages:    full.Messages,
		Temperature: full.Temperature,
		MaxTokens:   full.MaxTokens,
		Stop:        full.Stop,
	}
	if len(body.Stop) > openAIMaxStop {
		body.Stop = body.Stop[:openAIMaxStop]
	}

	var out openAIResponse
	if err := p.http.do(ctx, http.MethodPost, p.chatURL(full.Model), body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("empty response from provider")
	}

	choice := out.Choices[0]
	p.logger.Debug("openai chat",
		zap.String("model", out.Model),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens))
	return &ChatResponse{
		ID:           out.ID,
		Model:        out.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
	}, nil
}

// HealthCheck lists models to verify the endpoint is reachable.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	return p.http.do(ctx, http.MethodGet, p.config.Endpoint+"/models", nil, nil)
}
