package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	geminiEndpoint     = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "models/gemini-2.0-flash"

	geminiDefaultTemperature = 0.9
)

// GeminiProvider calls the Generative Language generateContent API.
type GeminiProvider struct {
	config config.ProviderConfig
	client *resty.Client
	logger *zap.Logger
}

// NewGeminiProvider creates a Gemini provider. Unset sampling parameters
// default to temperature 0.9 and 8192 output tokens.
func NewGeminiProvider(cfg config.ProviderConfig, logger *zap.Logger) *GeminiProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = geminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Temperature == nil {
		t := geminiDefaultTemperature
		cfg.Temperature = &t
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(120*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json")

	return &GeminiProvider{config: cfg, client: client, logger: logger}
}

func (p *GeminiProvider) ID() string   { return p.config.ID }
func (p *GeminiProvider) Name() string { return p.config.Name }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Chat sends a generateContent request.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	full := req.resolved(p.config.Model, p.config.Temperature, p.config.MaxTokens)

	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     full.Temperature,
			MaxOutputTokens: full.MaxTokens,
			StopSequences:   full.Stop,
		},
	}
	for _, m := range full.Messages {
		switch m.Role {
		case "system":
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case "assistant":
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	var result geminiResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.config.APIKey).
		SetBody(body).
		SetResult(&result).
		Post("/" + modelPath(full.Model) + ":generateContent")
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Provider: p.config.ID, Status: resp.StatusCode(), Body: resp.String()}
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from provider")
	}

	cand := result.Candidates[0]
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	model := result.ModelVersion
	if model == "" {
		model = full.Model
	}
	return &ChatResponse{
		Model:        model,
		Content:      text.String(),
		FinishReason: cand.FinishReason,
		Usage: Usage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// HealthCheck fetches the configured model's metadata.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.config.APIKey).
		Get("/" + modelPath(p.config.Model))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{Provider: p.config.ID, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// modelPath accepts both "gemini-2.0-flash" and "models/gemini-2.0-flash".
func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
