package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoProvider is returned when no provider is registered for a request.
var ErrNoProvider = errors.New("no provider available")

// Provider is one chat-completion backend.
type Provider interface {
	ID() string
	Name() string
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	HealthCheck(ctx context.Context) error
}

// ChatRequest is the backend-neutral request. Empty sampling fields take
// the provider's configured values.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	Stop        []string
}

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a single user turn.
func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// ChatResponse is the first candidate returned by a backend.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is a non-2xx reply from a backend.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether another attempt, possibly on another backend,
// may succeed.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// resolved fills request fields the caller left empty from cfg values.
func (r *ChatRequest) resolved(model string, temperature *float64, maxTokens int) ChatRequest {
	out := *r
	if out.Model == "" {
		out.Model = model
	}
	if out.Temperature == nil {
		out.Temperature = temperature
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = maxTokens
	}
	return out
}
