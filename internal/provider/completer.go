package provider

import (
	"context"
	"strings"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/metrics"
	"go.uber.org/zap"
)

// Completer turns a prompt into text, cutting generation at the first stop
// sequence.
type Completer interface {
	Complete(ctx context.Context, prompt string, stop []string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, stop []string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, stop []string) (string, error) {
	return f(ctx, prompt, stop)
}

// RouterCompleter sends prompts as a single user message through a Router
// under a fixed role.
type RouterCompleter struct {
	router *Router
	role   string
	logger *zap.Logger
}

// NewCompleter returns a Completer for role.
func NewCompleter(router *Router, role string, logger *zap.Logger) *RouterCompleter {
	return &RouterCompleter{router: router, role: role, logger: logger}
}

func (c *RouterCompleter) Complete(ctx context.Context, prompt string, stop []string) (string, error) {
	start := time.Now()
	resp, served, err := c.router.route(ctx, c.role, &ChatRequest{
		Messages: []Message{UserMessage(prompt)},
		Stop:     stop,
	})
	label := "none"
	if served != nil {
		label = served.ID()
	}
	metrics.LLMDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues(label, "error").Inc()
		return "", err
	}
	metrics.LLMRequests.WithLabelValues(label, "ok").Inc()
	c.logger.Debug("completion",
		zap.String("role", c.role),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return TruncateAtStop(resp.Content, stop), nil
}

// TruncateAtStop cuts text at the earliest occurrence of any stop sequence.
// Backends that ignore stop sequences still yield the same text as those
// that honour them.
func TruncateAtStop(text string, stop []string) string {
	cut := len(text)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
