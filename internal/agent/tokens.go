package agent

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const truncatedSuffix = "\n... (observation truncated)"

// TokenCounter measures and trims observation text by token count.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, limit int) string
}

// tiktokenCounter uses the cl100k_base encoding. When the encoding cannot be
// loaded it falls back to four bytes per token.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
	mu  sync.Mutex
}

var (
	defaultCounter     *tiktokenCounter
	defaultCounterOnce sync.Once
)

// DefaultTokenCounter returns the process-wide counter.
func DefaultTokenCounter() TokenCounter {
	defaultCounterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			defaultCounter = &tiktokenCounter{}
			return
		}
		defaultCounter = &tiktokenCounter{enc: enc}
	})
	return defaultCounter
}

func (c *tiktokenCounter) Count(text string) int {
	if c.enc == nil {
		return ApproxTokenCounter{}.Count(text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

func (c *tiktokenCounter) Truncate(text string, limit int) string {
	if c.enc == nil {
		return ApproxTokenCounter{}.Truncate(text, limit)
	}
	if limit <= 0 {
		return text
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return c.enc.Decode(tokens[:limit]) + truncatedSuffix
}

// ApproxTokenCounter counts four bytes as one token.
type ApproxTokenCounter struct{}

func (ApproxTokenCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

func (a ApproxTokenCounter) Truncate(text string, limit int) string {
	if limit <= 0 || a.Count(text) <= limit {
		return text
	}
	cut := limit * 4
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncatedSuffix
}
