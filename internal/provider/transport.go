package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 120 * time.Second
	maxErrorBody   = 2048
)

// jsonTransport posts JSON bodies and decodes JSON replies for the HTTP
// backends that are not built on resty.
type jsonTransport struct {
	provider string
	client   *http.Client
	headers  map[string]string
}

func newJSONTransport(provider string, headers map[string]string) *jsonTransport {
	return &jsonTransport{
		provider: provider,
		client:   &http.Client{Timeout: defaultTimeout},
		headers:  headers,
	}
}

// do sends in (when non-nil) to url and decodes the reply into out (when
// non-nil). Non-2xx replies become *APIError.
func (t *jsonTransport) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Provider: t.provider, Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
