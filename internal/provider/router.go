package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Roles a caller can bind to a provider.
const (
	RolePlanner = "planner"
	RoleSQL     = "sql"
)

// Router holds the registered providers and picks one per role: the bound
// provider (or the default), then the role's fallbacks in order.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	bindings  map[string]string   // role -> providerID
	fallbacks map[string][]string // role -> fallback chain
	primary   string              // default provider ID
	logger    *zap.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider. The first one registered becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.primary == "" {
		r.primary = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault changes the provider used by unbound roles.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary = providerID
}

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// Bind routes role to providerID.
func (r *Router) Bind(role, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[role] = providerID
}

// SetFallbacks sets the providers tried, in order, after role's primary fails.
func (r *Router) SetFallbacks(role string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[role] = append([]string(nil), providerIDs...)
}

// chain returns the providers to try for role, primary first, without
// duplicates or unknown IDs.
func (r *Router) chain(role string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	first := r.primary
	if id, ok := r.bindings[role]; ok {
		first = id
	}
	seen := make(map[string]bool)
	var out []Provider
	for _, id := range append([]string{first}, r.fallbacks[role]...) {
		p, ok := r.providers[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
	}
	return out
}

// Route sends req through role's chain and returns the first success.
// Cancellation stops the chain immediately.
func (r *Router) Route(ctx context.Context, role string, req *ChatRequest) (*ChatResponse, error) {
	resp, _, err := r.route(ctx, role, req)
	return resp, err
}

// route is Route that also reports the provider that served the request,
// or the last one tried when every provider failed.
func (r *Router) route(ctx context.Context, role string, req *ChatRequest) (*ChatResponse, Provider, error) {
	chain := r.chain(role)
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("route %s: %w", role, ErrNoProvider)
	}

	var lastErr error
	for i, p := range chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				r.logger.Info("served by fallback provider", zap.String("role", role), zap.String("provider", p.ID()))
			}
			return resp, p, nil
		}
		lastErr = fmt.Errorf("provider %s: %w", p.ID(), err)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, p, lastErr
		}

		fields := []zap.Field{zap.String("role", role), zap.String("provider", p.ID()), zap.Error(err)}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.Int("status", apiErr.Status), zap.Bool("retryable", apiErr.Retryable()))
		}
		r.logger.Warn("provider failed", fields...)
	}
	last := chain[len(chain)-1]
	if len(chain) == 1 {
		return nil, last, lastErr
	}
	return nil, last, fmt.Errorf("all providers failed for %s: %w", role, lastErr)
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers sorted by ID.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// HealthCheck probes every provider concurrently and returns the failures
// keyed by provider ID.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	providers := r.ListProviders()
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]error)
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			if err := p.HealthCheck(ctx); err != nil {
				mu.Lock()
				failures[p.ID()] = err
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return failures
}
