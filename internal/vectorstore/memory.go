package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore keeps points in process and ranks them by cosine similarity.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	points    map[string]Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]Point)}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, dimension uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = int(dimension)
	}
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if s.dimension == 0 {
			s.dimension = len(p.Vector)
		}
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(p.Vector), s.dimension)
		}
		if _, ok := s.points[p.ID]; !ok {
			s.order = append(s.order, p.ID)
		}
		s.points[p.ID] = p
	}
	return nil
}

// Search ranks every point; ties keep insertion order.
func (s *MemoryStore) Search(_ context.Context, vector []float32, limit uint64) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(vector), s.dimension)
	}

	results := make([]*SearchResult, 0, len(s.order))
	for _, id := range s.order {
		p := s.points[id]
		results = append(results, &SearchResult{
			ID:      p.ID,
			Score:   Cosine(vector, p.Vector),
			Vector:  p.Vector,
			Payload: p.Payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if uint64(len(results)) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.points)), nil
}

func (s *MemoryStore) Close() error { return nil }

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
