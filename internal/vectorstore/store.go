// Package vectorstore persists schema document vectors and answers
// nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Point is one stored vector with its string payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// SearchResult holds a single vector search hit. Vector is populated so
// callers can re-rank hits against each other.
type SearchResult struct {
	ID      string
	Score   float32
	Vector  []float32
	Payload map[string]string
}

// Store is a single collection of points.
type Store interface {
	EnsureCollection(ctx context.Context, dimension uint64) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit uint64) ([]*SearchResult, error)
	Count(ctx context.Context) (uint64, error)
	Close() error
}

// New opens the configured store.
func New(cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "qdrant":
		c, err := NewClient(cfg.Host, cfg.Port, cfg.Collection, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.Type)
	}
}

// PointID maps a document ID to a stable UUID so re-indexing overwrites
// existing points instead of duplicating them.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("sqlagent:"+docID)).String()
}
