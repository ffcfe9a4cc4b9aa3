// Package retriever answers schema lookups: it embeds catalog documents into
// a vector store and selects diverse, relevant documents for a phrase.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/embedding"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/schema"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/vectorstore"
	"go.uber.org/zap"
)

const (
	payloadContent = "content"
	payloadDocID   = "doc_id"
	embedBatch     = 64
)

// Options tunes selection. Zero values fall back to k=3, fetch_k=20, lambda=0.5.
type Options struct {
	K      int
	FetchK int
	Lambda float64
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = 3
	}
	if o.FetchK <= 0 {
		o.FetchK = 20
	}
	if o.FetchK < o.K {
		o.FetchK = o.K
	}
	if o.Lambda <= 0 || o.Lambda > 1 {
		o.Lambda = 0.5
	}
	return o
}

// Retriever couples an embedder and a vector store.
type Retriever struct {
	embedder embedding.Provider
	store    vectorstore.Store
	opts     Options
	logger   *zap.Logger
}

func New(embedder embedding.Provider, store vectorstore.Store, opts Options, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// K returns the default result count.
func (r *Retriever) K() int { return r.opts.K }

// Index embeds and upserts docs. Re-indexing the same document IDs
// overwrites the earlier points.
func (r *Retriever) Index(ctx context.Context, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	start := time.Now()
	ensured := false
	for lo := 0; lo < len(docs); lo += embedBatch {
		hi := min(lo+embedBatch, len(docs))
		batch := docs[lo:hi]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vecs, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed schema documents: %w", err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed schema documents: got %d vectors for %d documents", len(vecs), len(batch))
		}
		if !ensured {
			if err := r.store.EnsureCollection(ctx, uint64(len(vecs[0]))); err != nil {
				return err
			}
			ensured = true
		}

		points := make([]vectorstore.Point, len(batch))
		for i, d := range batch {
			payload := make(map[string]string, len(d.Metadata)+2)
			for k, v := range d.Metadata {
				payload[k] = v
			}
			payload[payloadContent] = d.Content
			payload[payloadDocID] = d.ID
			points[i] = vectorstore.Point{ID: vectorstore.PointID(d.ID), Vector: vecs[i], Payload: payload}
		}
		if err := r.store.Upsert(ctx, points); err != nil {
			return fmt.Errorf("store schema documents: %w", err)
		}
	}
	r.logger.Info("schema documents indexed", zap.Int("documents", len(docs)), zap.Duration("took", time.Since(start)))
	return nil
}

// IndexIfEmpty indexes docs only when the store holds no points.
func (r *Retriever) IndexIfEmpty(ctx context.Context, docs []schema.Document) error {
	n, err := r.store.Count(ctx)
	if err != nil {
		// a missing collection reports as an error; indexing creates it
		r.logger.Debug("vector store count failed", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("schema index already populated", zap.Uint64("points", n))
		return nil
	}
	return r.Index(ctx, docs)
}

// Search returns up to k documents for query, fetching FetchK candidates
// and re-ranking them with maximal marginal relevance.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]schema.Document, error) {
	if k <= 0 {
		k = r.opts.K
	}
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	fetch := max(r.opts.FetchK, k)
	hits, err := r.store.Search(ctx, vecs[0], uint64(fetch))
	if err != nil {
		return nil, err
	}

	candidates := make([][]float32, len(hits))
	for i, h := range hits {
		candidates[i] = h.Vector
	}
	picked := MMR(vecs[0], candidates, k, r.opts.Lambda)

	docs := make([]schema.Document, 0, len(picked))
	for _, i := range picked {
		docs = append(docs, toDocument(hits[i]))
	}
	r.logger.Debug("schema lookup", zap.String("query", query), zap.Int("candidates", len(hits)), zap.Int("selected", len(docs)))
	return docs, nil
}

func toDocument(h *vectorstore.SearchResult) schema.Document {
	meta := make(map[string]string, len(h.Payload))
	for k, v := range h.Payload {
		if k == payloadContent || k == payloadDocID {
			continue
		}
		meta[k] = v
	}
	id := h.Payload[payloadDocID]
	if id == "" {
		id = h.ID
	}
	return schema.Document{ID: id, Content: h.Payload[payloadContent], Metadata: meta}
}

// Format renders documents one per line with their metadata in key order.
func Format(docs []schema.Document) string {
	if len(docs) == 0 {
		return "No matching schema definitions found."
	}
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(d.Content)
		if len(d.Metadata) == 0 {
			continue
		}
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for j, k := range keys {
			fields[j] = k + "=" + d.Metadata[k]
		}
		b.WriteString(" {" + strings.Join(fields, ", ") + "}")
	}
	return b.String()
}
