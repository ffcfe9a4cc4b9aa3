package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider embeds text in-process by hashing word features into a
// fixed number of buckets. An identifier such as "transactions.final_price"
// contributes itself, its dotted segments and their underscore parts.
type HashProvider struct {
	dimension int
}

func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

func (p *HashProvider) Dimension() int { return p.dimension }

func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.dimension)
	for _, f := range features(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum64()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		v[(sum>>1)%uint64(p.dimension)] += sign
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func features(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.'
	})
	var out []string
	for _, tok := range tokens {
		tok = strings.Trim(tok, "._")
		if tok == "" {
			continue
		}
		out = append(out, tok)
		segments := strings.Split(tok, ".")
		for _, seg := range segments {
			if seg == "" {
				continue
			}
			if len(segments) > 1 {
				out = append(out, seg)
			}
			if parts := strings.Split(seg, "_"); len(parts) > 1 {
				for _, p := range parts {
					if p != "" {
						out = append(out, p)
					}
				}
			}
		}
	}
	return out
}
