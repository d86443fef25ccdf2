// Package similarity scores semantic closeness between a query and a list
// of candidate texts. The shipped scorer derives scores from embeddings:
// cosine similarity in the shared vector space, rescaled to [0,1].
package similarity

import (
	"context"
	"fmt"
	"math"

	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/engine/index"
)

// EmbedScorer computes similarity from embedding geometry. It reuses the
// same embedding collaborator as the document index, so no extra model is
// needed.
type EmbedScorer struct {
	emb index.Embedder
}

// NewEmbedScorer creates a scorer backed by emb.
func NewEmbedScorer(emb index.Embedder) *EmbedScorer {
	return &EmbedScorer{emb: emb}
}

// Score embeds query and candidates in one batch and returns one score per
// candidate: (cosine+1)/2, clamped to [0,1]. Any embedding failure wraps
// domain.ErrSimilarityUnavailable; callers are expected to treat that as a
// cache miss rather than surfacing it.
func (s *EmbedScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := append([]string{query}, candidates...)
	vecs, err := s.emb.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSimilarityUnavailable, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrSimilarityUnavailable, len(vecs), len(texts))
	}

	qv := vecs[0]
	scores := make([]float64, len(candidates))
	for i, cv := range vecs[1:] {
		scores[i] = clamp01((cosine(qv, cv) + 1) / 2)
	}
	return scores, nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
