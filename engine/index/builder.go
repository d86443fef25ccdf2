package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/pkg/fn"
	"github.com/google/uuid"
)

// Embedder turns a batch of texts into one fixed-dimension vector each.
// The same instance must embed both document chunks and queries so the
// vector spaces match.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures snapshot building.
type Options struct {
	// ChunkSize is the chunk length in words. Splits happen purely on
	// whitespace boundaries, so a chunk may cut mid-sentence.
	ChunkSize int
	// BatchSize is the max chunks per embedding request.
	BatchSize int
	// Workers bounds concurrent embedding requests.
	Workers int
}

// DefaultOptions matches the retrieval granularity the answer prompt was
// tuned for.
func DefaultOptions() Options {
	return Options{ChunkSize: 500, BatchSize: 32, Workers: 4}
}

// Build chunks text, embeds every chunk, and assembles a Snapshot.
// Whitespace-only input fails with domain.ErrEmptyDocument rather than
// producing a zero-chunk snapshot. Given the same text and embedder the
// result is deterministic apart from the snapshot id.
func Build(ctx context.Context, text string, emb Embedder, opts Options) (*Snapshot, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}

	chunks := SplitWords(text, opts.ChunkSize)
	if len(chunks) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	batches := fn.Batch(chunks, opts.BatchSize)
	results := fn.ParMapResult(batches, opts.Workers, func(batch []string) fn.Result[[][]float32] {
		return fn.FromPair(emb.EmbedBatch(ctx, batch))
	})
	collected, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("index: embed chunks: %w", err)
	}

	embeddings := make([][]float32, 0, len(chunks))
	for _, batch := range collected {
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("index: embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	dim := len(embeddings[0])
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("index: embedding %d has dim %d, want %d", i, len(e), dim)
		}
	}

	return &Snapshot{
		id:         uuid.NewString(),
		chunks:     chunks,
		embeddings: embeddings,
		dim:        dim,
	}, nil
}

// SplitWords splits text into fixed-size word chunks with no overlap. The
// final chunk holds the remainder.
func SplitWords(text string, size int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}
