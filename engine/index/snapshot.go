// Package index builds and searches the in-memory index for a single
// document: ordered chunks, one embedding per chunk, and an exhaustive
// nearest-neighbor search over those embeddings. A Snapshot is immutable
// once built; replacing the current document means building a new one.
package index

import (
	"sort"

	"github.com/askpaper-ai/askpaper/engine/domain"
)

// Snapshot is the searchable index of one document. Chunk i corresponds to
// embedding i for every i; the constructor enforces the alignment.
type Snapshot struct {
	id         string
	chunks     []string
	embeddings [][]float32
	dim        int
}

// Hit is a single retrieval match.
type Hit struct {
	// ID is the chunk index within the document.
	ID int
	// Distance is the squared Euclidean distance to the query vector.
	Distance float32
}

// ID returns the unique identifier assigned at build time.
func (s *Snapshot) ID() string { return s.id }

// Len returns the number of chunks.
func (s *Snapshot) Len() int { return len(s.chunks) }

// Dim returns the embedding dimensionality.
func (s *Snapshot) Dim() int { return s.dim }

// Chunk returns the text of chunk i.
func (s *Snapshot) Chunk(i int) string { return s.chunks[i] }

// Search returns the k nearest chunks to vec by squared Euclidean
// distance, best match first. k is capped at the chunk count; distance
// ties break toward the lower chunk id. The scan is exhaustive: the corpus
// is one document, so comparing against every vector is both correct and
// cheap.
func (s *Snapshot) Search(vec []float32, k int) ([]Hit, error) {
	if s.Len() == 0 {
		return nil, domain.ErrRetrievalEmpty
	}
	if k <= 0 || k > s.Len() {
		k = s.Len()
	}

	hits := make([]Hit, s.Len())
	for i, emb := range s.embeddings {
		hits[i] = Hit{ID: i, Distance: sqDist(vec, emb)}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})
	return hits[:k], nil
}

// Following returns up to n chunk texts after chunk id, in document order,
// stopping at the document end. Used for follow-up lookahead.
func (s *Snapshot) Following(id, n int) []string {
	var out []string
	for i := id + 1; i <= id+n && i < s.Len(); i++ {
		out = append(out, s.chunks[i])
	}
	return out
}

func sqDist(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
