// Package domain holds the types and error taxonomy shared by the
// question-answering engine packages.
package domain

import "errors"

// Sentinel errors for the indexing and query paths. A query arriving
// before any document is indexed is not an error: the coordinator answers
// it with a fixed reply.
var (
	// ErrEmptyDocument means extraction produced no chunkable text. The
	// upload is rejected and any prior snapshot stays current.
	ErrEmptyDocument = errors.New("document contains no usable text")

	// ErrSimilarityUnavailable means the similarity collaborator failed.
	// The cache degrades to a miss; this never reaches end users.
	ErrSimilarityUnavailable = errors.New("similarity scoring unavailable")

	// ErrGenerationFailed means the external generation model call failed.
	// Surfaced to the caller; there is no silent fallback answer.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrRetrievalEmpty means a search ran against a zero-chunk snapshot.
	// Unreachable as long as ErrEmptyDocument is enforced at index time.
	ErrRetrievalEmpty = errors.New("retrieval returned no chunks")
)
