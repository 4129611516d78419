package reembed

import "errors"

var (
	// ErrRowRepositoryRequired is returned when a row repository is not provided.
	ErrRowRepositoryRequired = errors.New("row repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingMismatch is returned when the embedder returns the wrong
	// number of vectors, or an empty one.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)
