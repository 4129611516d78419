package ai

import "errors"

var (
	// ErrEmbeddingProvider indicates the embedding provider failed (network, auth, quota).
	// Ingestion treats it as fatal to a single row only.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrInvalidConfig indicates an invalid AI configuration.
	ErrInvalidConfig = errors.New("invalid ai config")
)
