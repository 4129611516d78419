// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder and MockProvider let ingestion and retrieval tests run without
// an embedding service, with deterministic vectors and injectable failures.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    if strings.Contains(text, "poison") {
//	        return nil, ai.ErrEmbeddingProvider
//	    }
//	    return mock.GenerateDeterministicVector(text, 8), nil
//	}
//
//	count := embedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns a unit vector of DefaultDimension derived from an FNV
// hash of the text, so equal texts always embed identically.
package mock
