package search

import (
	"context"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
)

// Index defines the vector index contract for listing search.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]listing.Match, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
