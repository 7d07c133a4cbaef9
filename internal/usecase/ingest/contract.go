package ingest

import (
	"context"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
)

// Index writes listing entries to the vector index.
type Index interface {
	Upsert(ctx context.Context, entries []listing.Entry) error
	Dimensions() int
	BatchSize() int
}

// Embedder vectorizes text into embeddings. Implementations that also satisfy
// domain.BatchEmbedder are asked for one vector batch per chunk first.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
