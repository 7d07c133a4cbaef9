package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
	"github.com/kailas-cloud/homefinder/internal/metrics"
)

// Config bounds the number of results.
type Config struct {
	DefaultTopK int // used when the caller passes 0
	MaxTopK     int
}

// Service turns search criteria into ordered, normalized listings.
// It keeps no state between calls and is safe for concurrent use.
type Service struct {
	index  Index
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates a search service.
func New(index Index, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 20
	}
	return &Service{index: index, embed: embed, cfg: cfg, logger: logger}
}

// Search embeds the criteria sentence, queries the index for the topK nearest
// listings and normalizes them in index order. Matches whose metadata cannot
// be parsed are skipped. topK 0 means the configured default; negative is invalid.
func (s *Service) Search(ctx context.Context, c listing.Criteria, topK int) ([]listing.Hit, error) {
	start := time.Now()
	hits, err := s.search(ctx, c, topK)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	metrics.SearchRequestsTotal.WithLabelValues(outcome(err)).Inc()
	return hits, err
}

func (s *Service) search(ctx context.Context, c listing.Criteria, topK int) ([]listing.Hit, error) {
	k, err := s.resolveTopK(topK)
	if err != nil {
		return nil, err
	}

	query := c.Query()

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	matches, err := s.index.Query(ctx, emb.Embedding, k, true)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits := make([]listing.Hit, 0, len(matches))
	for _, m := range matches {
		rec, err := listing.Normalize(m.ID, m.Metadata[listing.MetadataField])
		if err != nil {
			metrics.CorruptListingsTotal.Inc()
			s.logger.Warn("Skipping corrupt listing",
				zap.String("listing_id", m.ID),
				zap.Float64("score", m.Score),
				zap.Error(err),
			)
			continue
		}
		hits = append(hits, listing.Hit{ID: m.ID, Score: m.Score, Record: rec})
	}

	s.logger.Debug("Search completed",
		zap.String("query", query),
		zap.Int("top_k", k),
		zap.Int("matches", len(matches)),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

func (s *Service) resolveTopK(topK int) (int, error) {
	switch {
	case topK < 0:
		return 0, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidArgument, topK)
	case topK == 0:
		return s.cfg.DefaultTopK, nil
	case topK > s.cfg.MaxTopK:
		return s.cfg.MaxTopK, nil
	default:
		return topK, nil
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrEmbeddingFailure):
		return "embedding_failure"
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "index_unavailable"
	default:
		return "error"
	}
}
