package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/homefinder/internal/domain"
	dombatch "github.com/kailas-cloud/homefinder/internal/domain/batch"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
	"github.com/kailas-cloud/homefinder/internal/metrics"
)

// Config tunes the ingestion job.
type Config struct {
	Workers       int // concurrent per-listing embedding calls
	UpsertRetries int // retries of a failed chunk write
	RetryBackoff  time.Duration
}

// Report summarizes one ingestion run.
type Report struct {
	dombatch.Summary
	Tokens   int           `json:"tokens"`
	Duration time.Duration `json:"duration"`
}

// Service loads a JSON array of listings into the vector index.
type Service struct {
	index  Index
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates an ingestion service.
func New(index Index, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.UpsertRetries < 0 {
		cfg.UpsertRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Service{index: index, embed: embed, cfg: cfg, logger: logger}
}

type pending struct {
	id   string
	full string
	text string
}

// Ingest streams the JSON array in src, embedding and upserting listings in
// chunks of the index batch size, in file order. Listing i gets id "listing-<i>".
// Per-listing failures are recorded in the report and do not stop the run;
// an error is returned only when src is not a readable JSON array or ctx ends.
func (s *Service) Ingest(ctx context.Context, src io.Reader) (Report, error) {
	start := time.Now()
	ctx, usage := domain.NewContextWithUsage(ctx)

	var results []dombatch.Result
	report := func() Report {
		_, tokens := usage.Totals()
		return Report{Summary: dombatch.Summarize(results), Tokens: tokens, Duration: time.Since(start)}
	}

	dec := json.NewDecoder(src)
	tok, err := dec.Token()
	if err != nil {
		return report(), fmt.Errorf("%w: read listings: %w", domain.ErrInvalidArgument, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return report(), fmt.Errorf("%w: listings file must contain a JSON array", domain.ErrInvalidArgument)
	}

	batchSize := s.index.BatchSize()
	chunk := make([]pending, 0, batchSize)

	for i := 0; dec.More(); i++ {
		id := fmt.Sprintf("listing-%d", i)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return report(), fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidArgument, id, err)
		}

		item, err := prepare(id, raw)
		if err != nil {
			s.logger.Warn("Skipping listing", zap.String("listing_id", id), zap.Error(err))
			results = append(results, dombatch.NewError(id, dombatch.StageDecode, err))
			continue
		}

		chunk = append(chunk, item)
		if len(chunk) == batchSize {
			results = append(results, s.processChunk(ctx, chunk)...)
			chunk = chunk[:0]
			if err := ctx.Err(); err != nil {
				return report(), fmt.Errorf("ingest interrupted: %w", err)
			}
		}
	}
	if len(chunk) > 0 {
		results = append(results, s.processChunk(ctx, chunk)...)
	}
	if _, err := dec.Token(); err != nil {
		return report(), fmt.Errorf("%w: read listings: %w", domain.ErrInvalidArgument, err)
	}

	rep := report()
	s.logger.Info("Ingestion finished",
		zap.Int("total", rep.Total),
		zap.Int("indexed", rep.Indexed),
		zap.Int("failed", rep.Failed),
		zap.Int("tokens", rep.Tokens),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// prepare checks that raw is a listing object and renders its summary sentence.
func prepare(id string, raw json.RawMessage) (pending, error) {
	obj, err := listing.Decode(raw)
	if err != nil {
		return pending{}, domain.NewCorruptListing(id, err)
	}
	var full bytes.Buffer
	if err := json.Compact(&full, raw); err != nil {
		return pending{}, domain.NewCorruptListing(id, err)
	}
	return pending{id: id, full: full.String(), text: listing.SummaryText(listing.Project(obj))}, nil
}

// processChunk embeds and upserts one chunk, returning a result per listing in order.
func (s *Service) processChunk(ctx context.Context, chunk []pending) []dombatch.Result {
	results := make([]dombatch.Result, len(chunk))
	vectors, errs := s.embedChunk(ctx, chunk)

	dim := s.index.Dimensions()
	entries := make([]listing.Entry, 0, len(chunk))
	positions := make([]int, 0, len(chunk))
	for i, item := range chunk {
		err := errs[i]
		if err == nil {
			err = domain.CheckDimensions(vectors[i], dim)
		}
		if err != nil {
			s.logger.Warn("Listing not embedded", zap.String("listing_id", item.id), zap.Error(err))
			results[i] = dombatch.NewError(item.id, dombatch.StageEmbed, err)
			continue
		}
		entries = append(entries, listing.Entry{ID: item.id, Vector: vectors[i], Full: item.full})
		positions = append(positions, i)
	}
	if len(entries) == 0 {
		return results
	}

	// A rejected listing is dropped and the rest of the chunk is written again,
	// so one bad write does not fail its neighbours.
	for len(entries) > 0 {
		err := s.upsertWithRetry(ctx, entries)
		if err == nil {
			break
		}
		bad := rejectedEntry(err, entries)
		if ctx.Err() != nil {
			bad = -1
		}
		if bad < 0 {
			metrics.IndexUpsertsTotal.WithLabelValues("error").Add(float64(len(entries)))
			s.logger.Error("Chunk upsert failed",
				zap.String("first_id", entries[0].ID),
				zap.Int("size", len(entries)),
				zap.Error(err),
			)
			for _, i := range positions {
				results[i] = dombatch.NewError(chunk[i].id, dombatch.StageUpsert, err)
			}
			return results
		}

		metrics.IndexUpsertsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Listing not indexed", zap.String("listing_id", entries[bad].ID), zap.Error(err))
		results[positions[bad]] = dombatch.NewError(entries[bad].ID, dombatch.StageUpsert, err)
		entries = slices.Delete(entries, bad, bad+1)
		positions = slices.Delete(positions, bad, bad+1)
	}
	if len(entries) == 0 {
		return results
	}

	metrics.IndexUpsertsTotal.WithLabelValues("ok").Add(float64(len(entries)))
	for _, i := range positions {
		results[i] = dombatch.NewOK(chunk[i].id)
	}
	s.logger.Info("Chunk indexed",
		zap.String("first_id", entries[0].ID),
		zap.String("last_id", entries[len(entries)-1].ID),
		zap.Int("indexed", len(entries)),
	)
	return results
}

// rejectedEntry returns the position of the entry an upsert error names, or -1.
func rejectedEntry(err error, entries []listing.Entry) int {
	var ufe *domain.UpsertFailureError
	if !errors.As(err, &ufe) {
		return -1
	}
	return slices.IndexFunc(entries, func(e listing.Entry) bool { return e.ID == ufe.ListingID })
}

// embedChunk vectorizes a chunk with one batch call when the embedder supports it.
// If the batch fails the listings are embedded one by one so a single bad
// listing does not fail its neighbours.
func (s *Service) embedChunk(ctx context.Context, chunk []pending) ([][]float32, []error) {
	vectors := make([][]float32, len(chunk))
	errs := make([]error, len(chunk))

	if be, ok := s.embed.(domain.BatchEmbedder); ok {
		texts := make([]string, len(chunk))
		for i, item := range chunk {
			texts[i] = item.text
		}
		res, err := be.BatchEmbed(ctx, texts)
		if err == nil && len(res.Embeddings) == len(chunk) {
			copy(vectors, res.Embeddings)
			return vectors, errs
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			for i, item := range chunk {
				errs[i] = fmt.Errorf("embed %s: %w", item.id, ctxErr)
			}
			return vectors, errs
		}
		if err == nil {
			err = fmt.Errorf("%w: batch returned %d embeddings for %d listings",
				domain.ErrEmbeddingFailure, len(res.Embeddings), len(chunk))
		}
		s.logger.Warn("Batch embedding failed, embedding listings individually",
			zap.String("first_id", chunk[0].id), zap.Error(err))
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, item := range chunk {
		g.Go(func() error {
			res, err := s.embed.Embed(ctx, item.text)
			if err != nil {
				errs[i] = fmt.Errorf("embed %s: %w", item.id, err)
				return nil
			}
			vectors[i] = res.Embedding
			return nil
		})
	}
	_ = g.Wait() // per-listing errors are collected in errs

	return vectors, errs
}

// upsertWithRetry writes entries, retrying the whole chunk on failure.
// Re-upserting is idempotent, so entries written by a failed attempt are harmless.
func (s *Service) upsertWithRetry(ctx context.Context, entries []listing.Entry) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.UpsertRetries)), ctx)

	op := func() error {
		err := s.index.Upsert(ctx, entries)
		if err != nil && errors.Is(err, domain.ErrVectorDimMismatch) {
			return backoff.Permanent(err)
		}
		return err //nolint:wrapcheck // wrapped by caller
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Retrying chunk upsert",
			zap.String("first_id", entries[0].ID),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}
