package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest number of inputs sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// Config tunes the resilient embedder.
type Config struct {
	Provider          string
	Model             string
	Timeout           time.Duration // per attempt; 0 = no per-attempt deadline
	MaxRetries        int           // retries after the first attempt
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64 // 0 = unlimited
}

// ResilientEmbedder wraps an embedder with a per-attempt timeout, bounded retry
// with exponential backoff, client-side rate limiting and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type ResilientEmbedder struct {
	inner   domain.Embedder
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResilientEmbedder wraps inner.
func NewResilientEmbedder(inner domain.Embedder, cfg Config, logger *zap.Logger) *ResilientEmbedder {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &ResilientEmbedder{inner: inner, cfg: cfg, limiter: limiter, logger: logger}
}

// Embed vectorizes one text. Every error wraps domain.ErrEmbeddingFailure;
// a deadline additionally wraps domain.ErrTimeout.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()

	var result domain.EmbeddingResult
	err := r.retry(ctx, func(actx context.Context) error {
		res, err := r.inner.Embed(actx, text)
		if err != nil {
			return err //nolint:wrapcheck // classified by retry
		}
		result = res
		return nil
	})
	if err != nil {
		r.logger.Error("Embedding request failed",
			zap.String("provider", r.cfg.Provider),
			zap.String("model", r.cfg.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, err
	}

	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)

	r.logger.Debug("Embedding request completed",
		zap.String("provider", r.cfg.Provider),
		zap.String("model", r.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into provider-sized chunks and embeds each chunk with retry.
func (r *ResilientEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		end := min(offset+DefaultMaxAPIBatchSize, len(texts))
		chunk := texts[offset:end]

		var res domain.BatchEmbeddingResult
		err := r.retry(ctx, func(actx context.Context) error {
			var err error
			res, err = r.embedInner(actx, chunk)
			return err
		})
		if err != nil {
			r.logger.Error("Batch embedding request failed",
				zap.String("provider", r.cfg.Provider),
				zap.String("model", r.cfg.Model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed [%d:%d]: %w", offset, end, err)
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	domain.UsageFromContext(ctx).AddTokens(out.TotalTokens)

	r.logger.Debug("Batch embedding completed",
		zap.String("provider", r.cfg.Provider),
		zap.String("model", r.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

func (r *ResilientEmbedder) embedInner(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := r.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts) //nolint:wrapcheck // classified by retry
	}
	return domain.BatchFallback(ctx, r.inner, texts)
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (r *ResilientEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // passthrough
	}
	return nil
}

// retry runs call until it succeeds, fails permanently or runs out of attempts.
func (r *ResilientEmbedder) retry(ctx context.Context, call func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialBackoff
	eb.MaxInterval = r.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.cfg.MaxRetries)), ctx)

	var lastErr error
	op := func() error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		actx, cancel := r.attemptContext(ctx)
		defer cancel()

		err := call(actx)
		if err == nil {
			return nil
		}
		err = classify(ctx, actx, r.cfg.Timeout, err)
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.EmbeddingRetriesTotal.WithLabelValues(r.cfg.Provider).Inc()
		r.logger.Warn("Retrying embedding request",
			zap.String("provider", r.cfg.Provider),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	// backoff returns the bare context error when the caller gives up between attempts.
	if !errors.Is(err, domain.ErrEmbeddingFailure) {
		if lastErr != nil && errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %w", lastErr, err)
		}
		err = classify(ctx, ctx, 0, err)
	}
	return err
}

func (r *ResilientEmbedder) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

// classify makes err wrap ErrEmbeddingFailure, and ErrTimeout when a deadline fired.
func classify(parent, attempt context.Context, timeout time.Duration, err error) error {
	timedOut := errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
	switch {
	case timedOut && !errors.Is(err, domain.ErrTimeout):
		if parent.Err() == nil && timeout > 0 {
			err = fmt.Errorf("attempt exceeded %v: %w", timeout, err)
		}
		if errors.Is(err, domain.ErrEmbeddingFailure) {
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingFailure, domain.ErrTimeout, err)
	case errors.Is(err, domain.ErrEmbeddingFailure):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
	}
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
