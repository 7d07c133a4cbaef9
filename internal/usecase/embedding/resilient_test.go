package embedding

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// scriptedEmbedder returns errs[i] on the i-th call, then succeeds.
type scriptedEmbedder struct {
	calls atomic.Int32
	errs  []error
	block bool
	vec   []float32
}

func (s *scriptedEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	n := int(s.calls.Add(1)) - 1
	if s.block {
		<-ctx.Done()
		return domain.EmbeddingResult{}, ctx.Err()
	}
	if n < len(s.errs) {
		return domain.EmbeddingResult{}, s.errs[n]
	}
	return domain.EmbeddingResult{Embedding: s.vec, TotalTokens: 4}, nil
}

type batchEmbedder struct {
	scriptedEmbedder
	batchSizes []int
}

func (b *batchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	b.batchSizes = append(b.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func testConfig() Config {
	return Config{
		Provider:       "test",
		Model:          "test-model",
		Timeout:        time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestResilientEmbedder_Success(t *testing.T) {
	inner := &scriptedEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	ctx, usage := domain.NewContextWithUsage(context.Background())
	res, err := r.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(res.Embedding))
	}
	if calls, tokens := usage.Totals(); calls != 1 || tokens != 4 {
		t.Errorf("usage = %d calls / %d tokens", calls, tokens)
	}
}

func TestResilientEmbedder_RetriesTransientErrors(t *testing.T) {
	inner := &scriptedEmbedder{
		vec: []float32{1},
		errs: []error{
			&domain.ProviderError{StatusCode: 503, Message: "overloaded"},
			&domain.ProviderError{StatusCode: 429, Message: "slow down"},
		},
	}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	if _, err := r.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestResilientEmbedder_GivesUpAfterMaxRetries(t *testing.T) {
	transient := &domain.ProviderError{StatusCode: 500, Message: "boom"}
	inner := &scriptedEmbedder{errs: []error{transient, transient, transient, transient}}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	_, err := r.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", got)
	}
}

func TestResilientEmbedder_PermanentErrorNotRetried(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{&domain.ProviderError{StatusCode: 401, Message: "bad key"}}}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	_, err := r.Embed(context.Background(), "hello")
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.StatusCode != 401 {
		t.Fatalf("expected provider error 401, got %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}

func TestResilientEmbedder_PlainErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	inner := &scriptedEmbedder{errs: []error{boom, boom, boom}}
	cfg := testConfig()
	cfg.MaxRetries = 0
	r := NewResilientEmbedder(inner, cfg, zap.NewNop())

	_, err := r.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingFailure) || !errors.Is(err, boom) {
		t.Errorf("expected embedding failure wrapping cause, got %v", err)
	}
}

func TestResilientEmbedder_AttemptTimeout(t *testing.T) {
	inner := &scriptedEmbedder{block: true}
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	r := NewResilientEmbedder(inner, cfg, zap.NewNop())

	_, err := r.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingFailure) || !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected embedding failure + timeout, got %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected timed-out attempt to be retried once, got %d calls", got)
	}
}

func TestResilientEmbedder_CallerCancelStopsRetries(t *testing.T) {
	inner := &scriptedEmbedder{errs: []error{context.Canceled, context.Canceled, context.Canceled}}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Embed(ctx, "hello")
	if !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
	if got := inner.calls.Load(); got > 1 {
		t.Errorf("expected no retries after cancel, got %d calls", got)
	}
}

func TestResilientEmbedder_BatchChunks(t *testing.T) {
	inner := &batchEmbedder{}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	texts := make([]string, DefaultMaxAPIBatchSize+10)
	res, err := r.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	if len(inner.batchSizes) != 2 || inner.batchSizes[0] != DefaultMaxAPIBatchSize || inner.batchSizes[1] != 10 {
		t.Errorf("unexpected chunking: %v", inner.batchSizes)
	}
	if res.TotalTokens != len(texts) {
		t.Errorf("tokens = %d", res.TotalTokens)
	}
}

func TestResilientEmbedder_BatchFallback(t *testing.T) {
	inner := &scriptedEmbedder{vec: []float32{1, 2}}
	r := NewResilientEmbedder(inner, testConfig(), zap.NewNop())

	res, err := r.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 || inner.calls.Load() != 3 {
		t.Errorf("embeddings=%d calls=%d", len(res.Embeddings), inner.calls.Load())
	}
}

func TestResilientEmbedder_BatchEmpty(t *testing.T) {
	r := NewResilientEmbedder(&batchEmbedder{}, testConfig(), zap.NewNop())
	res, err := r.BatchEmbed(context.Background(), nil)
	if err != nil || res.Embeddings != nil {
		t.Errorf("expected empty result, got %v / %v", res, err)
	}
}

func TestResilientEmbedder_RateLimited(t *testing.T) {
	inner := &scriptedEmbedder{vec: []float32{1}}
	cfg := testConfig()
	cfg.RequestsPerSecond = 1000
	r := NewResilientEmbedder(inner, cfg, zap.NewNop())

	for range 5 {
		if _, err := r.Embed(context.Background(), "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := inner.calls.Load(); got != 5 {
		t.Errorf("calls = %d", got)
	}
}
