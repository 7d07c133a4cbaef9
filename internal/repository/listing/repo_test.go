package listing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/homefinder/internal/db"
	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
)

func entry(id string, vec ...float32) listing.Entry {
	return listing.Entry{ID: id, Vector: vec, Full: fmt.Sprintf(`{"title":%q}`, id)}
}

func TestEnsureIndex_CreatesOnce(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.EnsureIndex(ctx)
	if err != nil || !created {
		t.Fatalf("first EnsureIndex: created=%v err=%v", created, err)
	}
	def := ms.indexes["homefinder:listings:idx"]
	if def == nil {
		t.Fatal("index not created")
	}
	if def.Vector.Dim != 3 || def.Vector.Distance != db.DistanceCosine || def.Vector.Alias != "vector" {
		t.Errorf("unexpected vector field: %+v", def.Vector)
	}
	if len(def.Prefixes) != 1 || def.Prefixes[0] != "homefinder:listings:" {
		t.Errorf("unexpected prefixes: %v", def.Prefixes)
	}

	created, err = repo.EnsureIndex(ctx)
	if err != nil || created {
		t.Fatalf("second EnsureIndex: created=%v err=%v", created, err)
	}
}

func TestEnsureIndex_StoreDown(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistFn = func(context.Context, string) (bool, error) {
		return false, errors.New("connection refused")
	}

	_, err := repo.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestUpsert_ChunksByBatchSize(t *testing.T) {
	repo, ms := newTestRepo(t)

	err := repo.Upsert(context.Background(), []listing.Entry{
		entry("listing-0", 1, 0, 0),
		entry("listing-1", 0, 1, 0),
		entry("listing-2", 0, 0, 1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.hsetCall != 2 {
		t.Errorf("expected 2 round trips for 3 entries with batch 2, got %d", ms.hsetCall)
	}
	if n, _ := repo.Count(context.Background()); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	h := ms.hashes["homefinder:listings:listing-1"]
	if h["full"] != `{"title":"listing-1"}` {
		t.Errorf("unexpected metadata: %v", h)
	}
}

func TestUpsert_FailureNamesListingAndKeepsEarlierChunks(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hsetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		for _, it := range items {
			if it.Key == "homefinder:listings:listing-3" {
				return &db.Error{Op: db.OpHSet, Key: it.Key, Err: errors.New("OOM")}
			}
		}
		return nil
	}

	err := repo.Upsert(context.Background(), []listing.Entry{
		entry("listing-0", 1, 0, 0),
		entry("listing-1", 0, 1, 0),
		entry("listing-2", 0, 0, 1),
		entry("listing-3", 1, 1, 0),
	})

	var ufe *domain.UpsertFailureError
	if !errors.As(err, &ufe) {
		t.Fatalf("expected UpsertFailureError, got %v", err)
	}
	if ufe.ListingID != "listing-3" {
		t.Errorf("ListingID = %q, want listing-3", ufe.ListingID)
	}
	if !errors.Is(err, domain.ErrUpsertFailure) {
		t.Error("expected ErrUpsertFailure")
	}
	if _, ok := ms.hashes["homefinder:listings:listing-1"]; !ok {
		t.Error("first chunk must stay committed")
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)

	err := repo.Upsert(context.Background(), []listing.Entry{entry("listing-0", 1, 0)})
	if !errors.Is(err, domain.ErrVectorDimMismatch) || !errors.Is(err, domain.ErrUpsertFailure) {
		t.Fatalf("expected dimension mismatch upsert failure, got %v", err)
	}
	if ms.hsetCall != 0 {
		t.Error("mismatched chunk must not be written")
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	entries := []listing.Entry{entry("listing-0", 1, 0, 0), entry("listing-1", 0, 1, 0)}

	if err := repo.Upsert(ctx, entries); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	before, err := repo.Query(ctx, []float32{1, 0, 0}, 5, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := repo.Upsert(ctx, entries); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	after, err := repo.Query(ctx, []float32{1, 0, 0}, 5, true)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if len(before) != 2 || len(after) != 2 {
		t.Fatalf("expected 2 matches before and after, got %d and %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Score != after[i].Score {
			t.Errorf("match %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestQuery_OrderAndLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	_ = repo.Upsert(ctx, []listing.Entry{
		entry("far", 0, 0, 1),
		entry("near", 1, 0.1, 0),
		entry("mid", 1, 1, 0),
	})

	for k := 1; k <= 4; k++ {
		matches, err := repo.Query(ctx, []float32{1, 0, 0}, k, false)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		if len(matches) > k {
			t.Errorf("k=%d: got %d matches", k, len(matches))
		}
		for i := 1; i < len(matches); i++ {
			if matches[i].Score > matches[i-1].Score {
				t.Errorf("k=%d: scores not non-increasing: %v", k, matches)
			}
		}
		if matches[0].ID != "near" {
			t.Errorf("k=%d: top match = %s, want near", k, matches[0].ID)
		}
		if matches[0].Metadata != nil {
			t.Error("metadata must be omitted when not requested")
		}
	}
}

func TestQuery_ReordersUnsortedStoreReply(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: "homefinder:listings:b", Score: 0.2},
			{Key: "homefinder:listings:a", Score: 0.9},
			{Key: "homefinder:listings:c", Score: 0.5},
		}}, nil
	}

	matches, err := repo.Query(context.Background(), []float32{1, 0, 0}, 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "a" || matches[1].ID != "c" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	matches, err := repo.Query(context.Background(), []float32{1, 0, 0}, 3, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", matches)
	}
	if ms.lastQuery.ReturnFields[0] != "full" {
		t.Errorf("expected full metadata requested, got %v", ms.lastQuery.ReturnFields)
	}
}

func TestQuery_InvalidArguments(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Query(ctx, []float32{1, 0, 0}, 0, true); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("top_k=0: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := repo.Query(ctx, []float32{1, 0}, 3, true); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("short vector: expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestQuery_Unavailable(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection reset")}
	}

	_, err := repo.Query(context.Background(), []float32{1, 0, 0}, 3, true)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Error("plain failure must not be reported as timeout")
	}
}

func TestQuery_Timeout(t *testing.T) {
	ms := newMemStore()
	repo := New(ms, Config{KeyPrefix: "homefinder:", Name: "listings", Dimensions: 3, QueryTimeout: 1})
	ms.searchKNNFn = func(ctx context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := repo.Query(context.Background(), []float32{1, 0, 0}, 3, true)
	if !errors.Is(err, domain.ErrIndexUnavailable) || !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected unavailable+timeout, got %v", err)
	}
}

func TestRoundTrip_TitleSurvives(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	full := `{"title":"OMORI HACHIRYU HOUSE","property_detail":{"BEDROOMS":"5"}}`

	if err := repo.Upsert(ctx, []listing.Entry{{ID: "listing-0", Vector: []float32{0.2, 0.4, 0.1}, Full: full}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	matches, err := repo.Query(ctx, []float32{0.2, 0.4, 0.1}, 1, true)
	if err != nil || len(matches) != 1 {
		t.Fatalf("query: %v %v", matches, err)
	}
	rec, err := listing.Normalize(matches[0].ID, matches[0].Metadata[listing.MetadataField])
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if rec.String(listing.FieldTitle) != "OMORI HACHIRYU HOUSE" {
		t.Errorf("title = %q", rec.String(listing.FieldTitle))
	}
}
