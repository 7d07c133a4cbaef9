package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/homefinder/internal/db"
	"github.com/kailas-cloud/homefinder/internal/domain"
	"github.com/kailas-cloud/homefinder/internal/domain/listing"
)

const (
	vectorField = "__vector"
	vectorAlias = "vector"
)

// store is the consumer interface for listing index operations (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CountKeys(ctx context.Context, prefix string) (int, error)
}

// Config describes the listing index. Dimension and metric are fixed once the index exists.
type Config struct {
	KeyPrefix          string // storage-wide prefix, e.g. "homefinder:"
	Name               string // index name under the prefix, e.g. "listings"
	Dimensions         int
	Distance           db.DistanceMetric
	HNSWM              int
	HNSWEFConstruction int
	BatchSize          int
	QueryTimeout       time.Duration
	WriteTimeout       time.Duration
}

// Repo stores listings as HASH entries and queries them through an FT vector index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a listing repository.
func New(s store, cfg Config) *Repo {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Distance == "" {
		cfg.Distance = db.DistanceCosine
	}
	return &Repo{store: s, cfg: cfg}
}

// Dimensions returns the index vector dimension.
func (r *Repo) Dimensions() int { return r.cfg.Dimensions }

// BatchSize returns the number of entries written per round trip.
func (r *Repo) BatchSize() int { return r.cfg.BatchSize }

func (r *Repo) keyPrefix() string { return r.cfg.KeyPrefix + r.cfg.Name + ":" }

func (r *Repo) indexName() string { return r.keyPrefix() + "idx" }

func (r *Repo) key(id string) string { return r.keyPrefix() + id }

// EnsureIndex creates the FT index unless it already exists. The bool reports creation.
func (r *Repo) EnsureIndex(ctx context.Context) (bool, error) {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return false, unavailable("index info", err)
	}
	if exists {
		return false, nil
	}

	def, err := db.NewIndex(r.indexName()).
		Prefix(r.keyPrefix()).
		HNSW(vectorField, vectorAlias, r.cfg.Dimensions, r.cfg.Distance, r.cfg.HNSWM, r.cfg.HNSWEFConstruction).
		Build()
	if err != nil {
		return false, fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, unavailable("create index", err)
	}
	return true, nil
}

// Upsert writes entries in chunks of BatchSize, one pipelined round trip per chunk.
// A rejected entry stops the upsert with an UpsertFailureError naming it;
// chunks written before it stay committed. Re-upserting an id overwrites it.
func (r *Repo) Upsert(ctx context.Context, entries []listing.Entry) error {
	for start := 0; start < len(entries); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(entries))
		if err := r.upsertChunk(ctx, entries[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) upsertChunk(ctx context.Context, chunk []listing.Entry) error {
	items := make([]db.HashSetItem, len(chunk))
	ids := make(map[string]string, len(chunk))
	for i, e := range chunk {
		if err := domain.CheckDimensions(e.Vector, r.cfg.Dimensions); err != nil {
			return domain.NewUpsertFailure(e.ID, err)
		}
		key := r.key(e.ID)
		ids[key] = e.ID
		items[i] = db.HashSetItem{
			Key: key,
			Fields: map[string]string{
				vectorField:           db.EncodeVector(e.Vector),
				listing.MetadataField: e.Full,
			},
		}
	}

	if r.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.WriteTimeout)
		defer cancel()
	}

	err := r.store.HSetMulti(ctx, items)
	if err == nil {
		return nil
	}

	failedID := chunk[0].ID
	var dbErr *db.Error
	if errors.As(err, &dbErr) {
		if id, ok := ids[dbErr.Key]; ok {
			failedID = id
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewUpsertFailure(failedID, fmt.Errorf("%w: %w", domain.ErrTimeout, err))
	}
	return domain.NewUpsertFailure(failedID, err)
}

// Query returns at most topK matches ordered by descending cosine similarity.
// An empty index yields an empty slice.
func (r *Repo) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]listing.Match, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", domain.ErrInvalidArgument, topK)
	}
	if err := domain.CheckDimensions(vector, r.cfg.Dimensions); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}

	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	q := &db.KNNQuery{
		IndexName:   r.indexName(),
		VectorField: vectorAlias,
		Vector:      vector,
		K:           topK,
	}
	if includeMetadata {
		q.ReturnFields = []string{listing.MetadataField}
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, unavailable("query", err)
	}
	if sr == nil {
		return []listing.Match{}, nil
	}

	entries := sr.Entries
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].Score > entries[b].Score })

	prefix := r.keyPrefix()
	matches := make([]listing.Match, 0, min(len(entries), topK))
	for _, e := range entries {
		if len(matches) == topK {
			break
		}
		m := listing.Match{ID: strings.TrimPrefix(e.Key, prefix), Score: e.Score}
		if includeMetadata {
			m.Metadata = e.Fields
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Count returns the number of stored listings.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.CountKeys(ctx, r.keyPrefix())
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %w", op, domain.ErrIndexUnavailable, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
