package listing

import (
	"context"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/kailas-cloud/homefinder/internal/db"
)

// memStore is an in-memory stand-in for the FT index: HSET overwrites,
// SearchKNN ranks by brute-force cosine similarity.
type memStore struct {
	hashes   map[string]map[string]string
	indexes  map[string]*db.IndexDefinition
	hsetCall int

	hsetMultiFn  func(ctx context.Context, items []db.HashSetItem) error
	searchKNNFn  func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	indexExistFn func(ctx context.Context, name string) (bool, error)
	lastQuery    *db.KNNQuery
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[string]map[string]string),
		indexes: make(map[string]*db.IndexDefinition),
	}
}

func (m *memStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *memStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistFn != nil {
		return m.indexExistFn(ctx, name)
	}
	_, ok := m.indexes[name]
	return ok, nil
}

func (m *memStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	m.hsetCall++
	if m.hsetMultiFn != nil {
		if err := m.hsetMultiFn(ctx, items); err != nil {
			return err
		}
	}
	for _, it := range items {
		h := m.hashes[it.Key]
		if h == nil {
			h = make(map[string]string)
			m.hashes[it.Key] = h
		}
		for k, v := range it.Fields {
			h[k] = v
		}
	}
	return nil
}

func (m *memStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastQuery = q
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}

	prefix := strings.TrimSuffix(q.IndexName, "idx")
	var entries []db.SearchEntry
	for key, h := range m.hashes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		vec, err := db.DecodeVector(h["__vector"])
		if err != nil {
			return nil, err
		}
		fields := make(map[string]string)
		for _, f := range q.ReturnFields {
			fields[f] = h[f]
		}
		entries = append(entries, db.SearchEntry{Key: key, Score: cosine(q.Vector, vec), Fields: fields})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Score > entries[b].Score })
	if len(entries) > q.K {
		entries = entries[:q.K]
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func (m *memStore) CountKeys(_ context.Context, prefix string) (int, error) {
	n := 0
	for key := range m.hashes {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := newMemStore()
	repo := New(ms, Config{
		KeyPrefix:  "homefinder:",
		Name:       "listings",
		Dimensions: 3,
		BatchSize:  2,
	})
	return repo, ms
}
