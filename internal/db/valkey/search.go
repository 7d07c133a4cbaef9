package valkey

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/homefinder/internal/db"
)

const defaultVectorAlias = "vector"

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// Entries come back sorted by descending similarity and never exceed K.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	alias := q.VectorField
	if alias == "" {
		alias = defaultVectorAlias
	}
	scoreField := "__" + alias + "_score"

	args := []string{q.IndexName, fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, alias)}
	fields := append([]string{scoreField}, q.ReturnFields...)
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	args = append(args, fields...)
	args = append(args,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", db.EncodeVector(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: db.ErrIndexNotFound}
		}
		return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: err}
	}

	res, err := parseKNNResult(raw, scoreField)
	if err != nil {
		return nil, err
	}
	if len(res.Entries) > q.K {
		res.Entries = res.Entries[:q.K]
	}
	return res, nil
}

// CountKeys counts keys under prefix. valkey-search rejects a bare "*" query,
// so counting goes through SCAN rather than FT.SEARCH LIMIT 0 0.
func (s *Store) CountKeys(ctx context.Context, prefix string) (int, error) {
	keys, err := s.Scan(ctx, prefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan for count: %w", err)
	}
	return len(keys), nil
}

func parseKNNResult(raw []rueidis.RedisMessage, scoreField string) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Fields: parseFieldPairs(fields)}
		if scoreStr, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = 1.0 - d // cosine distance -> similarity in [-1, 1]
			}
			delete(entry.Fields, scoreField)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(a, b int) bool { return entries[a].Score > entries[b].Score })

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
