package valkey

import (
	"context"
	"errors"
	"strconv"

	"github.com/kailas-cloud/homefinder/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isServerErr(err, "already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
	return nil
}

// DropIndex removes an FT index by name. Indexed hashes are kept.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Key: name, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Key: name, Err: err}
	}
	return true, nil
}

// Redis says "Unknown index name", valkey-search says "Index with name ... not found".
func isUnknownIndex(err error) bool {
	return isServerErr(err, "unknown index name") || isServerErr(err, "not found")
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx.Name == "" {
		return nil, errors.New("index name is required")
	}

	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")

	vec, err := buildVectorFieldArgs(&idx.Vector)
	if err != nil {
		return nil, err
	}
	return append(args, vec...), nil
}

func buildVectorFieldArgs(f *db.VectorField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("vector field name is required")
	}
	if f.Dim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	algo := f.Algorithm
	if algo == "" {
		algo = db.VectorHNSW
	}
	distance := f.Distance
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.Dim),
		"DISTANCE_METRIC", string(distance),
	}
	if algo == db.VectorHNSW {
		if f.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.M))
		}
		if f.EFConstruction > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.EFConstruction))
		}
	}

	out := []string{f.Name}
	if f.Alias != "" {
		out = append(out, "AS", f.Alias)
	}
	out = append(out, "VECTOR", string(algo), strconv.Itoa(len(attrs)))
	return append(out, attrs...), nil
}
