package db

import (
	"strconv"
	"strings"
)

// IndexBuilder is a fluent builder for FT index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an FT index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// HNSW sets the vector field, indexed with HNSW.
func (b *IndexBuilder) HNSW(name, alias string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	b.def.Vector = VectorField{
		Name:           name,
		Alias:          alias,
		Algorithm:      VectorHNSW,
		Dim:            dim,
		Distance:       distance,
		M:              m,
		EFConstruction: efConstruct,
	}
	return b
}

// Flat sets the vector field, indexed by brute force.
func (b *IndexBuilder) Flat(name, alias string, dim int, distance DistanceMetric) *IndexBuilder {
	b.def.Vector = VectorField{
		Name:      name,
		Alias:     alias,
		Algorithm: VectorFlat,
		Dim:       dim,
		Distance:  distance,
	}
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// String returns a debug representation resembling the FT.CREATE command.
func (idx *IndexDefinition) String() string {
	parts := []string{"FT.CREATE", idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA", idx.Vector.Name)
	if idx.Vector.Alias != "" {
		parts = append(parts, "AS", idx.Vector.Alias)
	}
	parts = append(parts, "VECTOR", string(idx.Vector.Algorithm),
		"DIM", strconv.Itoa(idx.Vector.Dim), string(idx.Vector.Distance))
	return strings.Join(parts, " ")
}
