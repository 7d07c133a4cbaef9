package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// ParseDistanceMetric accepts the lower-case config spelling.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch s {
	case "cosine", "COSINE":
		return DistanceCosine, nil
	case "l2", "L2", "euclidean":
		return DistanceL2, nil
	case "ip", "IP", "dotproduct":
		return DistanceIP, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// VectorAlgorithm selects the indexing algorithm for vector fields in FT.CREATE.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses the FLAT (brute-force) algorithm.
	VectorFlat VectorAlgorithm = "FLAT"
)

// VectorField describes the FLOAT32 vector attribute of a HASH index.
type VectorField struct {
	Name           string // hash field holding little-endian float32 bytes
	Alias          string // AS alias referenced by KNN queries
	Algorithm      VectorAlgorithm
	Dim            int
	Distance       DistanceMetric
	M              int // HNSW max edges per node
	EFConstruction int // HNSW build-time candidate list size
}

// IndexDefinition is a HASH-backed FT index over a single vector field.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Vector   VectorField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if idx.Vector.Name == "" {
		return errors.New("vector field name is required")
	}
	if idx.Vector.Dim <= 0 {
		return errors.New("vector field requires positive DIM")
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
