package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // alias used in the KNN clause; defaults to "vector"
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hash hit from a KNN search.
// Score is cosine similarity (1 - distance) in [-1, 1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
