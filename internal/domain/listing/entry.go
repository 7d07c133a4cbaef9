package listing

// Entry is one vector index record: the listing id, its embedding and the
// serialized listing stored under MetadataField.
type Entry struct {
	ID     string
	Vector []float32
	Full   string
}

// Match is a raw similarity hit returned by the vector index.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Hit is a normalized search result.
type Hit struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Record Record  `json:"listing"`
}
