package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	GroupID      *uint64 // optional tenant pre-filter on the group_id field
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search, similarity descending.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
