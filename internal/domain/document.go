package domain

// Payload field names persisted alongside each vector.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldGroupID     = "group_id"
)

// NotFoundSentinel is substituted into the prompt when retrieval
// produces no usable description. Deliberately a soft fallback, not an
// error: generation proceeds with it.
const NotFoundSentinel = "not found"

// Row is one parsed ingestion record. The group key of the stored
// point is derived from ID.
type Row struct {
	ID          uint64
	Title       string
	Description string
}

// Point is an insert-or-replace record for the vector store.
type Point struct {
	ID          uint64
	Vector      []float32
	Title       string
	Description string
	GroupID     uint64
}

// SearchResult is a single search hit, ordered by similarity descending.
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]string
}

// Description returns the stored description, reporting whether the
// payload carried one.
func (r SearchResult) Description() (string, bool) {
	v, ok := r.Payload[FieldDescription]
	return v, ok
}

// Collection describes a named vector partition of fixed dimension.
type Collection struct {
	Name      string
	Dimension int
	Isolation bool
	CreatedAt int64
}
