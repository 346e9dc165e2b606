// Package vectorstore manages collections of embedded documents in the
// external vector index service: lifecycle, bulk upsert, and filtered
// nearest-neighbor search. Failures from the index service are surfaced
// as domain.ErrExternalService and never retried here; retry policy
// belongs to the caller.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calyx-labs/ragline/internal/db"
	"github.com/calyx-labs/ragline/internal/domain"
)

// DefaultTopK is the candidate count used when a caller does not set k.
const DefaultTopK = 10

// store is the consumer interface for the vector index service.
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig holds default HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Store owns the network client to the indexed-search service.
type Store struct {
	store      store
	prefix     string
	hnsw       HNSWConfig
	isolationM int
}

// New creates a vector store over the given index service client.
func New(s store, keyPrefix string) *Store {
	return &Store{
		store:      s,
		prefix:     keyPrefix,
		hnsw:       HNSWConfig{M: 32, EFConstruct: 400},
		isolationM: 2,
	}
}

// WithHNSW configures the default HNSW index parameters.
func (s *Store) WithHNSW(cfg HNSWConfig) *Store {
	if cfg.M > 0 {
		s.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		s.hnsw.EFConstruct = cfg.EFConstruct
	}
	return s
}

// WithIsolationM configures the per-node connectivity budget applied to
// isolation-mode collections.
func (s *Store) WithIsolationM(m int) *Store {
	if m > 0 {
		s.isolationM = m
	}
	return s
}

// HasCollection lists existing collections and reports whether an exact
// name match exists.
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	keys, err := s.store.Scan(ctx, s.metaKey("*"))
	if err != nil {
		return false, fmt.Errorf("%w: list collections: %w", domain.ErrExternalService, err)
	}
	want := s.metaKey(name)
	for _, k := range keys {
		if k == want {
			return true, nil
		}
	}
	return false, nil
}

// CreateCollection declares a collection with cosine-distance vectors of
// the given dimension. Creation is idempotent: an existing collection is
// left untouched and no error is returned.
//
// When isolation is true, the per-node connectivity budget of the HNSW
// graph is forced to a minimal value so the shared proximity graph is
// effectively disabled and group-filtered search cannot leak across
// tenants. Global recall degrades; that is the tradeoff.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int, isolation bool) error {
	if dimension <= 0 {
		return fmt.Errorf("collection %s: dimension must be positive", name)
	}

	metaKey := s.metaKey(name)
	exists, err := s.store.Exists(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrExternalService, name, err)
	}
	if exists {
		return nil
	}

	col := domain.Collection{
		Name:      name,
		Dimension: dimension,
		Isolation: isolation,
		CreatedAt: time.Now().UnixMilli(),
	}

	m := s.hnsw.M
	efConstruct := s.hnsw.EFConstruct
	if isolation {
		m = s.isolationM
		efConstruct = isolationEFConstruct
	}

	indexDef := &db.IndexDefinition{
		Name:     s.indexName(name),
		Prefixes: []string{s.docPrefix(name)},
		Fields: []db.IndexField{
			{Name: domain.FieldGroupID, Type: db.IndexFieldNumeric},
			{
				Name:              "__vector",
				Alias:             "vector",
				Type:              db.IndexFieldVector,
				VectorDim:         dimension,
				VectorDistance:    db.DistanceCosine,
				VectorM:           m,
				VectorEFConstruct: efConstruct,
			},
		},
	}

	// Step 1: HSET metadata
	if err := s.store.HSet(ctx, metaKey, collectionToHash(col)); err != nil {
		return fmt.Errorf("%w: hset collection %s: %w", domain.ErrExternalService, name, err)
	}

	// FT.CREATE — rollback HSET on error
	if err := s.store.CreateIndex(ctx, indexDef); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		cleanupErr := s.store.Del(ctx, metaKey)
		return errors.Join(
			fmt.Errorf("%w: create index %s: %w", domain.ErrExternalService, name, err),
			cleanupErr,
		)
	}

	return nil
}

// Upsert stores points in a collection with replace-by-id semantics. A
// missing collection is created first with the dimension of the first
// supplied point. Every vector is validated against the collection
// dimension before any write. The call returns only after the index
// service acknowledges persistence, so a successful Upsert guarantees
// subsequent searches observe the points.
func (s *Store) Upsert(ctx context.Context, points []domain.Point, collection string) error {
	if len(points) == 0 {
		return nil
	}

	col, err := s.getCollection(ctx, collection)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		dim := len(points[0].Vector)
		if err := s.CreateCollection(ctx, collection, dim, false); err != nil {
			return err
		}
		col = domain.Collection{Name: collection, Dimension: dim}
	}

	items := make([]db.HashSetItem, len(points))
	for i, p := range points {
		if len(p.Vector) != col.Dimension {
			return fmt.Errorf("point %d: vector length %d, collection %s dimension %d: %w",
				p.ID, len(p.Vector), collection, col.Dimension, domain.ErrVectorDimMismatch)
		}
		items[i] = db.HashSetItem{
			Key:    s.docKey(collection, p.ID),
			Fields: pointToHash(p),
		}
	}

	if err := s.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("%w: upsert %d points into %s: %w",
			domain.ErrExternalService, len(points), collection, err)
	}
	return nil
}

// Search returns up to k results ordered by descending similarity. A
// non-nil groupID restricts candidates to documents whose group_id
// payload field equals it; nil spans the whole collection.
func (s *Store) Search(
	ctx context.Context, vector []float32, collection string, groupID *uint64, k int,
) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	q := &db.KNNQuery{
		IndexName: s.indexName(collection),
		Vector:    vector,
		K:         k,
		GroupID:   groupID,
		ReturnFields: []string{
			domain.FieldTitle, domain.FieldDescription, domain.FieldGroupID, "__vector_score",
		},
	}

	sr, err := s.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", domain.ErrExternalService, collection, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := s.docPrefix(collection)
	results := make([]domain.SearchResult, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		results = append(results, domain.SearchResult{
			ID:      trimPrefix(entry.Key, prefix),
			Score:   entry.Score,
			Payload: entry.Fields,
		})
	}
	return results, nil
}

// DeleteCollection irreversibly removes a collection: its index, its
// documents, and its metadata. There is no soft delete.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	metaKey := s.metaKey(name)
	exists, err := s.store.Exists(ctx, metaKey)
	if err != nil {
		return fmt.Errorf("%w: check collection %s: %w", domain.ErrExternalService, name, err)
	}
	if !exists {
		return fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}

	if err := s.store.DropIndex(ctx, s.indexName(name)); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("%w: drop index %s: %w", domain.ErrExternalService, name, err)
	}

	docKeys, err := s.store.Scan(ctx, s.docPrefix(name)+"*")
	if err != nil {
		return fmt.Errorf("%w: scan documents %s: %w", domain.ErrExternalService, name, err)
	}
	if len(docKeys) > 0 {
		if err := s.store.Del(ctx, docKeys...); err != nil {
			return fmt.Errorf("%w: delete documents %s: %w", domain.ErrExternalService, name, err)
		}
	}

	if err := s.store.Del(ctx, metaKey); err != nil {
		return fmt.Errorf("%w: delete collection %s: %w", domain.ErrExternalService, name, err)
	}
	return nil
}

// getCollection hydrates collection metadata, or domain.ErrNotFound.
func (s *Store) getCollection(ctx context.Context, name string) (domain.Collection, error) {
	m, err := s.store.HGetAll(ctx, s.metaKey(name))
	if err != nil {
		return domain.Collection{}, fmt.Errorf("%w: get collection %s: %w", domain.ErrExternalService, name, err)
	}
	if len(m) == 0 {
		return domain.Collection{}, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return collectionFromHash(m)
}

// isolationEFConstruct keeps a reduced construction budget for
// isolation-mode collections: enough to build per-filter links, without
// re-densifying the shared graph the minimal M just disabled.
const isolationEFConstruct = 64

// Key patterns: ragline:collection:{name}, ragline:{name}:idx, ragline:{name}:{id}

func (s *Store) metaKey(name string) string {
	return s.prefix + "collection:" + name
}

func (s *Store) indexName(name string) string {
	return s.prefix + name + ":idx"
}

func (s *Store) docPrefix(name string) string {
	return s.prefix + name + ":"
}

func (s *Store) docKey(collection string, id uint64) string {
	return fmt.Sprintf("%s%d", s.docPrefix(collection), id)
}

func trimPrefix(key, prefix string) string {
	if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
