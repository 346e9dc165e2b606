package ingest

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
	"github.com/calyx-labs/ragline/internal/metrics"
)

// vectorStore is the consumer interface for the vector store.
type vectorStore interface {
	CreateCollection(ctx context.Context, name string, dimension int, isolation bool) error
	Upsert(ctx context.Context, points []domain.Point, collection string) error
}

// Pipeline embeds rows across a bounded worker pool and upserts the
// whole batch in one durable call. Workers append finished points under
// one lock; order is irrelevant, completeness is the invariant.
type Pipeline struct {
	store    vectorStore
	embedder domain.Embedder
	workers  int
	logger   *zap.Logger
}

// Stats summarizes one ingestion batch.
type Stats struct {
	Rows     int
	Skipped  int
	Points   int
	Duration time.Duration
}

// New creates an ingestion pipeline. Workers defaults to the number of
// available CPU cores.
func New(store vectorStore, embedder domain.Embedder, workers int, logger *zap.Logger) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		workers:  workers,
		logger:   logger,
	}
}

// IngestFromSource parses rows from src and ingests them.
func (p *Pipeline) IngestFromSource(ctx context.Context, src Source, collection string, isolation bool) (Stats, error) {
	rows, skipped, err := src.Rows(ctx)
	if err != nil {
		return Stats{Skipped: skipped}, err
	}
	if skipped > 0 {
		metrics.IngestRowsFailed.WithLabelValues(collection, "malformed").Add(float64(skipped))
	}

	stats, err := p.Ingest(ctx, rows, collection, isolation)
	stats.Skipped = skipped
	return stats, err
}

// Ingest embeds every row's description in parallel, assembles points,
// and upserts them into the collection in a single acknowledged batch.
// The collection is created first when missing, with the dimension of
// the first produced embedding. A call with zero rows is a no-op
// success. An embedding failure aborts the whole batch: nothing is
// written on error.
func (p *Pipeline) Ingest(ctx context.Context, rows []domain.Row, collection string, isolation bool) (Stats, error) {
	start := time.Now()

	if len(rows) == 0 {
		p.logger.Info("Nothing to ingest", zap.String("collection", collection))
		return Stats{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan domain.Row)

	var mu sync.Mutex
	points := make([]domain.Point, 0, len(rows))
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				result, err := p.embedder.Embed(ctx, row.Description)
				if err != nil {
					fail(err)
					return
				}
				point := domain.Point{
					ID:          row.ID,
					Vector:      result.Embedding,
					Title:       row.Title,
					Description: row.Description,
					GroupID:     row.ID,
				}
				mu.Lock()
				points = append(points, point)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, row := range rows {
		select {
		case jobs <- row:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		metrics.IngestRowsFailed.WithLabelValues(collection, "embed_error").Add(float64(len(rows)))
		return Stats{Rows: len(rows)}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return Stats{Rows: len(rows)}, err
	}

	dimension := len(points[0].Vector)
	if err := p.store.CreateCollection(ctx, collection, dimension, isolation); err != nil {
		return Stats{Rows: len(rows)}, err
	}
	if err := p.store.Upsert(ctx, points, collection); err != nil {
		return Stats{Rows: len(rows)}, err
	}

	duration := time.Since(start)
	metrics.IngestRowsProcessed.WithLabelValues(collection).Add(float64(len(points)))
	metrics.IngestBatchDuration.WithLabelValues(collection).Observe(duration.Seconds())

	p.logger.Info("Ingestion batch completed",
		zap.String("collection", collection),
		zap.Int("rows", len(rows)),
		zap.Int("points", len(points)),
		zap.Int("dimension", dimension),
		zap.Bool("isolation", isolation),
		zap.Duration("duration", duration),
	)

	return Stats{Rows: len(rows), Points: len(points), Duration: duration}, nil
}
