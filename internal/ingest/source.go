// Package ingest embeds tabular records in parallel and bulk-loads them
// into the vector store. Sources parse rows; the pipeline fans embedding
// out over a bounded worker pool and upserts the batch in one call.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
)

// Source yields parsed rows from a tabular file. Malformed rows are
// per-row and non-fatal: the source logs them and reports how many were
// skipped.
type Source interface {
	Rows(ctx context.Context) (rows []domain.Row, skipped int, err error)
}

// CSVSource parses rows from a comma-separated file with a header line
// naming at least id, title, and description columns.
type CSVSource struct {
	path   string
	logger *zap.Logger
}

// NewCSVSource creates a CSV row source.
func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger}
}

// Rows parses the whole file. A missing or unusable header is a source
// error; anything wrong with an individual record only skips it.
func (s *CSVSource) Rows(ctx context.Context) ([]domain.Row, int, error) {
	f, err := os.Open(filepath.Clean(s.path))
	if err != nil {
		return nil, 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}
	idIdx, titleIdx, descIdx := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id":
			idIdx = i
		case "title":
			titleIdx = i
		case "description":
			descIdx = i
		}
	}
	if idIdx < 0 || titleIdx < 0 || descIdx < 0 {
		return nil, 0, fmt.Errorf("csv header %v: need id, title, description columns", header)
	}

	var rows []domain.Row
	skipped := 0
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			s.logger.Warn("Skipping unparseable csv record", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		if len(record) <= idIdx || len(record) <= titleIdx || len(record) <= descIdx {
			s.logger.Warn("Skipping short csv record", zap.Int("line", line), zap.Int("fields", len(record)))
			skipped++
			continue
		}

		id, err := strconv.ParseUint(strings.TrimSpace(record[idIdx]), 10, 64)
		if err != nil {
			s.logger.Warn("Skipping csv record with bad id",
				zap.Int("line", line), zap.String("id", record[idIdx]))
			skipped++
			continue
		}

		rows = append(rows, domain.Row{
			ID:          id,
			Title:       record[titleIdx],
			Description: record[descIdx],
		})
	}

	return rows, skipped, nil
}
