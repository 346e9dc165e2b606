package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
)

// ParquetSource parses rows from a parquet file with id, title, and
// description columns. Uses the generic row reader rather than
// Schema.Reconstruct so nullable columns do not break reading.
type ParquetSource struct {
	path   string
	logger *zap.Logger
}

// NewParquetSource creates a parquet row source.
func NewParquetSource(path string, logger *zap.Logger) *ParquetSource {
	return &ParquetSource{path: path, logger: logger}
}

// rowColumns holds leaf-level indices of the columns we extract.
type rowColumns struct {
	id          int
	title       int
	description int
}

func resolveRowColumns(pf *parquet.File) (rowColumns, error) {
	cols := rowColumns{id: -1, title: -1, description: -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case "id":
			cols.id = i
		case "title":
			cols.title = i
		case "description":
			cols.description = i
		}
	}
	if cols.id < 0 || cols.title < 0 || cols.description < 0 {
		return cols, fmt.Errorf("parquet schema: need id, title, description columns")
	}
	return cols, nil
}

// Rows reads every row group of the file. Rows with a null or negative
// id are skipped, not fatal.
func (s *ParquetSource) Rows(ctx context.Context) ([]domain.Row, int, error) {
	f, err := os.Open(filepath.Clean(s.path))
	if err != nil {
		return nil, 0, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat parquet: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, 0, fmt.Errorf("open parquet file: %w", err)
	}

	cols, err := resolveRowColumns(pf)
	if err != nil {
		return nil, 0, err
	}

	var rows []domain.Row
	skipped := 0
	buf := make([]parquet.Row, 256)

	for _, rg := range pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		reader := parquet.NewRowGroupReader(rg)
		for {
			n, readErr := reader.ReadRows(buf)
			for i := 0; i < n; i++ {
				row, ok := s.parseRow(buf[i], cols)
				if !ok {
					skipped++
					continue
				}
				rows = append(rows, row)
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return nil, skipped, fmt.Errorf("read parquet rows: %w", readErr)
			}
		}
	}

	return rows, skipped, nil
}

func (s *ParquetSource) parseRow(row parquet.Row, cols rowColumns) (domain.Row, bool) {
	var out domain.Row
	idSet := false

	for _, v := range row {
		switch v.Column() {
		case cols.id:
			if v.IsNull() {
				continue
			}
			id := v.Int64()
			if id < 0 {
				s.logger.Warn("Skipping parquet row with negative id", zap.Int64("id", id))
				return domain.Row{}, false
			}
			out.ID = uint64(id)
			idSet = true
		case cols.title:
			if !v.IsNull() {
				out.Title = v.String()
			}
		case cols.description:
			if !v.IsNull() {
				out.Description = v.String()
			}
		}
	}

	if !idSet {
		s.logger.Warn("Skipping parquet row without id")
		return domain.Row{}, false
	}
	return out, true
}
