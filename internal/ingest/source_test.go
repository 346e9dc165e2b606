package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCSVSource_Rows(t *testing.T) {
	path := writeTempCSV(t, "id,title,description\n"+
		"1,Alien,space horror\n"+
		"2,Heat,crime drama\n")

	src := NewCSVSource(path, zap.NewNop())
	rows, skipped, err := src.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != 1 || rows[0].Title != "Alien" || rows[0].Description != "space horror" {
		t.Errorf("row[0] = %+v", rows[0])
	}
}

func TestCSVSource_SkipsMalformedRows(t *testing.T) {
	path := writeTempCSV(t, "id,title,description\n"+
		"1,Alien,space horror\n"+
		"not-a-number,Bad,row\n"+
		"3,TooShort\n"+
		"4,Heat,crime drama\n")

	src := NewCSVSource(path, zap.NewNop())
	rows, skipped, err := src.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (malformed rows must be skipped)", len(rows))
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if rows[1].ID != 4 {
		t.Errorf("row[1].ID = %d, want 4", rows[1].ID)
	}
}

func TestCSVSource_ReordersByHeader(t *testing.T) {
	path := writeTempCSV(t, "description,id,title\n"+
		"space horror,1,Alien\n")

	src := NewCSVSource(path, zap.NewNop())
	rows, _, err := src.Rows(context.Background())
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if rows[0].Title != "Alien" || rows[0].Description != "space horror" {
		t.Errorf("row = %+v, header order must not matter", rows[0])
	}
}

func TestCSVSource_MissingColumnsFatal(t *testing.T) {
	path := writeTempCSV(t, "id,name\n1,Alien\n")

	src := NewCSVSource(path, zap.NewNop())
	if _, _, err := src.Rows(context.Background()); err == nil {
		t.Fatal("expected error for header without required columns")
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"), zap.NewNop())
	if _, _, err := src.Rows(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
