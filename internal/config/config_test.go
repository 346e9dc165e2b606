package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		RAG:      RAGConfig{Template: "_RETRIEVED_ _QUERY_"},
		Ingest:   IngestConfig{Format: "csv"},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing addrs")
	}
}

func TestValidate_ConflictingTemplateSources(t *testing.T) {
	cfg := validConfig()
	cfg.RAG.TemplatePath = "/etc/ragline/template.txt"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for conflicting template sources")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestValidate_NoTemplateSource(t *testing.T) {
	cfg := validConfig()
	cfg.RAG.Template = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no template source is set")
	}
}

func TestValidate_InvalidIngestFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Ingest.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported ingest format")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Index.HNSWM != 32 {
		t.Errorf("Index.HNSWM = %d, want 32", cfg.Index.HNSWM)
	}
	if cfg.Index.IsolationM != 2 {
		t.Errorf("Index.IsolationM = %d, want 2", cfg.Index.IsolationM)
	}
	if cfg.RAG.TopK != 10 {
		t.Errorf("RAG.TopK = %d, want 10", cfg.RAG.TopK)
	}
	if cfg.RAG.Candidates != 3 {
		t.Errorf("RAG.Candidates = %d, want 3", cfg.RAG.Candidates)
	}
	if cfg.Ingest.Workers != runtime.NumCPU() {
		t.Errorf("Ingest.Workers = %d, want %d", cfg.Ingest.Workers, runtime.NumCPU())
	}
	if cfg.Storage.KeyPrefix != "ragline:" {
		t.Errorf("Storage.KeyPrefix = %q", cfg.Storage.KeyPrefix)
	}
}

func TestLoadTemplate_Inline(t *testing.T) {
	cfg := validConfig()
	tpl, err := cfg.LoadTemplate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl != "_RETRIEVED_ _QUERY_" {
		t.Errorf("template = %q", tpl)
	}
}

func TestLoadTemplate_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.txt")
	if err := os.WriteFile(path, []byte("Context: _RETRIEVED_\nQ: _QUERY_\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	cfg.RAG.Template = ""
	cfg.RAG.TemplatePath = path

	tpl, err := cfg.LoadTemplate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(tpl, "_RETRIEVED_") || !strings.Contains(tpl, "_QUERY_") {
		t.Errorf("template missing placeholders: %q", tpl)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RAGLINE_TEST_KEY", "secret")

	in := []byte("api_key: ${RAGLINE_TEST_KEY}\nbase_url: ${RAGLINE_TEST_URL:-http://localhost}\n")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "api_key: secret") {
		t.Errorf("env var not expanded: %s", out)
	}
	if !strings.Contains(out, "base_url: http://localhost") {
		t.Errorf("default not applied: %s", out)
	}
}
