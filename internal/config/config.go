package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/calyx-labs/ragline/internal/domain"
)

// Config holds the ragline service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Inference InferenceConfig `yaml:"inference"`
	Index     IndexConfig     `yaml:"index"`
	Ingest    IngestConfig    `yaml:"ingest"`
	RAG       RAGConfig       `yaml:"rag"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port           int `yaml:"port"`
	ReadTimeoutSec int `yaml:"read_timeout_sec"`
	ShutdownSec    int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector index service connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Cache      bool   `yaml:"cache"`
}

// InferenceConfig holds generation engine settings.
type InferenceConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"` // 0 = engine default
	Temperature float32 `yaml:"temperature"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	// IsolationM is the per-node connectivity budget used when a
	// collection is created in isolation mode. Kept minimal so the
	// shared proximity graph is effectively disabled and group
	// filtering cannot leak across tenants, at a recall cost.
	IsolationM int `yaml:"isolation_m"`
}

// IngestConfig holds batch ingestion settings.
type IngestConfig struct {
	SourcePath string `yaml:"source_path"`
	Format     string `yaml:"format"` // csv, parquet (default: csv)
	Workers    int    `yaml:"workers"`
}

// RAGConfig holds retrieval and prompting settings.
type RAGConfig struct {
	Collection   string `yaml:"collection"`
	Template     string `yaml:"template"`      // inline reprompt template
	TemplatePath string `yaml:"template_path"` // or loaded from a file
	TopK         int    `yaml:"top_k"`
	Candidates   int    `yaml:"candidates"` // top-ranked results inspected for the reprompt
	StreamBuffer int    `yaml:"stream_buffer"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.IsolationM <= 0 {
		c.Index.IsolationM = 2
	}
	if c.Ingest.Format == "" {
		c.Ingest.Format = "csv"
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = runtime.NumCPU()
	}
	if c.RAG.Collection == "" {
		c.RAG.Collection = "first-index"
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 10
	}
	if c.RAG.Candidates <= 0 {
		c.RAG.Candidates = 3
	}
	if c.RAG.StreamBuffer <= 0 {
		c.RAG.StreamBuffer = 16
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ragline:"
	}
}

// Validate checks the configuration for correctness. Mutually exclusive
// options supplied together are fatal here, before any request is served.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.RAG.Template != "" && c.RAG.TemplatePath != "" {
		return fmt.Errorf("rag.template and rag.template_path are mutually exclusive")
	}
	if c.RAG.Template == "" && c.RAG.TemplatePath == "" {
		return fmt.Errorf("one of rag.template or rag.template_path is required")
	}
	switch c.Ingest.Format {
	case "csv", "parquet":
	default:
		return fmt.Errorf("ingest.format must be \"csv\" or \"parquet\", got %q", c.Ingest.Format)
	}
	return nil
}

// LoadTemplate resolves the reprompt template from the inline value or
// the configured file path.
func (c *Config) LoadTemplate() (string, error) {
	if c.RAG.Template != "" {
		return c.RAG.Template, nil
	}
	data, err := os.ReadFile(filepath.Clean(c.RAG.TemplatePath))
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", c.RAG.TemplatePath, err)
	}
	return string(data), nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
