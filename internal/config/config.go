// Package config provides configuration loading for docscout.
//
// Configuration hierarchy (later layers override earlier ones):
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (.docscout.yaml in the working directory, or --config path)
//  3. .env file in the working directory (DROPBOX_ACCESS_TOKEN and friends)
//  4. Environment variables (DOCSCOUT_*, DROPBOX_ACCESS_TOKEN)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the project configuration file name.
const DefaultConfigFile = ".docscout.yaml"

// Config represents the complete docscout configuration.
type Config struct {
	Version int           `yaml:"version"`
	DataDir string        `yaml:"data_dir"`
	Remote  RemoteConfig  `yaml:"remote"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Extract ExtractConfig `yaml:"extract"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
}

// RemoteConfig configures the remote storage account.
type RemoteConfig struct {
	// Provider is the remote storage provider. Only "dropbox" is supported.
	Provider string `yaml:"provider"`

	// AccessToken authenticates against the provider.
	// Usually supplied via DROPBOX_ACCESS_TOKEN rather than the config file.
	AccessToken string `yaml:"access_token"`

	// RootPath restricts listing to a folder ("" means the whole account).
	RootPath string `yaml:"root_path"`
}

// IngestConfig configures ingestion runs.
type IngestConfig struct {
	// Workers is the bounded parallelism for per-path pipelines.
	Workers int `yaml:"workers"`

	// FetchTimeout bounds a single remote fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// ExtractConfig configures text extraction.
type ExtractConfig struct {
	// MaxFileBytes is the extraction input ceiling; larger inputs are
	// truncated before extraction and recorded as partial.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// MaxTextRunes caps the stored text head window per document.
	MaxTextRunes int `yaml:"max_text_runes"`

	// OCRCommand is the tesseract binary to invoke.
	OCRCommand string `yaml:"ocr_command"`

	// OCRLanguage is the tesseract language model.
	OCRLanguage string `yaml:"ocr_language"`

	// OCRConfidenceThreshold below which an image extraction is partial (0-1).
	OCRConfidenceThreshold float64 `yaml:"ocr_confidence_threshold"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// DefaultLimit is the result count when the caller does not specify one.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps the result count per query.
	MaxLimit int `yaml:"max_limit"`

	// CacheSize is the LRU query-result cache capacity (0 disables caching).
	CacheSize int `yaml:"cache_size"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NewConfig returns the hardcoded default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Remote: RemoteConfig{
			Provider: "dropbox",
		},
		Ingest: IngestConfig{
			Workers:      4,
			FetchTimeout: 60 * time.Second,
		},
		Extract: ExtractConfig{
			MaxFileBytes:           600_000,
			MaxTextRunes:           200_000,
			OCRCommand:             "tesseract",
			OCRLanguage:            "eng",
			OCRConfidenceThreshold: 0.60,
		},
		Query: QueryConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
			CacheSize:    256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration. path may be empty, in which case
// .docscout.yaml in the working directory is used when present.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if fileExists(DefaultConfigFile) {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	// .env is optional; missing files are not an error.
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges a YAML file into the config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides config values from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("DROPBOX_ACCESS_TOKEN"); v != "" {
		c.Remote.AccessToken = v
	}
	if v := os.Getenv("DOCSCOUT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOCSCOUT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
	if v := os.Getenv("DOCSCOUT_MAX_FILE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Extract.MaxFileBytes = n
		}
	}
	if v := os.Getenv("DOCSCOUT_OCR_COMMAND"); v != "" {
		c.Extract.OCRCommand = v
	}
	if v := os.Getenv("DOCSCOUT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Remote.Provider != "dropbox" {
		return fmt.Errorf("unsupported remote provider: %q", c.Remote.Provider)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1, got %d", c.Ingest.Workers)
	}
	if c.Extract.MaxFileBytes < 1 {
		return fmt.Errorf("extract.max_file_bytes must be >= 1, got %d", c.Extract.MaxFileBytes)
	}
	if c.Extract.OCRConfidenceThreshold < 0 || c.Extract.OCRConfidenceThreshold > 1 {
		return fmt.Errorf("extract.ocr_confidence_threshold must be within [0,1], got %v", c.Extract.OCRConfidenceThreshold)
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit must be within [1,%d], got %d", c.Query.MaxLimit, c.Query.DefaultLimit)
	}
	return nil
}

// IndexPath returns the on-disk bleve index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.bleve")
}

// RevisionDBPath returns the on-disk revision table location.
func (c *Config) RevisionDBPath() string {
	return filepath.Join(c.DataDir, "revisions.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docscout")
	}
	return filepath.Join(home, ".docscout")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
