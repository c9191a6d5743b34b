package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tgarc/config.toml.
type Config struct {
	DefaultAccount string `toml:"default_account"`

	// EmbeddingDim selects which vector column messages are embedded into.
	// Exactly one of 1536, 1024 or 768.
	EmbeddingDim int `toml:"embedding_dim"`

	// EmbeddingModel is the model name passed to the embedding provider.
	EmbeddingModel string `toml:"embedding_model"`

	// FetchPageSize is the history page size requested from the platform.
	FetchPageSize int `toml:"fetch_page_size"`

	// MetadataConcurrency and MessageConcurrency override the per-kind
	// scheduler bounds. Zero means use the defaults (5 and 3).
	MetadataConcurrency int `toml:"metadata_concurrency"`
	MessageConcurrency  int `toml:"message_concurrency"`

	// SkipMedia disables media resolution by default for message syncs.
	SkipMedia bool `toml:"skip_media"`
}

// Defaults returns a config with the documented default values.
func Defaults() *Config {
	return &Config{
		EmbeddingDim:   1536,
		EmbeddingModel: "text-embedding-3-small",
		FetchPageSize:  100,
	}
}

// Load reads config from the given path and validates it.
// Returns an error if the file is missing or invalid.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.EmbeddingDim {
	case 1536, 1024, 768:
	default:
		return fmt.Errorf("embedding_dim must be 1536, 1024 or 768, got %d", c.EmbeddingDim)
	}
	if c.FetchPageSize <= 0 || c.FetchPageSize > 100 {
		return fmt.Errorf("fetch_page_size must be in 1..100, got %d", c.FetchPageSize)
	}
	if c.MetadataConcurrency < 0 || c.MessageConcurrency < 0 {
		return fmt.Errorf("concurrency overrides must be non-negative")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
