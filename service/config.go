package service

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veskar/trialkit/pubmed"
	"github.com/veskar/trialkit/tavily"
)

// Config holds the full trialkitd configuration.
type Config struct {
	Listen    string `yaml:"listen"`
	DBPath    string `yaml:"db_path"`
	ObsDBPath string `yaml:"obs_db_path"` // empty = alongside db_path
	DataDir   string `yaml:"data_dir"`    // uploads and chunked intakes
	MaxFileMB int    `yaml:"max_file_mb"`

	// APIKeys lists accepted clients. Empty list disables auth (dev mode).
	APIKeys []APIKey `yaml:"api_keys"`

	Browser BrowserConfig `yaml:"browser"`
	PubMed  pubmed.Config `yaml:"pubmed"`
	Tavily  tavily.Config `yaml:"tavily"`
}

// APIKey is one accepted client credential. Only the bcrypt hash is stored.
type APIKey struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"` // bcrypt hash of the key
}

// BrowserConfig controls the headless rendering path for web fetches.
type BrowserConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RemoteURL string `yaml:"remote_url"` // empty = launch local Chrome
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:    ":8084",
		DBPath:    "trialkit.db",
		DataDir:   "data",
		MaxFileMB: 200,
	}
}

// LoadConfig reads a YAML config file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks required fields and value sanity.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	for i, k := range c.APIKeys {
		if k.Name == "" {
			return fmt.Errorf("api_keys[%d]: name is required", i)
		}
		if k.Hash == "" {
			return fmt.Errorf("api_keys[%d]: hash is required", i)
		}
	}
	return nil
}

// MaxFileBytes returns the upload cap in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }
