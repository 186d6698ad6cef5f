package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	SiteURL        string `toml:"site_url"`
	GraphURL       string `toml:"graph_url"`
	TenantID       string `toml:"tenant_id"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	AuthorityURL   string `toml:"authority_url"`
	PreferGraph    *bool  `toml:"prefer_graph"`
	DisableREST    *bool  `toml:"disable_rest"`
	DisableGraph   *bool  `toml:"disable_graph"`
	MaxConcurrency int    `toml:"max_concurrency"`
	HTTPTimeout    string `toml:"http_timeout"`
	MaxRetries     int    `toml:"max_retries"`
	RetryInitial   string `toml:"retry_initial"`
	RetryMax       string `toml:"retry_max"`
	MetadataFile   string `toml:"metadata_file"`
	LogLevel       string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.spbatch/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".spbatch", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("site-url", fc.SiteURL, &cfg.SiteURL)
	s.setString("graph-url", fc.GraphURL, &cfg.GraphURL)
	s.setString("tenant-id", fc.TenantID, &cfg.TenantID)
	s.setString("client-id", fc.ClientID, &cfg.ClientID)
	s.setString("client-secret", fc.ClientSecret, &cfg.ClientSecret)
	s.setString("authority-url", fc.AuthorityURL, &cfg.AuthorityURL)
	s.setString("metadata-file", fc.MetadataFile, &cfg.MetadataFile)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("retry-initial", fc.RetryInitial, &cfg.RetryInitial); err != nil {
		return err
	}
	if err := s.setDuration("retry-max", fc.RetryMax, &cfg.RetryMax); err != nil {
		return err
	}

	s.setInt("max-concurrency", fc.MaxConcurrency, &cfg.MaxConcurrency)
	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)

	s.setBool("prefer-graph", fc.PreferGraph, &cfg.PreferGraph)
	s.setBool("disable-rest", fc.DisableREST, &cfg.DisableREST)
	s.setBool("disable-graph", fc.DisableGraph, &cfg.DisableGraph)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
